package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphix-core/graphix-core/internal/types"
)

func indexerAddr(b byte) types.Address {
	var a types.Address
	a[len(a)-1] = b
	return a
}

func hash(b byte) types.PoiHash {
	var h types.PoiHash
	h[0] = b
	return h
}

// Three indexers, two agree, one outlier: the outlier sees consensus it
// isn't part of.
func TestComputeMajorityWithOneOutlier(t *testing.T) {
	dep := types.SubgraphDeployment("QmDeployment")
	group := []LivePoi{
		{Deployment: dep, Indexer: indexerAddr(1), Hash: hash(0xAA)},
		{Deployment: dep, Indexer: indexerAddr(2), Hash: hash(0xAA)},
		{Deployment: dep, Indexer: indexerAddr(3), Hash: hash(0xBB)},
	}
	grouped := GroupByDeployment(group)

	outlier := Compute(indexerAddr(3), []LivePoi{group[2]}, grouped)
	require.Len(t, outlier, 1)
	assert.True(t, outlier[0].HasConsensus)
	assert.False(t, outlier[0].InConsensus)
	assert.Equal(t, 1, outlier[0].NAgreeing)
	assert.Equal(t, 2, outlier[0].NDisagreeing)

	majority := Compute(indexerAddr(1), []LivePoi{group[0]}, grouped)
	require.Len(t, majority, 1)
	assert.True(t, majority[0].InConsensus)
}

// Two indexers agree: full consensus.
func TestComputeUnanimousAgreement(t *testing.T) {
	dep := types.SubgraphDeployment("QmDeployment")
	group := []LivePoi{
		{Deployment: dep, Indexer: indexerAddr(1), Hash: hash(0x11)},
		{Deployment: dep, Indexer: indexerAddr(2), Hash: hash(0x11)},
	}
	grouped := GroupByDeployment(group)

	result := Compute(indexerAddr(1), []LivePoi{group[0]}, grouped)
	require.Len(t, result, 1)
	assert.Equal(t, 2, result[0].TotalIndexers)
	assert.Equal(t, 2, result[0].NAgreeing)
	assert.True(t, result[0].HasConsensus)
	assert.True(t, result[0].InConsensus)
}

func TestComputeNoMajorityAtTie(t *testing.T) {
	dep := types.SubgraphDeployment("QmDeployment")
	group := []LivePoi{
		{Deployment: dep, Indexer: indexerAddr(1), Hash: hash(0x11)},
		{Deployment: dep, Indexer: indexerAddr(2), Hash: hash(0x22)},
	}
	grouped := GroupByDeployment(group)

	result := Compute(indexerAddr(1), []LivePoi{group[0]}, grouped)
	require.Len(t, result, 1)
	assert.False(t, result[0].HasConsensus)
	assert.False(t, result[0].InConsensus)
}
