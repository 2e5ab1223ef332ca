package polling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphix-core/graphix-core/internal/blockchoice"
	"github.com/graphix-core/graphix-core/internal/types"
)

var assertErr = errors.New("poi unavailable")

func addr(b byte) types.Address {
	var a types.Address
	a[len(a)-1] = b
	return a
}

func blockHash(n int64) types.BlockHash {
	return types.BlockHash{byte(n), byte(n >> 8)}
}

func TestPlanRequestsEarliestPicksMinLatestBlock(t *testing.T) {
	dep := types.SubgraphDeployment("QmDeployment")
	statuses := []types.IndexingStatus{
		{Indexer: addr(1), Deployment: dep, LatestBlock: types.BlockPointer{Number: 100, Hash: blockHash(100)}},
		{Indexer: addr(2), Deployment: dep, LatestBlock: types.BlockPointer{Number: 120, Hash: blockHash(120)}},
	}

	plans := planRequests(statuses, blockchoice.Earliest{})
	require.Contains(t, plans, dep)
	plan := plans[dep]
	assert.Equal(t, int64(100), plan.Block.Number)
	assert.ElementsMatch(t, []types.Address{addr(1), addr(2)}, plan.Indexers)
}

func TestPlanRequestsSkipsDeploymentWithNoBlockHash(t *testing.T) {
	// A policy returning a height no status actually reports as its own
	// latest leaves the deployment out of the plan rather than writing a
	// block with an empty hash.
	dep := types.SubgraphDeployment("QmDeployment")
	statuses := []types.IndexingStatus{
		{Indexer: addr(1), Deployment: dep, LatestBlock: types.BlockPointer{Number: 100, Hash: blockHash(100)}},
	}
	plans := planRequests(statuses, stubPolicy{block: 999, ok: true})
	assert.NotContains(t, plans, dep)
}

type stubPolicy struct {
	block int64
	ok    bool
}

func (p stubPolicy) ChooseBlock(statuses []types.IndexingStatus) (int64, bool) {
	return p.block, p.ok
}

func TestRequestsByIndexerFlattensPerIndexer(t *testing.T) {
	dep1 := types.SubgraphDeployment("QmOne")
	dep2 := types.SubgraphDeployment("QmTwo")
	plans := map[types.SubgraphDeployment]deploymentPlan{
		dep1: {Block: types.BlockPointer{Number: 10, Hash: blockHash(10)}, Indexers: []types.Address{addr(1), addr(2)}},
		dep2: {Block: types.BlockPointer{Number: 20, Hash: blockHash(20)}, Indexers: []types.Address{addr(1)}},
	}

	byIndexer := requestsByIndexer(plans)
	require.Len(t, byIndexer[addr(1)], 2)
	require.Len(t, byIndexer[addr(2)], 1)
	assert.Equal(t, dep2, byIndexer[addr(1)][indexOf(byIndexer[addr(1)], dep2)].Deployment)
}

func indexOf(reqs []types.PoiRequest, dep types.SubgraphDeployment) int {
	for i, r := range reqs {
		if r.Deployment == dep {
			return i
		}
	}
	return -1
}

func TestBuildWriteBatchDropsErrorsAndUnknownDeployments(t *testing.T) {
	dep := types.SubgraphDeployment("QmDeployment")
	plans := map[types.SubgraphDeployment]deploymentPlan{
		dep: {Block: types.BlockPointer{Number: 10, Hash: blockHash(10)}},
	}
	var h types.PoiHash
	h[0] = 0xAA

	results := []types.ProofOfIndexing{
		{Request: types.PoiRequest{Deployment: dep, BlockNumber: 10}, Hash: h},
		{Request: types.PoiRequest{Deployment: "QmUnknown", BlockNumber: 10}, Hash: h},
		{Request: types.PoiRequest{Deployment: dep, BlockNumber: 10}, Err: assertErr},
	}

	batch := buildWriteBatch(addr(1), "indexer-1", results, plans)
	require.Len(t, batch, 1)
	assert.Equal(t, dep, batch[0].Deployment)
	assert.Equal(t, h, batch[0].Hash)
}
