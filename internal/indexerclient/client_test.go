package indexerclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphix-core/graphix-core/internal/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[len(a)-1] = b
	return a
}

func TestProofOfIndexingConvenienceWrapper(t *testing.T) {
	ctx := context.Background()
	m := NewMock(addr(1), "indexer-1")
	hash := types.PoiHash{0xAA}
	m.SetPoi("QmDeployment", 10, hash)

	poi, err := ProofOfIndexing(ctx, m, types.PoiRequest{Deployment: "QmDeployment", BlockNumber: 10})
	require.NoError(t, err)
	assert.Equal(t, hash, poi.Hash)
}

func TestProofOfIndexingZeroResultsFails(t *testing.T) {
	ctx := context.Background()
	m := NewMock(addr(1), "indexer-1")
	_, err := ProofOfIndexing(ctx, m, types.PoiRequest{Deployment: "QmDeployment", BlockNumber: 10})
	assert.ErrorContains(t, err, "no proof of indexing returned")
}

func TestInterceptorReplacesHashes(t *testing.T) {
	ctx := context.Background()
	target := NewMock(addr(1), "target")
	target.SetPoi("QmDeployment", 10, types.PoiHash{0xAA})

	ic := NewInterceptor(addr(2), "interceptor", target, 0xFF)
	pois := ic.ProofsOfIndexing(ctx, []types.PoiRequest{{Deployment: "QmDeployment", BlockNumber: 10}})
	require.Len(t, pois, 1)

	var want types.PoiHash
	for i := range want {
		want[i] = 0xFF
	}
	assert.Equal(t, want, pois[0].Hash)
}

func TestChunkRequestsRespectsMaxBatchSize(t *testing.T) {
	requests := make([]types.PoiRequest, 25)
	chunks := chunkRequests(requests, maxBatchSize)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[1], 10)
	assert.Len(t, chunks[2], 5)
}
