// Package indexerclient implements the IndexerClient capability: a
// polymorphic handle onto a graph-node-style indexer, with RealHTTP,
// Interceptor, and Mock variants. Identity, equality, and map-keying all
// derive from the 20-byte address alone.
package indexerclient

import (
	"context"
	"fmt"

	"github.com/graphix-core/graphix-core/internal/types"
)

// Client is the capability set every indexer variant implements.
type Client interface {
	Address() types.Address
	Name() string // "" if unnamed

	Ping(ctx context.Context) error
	IndexingStatuses(ctx context.Context) ([]types.IndexingStatus, error)

	// ProofsOfIndexing returns partial success: missing entries are
	// silently omitted. Callers must not assume 1:1 correspondence with
	// requests.
	ProofsOfIndexing(ctx context.Context, requests []types.PoiRequest) []types.ProofOfIndexing

	Version(ctx context.Context) (types.GraphNodeVersion, error)
	SubgraphApiVersions(ctx context.Context, subgraphID string) ([]string, error)

	CachedEthCalls(ctx context.Context, network string, blockHash types.BlockHash) ([]types.CachedEthereumCall, error)
	BlockCacheContents(ctx context.Context, network string, blockHash types.BlockHash) (map[string]any, error)
	EntityChanges(ctx context.Context, subgraphID string, blockNumber int64) ([]types.EntityChange, error)
}

// ProofOfIndexing is the convenience single-PoI wrapper around
// ProofsOfIndexing. It fails if the batch returns zero or more than one
// result.
func ProofOfIndexing(ctx context.Context, c Client, req types.PoiRequest) (types.ProofOfIndexing, error) {
	pois := c.ProofsOfIndexing(ctx, []types.PoiRequest{req})
	switch len(pois) {
	case 0:
		return types.ProofOfIndexing{}, fmt.Errorf("no proof of indexing returned for %+v", req)
	case 1:
		return pois[0], nil
	default:
		return types.ProofOfIndexing{}, fmt.Errorf("multiple proofs of indexing returned for %+v", req)
	}
}

// maxBatchSize is the remote-enforced cap on a single proofs_of_indexing
// call; RealHTTP splits larger requests across multiple round trips.
const maxBatchSize = 10

func chunkRequests(requests []types.PoiRequest, size int) [][]types.PoiRequest {
	if size <= 0 {
		size = len(requests)
	}
	var chunks [][]types.PoiRequest
	for size > 0 && len(requests) > 0 {
		n := size
		if n > len(requests) {
			n = len(requests)
		}
		chunks = append(chunks, requests[:n])
		requests = requests[n:]
	}
	return chunks
}
