package indexerclient

import (
	"context"

	"github.com/graphix-core/graphix-core/internal/types"
)

// Interceptor wraps another Client, forwards status/version/enrichment
// queries to it (statuses are re-attributed to the interceptor's own
// address), but replaces every PoI hash with 32 repetitions of
// PoiByte. It exists purely for integration-testing divergence detection.
type Interceptor struct {
	addr    types.Address
	name    string
	target  Client
	poiByte byte
}

// NewInterceptor constructs an interceptor with its own synthetic address,
// forwarding everything except PoI content to target.
func NewInterceptor(addr types.Address, name string, target Client, poiByte byte) *Interceptor {
	return &Interceptor{addr: addr, name: name, target: target, poiByte: poiByte}
}

func (i *Interceptor) Address() types.Address { return i.addr }
func (i *Interceptor) Name() string           { return i.name }

func (i *Interceptor) Ping(ctx context.Context) error { return i.target.Ping(ctx) }

func (i *Interceptor) IndexingStatuses(ctx context.Context) ([]types.IndexingStatus, error) {
	statuses, err := i.target.IndexingStatuses(ctx)
	if err != nil {
		return nil, err
	}
	hijacked := make([]types.IndexingStatus, len(statuses))
	for n, s := range statuses {
		hijacked[n] = types.IndexingStatus{
			Indexer:          i.addr,
			Deployment:       s.Deployment,
			NetworkName:      s.NetworkName,
			LatestBlock:      s.LatestBlock,
			EarliestBlockNum: s.EarliestBlockNum,
		}
	}
	return hijacked, nil
}

func (i *Interceptor) ProofsOfIndexing(ctx context.Context, requests []types.PoiRequest) []types.ProofOfIndexing {
	pois := i.target.ProofsOfIndexing(ctx, requests)
	var divergent types.PoiHash
	for b := range divergent {
		divergent[b] = i.poiByte
	}
	out := make([]types.ProofOfIndexing, len(pois))
	for n, p := range pois {
		out[n] = types.ProofOfIndexing{Request: p.Request, Hash: divergent}
	}
	return out
}

func (i *Interceptor) Version(ctx context.Context) (types.GraphNodeVersion, error) {
	return i.target.Version(ctx)
}

func (i *Interceptor) SubgraphApiVersions(ctx context.Context, subgraphID string) ([]string, error) {
	return i.target.SubgraphApiVersions(ctx, subgraphID)
}

func (i *Interceptor) CachedEthCalls(ctx context.Context, network string, blockHash types.BlockHash) ([]types.CachedEthereumCall, error) {
	return i.target.CachedEthCalls(ctx, network, blockHash)
}

func (i *Interceptor) BlockCacheContents(ctx context.Context, network string, blockHash types.BlockHash) (map[string]any, error) {
	return i.target.BlockCacheContents(ctx, network, blockHash)
}

func (i *Interceptor) EntityChanges(ctx context.Context, subgraphID string, blockNumber int64) ([]types.EntityChange, error) {
	return i.target.EntityChanges(ctx, subgraphID, blockNumber)
}

var _ Client = (*Interceptor)(nil)
