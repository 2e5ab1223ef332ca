package indexerclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/graphix-core/graphix-core/internal/types"
)

// Mock is an in-memory Client used only by tests: PoIs and statuses are
// programmed directly rather than fetched over the wire.
type Mock struct {
	addr types.Address
	name string

	mu        sync.Mutex
	statuses  []types.IndexingStatus
	pois      map[types.PoiRequest]types.PoiHash
	pingErr   error
	failBatch bool
}

// NewMock constructs an empty mock indexer for the given address.
func NewMock(addr types.Address, name string) *Mock {
	return &Mock{addr: addr, name: name, pois: make(map[types.PoiRequest]types.PoiHash)}
}

func (m *Mock) Address() types.Address { return m.addr }
func (m *Mock) Name() string           { return m.name }

// SetStatuses programs the result of IndexingStatuses.
func (m *Mock) SetStatuses(statuses []types.IndexingStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = statuses
}

// SetPoi programs the hash this mock returns for (deployment, block).
func (m *Mock) SetPoi(deployment types.SubgraphDeployment, block int64, hash types.PoiHash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pois[types.PoiRequest{Deployment: deployment, BlockNumber: block}] = hash
}

// SetPingError makes Ping fail with err.
func (m *Mock) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// FailNextBatch makes the next ProofsOfIndexing call return nothing, as a
// RealHTTP whole-batch wire failure would.
func (m *Mock) FailNextBatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failBatch = true
}

func (m *Mock) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

func (m *Mock) IndexingStatuses(ctx context.Context) ([]types.IndexingStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.IndexingStatus, len(m.statuses))
	copy(out, m.statuses)
	return out, nil
}

func (m *Mock) ProofsOfIndexing(ctx context.Context, requests []types.PoiRequest) []types.ProofOfIndexing {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBatch {
		m.failBatch = false
		return nil
	}
	var out []types.ProofOfIndexing
	for _, req := range requests {
		hash, ok := m.pois[req]
		if !ok {
			continue
		}
		out = append(out, types.ProofOfIndexing{Request: req, Hash: hash})
	}
	return out
}

func (m *Mock) Version(ctx context.Context) (types.GraphNodeVersion, error) {
	return types.GraphNodeVersion{VersionString: "mock"}, nil
}

func (m *Mock) SubgraphApiVersions(ctx context.Context, subgraphID string) ([]string, error) {
	return []string{"1"}, nil
}

func (m *Mock) CachedEthCalls(ctx context.Context, network string, blockHash types.BlockHash) ([]types.CachedEthereumCall, error) {
	return nil, nil
}

func (m *Mock) BlockCacheContents(ctx context.Context, network string, blockHash types.BlockHash) (map[string]any, error) {
	return nil, nil
}

func (m *Mock) EntityChanges(ctx context.Context, subgraphID string, blockNumber int64) ([]types.EntityChange, error) {
	return nil, nil
}

var _ Client = (*Mock)(nil)

// String implements fmt.Stringer for readable test failure output.
func (m *Mock) String() string {
	return fmt.Sprintf("Mock(%s)", m.addr)
}
