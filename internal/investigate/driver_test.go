package investigate

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphix-core/graphix-core/internal/indexerclient"
	"github.com/graphix-core/graphix-core/internal/types"
)

// fakeQueue is an in-memory Queue for driver tests: one pending request,
// served once, plus whatever reports get upserted along the way.
type fakeQueue struct {
	fakeLookup

	mu      sync.Mutex
	pending []PendingRequest
	reports map[uuid.UUID]json.RawMessage
	deleted map[uuid.UUID]bool
}

func newFakeQueue(lookup fakeLookup) *fakeQueue {
	return &fakeQueue{
		fakeLookup: lookup,
		reports:    make(map[uuid.UUID]json.RawMessage),
		deleted:    make(map[uuid.UUID]bool),
	}
}

func (q *fakeQueue) FirstPendingRequest(ctx context.Context) (*PendingRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	req := q.pending[0]
	q.pending = q.pending[1:]
	return &req, nil
}

func (q *fakeQueue) DeletePendingRequest(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted[id] = true
	return nil
}

func (q *fakeQueue) UpsertReport(ctx context.Context, id uuid.UUID, report json.RawMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reports[id] = report
	return nil
}

func TestProcessOneRejectsTooManyPois(t *testing.T) {
	queue := newFakeQueue(fakeLookup{})
	driver := NewDriver(queue, NewRoster(), nil)

	id := uuid.New()
	req := PendingRequest{
		UUID: id,
		Pois: []types.PoiHash{testHash(1), testHash(2), testHash(3), testHash(4), testHash(5)},
	}
	err := driver.processOne(context.Background(), req)
	require.NoError(t, err)

	raw, ok := queue.reports[id]
	require.True(t, ok)
	var out struct {
		Error *string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.NotNil(t, out.Error)
	assert.Equal(t, string(TooManyPois), *out.Error)
	assert.True(t, queue.deleted[id])
}

func TestProcessOneUpsertsIncrementallyThenDeletes(t *testing.T) {
	h1, h2 := testHash(1), testHash(2)
	lookup := fakeLookup{
		h1: {Hash: h1, Deployment: testDeployment, Indexer: testAddr(1), Block: types.BlockPointer{Number: 10}},
		h2: {Hash: h2, Deployment: testDeployment, Indexer: testAddr(2), Block: types.BlockPointer{Number: 10}},
	}
	queue := newFakeQueue(lookup)

	c1 := indexerclient.NewMock(testAddr(1), "indexer-1")
	c2 := indexerclient.NewMock(testAddr(2), "indexer-2")
	for b := int64(0); b <= 10; b++ {
		c1.SetPoi(testDeployment, b, testHash(0xAA))
		c2.SetPoi(testDeployment, b, testHash(0xAA))
	}
	roster := NewRoster()
	roster.Publish([]indexerclient.Client{c1, c2})

	driver := NewDriver(queue, roster, nil)

	id := uuid.New()
	req := PendingRequest{UUID: id, Pois: []types.PoiHash{h1, h2}, QueryBlockCaches: true, QueryEthCallCaches: true, QueryEntityChanges: true}
	err := driver.processOne(context.Background(), req)
	require.NoError(t, err)

	raw, ok := queue.reports[id]
	require.True(t, ok)
	var out struct {
		Status        string `json:"status"`
		BisectionRuns []any  `json:"bisectionRuns"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Len(t, out.BisectionRuns, 1)
	assert.True(t, queue.deleted[id])
}

func TestProcessOneRecordsValidationFailurePerPair(t *testing.T) {
	queue := newFakeQueue(fakeLookup{}) // lookup for h1/h2 misses -> store.ErrNotFound
	driver := NewDriver(queue, NewRoster(), nil)

	id := uuid.New()
	req := PendingRequest{UUID: id, Pois: []types.PoiHash{testHash(1), testHash(2)}}
	err := driver.processOne(context.Background(), req)
	require.NoError(t, err)

	raw := queue.reports[id]
	var out struct {
		BisectionRuns []struct {
			Error *string `json:"error"`
		} `json:"bisectionRuns"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.BisectionRuns, 1)
	require.NotNil(t, out.BisectionRuns[0].Error)
	assert.Contains(t, *out.BisectionRuns[0].Error, string(IndexerNotFound))
	assert.True(t, queue.deleted[id])
}
