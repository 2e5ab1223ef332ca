package investigate

import (
	"context"

	"github.com/graphix-core/graphix-core/internal/store"
)

// StoreQueue adapts *store.Store to the Queue interface, translating
// store.DivergenceRequest (the durable, JSON-shaped queue row) into the
// PendingRequest shape the driver operates on.
type StoreQueue struct {
	*store.Store
}

// NewStoreQueue wraps s so it can be passed to NewDriver.
func NewStoreQueue(s *store.Store) StoreQueue {
	return StoreQueue{Store: s}
}

func (q StoreQueue) FirstPendingRequest(ctx context.Context) (*PendingRequest, error) {
	req, err := q.Store.FirstPendingRequest(ctx)
	if err != nil || req == nil {
		return nil, err
	}
	return &PendingRequest{
		UUID:               req.UUID,
		Pois:               req.Pois,
		QueryBlockCaches:   req.QueryBlockCaches,
		QueryEthCallCaches: req.QueryEthCallCaches,
		QueryEntityChanges: req.QueryEntityChanges,
	}, nil
}

var _ Queue = StoreQueue{}
