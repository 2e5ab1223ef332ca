// Package investigate implements divergence investigations: the bisection
// state machine that localizes the first block two indexers disagree on,
// its FIFO driver loop, and the typed error taxonomy a failed validation
// step produces.
package investigate

import (
	"sync"

	"github.com/graphix-core/graphix-core/internal/indexerclient"
	"github.com/graphix-core/graphix-core/internal/types"
)

// Roster publishes the current set of live indexer clients to the
// investigator without it polling the database: single writer (the polling
// loop), many readers, last value wins.
type Roster struct {
	mu      sync.RWMutex
	clients map[types.Address]indexerclient.Client
}

// NewRoster returns an empty roster; the polling loop populates it.
func NewRoster() *Roster {
	return &Roster{clients: make(map[types.Address]indexerclient.Client)}
}

// Publish replaces the entire roster atomically (last-value-wins).
func (r *Roster) Publish(clients []indexerclient.Client) {
	next := make(map[types.Address]indexerclient.Client, len(clients))
	for _, c := range clients {
		next[c.Address()] = c
	}
	r.mu.Lock()
	r.clients = next
	r.mu.Unlock()
}

// Get returns the client for addr, or (nil, false) if it isn't currently
// in the roster.
func (r *Roster) Get(addr types.Address) (indexerclient.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[addr]
	return c, ok
}

// Size reports how many indexers the current roster holds, for health
// reporting.
func (r *Roster) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
