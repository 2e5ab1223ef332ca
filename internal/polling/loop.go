// Package polling implements the recurring collection loop: resolve the
// indexer roster, collect versions and indexing statuses, choose a
// comparison block per deployment under the configured block-choice
// policy, fan out proof-of-indexing requests, and write the results as the
// live PoI set.
package polling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graphix-core/graphix-core/internal/blockchoice"
	"github.com/graphix-core/graphix-core/internal/config"
	"github.com/graphix-core/graphix-core/internal/indexerclient"
	"github.com/graphix-core/graphix-core/internal/investigate"
	"github.com/graphix-core/graphix-core/internal/store"
	"github.com/graphix-core/graphix-core/internal/types"
)

// Loop drives the recurring polling tick against a fixed store, roster
// publisher, and configuration.
type Loop struct {
	cfg    *config.Config
	store  *store.Store
	roster *investigate.Roster
	policy blockchoice.Policy
	log    *slog.Logger
}

// NewLoop constructs a Loop, resolving the configured block-choice policy
// by name; an unrecognized name falls back to Earliest, matching
// blockchoice.ByName's own default.
func NewLoop(cfg *config.Config, st *store.Store, roster *investigate.Roster, log *slog.Logger) *Loop {
	return &Loop{cfg: cfg, store: st, roster: roster, policy: blockchoice.ByName(cfg.BlockChoicePolicy), log: log.With("component", "polling")}
}

// Run ticks forever until ctx is canceled, sleeping PollingPeriodInSeconds
// between ticks. A tick error is logged and counted, never fatal: the next
// tick tries again.
func (l *Loop) Run(ctx context.Context) {
	period := time.Duration(l.cfg.PollingPeriodInSeconds) * time.Second
	for {
		if err := l.Tick(ctx); err != nil {
			pollingMetrics.tickErrors.Add(ctx, 1)
			l.log.Error("polling tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(period):
		}
	}
}

// Tick runs one full collection iteration.
func (l *Loop) Tick(ctx context.Context) error {
	clients := resolveRoster(ctx, l.cfg, l.log)
	l.attachFailedQueryHooks(ctx, clients)
	l.persistRoster(ctx, clients)

	statuses := l.collectStatuses(ctx, clients)
	plans := planRequests(statuses, l.policy)
	byIndexer := requestsByIndexer(plans)

	l.executeAndWrite(ctx, clients, byIndexer, plans)
	l.collectApiVersions(ctx, clients, statuses)

	// Published last, after the tick's writes have landed, so the
	// investigator never sees a roster ahead of the data it describes.
	l.roster.Publish(clients)
	return nil
}

// attachFailedQueryHooks routes RealHTTP wire failures into the store's
// failed_queries audit table. Registry-discovered clients are constructed
// before any store is in scope, so the hook is attached per tick rather
// than at construction time.
func (l *Loop) attachFailedQueryHooks(ctx context.Context, clients []indexerclient.Client) {
	for _, c := range clients {
		rh, ok := c.(*indexerclient.RealHTTP)
		if !ok {
			continue
		}
		addr := rh.Address()
		rh.SetFailedQueryHook(func(query string, err error) {
			if recordErr := l.store.RecordFailedQuery(ctx, addr, query, "", err.Error()); recordErr != nil {
				l.log.Warn("failed to record failed query", "indexer", addr, "error", recordErr)
			}
		})
	}
}

// persistRoster get-or-inserts every resolved indexer and best-effort
// records its graph-node version. Both are logged and skipped per-indexer
// on failure rather than aborting the tick.
func (l *Loop) persistRoster(ctx context.Context, clients []indexerclient.Client) {
	for _, c := range clients {
		if _, err := l.store.GetOrInsertIndexer(ctx, c.Address(), c.Name()); err != nil {
			l.log.Warn("failed to persist indexer", "indexer", c.Address(), "error", err)
			continue
		}
		version, err := c.Version(ctx)
		if err != nil {
			version = types.GraphNodeVersion{ErrorResponse: err.Error()}
		}
		if err := l.store.RecordIndexerVersion(ctx, c.Address(), version); err != nil {
			l.log.Warn("failed to record indexer version", "indexer", c.Address(), "error", err)
		}
	}
}

// collectStatuses fans out IndexingStatuses concurrently across the
// roster. One indexer's failure doesn't fail the group; it simply
// contributes no statuses.
func (l *Loop) collectStatuses(ctx context.Context, clients []indexerclient.Client) []types.IndexingStatus {
	results := make([][]types.IndexingStatus, len(clients))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range clients {
		i, c := i, c
		g.Go(func() error {
			pollingMetrics.indexingStatusRequests.Add(gctx, 1)
			statuses, err := c.IndexingStatuses(gctx)
			if err != nil {
				l.log.Warn("indexing statuses request failed", "indexer", c.Address(), "error", err)
				return nil
			}
			results[i] = statuses
			return nil
		})
	}
	_ = g.Wait() // errgroup here never returns a non-nil error; goroutines self-recover.

	var out []types.IndexingStatus
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// executeAndWrite fetches proofs of indexing concurrently, one call per
// indexer with outstanding requests, then writes every indexer's results
// together as one live PoI batch.
func (l *Loop) executeAndWrite(ctx context.Context, clients []indexerclient.Client, byIndexer map[types.Address][]types.PoiRequest, plans map[types.SubgraphDeployment]deploymentPlan) {
	byAddr := make(map[types.Address]indexerclient.Client, len(clients))
	for _, c := range clients {
		byAddr[c.Address()] = c
	}

	var mu sync.Mutex
	var batch []store.PoiWrite
	g, gctx := errgroup.WithContext(ctx)
	for addr, requests := range byIndexer {
		addr, requests := addr, requests
		c, ok := byAddr[addr]
		if !ok {
			continue
		}
		g.Go(func() error {
			pollingMetrics.poiRequests.Add(gctx, int64(len(requests)))
			results := c.ProofsOfIndexing(gctx, requests)
			rows := buildWriteBatch(addr, c.Name(), results, plans)
			mu.Lock()
			batch = append(batch, rows...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := l.store.WritePois(ctx, batch, store.Live); err != nil {
		l.log.Warn("failed to write pois", "error", err)
	}
}

// collectApiVersions records, best-effort, the subgraph API versions one
// indexer reports for each deployment observed this tick. Runs after the
// PoI writes so the deployment rows it attaches to already exist.
func (l *Loop) collectApiVersions(ctx context.Context, clients []indexerclient.Client, statuses []types.IndexingStatus) {
	byAddr := make(map[types.Address]indexerclient.Client, len(clients))
	for _, c := range clients {
		byAddr[c.Address()] = c
	}

	seen := make(map[types.SubgraphDeployment]bool)
	for _, s := range statuses {
		if seen[s.Deployment] {
			continue
		}
		seen[s.Deployment] = true
		c, ok := byAddr[s.Indexer]
		if !ok {
			continue
		}
		versions, queryErr := c.SubgraphApiVersions(ctx, string(s.Deployment))
		if err := l.store.RecordDeploymentApiVersions(ctx, s.Deployment, versions, queryErr); err != nil {
			l.log.Warn("failed to record deployment api versions", "deployment", s.Deployment, "error", err)
		}
	}
}
