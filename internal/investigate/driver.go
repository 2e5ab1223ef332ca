package investigate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/graphix-core/graphix-core/internal/report"
	"github.com/graphix-core/graphix-core/internal/types"
)

// pollInterval is how often the driver checks for a new pending request
// when the queue is empty.
const pollInterval = 3 * time.Second

// maxPoisPerRequest bounds the pairs a single request enumerates.
const maxPoisPerRequest = 4

// Queue is the durable FIFO surface the driver polls and updates.
type Queue interface {
	PoiLookup
	FirstPendingRequest(ctx context.Context) (*PendingRequest, error)
	DeletePendingRequest(ctx context.Context, id uuid.UUID) error
	UpsertReport(ctx context.Context, id uuid.UUID, report json.RawMessage) error
}

// PendingRequest mirrors store.DivergenceRequest's shape the driver
// actually consumes, kept separate so this package doesn't import store
// for anything beyond the PoiLookup/Queue interfaces above.
type PendingRequest struct {
	UUID               uuid.UUID
	Pois               []types.PoiHash
	QueryBlockCaches   bool
	QueryEthCallCaches bool
	QueryEntityChanges bool
}

// Driver runs the DivergenceInvestigator task: poll, validate, bisect
// every unordered pair, upsert incrementally, delete on completion.
type Driver struct {
	queue  Queue
	roster *Roster
	log    *slog.Logger
}

func NewDriver(queue Queue, roster *Roster, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{queue: queue, roster: roster, log: log.With("component", "investigator")}
}

// Run loops until ctx is cancelled, processing one request at a time
// (FIFO) and sleeping pollInterval whenever the queue is empty.
func (d *Driver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, err := d.queue.FirstPendingRequest(ctx)
		if err != nil {
			d.log.Error("poll pending request failed", "error", err)
		}
		if req == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
			continue
		}

		if err := d.processOne(ctx, *req); err != nil {
			d.log.Error("process divergence investigation failed", "uuid", req.UUID, "error", err)
		}
	}
}

func (d *Driver) processOne(ctx context.Context, req PendingRequest) error {
	out := report.DivergenceInvestigationReport{UUID: req.UUID, Status: report.StatusComplete}

	if len(req.Pois) > maxPoisPerRequest {
		msg := string(TooManyPois)
		out.Error = &msg
		return d.finish(ctx, req.UUID, out)
	}

	enrichment := EnrichmentFlags{
		BlockCaches:   req.QueryBlockCaches,
		EthCallCaches: req.QueryEthCallCaches,
		EntityChanges: req.QueryEntityChanges,
	}
	pairs := unorderedPairs(req.Pois)
	for _, pair := range pairs {
		run, err := RunBisection(ctx, d.queue, d.roster, req.UUID, pair[0], pair[1], enrichment)
		if err != nil {
			// Database outage: leave the request pending, re-pick it later.
			return fmt.Errorf("bisection run for %s: %w", req.UUID, err)
		}
		out.BisectionRuns = append(out.BisectionRuns, run)
		if err := d.upsert(ctx, req.UUID, out); err != nil {
			return err
		}
	}

	return d.finish(ctx, req.UUID, out)
}

func (d *Driver) upsert(ctx context.Context, id uuid.UUID, out report.DivergenceInvestigationReport) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", id, err)
	}
	return d.queue.UpsertReport(ctx, id, payload)
}

func (d *Driver) finish(ctx context.Context, id uuid.UUID, out report.DivergenceInvestigationReport) error {
	if err := d.upsert(ctx, id, out); err != nil {
		return err
	}
	return d.queue.DeletePendingRequest(ctx, id)
}

// unorderedPairs enumerates every unordered pair of positions in hashes.
// A pair whose hashes happen to be equal is still enumerated and run; the
// run's own validation decides its fate.
func unorderedPairs(hashes []types.PoiHash) [][2]types.PoiHash {
	var out [][2]types.PoiHash
	for i := 0; i < len(hashes); i++ {
		for j := i + 1; j < len(hashes); j++ {
			out = append(out, [2]types.PoiHash{hashes[i], hashes[j]})
		}
	}
	return out
}
