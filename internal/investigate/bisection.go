package investigate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/graphix-core/graphix-core/internal/indexerclient"
	"github.com/graphix-core/graphix-core/internal/report"
	"github.com/graphix-core/graphix-core/internal/store"
	"github.com/graphix-core/graphix-core/internal/types"
)

// PoiLookup is the slice of *store.Store the bisection run needs to
// validate a pair (store.Poi), narrowed to an interface so bisection
// logic can be tested against a fake.
type PoiLookup interface {
	Poi(ctx context.Context, hash types.PoiHash) (*store.PoiRecord, error)
}

// responseSignal is one indexer's answer to a midpoint PoI query,
// normalized to either a hash or a classified error kind.
type responseSignal struct {
	hash    *types.PoiHash
	errKind string
}

func (s responseSignal) String() string {
	if s.hash != nil {
		return s.hash.String()
	}
	return "error:" + s.errKind
}

// equivalent reports whether two responses carry the same signal: both
// succeeded with equal hashes, or both failed with the same error kind.
// Success alone is never enough; two successful responses with different
// hashes disagree.
func (s responseSignal) equivalent(o responseSignal) bool {
	if s.hash != nil && o.hash != nil {
		return *s.hash == *o.hash
	}
	if s.hash == nil && o.hash == nil {
		return s.errKind == o.errKind
	}
	return false
}

func classifyErr(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}

func queryAt(ctx context.Context, c indexerclient.Client, deployment types.SubgraphDeployment, blockNumber int64) responseSignal {
	poi, err := indexerclient.ProofOfIndexing(ctx, c, types.PoiRequest{Deployment: deployment, BlockNumber: blockNumber})
	if err != nil || poi.Err != nil {
		if err == nil {
			err = poi.Err
		}
		return responseSignal{errKind: classifyErr(err)}
	}
	h := poi.Hash
	return responseSignal{hash: &h}
}

// EnrichmentFlags mirrors the request's optional query_block_caches,
// query_eth_call_caches, and query_entity_changes fields, each defaulting
// to true at the API boundary that constructs the request.
type EnrichmentFlags struct {
	BlockCaches   bool
	EthCallCaches bool
	EntityChanges bool
}

func (f EnrichmentFlags) any() bool {
	return f.BlockCaches || f.EthCallCaches || f.EntityChanges
}

// RunBisection executes one bisection run for the unordered pair (h1, h2),
// validating the pair against the store and current roster before
// bisecting. The returned report's Error field is populated (with a nil
// returned error) on a validation failure, which aborts only this run,
// not the enclosing investigation; a non-nil returned error means the
// store itself is unavailable and the whole request should be re-picked
// later.
func RunBisection(ctx context.Context, lookup PoiLookup, roster *Roster, id uuid.UUID, h1, h2 types.PoiHash, enrichment EnrichmentFlags) (report.BisectionRunReport, error) {
	run := report.BisectionRunReport{UUID: id, Poi1: h1, Poi2: h2}

	p1, err := lookup.Poi(ctx, h1)
	if err != nil {
		return withValidationError(run, newError(IndexerNotFound, err)), nil
	}
	p2, err := lookup.Poi(ctx, h2)
	if err != nil {
		return withValidationError(run, newError(IndexerNotFound, err)), nil
	}

	if p1.Deployment != p2.Deployment {
		return withValidationError(run, newError(DifferentDeployments, nil)), nil
	}
	if p1.Block.Number != p2.Block.Number {
		return withValidationError(run, newError(DifferentBlocks, nil)), nil
	}
	if p1.Indexer == p2.Indexer {
		return withValidationError(run, newError(SameIndexer, nil)), nil
	}

	c1, ok := roster.Get(p1.Indexer)
	if !ok {
		return withValidationError(run, newError(IndexerNotFound, fmt.Errorf("indexer %s not in roster", p1.Indexer))), nil
	}
	c2, ok := roster.Get(p2.Indexer)
	if !ok {
		return withValidationError(run, newError(IndexerNotFound, fmt.Errorf("indexer %s not in roster", p2.Indexer))), nil
	}

	deployment := p1.Deployment
	lo, hi := int64(0), p1.Block.Number

	for lo < hi {
		mid := lo + (hi-lo)/2 // floor((lo+hi)/2) without overflow

		type result struct {
			sig responseSignal
		}
		ch1 := make(chan result, 1)
		ch2 := make(chan result, 1)
		go func() { ch1 <- result{queryAt(ctx, c1, deployment, mid)} }()
		go func() { ch2 <- result{queryAt(ctx, c2, deployment, mid)} }()
		r1 := <-ch1
		r2 := <-ch2

		step := report.BisectionStep{
			Block:            report.PartialBlock{Number: mid},
			Indexer1Response: r1.sig.String(),
			Indexer2Response: r2.sig.String(),
		}
		run.Bisects = append(run.Bisects, step)

		if r1.sig.equivalent(r2.sig) {
			lo = mid + 1
			run.DivergenceBlockBounds.LowerBound = report.PartialBlock{Number: mid}
		} else {
			hi = mid
			run.DivergenceBlockBounds.UpperBound = report.PartialBlock{Number: mid}
		}
	}

	run.DivergenceBlockBounds.UpperBound = report.PartialBlock{Number: lo}

	if enrichment.any() && len(run.Bisects) > 0 {
		enrichTerminalStep(ctx, &run.Bisects[len(run.Bisects)-1], c1, c2, p1, deployment, enrichment)
	}

	investigateMetrics.bisectionsPerformed.Add(ctx, 1)
	return run, nil
}

// enrichTerminalStep attaches GraphNodeBlockMetadata to the last recorded
// step, per the enabled flags. EntityChanges is
// keyed by block number and always resolvable; the cache-content queries
// are keyed by block hash, which bisection only knows for the block the
// pair's own PoIs were collected at; at any other terminal block the
// indexer transport would need a number-to-hash lookup that is out of this
// core's scope, so those two fields are left empty in that case.
func enrichTerminalStep(ctx context.Context, step *report.BisectionStep, c1, c2 indexerclient.Client, p1 *store.PoiRecord, deployment types.SubgraphDeployment, enrichment EnrichmentFlags) {
	knownHash := step.Block.Number == p1.Block.Number
	step.Indexer1Metadata = fetchMetadata(ctx, c1, p1.NetworkName, p1.Block.Hash, knownHash, deployment, step.Block.Number, enrichment)
	step.Indexer2Metadata = fetchMetadata(ctx, c2, p1.NetworkName, p1.Block.Hash, knownHash, deployment, step.Block.Number, enrichment)
}

func fetchMetadata(ctx context.Context, c indexerclient.Client, network string, hash types.BlockHash, knownHash bool, deployment types.SubgraphDeployment, blockNumber int64, enrichment EnrichmentFlags) *report.GraphNodeBlockMetadata {
	meta := &report.GraphNodeBlockMetadata{}
	any := false

	if enrichment.EntityChanges {
		if changes, err := c.EntityChanges(ctx, string(deployment), blockNumber); err == nil {
			meta.EntityChanges = changes
			any = true
		}
	}
	if knownHash {
		if enrichment.EthCallCaches {
			if calls, err := c.CachedEthCalls(ctx, network, hash); err == nil {
				meta.CachedEthCalls = calls
				any = true
			}
		}
		if enrichment.BlockCaches {
			if contents, err := c.BlockCacheContents(ctx, network, hash); err == nil {
				meta.BlockCacheContents = contents
				any = true
			}
		}
	}

	if !any {
		return nil
	}
	return meta
}

func withValidationError(run report.BisectionRunReport, err *Error) report.BisectionRunReport {
	msg := err.Error()
	run.Error = &msg
	return run
}
