// Package report defines the JSON-shaped types written incrementally as a
// divergence investigation proceeds: DivergenceInvestigationReport,
// BisectionRunReport, BisectionStep, and the optional enrichment metadata.
package report

import (
	"github.com/google/uuid"

	"github.com/graphix-core/graphix-core/internal/types"
)

// Status is the lifecycle state of a DivergenceInvestigationReport.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
)

// PartialBlock is a block reference that may be missing its hash, used in
// bisection bounds where only the number is known mid-search.
type PartialBlock struct {
	Number int64            `json:"number"`
	Hash   *types.BlockHash `json:"hash,omitempty"`
}

// DivergenceBlockBounds tracks the shrinking [lower, upper] search window.
type DivergenceBlockBounds struct {
	LowerBound PartialBlock `json:"lowerBound"`
	UpperBound PartialBlock `json:"upperBound"`
}

// GraphNodeBlockMetadata is optional per-indexer report enrichment: cached
// eth_calls, block cache contents, and entity changes for one block.
type GraphNodeBlockMetadata struct {
	CachedEthCalls     []types.CachedEthereumCall `json:"cachedEthCalls,omitempty"`
	BlockCacheContents map[string]any             `json:"blockCacheContents,omitempty"`
	EntityChanges      []types.EntityChange       `json:"entityChanges,omitempty"`
}

// BisectionStep is one midpoint probe recorded during a bisection run.
type BisectionStep struct {
	Block            PartialBlock            `json:"block"`
	Indexer1Response string                  `json:"indexer1Response"`
	Indexer2Response string                  `json:"indexer2Response"`
	Indexer1Metadata *GraphNodeBlockMetadata `json:"indexer1Metadata,omitempty"`
	Indexer2Metadata *GraphNodeBlockMetadata `json:"indexer2Metadata,omitempty"`
}

// BisectionRunReport is the outcome of bisecting a single unordered PoI
// pair: the shrinking bounds, every probed step, and a terminal error if
// validation failed before bisection could start.
type BisectionRunReport struct {
	UUID                  uuid.UUID             `json:"uuid"`
	Poi1                  types.PoiHash         `json:"poi1"`
	Poi2                  types.PoiHash         `json:"poi2"`
	DivergenceBlockBounds DivergenceBlockBounds `json:"divergenceBlockBounds"`
	Bisects               []BisectionStep       `json:"bisects"`
	Error                 *string               `json:"error,omitempty"`
}

// DivergenceInvestigationReport is the full report for one investigation
// request, upserted in place after every completed pair: one
// BisectionRunReport per unordered pair of the request's PoI hashes.
type DivergenceInvestigationReport struct {
	UUID          uuid.UUID            `json:"uuid"`
	Status        Status               `json:"status"`
	BisectionRuns []BisectionRunReport `json:"bisectionRuns"`
	Error         *string              `json:"error,omitempty"`
}

// PendingStub returns the immediately-visible report a
// launchDivergenceInvestigation mutation returns before the investigator
// has picked the request up.
func PendingStub(id uuid.UUID) DivergenceInvestigationReport {
	return DivergenceInvestigationReport{UUID: id, Status: StatusPending}
}

func errString(s string) *string { return &s }

// WithError returns a copy of r with status Complete and the given error
// message populated: failed investigations still read back as complete,
// carrying the failure in Error rather than staying pending forever.
func (r DivergenceInvestigationReport) WithError(msg string) DivergenceInvestigationReport {
	r.Status = StatusComplete
	r.Error = errString(msg)
	return r
}
