// Package blockchoice implements the pure block-selection policies that map
// a set of per-indexer IndexingStatus observations on a single deployment to
// a single block number suitable for PoI comparison.
package blockchoice

import (
	"sort"

	"github.com/graphix-core/graphix-core/internal/types"
)

// Policy selects a comparison block from a set of IndexingStatus values
// covering one deployment. A nil/false second return means no block could
// be chosen (e.g. empty input).
type Policy interface {
	ChooseBlock(statuses []types.IndexingStatus) (int64, bool)
}

// Earliest picks the minimum of the reported latest-block numbers: the
// highest block every indexer in the set has definitely reached.
type Earliest struct{}

func (Earliest) ChooseBlock(statuses []types.IndexingStatus) (int64, bool) {
	if len(statuses) == 0 {
		return 0, false
	}
	min := statuses[0].LatestBlock.Number
	for _, s := range statuses[1:] {
		if s.LatestBlock.Number < min {
			min = s.LatestBlock.Number
		}
	}
	return min, true
}

// MaxSyncedBlocks picks the block that maximizes remaining_indexers ×
// (latest − earliest) across the ascending-sorted statuses, skipping any
// status whose latest block precedes its own earliest (an inconsistent
// observation). Ties break toward the later-iterated (larger) block number,
// matching ascending sort order.
type MaxSyncedBlocks struct{}

func (MaxSyncedBlocks) ChooseBlock(statuses []types.IndexingStatus) (int64, bool) {
	ascending := make([]types.IndexingStatus, len(statuses))
	copy(ascending, statuses)
	sort.SliceStable(ascending, func(i, j int) bool {
		return ascending[i].LatestBlock.Number < ascending[j].LatestBlock.Number
	})

	var maxUtility int64
	var best int64
	found := false

	for i, status := range ascending {
		remaining := int64(len(ascending) - i)
		blockNumber := status.LatestBlock.Number
		if blockNumber < status.EarliestBlockNum {
			continue
		}
		utility := remaining * (blockNumber - status.EarliestBlockNum)
		if utility > maxUtility || (found && utility == maxUtility) {
			maxUtility = utility
			best = blockNumber
			found = true
		}
	}

	return best, found
}

// ByName resolves a policy from the config-file token ("earliest" or
// "maxSyncedBlocks"); the zero value "" resolves to Earliest (default).
func ByName(name string) Policy {
	switch name {
	case "maxSyncedBlocks":
		return MaxSyncedBlocks{}
	default:
		return Earliest{}
	}
}
