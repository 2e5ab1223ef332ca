package polling

import (
	"github.com/graphix-core/graphix-core/internal/blockchoice"
	"github.com/graphix-core/graphix-core/internal/store"
	"github.com/graphix-core/graphix-core/internal/types"
)

// deploymentPlan is the planning decision for one deployment: the
// comparison block it chose, and which indexers should be asked for a PoI
// at that block (those whose own latest block has reached it).
type deploymentPlan struct {
	Block    types.BlockPointer
	Indexers []types.Address
}

// planRequests groups statuses by deployment, runs policy over each
// group, and for every status whose latest block is at or past the chosen
// height, includes its indexer. The chosen block's hash is taken from
// whichever status in the group actually reports that height as its own
// latest block, guaranteed to exist for both Earliest and MaxSyncedBlocks,
// since each policy always returns a height that was some input's own
// LatestBlock.Number.
func planRequests(statuses []types.IndexingStatus, policy blockchoice.Policy) map[types.SubgraphDeployment]deploymentPlan {
	byDeployment := make(map[types.SubgraphDeployment][]types.IndexingStatus)
	for _, s := range statuses {
		byDeployment[s.Deployment] = append(byDeployment[s.Deployment], s)
	}

	plans := make(map[types.SubgraphDeployment]deploymentPlan, len(byDeployment))
	for deployment, group := range byDeployment {
		chosen, ok := policy.ChooseBlock(group)
		if !ok {
			continue
		}

		var hash types.BlockHash
		var indexers []types.Address
		for _, s := range group {
			if s.LatestBlock.Number == chosen {
				hash = s.LatestBlock.Hash
			}
			if s.LatestBlock.Number >= chosen {
				indexers = append(indexers, s.Indexer)
			}
		}
		if hash == nil {
			// No status actually reported this exact height as its own
			// latest block; without a hash the write path has nothing
			// canonical to key the block on, so skip this deployment for
			// this tick rather than writing a block with an empty hash.
			continue
		}

		plans[deployment] = deploymentPlan{
			Block:    types.BlockPointer{Number: chosen, Hash: hash},
			Indexers: indexers,
		}
	}
	return plans
}

// requestsByIndexer flattens plans into one PoiRequest list per indexer
// address, for step 7's per-indexer fan-out.
func requestsByIndexer(plans map[types.SubgraphDeployment]deploymentPlan) map[types.Address][]types.PoiRequest {
	out := make(map[types.Address][]types.PoiRequest)
	for deployment, plan := range plans {
		for _, addr := range plan.Indexers {
			out[addr] = append(out[addr], types.PoiRequest{Deployment: deployment, BlockNumber: plan.Block.Number})
		}
	}
	return out
}

// buildWriteBatch turns one indexer's ProofsOfIndexing results into
// store.PoiWrite rows, resolving each result's block pointer from plans.
// Results for requests the plan no longer recognizes (stale/race) are
// dropped rather than written with a zero block pointer.
func buildWriteBatch(addr types.Address, name string, results []types.ProofOfIndexing, plans map[types.SubgraphDeployment]deploymentPlan) []store.PoiWrite {
	var out []store.PoiWrite
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		plan, ok := plans[r.Request.Deployment]
		if !ok {
			continue
		}
		out = append(out, store.PoiWrite{
			Deployment:  r.Request.Deployment,
			IndexerAddr: addr,
			IndexerName: name,
			Block:       plan.Block,
			Hash:        r.Hash,
		})
	}
	return out
}
