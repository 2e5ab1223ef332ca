// Package consensus computes per-indexer PoiAgreementRatio values from the
// set of live PoIs on a deployment: strict-majority agreement, considering
// only the most recent PoI each indexer produced.
package consensus

import (
	"bytes"
	"sort"

	"github.com/graphix-core/graphix-core/internal/types"
)

// LivePoi is the minimal shape consensus needs from a store's live-PoI
// table: which indexer, which deployment, which hash.
type LivePoi struct {
	Deployment types.SubgraphDeployment `json:"deployment"`
	Indexer    types.Address            `json:"indexer"`
	Hash       types.PoiHash            `json:"hash"`
}

// PoiAgreementRatio summarizes how one indexer's live PoI on a given
// deployment compares to the rest of the live set.
type PoiAgreementRatio struct {
	Indexer       types.Address            `json:"indexer"`
	Deployment    types.SubgraphDeployment `json:"deployment"`
	Poi           types.PoiHash            `json:"poi"`
	TotalIndexers int                      `json:"totalIndexers"`
	NAgreeing     int                      `json:"nAgreeing"`
	NDisagreeing  int                      `json:"nDisagreeing"`
	HasConsensus  bool                     `json:"hasConsensus"`
	InConsensus   bool                     `json:"inConsensus"`
}

// Compute takes an indexer's own live PoIs (forA) and the full live-PoI
// set for every deployment forA touches (groupedByDeployment, keyed by
// deployment CID), and emits one PoiAgreementRatio per entry of forA.
func Compute(indexer types.Address, forA []LivePoi, groupedByDeployment map[types.SubgraphDeployment][]LivePoi) []PoiAgreementRatio {
	out := make([]PoiAgreementRatio, 0, len(forA))
	for _, p := range forA {
		group := groupedByDeployment[p.Deployment]
		total := len(group)

		counts := make(map[types.PoiHash]int, len(group))
		for _, q := range group {
			counts[q.Hash]++
		}

		hMax, cMax := argmaxHash(counts)
		hasConsensus := cMax > total/2

		nAgree := counts[p.Hash]
		nDisagree := total - nAgree
		inConsensus := hasConsensus && hMax == p.Hash

		out = append(out, PoiAgreementRatio{
			Indexer:       indexer,
			Deployment:    p.Deployment,
			Poi:           p.Hash,
			TotalIndexers: total,
			NAgreeing:     nAgree,
			NDisagreeing:  nDisagree,
			HasConsensus:  hasConsensus,
			InConsensus:   inConsensus,
		})
	}
	return out
}

// argmaxHash picks the hash with the highest count; ties break on natural
// byte order, which is irrelevant to correctness since has_consensus is
// false for any count tied at the majority threshold.
func argmaxHash(counts map[types.PoiHash]int) (types.PoiHash, int) {
	type entry struct {
		hash  types.PoiHash
		count int
	}
	entries := make([]entry, 0, len(counts))
	for h, c := range counts {
		entries = append(entries, entry{h, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return bytes.Compare(entries[i].hash[:], entries[j].hash[:]) < 0
	})
	if len(entries) == 0 {
		return types.PoiHash{}, 0
	}
	return entries[0].hash, entries[0].count
}

// GroupByDeployment buckets a flat live-PoI set by deployment CID.
func GroupByDeployment(pois []LivePoi) map[types.SubgraphDeployment][]LivePoi {
	out := make(map[types.SubgraphDeployment][]LivePoi)
	for _, p := range pois {
		out[p.Deployment] = append(out[p.Deployment], p)
	}
	return out
}
