package polling

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"log/slog"

	"github.com/graphix-core/graphix-core/internal/config"
	"github.com/graphix-core/graphix-core/internal/indexerclient"
	"github.com/graphix-core/graphix-core/internal/networkregistry"
	"github.com/graphix-core/graphix-core/internal/types"
)

// resolveRoster builds the tick's roster: static indexers, every
// configured registry source's result, and synthetic interceptors, in that
// order. A registry source that fails logs and is skipped rather than
// aborting the tick.
func resolveRoster(ctx context.Context, cfg *config.Config, log *slog.Logger) []indexerclient.Client {
	var all []indexerclient.Client
	byAddr := make(map[types.Address]indexerclient.Client)

	add := func(c indexerclient.Client) {
		all = append(all, c)
		byAddr[c.Address()] = c
	}

	for _, src := range cfg.Indexers() {
		addr, err := types.ParseAddress(src.Address)
		if err != nil {
			log.Warn("skipping indexer source with invalid address", "name", src.Name, "error", err)
			continue
		}
		add(indexerclient.NewRealHTTP(addr, src.Name, src.IndexNodeEndpoint))
	}

	var registries []*networkregistry.Client
	for _, src := range cfg.NetworkSubgraphs() {
		reg := networkregistry.New(src.Endpoint)
		registries = append(registries, reg)

		var clients []indexerclient.Client
		var err error
		switch networkregistry.QueryKind(src.Query) {
		case networkregistry.QueryByStakedTokens:
			limit := 0
			if src.Limit != nil {
				limit = *src.Limit
			}
			clients, err = reg.IndexersByStakedTokens(ctx, src.StakeThreshold, limit)
		default:
			clients, err = reg.IndexersByAllocations(ctx)
		}
		if err != nil {
			log.Warn("network subgraph source failed, skipping", "endpoint", src.Endpoint, "error", err)
			continue
		}
		for _, c := range clients {
			if _, dup := byAddr[c.Address()]; dup {
				continue
			}
			add(c)
		}
	}

	for _, src := range cfg.IndexersByAddress() {
		addr, err := types.ParseAddress(src.Address)
		if err != nil {
			log.Warn("skipping indexerByAddress source with invalid address", "error", err)
			continue
		}
		if _, dup := byAddr[addr]; dup {
			continue
		}
		if len(registries) == 0 {
			log.Warn("indexerByAddress source has no networkSubgraph registry to resolve against", "address", addr)
			continue
		}
		c, err := registries[0].IndexerByAddress(ctx, addr)
		if err != nil {
			log.Warn("indexerByAddress lookup failed, skipping", "address", addr, "error", err)
			continue
		}
		add(c)
	}

	for _, src := range cfg.Interceptors() {
		targetAddr, err := types.ParseAddress(src.Target)
		if err != nil {
			log.Warn("skipping interceptor with invalid target address", "name", src.Name, "error", err)
			continue
		}
		target, ok := byAddr[targetAddr]
		if !ok {
			log.Warn("interceptor target not found in roster, skipping", "name", src.Name, "target", targetAddr)
			continue
		}
		addr := syntheticInterceptorAddress(src.Name, targetAddr)
		add(indexerclient.NewInterceptor(addr, src.Name, target, src.PoiByte))
	}

	// Deduplicate by address, preserving first occurrence.
	// The loop above already skips known duplicates as it builds byAddr,
	// but sources within the same category (two indexer entries sharing an
	// address, say) aren't deduplicated yet.
	seen := make(map[types.Address]bool, len(all))
	deduped := all[:0]
	for _, c := range all {
		if seen[c.Address()] {
			continue
		}
		seen[c.Address()] = true
		deduped = append(deduped, c)
	}
	return deduped
}

// syntheticInterceptorAddress derives a stable 20-byte address for an
// interceptor from its configured name and target, since interceptors have
// no real on-chain identity of their own. Stability, not unpredictability,
// is the requirement, so a non-cryptographic hash suffices.
func syntheticInterceptorAddress(name string, target types.Address) types.Address {
	h := fnv.New64a()
	h.Write([]byte(name))
	h.Write(target[:])

	var addr types.Address
	binary.BigEndian.PutUint64(addr[:8], h.Sum64())
	copy(addr[8:], target[:12])
	return addr
}
