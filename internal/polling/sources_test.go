package polling

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphix-core/graphix-core/internal/config"
	"github.com/graphix-core/graphix-core/internal/types"
)

const (
	addrOne = "0x0000000000000000000000000000000000000001"
	addrTwo = "0x0000000000000000000000000000000000000002"
)

func indexerSource(name, address string) config.ConfigSource {
	return config.ConfigSource{
		Kind: config.SourceIndexer,
		Indexer: &config.IndexerSource{
			Name:              name,
			Address:           address,
			IndexNodeEndpoint: "https://" + name + ".example.com/status",
		},
	}
}

func TestResolveRosterDeduplicatesByAddressKeepingFirst(t *testing.T) {
	cfg := &config.Config{Sources: []config.ConfigSource{
		indexerSource("first", addrOne),
		indexerSource("second", addrOne),
		indexerSource("other", addrTwo),
	}}

	clients := resolveRoster(context.Background(), cfg, slog.Default())
	require.Len(t, clients, 2)
	assert.Equal(t, "first", clients[0].Name())
	assert.Equal(t, "other", clients[1].Name())
}

func TestResolveRosterBuildsInterceptorWithSyntheticAddress(t *testing.T) {
	cfg := &config.Config{Sources: []config.ConfigSource{
		indexerSource("target", addrOne),
		{
			Kind: config.SourceInterceptor,
			Interceptor: &config.InterceptorSource{
				Name:    "interceptor-a",
				Target:  addrOne,
				PoiByte: 0xFF,
			},
		},
	}}

	clients := resolveRoster(context.Background(), cfg, slog.Default())
	require.Len(t, clients, 2)
	assert.Equal(t, "interceptor-a", clients[1].Name())
	assert.NotEqual(t, clients[0].Address(), clients[1].Address())
}

func TestResolveRosterSkipsInterceptorWithUnknownTarget(t *testing.T) {
	cfg := &config.Config{Sources: []config.ConfigSource{
		{
			Kind: config.SourceInterceptor,
			Interceptor: &config.InterceptorSource{
				Name:    "orphan",
				Target:  addrTwo,
				PoiByte: 0xFF,
			},
		},
	}}

	clients := resolveRoster(context.Background(), cfg, slog.Default())
	assert.Empty(t, clients)
}

func TestSyntheticInterceptorAddressIsStablePerName(t *testing.T) {
	var target types.Address
	target[19] = 1

	a := syntheticInterceptorAddress("one", target)
	b := syntheticInterceptorAddress("one", target)
	c := syntheticInterceptorAddress("two", target)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, target)
}
