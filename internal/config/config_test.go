package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
graphql:
  port: 3030
database_url: "postgres://localhost/graphix"
prometheus_port: 9184
block_choice_policy: maxSyncedBlocks
polling_period_in_seconds: 60
sources:
  - type: indexer
    name: indexer-a
    address: "0x0000000000000000000000000000000000000001"
    index_node_endpoint: "https://indexer-a.example.com/status"
  - type: interceptor
    name: interceptor-a
    target: "0x0000000000000000000000000000000000000001"
    poi_byte: 255
  - type: networkSubgraph
    endpoint: "https://registry.example.com/graphql"
    query: byStakedTokens
    stake_threshold: 100000
    limit: 50
  - type: indexerByAddress
    address: "0x0000000000000000000000000000000000000002"
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadParsesAllSourceKinds(t *testing.T) {
	path := writeTemp(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, cfg.Indexers(), 1)
	assert.Len(t, cfg.Interceptors(), 1)
	assert.Len(t, cfg.NetworkSubgraphs(), 1)
	assert.Len(t, cfg.IndexersByAddress(), 1)
	assert.Equal(t, "maxSyncedBlocks", cfg.BlockChoicePolicy)
	assert.EqualValues(t, 60, cfg.PollingPeriodInSeconds)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, "database_url: \"postgres://localhost/graphix\"\nsources: []\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, defaultPollingPeriodSeconds, cfg.PollingPeriodInSeconds)
	assert.EqualValues(t, defaultPrometheusPort, cfg.PrometheusPort)
	assert.Equal(t, "earliest", cfg.BlockChoicePolicy)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	path := writeTemp(t, "sources: []\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "database_url is required")
}

func TestLoadRejectsInvalidIndexerAddress(t *testing.T) {
	path := writeTemp(t, `
database_url: "postgres://localhost/graphix"
sources:
  - type: indexer
    name: bad
    address: "not-an-address"
    index_node_endpoint: "https://example.com"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverridesDatabaseURL(t *testing.T) {
	path := writeTemp(t, "database_url: \"postgres://localhost/graphix\"\nsources: []\n")
	t.Setenv("GRAPHIX_DB_URL", "postgres://override/graphix")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://override/graphix", cfg.DatabaseURL)
}
