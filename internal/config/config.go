// Package config loads and validates the graphix-core configuration file:
// database connection, polling cadence, block-choice policy, chain metadata,
// and the ordered list of indexer sources. yaml.v3 parses the file; viper
// layers GRAPHIX_* environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/graphix-core/graphix-core/internal/types"
)

// Config is the top-level, unmarshaled configuration record.
type Config struct {
	GraphQL                GraphQL                `yaml:"graphql"`
	DatabaseURL            string                 `yaml:"database_url"`
	PrometheusPort         uint16                 `yaml:"prometheus_port"`
	Chains                 map[string]ChainConfig `yaml:"chains"`
	Sources                []ConfigSource         `yaml:"sources"`
	BlockChoicePolicy      string                 `yaml:"block_choice_policy"`
	PollingPeriodInSeconds uint64                 `yaml:"polling_period_in_seconds"`
}

// GraphQL configures the (collaborator-owned) read/mutation HTTP surface
// port; an unset (0) port is replaced by the default, 3030.
type GraphQL struct {
	Port uint16 `yaml:"port"`
}

// ChainConfig carries chain metadata used for block-timestamp approximation
// and explorer links; report enrichment only, never core logic.
type ChainConfig struct {
	Caip2                            string     `yaml:"caip2"`
	SampleBlockHeight                *uint64    `yaml:"sample_block_height"`
	SampleTimestamp                  *time.Time `yaml:"sample_timestamp"`
	AvgBlockTimeInMsecs              *uint64    `yaml:"avg_block_time_in_msecs"`
	BlockExplorerUrlTemplateForBlock string     `yaml:"block_explorer_url_template_for_block"`
}

const (
	defaultPollingPeriodSeconds = 120
	defaultPrometheusPort       = 9184
	defaultGraphQLPort          = 3030
)

// Defaults fills in the zero-valued fields that carry defaults.
func (c *Config) Defaults() {
	if c.PollingPeriodInSeconds == 0 {
		c.PollingPeriodInSeconds = defaultPollingPeriodSeconds
	}
	if c.PrometheusPort == 0 {
		c.PrometheusPort = defaultPrometheusPort
	}
	if c.GraphQL.Port == 0 {
		c.GraphQL.Port = defaultGraphQLPort
	}
	if c.BlockChoicePolicy == "" {
		c.BlockChoicePolicy = "earliest"
	}
}

// SourceKind tags a ConfigSource's variant.
type SourceKind string

const (
	SourceIndexer          SourceKind = "indexer"
	SourceIndexerByAddress SourceKind = "indexerByAddress"
	SourceInterceptor      SourceKind = "interceptor"
	SourceNetworkSubgraph  SourceKind = "networkSubgraph"
)

// ConfigSource is one tagged entry of the `sources` list.
type ConfigSource struct {
	Kind             SourceKind
	Indexer          *IndexerSource
	IndexerByAddress *IndexerByAddressSource
	Interceptor      *InterceptorSource
	NetworkSubgraph  *NetworkSubgraphSource
}

// IndexerSource is a statically configured indexer endpoint.
type IndexerSource struct {
	Name              string `yaml:"name"`
	Address           string `yaml:"address"`
	IndexNodeEndpoint string `yaml:"index_node_endpoint"`
}

// IndexerByAddressSource resolves an indexer's endpoint via a registry
// lookup by address; requires a networkSubgraph source elsewhere in the
// list to perform the lookup against.
type IndexerByAddressSource struct {
	Address string `yaml:"address"`
}

// InterceptorSource wraps another configured indexer, replacing its PoI
// bytes for testing.
type InterceptorSource struct {
	Name    string `yaml:"name"`
	Target  string `yaml:"target"`
	PoiByte uint8  `yaml:"poi_byte"`
}

// NetworkSubgraphSource queries an external registry for an indexer roster.
type NetworkSubgraphSource struct {
	Endpoint       string  `yaml:"endpoint"`
	Query          string  `yaml:"query"` // byAllocations | byStakedTokens
	StakeThreshold float64 `yaml:"stake_threshold"`
	Limit          *int    `yaml:"limit"`
}

// UnmarshalYAML implements the tagged-union decode for ConfigSource,
// dispatching on the entry's `type` field.
func (s *ConfigSource) UnmarshalYAML(value *yaml.Node) error {
	var tag struct {
		Type string `yaml:"type"`
	}
	if err := value.Decode(&tag); err != nil {
		return fmt.Errorf("decode source type: %w", err)
	}

	switch SourceKind(tag.Type) {
	case SourceIndexer:
		var v IndexerSource
		if err := value.Decode(&v); err != nil {
			return err
		}
		s.Kind, s.Indexer = SourceIndexer, &v
	case SourceIndexerByAddress:
		var v IndexerByAddressSource
		if err := value.Decode(&v); err != nil {
			return err
		}
		s.Kind, s.IndexerByAddress = SourceIndexerByAddress, &v
	case SourceInterceptor:
		var v InterceptorSource
		if err := value.Decode(&v); err != nil {
			return err
		}
		s.Kind, s.Interceptor = SourceInterceptor, &v
	case SourceNetworkSubgraph:
		var v NetworkSubgraphSource
		if err := value.Decode(&v); err != nil {
			return err
		}
		if v.Query == "" {
			v.Query = "byAllocations"
		}
		s.Kind, s.NetworkSubgraph = SourceNetworkSubgraph, &v
	default:
		return fmt.Errorf("unknown source type %q", tag.Type)
	}
	return nil
}

// Indexers returns the statically configured indexer sources, in order.
func (c *Config) Indexers() []IndexerSource {
	var out []IndexerSource
	for _, s := range c.Sources {
		if s.Kind == SourceIndexer {
			out = append(out, *s.Indexer)
		}
	}
	return out
}

// IndexersByAddress returns the indexerByAddress sources, in order.
func (c *Config) IndexersByAddress() []IndexerByAddressSource {
	var out []IndexerByAddressSource
	for _, s := range c.Sources {
		if s.Kind == SourceIndexerByAddress {
			out = append(out, *s.IndexerByAddress)
		}
	}
	return out
}

// Interceptors returns the interceptor sources, in order.
func (c *Config) Interceptors() []InterceptorSource {
	var out []InterceptorSource
	for _, s := range c.Sources {
		if s.Kind == SourceInterceptor {
			out = append(out, *s.Interceptor)
		}
	}
	return out
}

// NetworkSubgraphs returns the networkSubgraph sources, in order.
func (c *Config) NetworkSubgraphs() []NetworkSubgraphSource {
	var out []NetworkSubgraphSource
	for _, s := range c.Sources {
		if s.Kind == SourceNetworkSubgraph {
			out = append(out, *s.NetworkSubgraph)
		}
	}
	return out
}

// Load reads path as YAML and layers GRAPHIX_* environment variable
// overrides on top via viper.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	cfg.Defaults()

	v := viper.New()
	v.SetEnvPrefix("GRAPHIX")
	v.AutomaticEnv()
	if dbURL := v.GetString("DB_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if port := v.GetUint("PORT"); port != 0 {
		cfg.GraphQL.Port = uint16(port)
	}
	if promPort := v.GetUint("PROMETHEUS_PORT"); promPort != 0 {
		cfg.PrometheusPort = uint16(promPort)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required")
	}
	for _, src := range cfg.Sources {
		if src.Kind == SourceIndexer {
			if _, err := types.ParseAddress(src.Indexer.Address); err != nil {
				return nil, fmt.Errorf("source %q: %w", src.Indexer.Name, err)
			}
		}
	}

	return &cfg, nil
}
