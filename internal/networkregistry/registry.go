// Package networkregistry queries an external network subgraph for
// indexer rosters: by staked tokens, by allocation, or by a single
// address. It models only the query shapes the config's "sources" list
// needs; the registry's full schema is out of scope.
package networkregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/graphix-core/graphix-core/internal/indexerclient"
	"github.com/graphix-core/graphix-core/internal/types"
)

// queryRetryMaxElapsed bounds how long query retries a transient network
// subgraph failure before giving up and surfacing the error to the caller.
const queryRetryMaxElapsed = 15 * time.Second

func newQueryRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = queryRetryMaxElapsed
	return bo
}

// retryableStatus reports whether an HTTP status from the network
// subgraph is worth retrying rather than a permanent rejection.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// QueryKind selects which registry query a networkSubgraph source runs.
type QueryKind string

const (
	QueryByAllocations  QueryKind = "byAllocations"
	QueryByStakedTokens QueryKind = "byStakedTokens"
)

// Client queries a network subgraph endpoint for indexer rosters.
type Client struct {
	endpoint string
	http     *http.Client
}

// New constructs a registry client against a GraphQL-ish network subgraph
// endpoint with a 60s default timeout.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

type registryIndexer struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	DisplayName string `json:"defaultDisplayName"`
}

// IndexersByStakedTokens returns indexers with at least stakeThreshold GRT
// staked; when limit > 0 only the limit highest-staked are kept. The
// returned clients are sorted by address, not by stake.
func (c *Client) IndexersByStakedTokens(ctx context.Context, stakeThreshold float64, limit int) ([]indexerclient.Client, error) {
	var wire struct {
		Indexers []registryIndexer `json:"indexers"`
	}
	if err := c.query(ctx, `query($threshold: String!) { indexers(where: { stakedTokens_gte: $threshold }, orderBy: stakedTokens, orderDirection: desc) { id url defaultDisplayName } }`,
		map[string]any{"threshold": fmt.Sprintf("%f", stakeThreshold)}, &wire); err != nil {
		return nil, fmt.Errorf("error(s) querying top indexers from the network subgraph: %w", err)
	}
	if limit > 0 && len(wire.Indexers) > limit {
		wire.Indexers = wire.Indexers[:limit]
	}
	return toClients(wire.Indexers), nil
}

type deploymentAllocations struct {
	IpfsHash           string           `json:"ipfsHash"`
	IndexerAllocations []allocationWire `json:"indexerAllocations"`
}

type allocationWire struct {
	Indexer registryIndexer `json:"indexer"`
}

// IndexersByAllocations enumerates all subgraph deployments and flattens
// their current indexer allocations into a roster, deduplicating by
// address as PollingLoop's own dedupe step will do again downstream.
func (c *Client) IndexersByAllocations(ctx context.Context) ([]indexerclient.Client, error) {
	var wire struct {
		SubgraphDeployments []deploymentAllocations `json:"subgraphDeployments"`
	}
	if err := c.query(ctx, `{ subgraphDeployments { ipfsHash indexerAllocations { indexer { id url defaultDisplayName } } } }`, nil, &wire); err != nil {
		return nil, fmt.Errorf("error(s) querying deployments from the network subgraph: %w", err)
	}

	seen := make(map[string]bool)
	var out []registryIndexer
	for _, dep := range wire.SubgraphDeployments {
		for _, alloc := range dep.IndexerAllocations {
			if alloc.Indexer.URL == "" {
				continue
			}
			if seen[alloc.Indexer.ID] {
				continue
			}
			seen[alloc.Indexer.ID] = true
			out = append(out, alloc.Indexer)
		}
	}
	return toClients(out), nil
}

// IndexerByAddress looks up a single indexer's status endpoint by address.
func (c *Client) IndexerByAddress(ctx context.Context, address types.Address) (indexerclient.Client, error) {
	var wire struct {
		Indexers []registryIndexer `json:"indexers"`
	}
	if err := c.query(ctx, `query($id: String!) { indexers(where: { id: $id }) { url defaultDisplayName } }`,
		map[string]any{"id": address.String()}, &wire); err != nil {
		return nil, fmt.Errorf("error(s) querying indexer by address from the network subgraph: %w", err)
	}
	if len(wire.Indexers) == 0 {
		return nil, fmt.Errorf("no indexer found for address %s", address)
	}
	first := wire.Indexers[0]
	return indexerclient.NewRealHTTP(address, first.DisplayName, first.URL+"/status"), nil
}

func toClients(indexers []registryIndexer) []indexerclient.Client {
	sort.SliceStable(indexers, func(i, j int) bool { return indexers[i].ID < indexers[j].ID })
	out := make([]indexerclient.Client, 0, len(indexers))
	for _, ix := range indexers {
		addr, err := types.ParseAddress(ix.ID)
		if err != nil {
			continue
		}
		out = append(out, indexerclient.NewRealHTTP(addr, ix.DisplayName, ix.URL+"/status"))
	}
	return out
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage   `json:"data"`
	Errors []json.RawMessage `json:"errors"`
}

// query posts one GraphQL request to the network subgraph, retrying
// transient failures (connection errors, 429, 5xx) with backoff until
// queryRetryMaxElapsed; a permanent 4xx or a malformed response fails fast.
func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, respBody)
			if !retryableStatus(resp.StatusCode) {
				return backoff.Permanent(statusErr)
			}
			return statusErr
		}
		body = respBody
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(newQueryRetryBackoff(), ctx)); err != nil {
		return err
	}

	var gr graphqlResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return err
	}
	if len(gr.Errors) > 0 {
		return fmt.Errorf("graphql errors: %s", gr.Errors)
	}
	if gr.Data == nil {
		return fmt.Errorf("empty response data")
	}
	return json.Unmarshal(gr.Data, out)
}
