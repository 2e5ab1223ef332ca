package indexerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/graphix-core/graphix-core/internal/types"
)

// RealHTTP talks to a live graph-node-style indexer over GraphQL-shaped
// POST requests against its status endpoint.
type RealHTTP struct {
	addr     types.Address
	name     string
	endpoint string
	client   *http.Client
	log      *slog.Logger

	// onFailedQuery, if set, is invoked with the failing query label and
	// error whenever a wire-level request fails. The store's failed-query
	// audit log is wired through this hook rather than a direct import, to
	// keep indexerclient independent of store.
	onFailedQuery func(query string, err error)
}

// Option configures a RealHTTP client.
type Option func(*RealHTTP)

// WithHTTPClient overrides the pooled HTTP client (tests, custom transport).
func WithHTTPClient(c *http.Client) Option { return func(r *RealHTTP) { r.client = c } }

// WithLogger attaches a component logger.
func WithLogger(l *slog.Logger) Option { return func(r *RealHTTP) { r.log = l } }

// WithFailedQueryHook registers a callback fired on wire-level failures.
func WithFailedQueryHook(fn func(query string, err error)) Option {
	return func(r *RealHTTP) { r.onFailedQuery = fn }
}

// NewRealHTTP constructs a client against an index-node endpoint, using a
// pooled default transport with a 45s timeout unless WithHTTPClient
// overrides it.
func NewRealHTTP(addr types.Address, name, endpoint string, opts ...Option) *RealHTTP {
	r := &RealHTTP{
		addr:     addr,
		name:     name,
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 45 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RealHTTP) Address() types.Address { return r.addr }
func (r *RealHTTP) Name() string           { return r.name }

// SetFailedQueryHook replaces the failed-query callback after construction.
// The polling loop attaches the store-backed audit hook here once the roster
// is resolved, since registry-discovered clients are built before any store
// is in scope.
func (r *RealHTTP) SetFailedQueryHook(fn func(query string, err error)) {
	r.onFailedQuery = fn
}

func (r *RealHTTP) fail(query string, err error) error {
	if r.onFailedQuery != nil {
		r.onFailedQuery(query, err)
	}
	r.log.Warn("indexer query failed", "indexer", r.addr, "query", query, "error", err)
	return fmt.Errorf("%s: %w", query, err)
}

func (r *RealHTTP) post(ctx context.Context, query string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return r.fail(query, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return r.fail(query, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return r.fail(query, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return r.fail(query, err)
	}
	if resp.StatusCode != http.StatusOK {
		return r.fail(query, fmt.Errorf("status %d: %s", resp.StatusCode, data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return r.fail(query, err)
	}
	return nil
}

func (r *RealHTTP) Ping(ctx context.Context) error {
	return r.post(ctx, "ping", map[string]string{"query": "{ indexingStatuses { subgraph } }"}, nil)
}

type indexingStatusWire struct {
	Subgraph    string `json:"subgraph"`
	Network     string `json:"network"`
	LatestBlock struct {
		Number string `json:"number"`
		Hash   string `json:"hash"`
	} `json:"latestBlock"`
	EarliestBlockNum string `json:"earliestBlockNumber"`
}

func (r *RealHTTP) IndexingStatuses(ctx context.Context) ([]types.IndexingStatus, error) {
	var wire struct {
		Data struct {
			IndexingStatuses []indexingStatusWire `json:"indexingStatuses"`
		} `json:"data"`
	}
	if err := r.post(ctx, "indexing_statuses", map[string]string{
		"query": `{ indexingStatuses { subgraph network latestBlock { number hash } earliestBlockNumber } }`,
	}, &wire); err != nil {
		return nil, err
	}

	out := make([]types.IndexingStatus, 0, len(wire.Data.IndexingStatuses))
	for _, s := range wire.Data.IndexingStatuses {
		number, err := parseI64(s.LatestBlock.Number)
		if err != nil {
			r.log.Warn("skipping status with unparseable block number", "indexer", r.addr, "subgraph", s.Subgraph, "error", err)
			continue
		}
		earliest, err := parseI64(s.EarliestBlockNum)
		if err != nil {
			earliest = 0
		}
		hash, err := types.ParseBlockHash(s.LatestBlock.Hash)
		if err != nil {
			r.log.Warn("skipping status with unparseable block hash", "indexer", r.addr, "subgraph", s.Subgraph, "error", err)
			continue
		}
		out = append(out, types.IndexingStatus{
			Indexer:          r.addr,
			Deployment:       types.SubgraphDeployment(s.Subgraph),
			NetworkName:      s.Network,
			LatestBlock:      types.BlockPointer{Number: number, Hash: hash},
			EarliestBlockNum: earliest,
		})
	}
	return out, nil
}

// ProofsOfIndexing batches requests in groups of <= 10 (the remote's
// enforced cap). A parse error on one entry is logged and skipped; a wire
// (transport/status) error fails the whole batch it occurred in, but not
// sibling batches.
func (r *RealHTTP) ProofsOfIndexing(ctx context.Context, requests []types.PoiRequest) []types.ProofOfIndexing {
	var results []types.ProofOfIndexing
	for _, chunk := range chunkRequests(requests, maxBatchSize) {
		results = append(results, r.poiBatch(ctx, chunk)...)
	}
	return results
}

type poiWire struct {
	Deployment string `json:"subgraph"`
	Block      string `json:"block"`
	Poi        string `json:"proofOfIndexing"`
}

func (r *RealHTTP) poiBatch(ctx context.Context, requests []types.PoiRequest) []types.ProofOfIndexing {
	var wire struct {
		Data struct {
			Results []poiWire `json:"publicProofsOfIndexing"`
		} `json:"data"`
	}
	if err := r.post(ctx, "proofs_of_indexing", map[string]any{
		"query":     `query($requests: [PoiRequest!]!) { publicProofsOfIndexing(requests: $requests) { subgraph block proofOfIndexing } }`,
		"variables": map[string]any{"requests": requests},
	}, &wire); err != nil {
		// whole-batch wire failure: the batch contributes nothing.
		return nil
	}

	out := make([]types.ProofOfIndexing, 0, len(wire.Data.Results))
	for _, res := range wire.Data.Results {
		hash, err := types.ParsePoiHash(res.Poi)
		if err != nil {
			r.log.Warn("skipping unparseable poi", "indexer", r.addr, "subgraph", res.Deployment, "error", err)
			continue
		}
		number, err := parseI64(res.Block)
		if err != nil {
			r.log.Warn("skipping poi with unparseable block", "indexer", r.addr, "subgraph", res.Deployment, "error", err)
			continue
		}
		out = append(out, types.ProofOfIndexing{
			Request: types.PoiRequest{Deployment: types.SubgraphDeployment(res.Deployment), BlockNumber: number},
			Hash:    hash,
		})
	}
	return out
}

func (r *RealHTTP) Version(ctx context.Context) (types.GraphNodeVersion, error) {
	var wire struct {
		Data struct {
			Version struct {
				Version string `json:"version"`
				Commit  string `json:"commit"`
			} `json:"version"`
		} `json:"data"`
	}
	if err := r.post(ctx, "version", map[string]string{"query": "{ version { version commit } }"}, &wire); err != nil {
		return types.GraphNodeVersion{ErrorResponse: err.Error()}, err
	}
	return types.GraphNodeVersion{VersionString: wire.Data.Version.Version, Commit: wire.Data.Version.Commit}, nil
}

func (r *RealHTTP) SubgraphApiVersions(ctx context.Context, subgraphID string) ([]string, error) {
	var wire struct {
		Data struct {
			Versions []string `json:"subgraphApiVersions"`
		} `json:"data"`
	}
	if err := r.post(ctx, "subgraph_api_versions", map[string]any{
		"query":     `query($id: String!) { subgraphApiVersions(subgraphId: $id) }`,
		"variables": map[string]string{"id": subgraphID},
	}, &wire); err != nil {
		return nil, err
	}
	return wire.Data.Versions, nil
}

func (r *RealHTTP) CachedEthCalls(ctx context.Context, network string, blockHash types.BlockHash) ([]types.CachedEthereumCall, error) {
	var wire struct {
		Data struct {
			Calls []struct {
				Contract string `json:"contractAddress"`
				CallData string `json:"callData"`
				Result   string `json:"result"`
			} `json:"cachedEthereumCalls"`
		} `json:"data"`
	}
	if err := r.post(ctx, "cached_eth_calls", map[string]any{
		"query":     `query($network: String!, $hash: String!) { cachedEthereumCalls(network: $network, blockHash: $hash) { contractAddress callData result } }`,
		"variables": map[string]string{"network": network, "hash": blockHash.String()},
	}, &wire); err != nil {
		return nil, err
	}
	out := make([]types.CachedEthereumCall, 0, len(wire.Data.Calls))
	for _, c := range wire.Data.Calls {
		addr, err := types.ParseAddress(c.Contract)
		if err != nil {
			continue
		}
		out = append(out, types.CachedEthereumCall{
			Contract: addr,
			CallData: []byte(c.CallData),
			Result:   []byte(c.Result),
		})
	}
	return out, nil
}

func (r *RealHTTP) BlockCacheContents(ctx context.Context, network string, blockHash types.BlockHash) (map[string]any, error) {
	var wire struct {
		Data struct {
			Contents map[string]any `json:"blockCacheContents"`
		} `json:"data"`
	}
	if err := r.post(ctx, "block_cache_contents", map[string]any{
		"query":     `query($network: String!, $hash: String!) { blockCacheContents(network: $network, blockHash: $hash) }`,
		"variables": map[string]string{"network": network, "hash": blockHash.String()},
	}, &wire); err != nil {
		return nil, err
	}
	return wire.Data.Contents, nil
}

func (r *RealHTTP) EntityChanges(ctx context.Context, subgraphID string, blockNumber int64) ([]types.EntityChange, error) {
	var wire struct {
		Data struct {
			Changes []struct {
				Entity    string         `json:"entity"`
				EntityID  string         `json:"entityId"`
				Operation string         `json:"operation"`
				Data      map[string]any `json:"data"`
			} `json:"entityChanges"`
		} `json:"data"`
	}
	if err := r.post(ctx, "entity_changes", map[string]any{
		"query":     `query($id: String!, $block: Int!) { entityChanges(subgraphId: $id, blockNumber: $block) { entity entityId operation data } }`,
		"variables": map[string]any{"id": subgraphID, "block": blockNumber},
	}, &wire); err != nil {
		return nil, err
	}
	out := make([]types.EntityChange, 0, len(wire.Data.Changes))
	for _, c := range wire.Data.Changes {
		out = append(out, types.EntityChange{Entity: c.Entity, EntityID: c.EntityID, Operation: c.Operation, Data: c.Data})
	}
	return out, nil
}

func parseI64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

var _ Client = (*RealHTTP)(nil)
