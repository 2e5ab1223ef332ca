package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/graphix-core/graphix-core/internal/report"
	"github.com/graphix-core/graphix-core/internal/store"
	"github.com/graphix-core/graphix-core/internal/types"
)

func parseAddressList(r *http.Request, param string) ([]types.Address, error) {
	var out []types.Address
	for _, raw := range r.URL.Query()[param] {
		addr, err := types.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s query param: %w", param, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseDeploymentList(r *http.Request, param string) []types.SubgraphDeployment {
	var out []types.SubgraphDeployment
	for _, raw := range r.URL.Query()[param] {
		out = append(out, types.SubgraphDeployment(raw))
	}
	return out
}

// handleDeployments answers the `deployments` query with the distinct
// deployment CIDs that have a live PoI (optionally narrowed by `cid`),
// since deployments themselves are only ever observed as a side effect of
// a PoI write (there is no standalone deployment listing beyond filtering
// live PoIs by CID).
func (s *Server) handleDeployments(r *http.Request) (any, error) {
	filter := store.PoiFilter{Deployments: parseDeploymentList(r, "cid")}
	live, err := s.store.ListLivePois(r.Context(), filter)
	if err != nil {
		return nil, err
	}
	seen := make(map[types.SubgraphDeployment]bool)
	var out []types.SubgraphDeployment
	for _, p := range live {
		if !seen[p.Deployment] {
			seen[p.Deployment] = true
			out = append(out, p.Deployment)
		}
	}
	return out, nil
}

// handleIndexers answers `indexers(filter)` with the distinct indexer
// addresses observed in the live PoI set matching filter.
func (s *Server) handleIndexers(r *http.Request) (any, error) {
	addrs, err := parseAddressList(r, "address")
	if err != nil {
		return nil, err
	}
	live, err := s.store.ListLivePois(r.Context(), store.PoiFilter{Indexers: addrs})
	if err != nil {
		return nil, err
	}
	seen := make(map[types.Address]bool)
	var out []types.Address
	for _, p := range live {
		if !seen[p.Indexer] {
			seen[p.Indexer] = true
			out = append(out, p.Indexer)
		}
	}
	return out, nil
}

// handleProofsOfIndexing answers `proofsOfIndexing(filter)` by resolving a
// single PoI hash the caller already knows, the read path's analogue of
// store.Poi; broader historical-PoI listing beyond a known hash is out of
// this core's read surface (append-only history access is a GraphQL-layer
// pagination concern).
func (s *Server) handleProofsOfIndexing(r *http.Request) (any, error) {
	raw := r.URL.Query().Get("hash")
	if raw == "" {
		return nil, fmt.Errorf("missing required query param: hash")
	}
	hash, err := types.ParsePoiHash(raw)
	if err != nil {
		return nil, err
	}
	return s.store.Poi(r.Context(), hash)
}

// handleLiveProofsOfIndexing answers `liveProofsOfIndexing(filter)`.
func (s *Server) handleLiveProofsOfIndexing(r *http.Request) (any, error) {
	deployments := parseDeploymentList(r, "cid")
	addrs, err := parseAddressList(r, "address")
	if err != nil {
		return nil, err
	}
	return s.store.ListLivePois(r.Context(), store.PoiFilter{Deployments: deployments, Indexers: addrs})
}

// handlePoiAgreementRatios answers `poiAgreementRatios(indexerAddress)`.
func (s *Server) handlePoiAgreementRatios(r *http.Request) (any, error) {
	raw := r.URL.Query().Get("indexerAddress")
	if raw == "" {
		return nil, fmt.Errorf("missing required query param: indexerAddress")
	}
	addr, err := types.ParseAddress(raw)
	if err != nil {
		return nil, err
	}
	return s.store.PoiAgreementRatios(r.Context(), addr)
}

// handleDivergenceInvestigationReport answers `divergenceInvestigationReport(uuid)`.
func (s *Server) handleDivergenceInvestigationReport(r *http.Request) (any, error) {
	raw := r.URL.Query().Get("uuid")
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse uuid query param: %w", err)
	}
	payload, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// handleNetworks answers the `networks` query.
func (s *Server) handleNetworks(r *http.Request) (any, error) {
	return s.store.Networks(r.Context())
}

type launchDivergenceInvestigationRequest struct {
	Pois               []string `json:"pois"`
	QueryBlockCaches   *bool    `json:"queryBlockCaches,omitempty"`
	QueryEthCallCaches *bool    `json:"queryEthCallCaches,omitempty"`
	QueryEntityChanges *bool    `json:"queryEntityChanges,omitempty"`
}

func boolOrDefaultTrue(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}

// handleLaunchDivergenceInvestigation implements
// `launchDivergenceInvestigation(pois, ...)`: enqueue and immediately
// return a report stub with Pending status and the assigned UUID.
func (s *Server) handleLaunchDivergenceInvestigation(r *http.Request) (any, error) {
	body, err := decodeBody[launchDivergenceInvestigationRequest](r)
	if err != nil {
		return nil, err
	}
	hashes := make([]types.PoiHash, 0, len(body.Pois))
	for _, raw := range body.Pois {
		h, err := types.ParsePoiHash(raw)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	id, err := s.store.EnqueueDivergenceInvestigation(r.Context(), store.DivergenceRequest{
		Pois:               hashes,
		QueryBlockCaches:   boolOrDefaultTrue(body.QueryBlockCaches),
		QueryEthCallCaches: boolOrDefaultTrue(body.QueryEthCallCaches),
		QueryEntityChanges: boolOrDefaultTrue(body.QueryEntityChanges),
	})
	if err != nil {
		return nil, err
	}
	return report.PendingStub(id), nil
}

type setDeploymentNameRequest struct {
	Cid  string `json:"cid"`
	Name string `json:"name"`
}

func (s *Server) handleSetDeploymentName(r *http.Request) (any, error) {
	body, err := decodeBody[setDeploymentNameRequest](r)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetDeploymentName(r.Context(), types.SubgraphDeployment(body.Cid), body.Name); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type deleteNetworkRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleDeleteNetwork(r *http.Request) (any, error) {
	body, err := decodeBody[deleteNetworkRequest](r)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteNetwork(r.Context(), body.Name); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type createAPIKeyRequest struct {
	Notes      string `json:"notes"`
	Permission string `json:"permission"`
}

func (s *Server) handleCreateAPIKey(r *http.Request) (any, error) {
	body, err := decodeBody[createAPIKeyRequest](r)
	if err != nil {
		return nil, err
	}
	permission := store.PermissionLevel(body.Permission)
	if permission == "" {
		permission = store.PermissionReadOnly
	}
	return s.store.CreateAPIKey(r.Context(), body.Notes, permission)
}

type modifyAPIKeyRequest struct {
	PublicPrefix string `json:"publicPrefix"`
	Notes        string `json:"notes"`
	Permission   string `json:"permission"`
}

func (s *Server) handleModifyAPIKey(r *http.Request) (any, error) {
	body, err := decodeBody[modifyAPIKeyRequest](r)
	if err != nil {
		return nil, err
	}
	if err := s.store.ModifyAPIKey(r.Context(), body.PublicPrefix, body.Notes, store.PermissionLevel(body.Permission)); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type deleteAPIKeyRequest struct {
	PublicPrefix string `json:"publicPrefix"`
}

func (s *Server) handleDeleteAPIKey(r *http.Request) (any, error) {
	body, err := decodeBody[deleteAPIKeyRequest](r)
	if err != nil {
		return nil, err
	}
	if err := s.store.RevokeAPIKey(r.Context(), body.PublicPrefix); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}
