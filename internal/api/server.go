// Package api exposes the service's query and mutation operations as plain
// JSON over HTTP: an unauthenticated health endpoint, operation
// endpoints under a single mux, bearer-token auth with a status-mapped
// error envelope. It is not a GraphQL server; field shape, pagination, and
// the GraphQL transport belong to the layer that sits in front of it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/graphix-core/graphix-core/internal/investigate"
	"github.com/graphix-core/graphix-core/internal/store"
)

// Server is the read/mutate JSON HTTP surface: queries run
// unauthenticated, mutations require an Admin-permission bearer API key.
type Server struct {
	store    *store.Store
	roster   *investigate.Roster
	log      *slog.Logger
	http     *http.Server
	listener net.Listener
}

// NewServer builds a Server bound to addr ("" picks an ephemeral port,
// handy for tests), serving reads and mutations from st and reporting the
// investigator roster's size on /healthz.
func NewServer(addr string, st *store.Store, roster *investigate.Roster, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{store: st, roster: roster, log: log.With("component", "api")}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)

	mux.HandleFunc("/deployments", s.withQuery(s.handleDeployments))
	mux.HandleFunc("/indexers", s.withQuery(s.handleIndexers))
	mux.HandleFunc("/proofsOfIndexing", s.withQuery(s.handleProofsOfIndexing))
	mux.HandleFunc("/liveProofsOfIndexing", s.withQuery(s.handleLiveProofsOfIndexing))
	mux.HandleFunc("/poiAgreementRatios", s.withQuery(s.handlePoiAgreementRatios))
	mux.HandleFunc("/divergenceInvestigationReport", s.withQuery(s.handleDivergenceInvestigationReport))
	mux.HandleFunc("/networks", s.withQuery(s.handleNetworks))

	mux.HandleFunc("/launchDivergenceInvestigation", s.withAdmin(s.handleLaunchDivergenceInvestigation))
	mux.HandleFunc("/setDeploymentName", s.withAdmin(s.handleSetDeploymentName))
	mux.HandleFunc("/deleteNetwork", s.withAdmin(s.handleDeleteNetwork))
	mux.HandleFunc("/createApiKey", s.withAdmin(s.handleCreateAPIKey))
	mux.HandleFunc("/modifyApiKey", s.withAdmin(s.handleModifyAPIKey))
	mux.HandleFunc("/deleteApiKey", s.withAdmin(s.handleDeleteAPIKey))

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start listens and serves until ctx is canceled, then gracefully shuts
// down. It blocks; run it in its own goroutine.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	s.listener = listener

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()

	if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve api: %w", err)
	}
	return nil
}

// Addr returns the address actually bound, useful when NewServer was given
// port 0.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.http.Addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"rosterSize": s.roster.Size(),
	})
}

// withQuery wraps a GET-only handler with the common JSON error envelope.
func (s *Server) withQuery(fn func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		result, err := fn(r)
		s.respond(w, result, err)
	}
}

// withAdmin wraps a POST-only mutation handler with bearer-token auth
// requiring PermissionAdmin.
func (s *Server) withAdmin(fn func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		permission, err := s.authenticate(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if permission != store.PermissionAdmin {
			s.writeError(w, http.StatusForbidden, "admin permission required")
			return
		}
		result, err := fn(r)
		s.respond(w, result, err)
	}
}

func (s *Server) authenticate(r *http.Request) (store.PermissionLevel, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("missing or malformed Authorization header")
	}
	key := strings.TrimPrefix(authHeader, "Bearer ")
	return s.store.VerifyAPIKey(r.Context(), key)
}

func (s *Server) respond(w http.ResponseWriter, result any, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody[T any](r *http.Request) (T, error) {
	var v T
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return v, fmt.Errorf("read request body: %w", err)
	}
	if len(body) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("decode request body: %w", err)
	}
	return v, nil
}
