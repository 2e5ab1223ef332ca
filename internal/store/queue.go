package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/graphix-core/graphix-core/internal/report"
	"github.com/graphix-core/graphix-core/internal/types"
)

// DivergenceRequest is one enqueued investigation request: 2..4 PoI
// hashes to enumerate as unordered pairs, plus the optional
// report-enrichment flags (all default true).
type DivergenceRequest struct {
	UUID               uuid.UUID       `json:"uuid"`
	Pois               []types.PoiHash `json:"pois"`
	QueryBlockCaches   bool            `json:"queryBlockCaches"`
	QueryEthCallCaches bool            `json:"queryEthCallCaches"`
	QueryEntityChanges bool            `json:"queryEntityChanges"`
}

// ErrTooFewPois is returned when a caller tries to enqueue a request with
// fewer than two PoI hashes: rejected before enqueue, not deferred to the
// investigator.
var ErrTooFewPois = fmt.Errorf("divergence investigation requires at least two poi hashes")

// EnqueueDivergenceInvestigation inserts a new pending request into the
// durable FIFO queue, assigning it a fresh UUID. Requests with fewer than
// two PoI hashes are rejected before they ever reach the queue; requests
// with more than four are accepted here and rejected by the investigator
// as TooManyPois, so the rejection is observable in the report.
func (s *Store) EnqueueDivergenceInvestigation(ctx context.Context, req DivergenceRequest) (uuid.UUID, error) {
	if len(req.Pois) < 2 {
		return uuid.Nil, ErrTooFewPois
	}
	req.UUID = uuid.New()
	payload, err := json.Marshal(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal divergence request: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pending_divergence_investigation_requests (uuid, request)
		VALUES ($1, $2)
	`, req.UUID, payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue divergence investigation: %w", err)
	}
	// Seed a pending report immediately so GetReport resolves right away.
	stub, err := json.Marshal(report.PendingStub(req.UUID))
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal pending report stub: %w", err)
	}
	if err := s.UpsertReport(ctx, req.UUID, stub); err != nil {
		return uuid.Nil, fmt.Errorf("seed pending report for %s: %w", req.UUID, err)
	}
	return req.UUID, nil
}

// FirstPendingRequest returns the oldest pending request (FIFO by
// created_at) without removing it, or (nil, nil) if the queue is empty.
// The driver loop polls this and removes the request with
// DeletePendingRequest once its investigation finishes.
func (s *Store) FirstPendingRequest(ctx context.Context) (*DivergenceRequest, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT request FROM pending_divergence_investigation_requests
		ORDER BY created_at ASC
		LIMIT 1
	`).Scan(&payload)
	if err != nil {
		return nil, nil
	}
	var req DivergenceRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("unmarshal pending request: %w", err)
	}
	return &req, nil
}

// DeletePendingRequest removes a request once its investigation finishes.
func (s *Store) DeletePendingRequest(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM pending_divergence_investigation_requests WHERE uuid = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pending request %s: %w", id, err)
	}
	return nil
}

// UpsertReport stores the current state (pending or complete) of a
// divergence investigation, keyed by its request UUID.
func (s *Store) UpsertReport(ctx context.Context, id uuid.UUID, report json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO divergence_investigation_reports (uuid, report)
		VALUES ($1, $2)
		ON CONFLICT (uuid) DO UPDATE SET report = EXCLUDED.report
	`, id, report)
	if err != nil {
		return fmt.Errorf("upsert report %s: %w", id, err)
	}
	return nil
}

// GetReport reads back a stored report by UUID.
func (s *Store) GetReport(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	var report json.RawMessage
	err := s.pool.QueryRow(ctx, `SELECT report FROM divergence_investigation_reports WHERE uuid = $1`, id).Scan(&report)
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, ErrNotFound)
	}
	return report, nil
}
