// Package store is the durable entity layer over PostgreSQL: networks,
// deployments, indexers, blocks, PoIs and their live pointers, the
// divergence-investigation request queue, investigation reports, and API
// key lifecycle management. Built on pgx/v5's connection pool, migrated at
// startup from embedded SQL under a process-wide advisory lock.
package store

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed all:migrations
var migrationsFS embed.FS

// migrationAdvisoryLockKey is an arbitrary fixed key so that multiple
// graphix-core instances booting against one database serialize their
// migration runs instead of racing.
const migrationAdvisoryLockKey = 0x67726170687831 // "graphx1" in hex-ish

// Store wraps a pgx connection pool with the domain-specific read/write
// surface the polling loop, consensus engine, and investigator need.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Open establishes the connection pool against databaseURL. Callers must
// call Close when done.
func Open(ctx context.Context, databaseURL string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, log: log.With("component", "store")}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Pool exposes the underlying pool for callers (e.g. health checks) that
// need a raw connection without a domain-specific wrapper.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate runs every embedded .sql migration in lexical filename order,
// guarded by a Postgres advisory lock so concurrent instances don't race
// on schema setup.
func (s *Store) Migrate(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for migration: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationAdvisoryLockKey); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationAdvisoryLockKey); err != nil {
			s.log.Warn("failed to release migration advisory lock", "error", err)
		}
	}()

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		s.log.Info("applying migration", "file", name)
		if _, err := conn.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}
