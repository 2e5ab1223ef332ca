package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxTx is the minimal slice of pgx.Tx the write path needs. Declaring it
// as an interface lets pure write-path logic be tested against a fake
// without a real Postgres connection. A live pgx.Tx satisfies this
// directly, since pgx.Tx.Exec/QueryRow have exactly this signature.
type pgxTx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ pgxTx = (pgx.Tx)(nil)
