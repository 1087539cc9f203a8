// Package postgres implements a Postgres storage.Sink using pgx v5. Each
// Write truncates the target table and COPYs the groups into it inside one
// transaction, so readers see either the previous run or the new one.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"catalog/internal/record"
	"catalog/internal/storage"
)

// Config holds Postgres sink configuration.
type Config struct {
	DSN      string // connection string for pgxpool
	Table    string // optionally schema-qualified, e.g. "public.product_groups"
	Extended bool
}

// txBeginner is the subset of *pgxpool.Pool used by Repository.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository is a Postgres-backed implementation of storage.Sink.
type Repository struct {
	pool txBeginner
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("postgres: table must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, record.WrapIO("postgres: ping", err)
	}
	return &Repository{pool: pool, cfg: cfg}, pool.Close, nil
}

func createSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	canonical_name TEXT          NOT NULL,
	price          NUMERIC(18,2) NOT NULL,
	"count"        BIGINT        NOT NULL,
	fingerprint    TEXT,
	avg_price      NUMERIC(18,2),
	max_price      NUMERIC(18,2),
	flagged        BIGINT
)`, pgFQN(table))
}

// Write replaces the table contents with groups.
func (r *Repository) Write(ctx context.Context, groups []record.ProductGroup) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return record.WrapIO("postgres: begin tx", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, createSQL(r.cfg.Table)); err != nil {
		return record.WrapIO("postgres: create table", err)
	}
	if _, err := tx.Exec(ctx, "TRUNCATE "+pgFQN(r.cfg.Table)); err != nil {
		return record.WrapIO("postgres: truncate", err)
	}

	cols := storage.Columns(r.cfg.Extended)
	n, err := tx.CopyFrom(ctx, identifier(r.cfg.Table), cols, pgx.CopyFromSlice(len(groups), func(i int) ([]any, error) {
		return copyRow(groups[i], r.cfg.Extended), nil
	}))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return record.WrapIO("postgres: copy", fmt.Errorf("%s (%s): %w", pgErr.Detail, pgErr.SQLState(), err))
		}
		return record.WrapIO("postgres: copy", err)
	}
	if n != int64(len(groups)) {
		return record.WrapIO("postgres: copy", fmt.Errorf("copied %d of %d rows", n, len(groups)))
	}

	if err := tx.Commit(ctx); err != nil {
		return record.WrapIO("postgres: commit", err)
	}
	return nil
}

// copyRow converts storage.Values into COPY-ready values: prices become exact
// NUMERIC values instead of text.
func copyRow(g record.ProductGroup, extended bool) []any {
	row := storage.Values(g, extended)
	row[1] = numeric(g.MinPriceCents)
	if extended {
		row[4] = numeric(g.AvgPriceCents())
		row[5] = numeric(g.MaxPriceCents)
	}
	return row
}

func numeric(cents int64) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(cents), Exp: -2, Valid: true}
}

// identifier splits "schema.table" for pgx.CopyFrom.
func identifier(name string) pgx.Identifier {
	return pgx.Identifier(strings.Split(name, "."))
}

func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.product_groups"
// to "public"."product_groups".
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}
