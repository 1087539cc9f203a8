// Package sqlite implements a SQLite-backed storage.Sink using database/sql
// and the pure-Go modernc driver. Each Write replaces the table contents in
// a single transaction with a prepared INSERT.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"catalog/internal/record"
	"catalog/internal/storage"
)

// Config holds SQLite sink configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:catalog.db?_pragma=busy_timeout(5000)"
	//   "catalog.db"
	DSN string

	// Table receives the groups. Schema-qualified names such as
	// "main.groups" are accepted.
	Table string

	Extended bool
}

// Repository is a SQLite-backed implementation of storage.Sink.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("sqlite: table must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// Fail fast on invalid DSNs.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, record.WrapIO("sqlite: ping", err)
	}

	closeFn := func() { db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// createSQL returns the DDL for the output table. Extended columns are always
// present and nullable so base and extended runs can share a table.
func createSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	canonical_name TEXT    NOT NULL,
	price          NUMERIC NOT NULL,
	"count"        INTEGER NOT NULL,
	fingerprint    TEXT,
	avg_price      NUMERIC,
	max_price      NUMERIC,
	flagged        INTEGER
)`, fqn(table))
}

// insertSQL builds INSERT INTO <table> (<cols>) VALUES (?, ?, ...).
func insertSQL(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		fqn(table),
		strings.Join(mapIdent(columns), ", "),
		strings.Join(placeholders, ", "),
	)
}

// Write replaces the table contents with groups.
func (r *Repository) Write(ctx context.Context, groups []record.ProductGroup) error {
	if _, err := r.db.ExecContext(ctx, createSQL(r.cfg.Table)); err != nil {
		return record.WrapIO("sqlite: create table", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return record.WrapIO("sqlite: begin tx", err)
	}
	rollback := func() { _ = tx.Rollback() }

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+fqn(r.cfg.Table)); err != nil {
		rollback()
		return record.WrapIO("sqlite: clear table", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(r.cfg.Table, storage.Columns(r.cfg.Extended)))
	if err != nil {
		rollback()
		return record.WrapIO("sqlite: prepare insert", err)
	}
	defer stmt.Close()

	for i, g := range groups {
		if _, err := stmt.ExecContext(ctx, storage.Values(g, r.cfg.Extended)...); err != nil {
			rollback()
			return record.WrapIO(fmt.Sprintf("sqlite: insert row %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return record.WrapIO("sqlite: commit", err)
	}
	return nil
}

// ident quotes a SQLite identifier.
func ident(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// fqn quotes a possibly schema-qualified name like "main.groups".
func fqn(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = ident(p)
	}
	return strings.Join(parts, ".")
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = ident(c)
	}
	return out
}
