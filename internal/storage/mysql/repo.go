// Package mysql implements a MySQL-backed storage.Sink using database/sql and
// go-sql-driver/mysql. The table is created outside the transaction because
// MySQL DDL commits implicitly; the DELETE and INSERTs then run in one
// transaction.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"catalog/internal/record"
	"catalog/internal/storage"
)

// Config holds MySQL sink configuration.
type Config struct {
	DSN      string // go-sql-driver DSN, e.g. "user:pass@tcp(host:3306)/db"
	Table    string // optionally schema-qualified, e.g. "shop.product_groups"
	Extended bool
}

// Repository is a MySQL-backed implementation of storage.Sink.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository parses the DSN, opens a pool and pings it.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("mysql: table must not be empty")
	}
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, record.WrapIO("mysql: ping", err)
	}
	return &Repository{db: db, cfg: cfg}, func() { _ = db.Close() }, nil
}

func createSQL(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
		"canonical_name TEXT NOT NULL, "+
		"price DECIMAL(18,2) NOT NULL, "+
		"`count` BIGINT NOT NULL, "+
		"fingerprint TEXT NULL, "+
		"avg_price DECIMAL(18,2) NULL, "+
		"max_price DECIMAL(18,2) NULL, "+
		"flagged BIGINT NULL)", fqn(table))
}

func insertSQL(table string, columns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		fqn(table), strings.Join(mapIdent(columns), ", "), placeholders)
}

// Write replaces the table contents with groups.
func (r *Repository) Write(ctx context.Context, groups []record.ProductGroup) error {
	if _, err := r.db.ExecContext(ctx, createSQL(r.cfg.Table)); err != nil {
		return record.WrapIO("mysql: create table", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return record.WrapIO("mysql: begin tx", err)
	}
	rollback := func() { _ = tx.Rollback() }

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+fqn(r.cfg.Table)); err != nil {
		rollback()
		return record.WrapIO("mysql: clear table", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(r.cfg.Table, storage.Columns(r.cfg.Extended)))
	if err != nil {
		rollback()
		return record.WrapIO("mysql: prepare insert", err)
	}
	defer stmt.Close()

	for i, g := range groups {
		if _, err := stmt.ExecContext(ctx, storage.Values(g, r.cfg.Extended)...); err != nil {
			rollback()
			return record.WrapIO(fmt.Sprintf("mysql: insert row %d", i), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return record.WrapIO("mysql: commit", err)
	}
	return nil
}

// ident backtick-quotes a MySQL identifier.
func ident(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

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
