// Package mssql implements a Microsoft SQL Server storage.Sink using the
// go-mssqldb bulk copy API. Each Write clears the target table and bulk
// copies the groups into it inside one transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"catalog/internal/record"
	"catalog/internal/storage"
)

// Config holds MSSQL sink configuration.
type Config struct {
	DSN      string
	Table    string // e.g. "dbo.product_groups"
	Extended bool
}

// Repository is an MSSQL-backed implementation of storage.Sink.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("mssql: table must not be empty")
	}
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, record.WrapIO("mssql: ping", err)
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// createSQL creates the output table when it does not exist yet.
func createSQL(table string) string {
	lit := strings.ReplaceAll(table, "'", "''")
	return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
	[canonical_name] NVARCHAR(4000) NOT NULL,
	[price]          DECIMAL(18,2)  NOT NULL,
	[count]          BIGINT         NOT NULL,
	[fingerprint]    NVARCHAR(4000) NULL,
	[avg_price]      DECIMAL(18,2)  NULL,
	[max_price]      DECIMAL(18,2)  NULL,
	[flagged]        BIGINT         NULL
)`, lit, msFQN(table))
}

// Write replaces the table contents with groups.
func (r *Repository) Write(ctx context.Context, groups []record.ProductGroup) error {
	if _, err := r.db.ExecContext(ctx, createSQL(r.cfg.Table)); err != nil {
		return record.WrapIO("mssql: create table", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return record.WrapIO("mssql: begin tx", err)
	}
	rollback := func() { _ = tx.Rollback() }

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+msFQN(r.cfg.Table)); err != nil {
		rollback()
		return record.WrapIO("mssql: clear table", err)
	}

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(r.cfg.Table, mssql.BulkOptions{}, storage.Columns(r.cfg.Extended)...))
	if err != nil {
		rollback()
		return record.WrapIO("mssql: prepare bulk", err)
	}
	for i, g := range groups {
		if _, err := stmt.ExecContext(ctx, storage.Values(g, r.cfg.Extended)...); err != nil {
			_ = stmt.Close()
			rollback()
			return record.WrapIO(fmt.Sprintf("mssql: bulk row %d", i), err)
		}
	}
	// An Exec without arguments flushes the bulk copy.
	_, err = stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return record.WrapIO("mssql: bulk finalize", err)
	}

	if err := tx.Commit(); err != nil {
		return record.WrapIO("mssql: commit", err)
	}
	return nil
}

// msIdent bracket-quotes an identifier.
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.product_groups" to
// "[dbo].[product_groups]".
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}
