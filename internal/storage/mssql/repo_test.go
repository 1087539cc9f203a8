package mssql

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/internal/record"
	"catalog/internal/storage"
)

var groups = []record.ProductGroup{
	{Fingerprint: "a", RepresentativeName: "ACME WIDGET", MinPriceCents: 950, MaxPriceCents: 1100, SumPriceCents: 3050, MemberCount: 3},
	{Fingerprint: "b", RepresentativeName: "BOLT", MinPriceCents: 500, MaxPriceCents: 500, SumPriceCents: 1000, MemberCount: 2},
}

func mockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Repository{db: db, cfg: Config{Table: "dbo.product_groups"}}, mock
}

/*
TestRepository_WriteBulkCopies checks the statement sequence: create, begin,
clear, one bulk row per group, the argument-less flush, commit.
*/
func TestRepository_WriteBulkCopies(t *testing.T) {
	r, mock := mockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("IF OBJECT_ID(N'dbo.product_groups', N'U') IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM [dbo].[product_groups]")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("^INSERTBULK ")
	prep.ExpectExec().WithArgs("ACME WIDGET", "9.50", int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WithArgs("BOLT", "5.00", int64(2)).WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, r.Write(context.Background(), groups))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FlushFailureRollsBack(t *testing.T) {
	r, mock := mockRepo(t)

	mock.ExpectExec("IF OBJECT_ID").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("^INSERTBULK ")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := r.Write(context.Background(), groups)
	require.Error(t, err)
	assert.True(t, errors.Is(err, record.ErrIO))
	assert.Contains(t, err.Error(), "bulk finalize")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSQL_QuotesNames(t *testing.T) {
	got := createSQL("dbo.o'brien]s")
	assert.True(t, strings.HasPrefix(got, "IF OBJECT_ID(N'dbo.o''brien]s', N'U') IS NULL"))
	assert.Contains(t, got, "CREATE TABLE [dbo].[o'brien]]s]")
}

func TestMSSQLRegistrationUsesNewRepositoryHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var gotCfg Config
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, nil, nil
	}
	sink, err := storage.New(context.Background(), storage.Config{Kind: "mssql", DSN: "sqlserver://x", Table: "dbo.t", Extended: true})
	require.NoError(t, err)
	assert.Equal(t, Config{DSN: "sqlserver://x", Table: "dbo.t", Extended: true}, gotCfg)
	sink.Close()
}
