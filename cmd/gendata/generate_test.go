package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/internal/config"
	"catalog/internal/pipeline"
	"catalog/internal/record"
)

func TestGenerate_SeedIsDeterministic(t *testing.T) {
	var a, b, c bytes.Buffer
	require.NoError(t, generate(&a, genConfig{Rows: 2000, Seed: 7}))
	require.NoError(t, generate(&b, genConfig{Rows: 2000, Seed: 7}))
	require.NoError(t, generate(&c, genConfig{Rows: 2000, Seed: 8}))

	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.String(), c.String())
}

func TestGenerate_Shape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, generate(&buf, genConfig{Rows: 500, Seed: 3, DupRate: 0.2}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 501)
	assert.Equal(t, Header, rows[0])

	dups := 0
	for i, r := range rows[1:] {
		require.Len(t, r, len(Header))
		id, err := strconv.Atoi(r[0])
		require.NoError(t, err)
		assert.LessOrEqual(t, id, i)
		if id != i {
			dups++
		}
		assert.Regexp(t, `^2023-10-(0[1-9]|1[0-9]|2[0-8])$`, r[4])
	}
	assert.Positive(t, dups)
}

func TestWriteCatalogue_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dirty.csv.gz")
	require.NoError(t, writeCatalogue(path, genConfig{Rows: 100, Seed: 1}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)

	var want bytes.Buffer
	require.NoError(t, generate(&want, genConfig{Rows: 100, Seed: 1}))
	assert.Equal(t, want.String(), string(got))
}

type bufSource struct{ b []byte }

func (s bufSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.b)), nil
}

type collectSink struct{ groups []record.ProductGroup }

func (c *collectSink) Write(_ context.Context, gs []record.ProductGroup) error {
	c.groups = gs
	return nil
}
func (c *collectSink) Close() {}

// TestGenerate_ThroughPipeline checks that a generated catalogue is cleaned
// with every row accounted for.
func TestGenerate_ThroughPipeline(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, generate(&buf, genConfig{Rows: 20_000, Seed: 42}))

	cfg := config.Default()
	cfg.Parser.Options = config.Options{"header_map": map[string]any{
		"ID_Source": "id", "Product_Name": "name", "Price_Raw": "price",
	}}
	cfg.Normalize.DefaultCurrency = "EUR"
	cfg.Normalize.CurrencyRates = map[string]decimal.Decimal{"USD": decimal.RequireFromString("0.909")}
	cfg.Normalize.MaxPrice = decimal.NewNullDecimal(decimal.NewFromInt(10_000))
	cfg.Normalize.ScaleErrorPolicy = config.PolicyRescale
	cfg.Aggregate.NamePolicy = config.NameLongest

	sink := &collectSink{}
	logger := &log.Logger{Handler: discard.New(), Level: log.ErrorLevel}
	sum, err := pipeline.Build(cfg, bufSource{buf.Bytes()}, sink, pipeline.WithLogger(logger)).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(20_000), sum.Rows)
	assert.Equal(t, sum.Rows, sum.Accepted+sum.Rejected)
	assert.Positive(t, sum.RejectsByReason[record.ReasonPriceMissing])
	assert.Positive(t, sum.RejectsByReason[record.ReasonScaleAnomaly], "free items fall below min_price")
	assert.Len(t, sink.groups, int(sum.Groups))

	var members int64
	for _, g := range sink.groups {
		members += g.MemberCount
		assert.LessOrEqual(t, g.MaxPriceCents, int64(1_000_000))
	}
	assert.Equal(t, sum.Accepted, members)
}
