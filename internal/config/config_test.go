package config

import (
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoad_KeepsDefaultsForOmittedFields(t *testing.T) {
	const doc = `{
	  "job": "nightly",
	  "source": {"kind": "file", "file": {"path": "dirty.csv"}},
	  "normalize": {"currency_rates": {"USD": 0.909, "GBP": "1.17"}, "max_price": 10000},
	  "storage": {"kind": "csv", "path": "clean.csv"}
	}`
	p, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Job != "nightly" {
		t.Fatalf("Job=%q", p.Job)
	}
	if p.Parser.Kind != "csv" || p.Parser.Options == nil {
		t.Fatalf("parser defaults lost: %+v", p.Parser)
	}
	if p.Normalize.ReferenceCurrency != "EUR" || p.Normalize.ScaleErrorPolicy != PolicyReject {
		t.Fatalf("normalize defaults lost: %+v", p.Normalize)
	}
	if got := p.Normalize.CurrencyRates["USD"]; !got.Equal(decimal.RequireFromString("0.909")) {
		t.Fatalf("USD rate=%s", got)
	}
	if got := p.Normalize.CurrencyRates["GBP"]; !got.Equal(decimal.RequireFromString("1.17")) {
		t.Fatalf("GBP rate=%s (string form must decode)", got)
	}
	if !p.Normalize.MaxPrice.Valid || !p.Normalize.MaxPrice.Decimal.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("max_price=%+v", p.Normalize.MaxPrice)
	}
	if !p.Normalize.MinPrice.Valid {
		t.Fatal("default min_price must stay set")
	}
	if p.Aggregate.NamePolicy != NameFirstSeen || p.Aggregate.Shards != 32 {
		t.Fatalf("aggregate defaults lost: %+v", p.Aggregate)
	}
}

func TestLoad_NullMinPriceDisablesBound(t *testing.T) {
	p, err := Load(strings.NewReader(`{"normalize": {"min_price": null}}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Normalize.MinPrice.Valid {
		t.Fatal("min_price null must clear the bound")
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader(`{"normalise": {}}`))
	if err == nil || !strings.Contains(err.Error(), "decode config") {
		t.Fatalf("want decode error for unknown field, got %v", err)
	}
}

func TestOptions_TypedAccess(t *testing.T) {
	o := Options{
		"s":    "x",
		"b":    true,
		"n":    float64(7),
		"i":    3,
		"r":    ";",
		"m":    map[string]any{"a": "name", "skip": 1},
		"list": []any{"a", 2, "b"},
	}
	if o.String("s", "d") != "x" || o.String("missing", "d") != "d" || o.String("b", "d") != "d" {
		t.Fatal("String")
	}
	if !o.Bool("b", false) || o.Bool("s", false) {
		t.Fatal("Bool")
	}
	if o.Int("n", 0) != 7 || o.Int("i", 0) != 3 || o.Int("s", 9) != 9 {
		t.Fatal("Int")
	}
	if o.Rune("r", ',') != ';' || o.Rune("missing", ',') != ',' {
		t.Fatal("Rune")
	}
	if m := o.StringMap("m"); len(m) != 1 || m["a"] != "name" {
		t.Fatalf("StringMap=%v", m)
	}
	if len(o.StringMap("missing")) != 0 {
		t.Fatal("StringMap missing must be empty")
	}
	if s := o.StringSlice("list"); len(s) != 2 || s[1] != "b" {
		t.Fatalf("StringSlice=%v", s)
	}
}

func TestOptions_UnmarshalNull(t *testing.T) {
	var o Options
	if err := o.UnmarshalJSON([]byte("null")); err != nil {
		t.Fatal(err)
	}
	if o == nil {
		t.Fatal("null options must decode to an empty map")
	}
}

func TestLoad_ShippedSamplePipeline(t *testing.T) {
	f, err := os.Open("../../configs/pipelines/sample.json")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	p, err := Load(f)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, iss := range ValidatePipeline(p) {
		if iss.Severity == SeverityError {
			t.Errorf("sample pipeline: %v", iss)
		}
	}
	if !p.Normalize.StripMarkup || !p.Normalize.DedupeSourceIDs {
		t.Fatalf("normalize=%+v", p.Normalize)
	}
}
