package storage

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"catalog/internal/config"
	"catalog/internal/record"
)

// fakeSink is a minimal Sink implementation for tests.
type fakeSink struct {
	closed bool
}

func (f *fakeSink) Write(context.Context, []record.ProductGroup) error { return nil }
func (f *fakeSink) Close()                                             { f.closed = true }

// TestRegisterAndNew_Success verifies that registering a backend enables New()
// to return the corresponding sink and that the factory sees the config.
func TestRegisterAndNew_Success(t *testing.T) {
	t.Parallel()

	kind := "fake"
	var got Config
	Register(kind, func(ctx context.Context, cfg Config) (Sink, error) {
		got = cfg
		return &fakeSink{}, nil
	})

	sink, err := New(context.Background(), Config{Kind: kind, Table: "groups"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if sink == nil {
		t.Fatalf("New returned nil sink")
	}
	if got.Table != "groups" {
		t.Fatalf("factory cfg.Table=%q; want groups", got.Table)
	}

	found := false
	for _, k := range ListKinds() {
		if k == kind {
			found = true
		}
	}
	if !found {
		t.Fatalf("registered kind %q not present in ListKinds: %v", kind, ListKinds())
	}
}

// TestNew_Unsupported verifies that unsupported kinds return a helpful error.
func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Kind: "parquet"})
	if err == nil || !strings.Contains(err.Error(), `unsupported kind "parquet"`) {
		t.Fatalf("err=%v; want unsupported kind", err)
	}
}

func TestFromPipeline(t *testing.T) {
	s := config.Storage{
		Kind:     "postgres",
		Path:     "ignored.csv",
		DB:       config.DBConfig{DSN: "postgres://x", Table: "public.groups"},
		Extended: true,
		Options:  config.Options{"k": "v"},
	}
	got := FromPipeline(s)
	want := Config{Kind: "postgres", Path: "ignored.csv", DSN: "postgres://x", Table: "public.groups", Extended: true, Options: config.Options{"k": "v"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FromPipeline=%+v; want %+v", got, want)
	}
}

func TestMoney(t *testing.T) {
	tests := map[int64]string{
		0:        "0.00",
		1:        "0.01",
		950:      "9.50",
		1017:     "10.17",
		12345678: "123456.78",
	}
	for cents, want := range tests {
		if got := Money(cents); got != want {
			t.Errorf("Money(%d)=%q; want %q", cents, got, want)
		}
	}
}

/*
TestValues_AlignWithColumns checks that both row renderings line up with the
column list in base and extended mode.
*/
func TestValues_AlignWithColumns(t *testing.T) {
	g := record.ProductGroup{
		Fingerprint:        "acme widget",
		RepresentativeName: "ACME WIDGET",
		MinPriceCents:      950,
		MaxPriceCents:      1100,
		SumPriceCents:      3050,
		MemberCount:        3,
		FlaggedCount:       1,
	}

	base := Values(g, false)
	if !reflect.DeepEqual(base, []any{"ACME WIDGET", "9.50", int64(3)}) {
		t.Fatalf("base values=%v", base)
	}
	if len(base) != len(Columns(false)) {
		t.Fatalf("base: %d values for %d columns", len(base), len(Columns(false)))
	}

	ext := TextValues(nil, g, true)
	want := []string{"ACME WIDGET", "9.50", "3", "acme widget", "10.17", "11.00", "1"}
	if !reflect.DeepEqual(ext, want) {
		t.Fatalf("extended text=%v; want %v", ext, want)
	}
	if len(ext) != len(Columns(true)) || len(Values(g, true)) != len(Columns(true)) {
		t.Fatalf("extended rows do not match %d columns", len(Columns(true)))
	}

	// dst reuse keeps the rendering independent of previous contents.
	again := TextValues(ext, g, false)
	if !reflect.DeepEqual(again, []string{"ACME WIDGET", "9.50", "3"}) {
		t.Fatalf("reused dst=%v", again)
	}
}
