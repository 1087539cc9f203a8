// Package storage defines the sink abstraction for the grouped output and a
// small registry so the CLI can open a backend by kind without importing it
// directly. Backends register themselves in init; see storage/all.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"catalog/internal/config"
	"catalog/internal/record"
)

// Sink persists the finalized groups of one run.
//
// Write is called once per run with the groups in output order. It either
// replaces the previous output completely or leaves it untouched: a failed
// or cancelled Write must not expose a partial result.
type Sink interface {
	Write(ctx context.Context, groups []record.ProductGroup) error
	Close()
}

// Config is the backend-agnostic sink configuration.
type Config struct {
	Kind string

	// Path is the output file for file sinks.
	Path string

	// DSN and Table address SQL sinks.
	DSN   string
	Table string

	// Extended adds fingerprint, avg_price, max_price and flagged columns.
	Extended bool

	Options config.Options
}

// FromPipeline maps the storage section of a pipeline onto a Config.
func FromPipeline(s config.Storage) Config {
	return Config{
		Kind:     s.Kind,
		Path:     s.Path,
		DSN:      s.DB.DSN,
		Table:    s.DB.Table,
		Extended: s.Extended,
		Options:  s.Options,
	}
}

// Factory opens a sink for cfg.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. A second registration for
// the same kind replaces the first.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens the sink registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Sink, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unsupported kind %q (registered: %v)", cfg.Kind, ListKinds())
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds in sorted order.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
