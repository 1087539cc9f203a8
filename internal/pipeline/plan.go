// Package pipeline wires the catalogue stages into a single run:
//
//	source -> parser -> batches -> N workers (normalize, fingerprint,
//	partial table) -> sharded group table -> finalize/sort -> sink
//
// A run goes through an explicit plan lifecycle. Build captures the
// configuration and the injected source/sink, Optimize validates it and
// resolves every runtime knob, and Execute streams the input exactly once.
//
//	plan := pipeline.Build(cfg, src, sink, pipeline.WithMetrics(rec))
//	if err := plan.Optimize(); err != nil { ... }
//	fmt.Println(plan.Explain())
//	sum, err := plan.Execute(ctx)
//
// A plan is single use; a second Execute fails.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"catalog/internal/config"
	"catalog/internal/datasource"
	"catalog/internal/fingerprint"
	"catalog/internal/metrics"
	"catalog/internal/normalize"
	"catalog/internal/parser"
	"catalog/internal/storage"
)

// State is a plan's position in its lifecycle.
type State int

const (
	StateBuilt State = iota
	StateOptimized
	StateExecuting
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateOptimized:
		return "optimized"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// ErrPlanState is returned when an operation does not fit the plan's
// current state, e.g. executing a plan twice.
var ErrPlanState = errors.New("pipeline: invalid plan state")

// Environment fallbacks for the runtime knobs; a positive config value wins.
const (
	EnvWorkers   = "CATALOG_WORKERS"
	EnvBatchSize = "CATALOG_BATCH_SIZE"
	EnvChBuffer  = "CATALOG_CH_BUFFER"
)

const (
	defaultBatchSize   = 4096
	defaultShards      = 32
	defaultSampleLimit = 3
)

// Runtime is the resolved concurrency and batching setup of a plan.
type Runtime struct {
	Workers       int
	BatchSize     int
	ChannelBuffer int // in batches
	Shards        int
	Timeout       time.Duration
}

// Option customizes a plan at Build time.
type Option func(*Plan)

// WithMetrics reports run metrics to r. Without it metrics are discarded.
func WithMetrics(r *metrics.Recorder) Option {
	return func(p *Plan) { p.rec = r }
}

// WithLogger sends run logs to l instead of the apex/log default logger.
func WithLogger(l log.Interface) Option {
	return func(p *Plan) { p.logger = l }
}

// WithSampleLimit keeps up to n example messages per reject reason.
func WithSampleLimit(n int) Option {
	return func(p *Plan) {
		if n >= 0 {
			p.sampleLimit = n
		}
	}
}

// Plan is one configured run.
type Plan struct {
	cfg         config.Pipeline
	src         datasource.Source
	sink        storage.Sink
	rec         *metrics.Recorder
	logger      log.Interface
	sampleLimit int

	mu    sync.Mutex
	state State
	err   error // set when state is StateFailed

	// Resolved by Optimize.
	runID      string
	rt         Runtime
	projection []string
	norm       *normalize.Normalizer
	fp         *fingerprint.Generator
	stream     parser.StreamFunc
}

// Build captures cfg and the endpoints of a run. It does no validation;
// problems surface from Optimize or Execute.
func Build(cfg config.Pipeline, src datasource.Source, sink storage.Sink, opts ...Option) *Plan {
	p := &Plan{
		cfg:         cfg,
		src:         src,
		sink:        sink,
		rec:         metrics.Nop(),
		logger:      log.Log,
		sampleLimit: defaultSampleLimit,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// State returns the plan's current lifecycle state.
func (p *Plan) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Runtime returns the resolved runtime. It is the zero value before Optimize.
func (p *Plan) Runtime() Runtime {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rt
}

// Optimize validates the configuration and resolves the run: stage
// components, projection and runtime knobs. Calling it on an optimized plan
// is a no-op.
func (p *Plan) Optimize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.optimizeLocked()
}

func (p *Plan) optimizeLocked() error {
	switch p.state {
	case StateOptimized:
		return nil
	case StateBuilt:
	default:
		return fmt.Errorf("%w: optimize in state %s", ErrPlanState, p.state)
	}
	if err := p.resolve(); err != nil {
		p.state, p.err = StateFailed, err
		return err
	}
	p.state = StateOptimized
	return nil
}

func (p *Plan) resolve() error {
	if p.src == nil || p.sink == nil {
		return fmt.Errorf("pipeline: plan needs both a source and a sink")
	}
	if err := config.Err(stageIssues(config.ValidatePipeline(p.cfg))); err != nil {
		return fmt.Errorf("pipeline: invalid config: %w", err)
	}

	norm, err := normalize.New(p.cfg.Normalize)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	stream, err := parser.For(p.cfg.Parser.Kind)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	p.norm = norm
	p.fp = fingerprint.New(p.cfg.Fingerprint)
	p.stream = stream
	p.projection = projection(p.cfg.Parser)
	p.rt = newRuntime(p.cfg)
	p.runID = uuid.NewString()
	return nil
}

// stageIssues drops findings about the source, sink and metrics sections.
// Those endpoints are injected into Build already constructed.
func stageIssues(issues []config.Issue) []config.Issue {
	out := issues[:0:0]
	for _, iss := range issues {
		switch {
		case strings.HasPrefix(iss.Path, "source"),
			strings.HasPrefix(iss.Path, "storage"),
			strings.HasPrefix(iss.Path, "metrics"):
			continue
		}
		out = append(out, iss)
	}
	return out
}

// projection lists the canonical columns the parser is told to materialize.
// With no explicit mapping, header names are matched directly and every
// canonical column is a candidate.
func projection(p config.Parser) []string {
	mapped := map[string]bool{}
	for _, v := range p.Options.StringMap("header_map") {
		mapped[v] = true
	}
	for _, v := range p.Options.StringMap("key_map") {
		mapped[v] = true
	}
	for _, v := range p.Options.StringSlice("columns") {
		mapped[v] = true
	}
	out := make([]string, 0, len(config.CanonicalColumns))
	for _, c := range config.CanonicalColumns {
		if len(mapped) == 0 || mapped[c] {
			out = append(out, c)
		}
	}
	return out
}

// newRuntime resolves the runtime knobs: config value, then environment,
// then a built-in default.
func newRuntime(cfg config.Pipeline) Runtime {
	workers := atLeast(pickInt(cfg.Runtime.Workers, getenvInt(EnvWorkers, runtime.NumCPU())), 1)
	return Runtime{
		Workers:       workers,
		BatchSize:     atLeast(pickInt(cfg.Runtime.BatchSize, getenvInt(EnvBatchSize, defaultBatchSize)), 1),
		ChannelBuffer: atLeast(pickInt(cfg.Runtime.ChannelBuffer, getenvInt(EnvChBuffer, 2*workers)), 1),
		Shards:        pickInt(cfg.Aggregate.Shards, defaultShards),
		Timeout:       time.Duration(cfg.Runtime.TimeoutSeconds) * time.Second,
	}
}

// Explain renders the plan as text, one stage per line.
func (p *Plan) Explain() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.cfg
	var b strings.Builder
	fmt.Fprintf(&b, "plan job=%s state=%s", c.Job, p.state)
	if p.runID != "" {
		fmt.Fprintf(&b, " run=%s", p.runID)
	}
	b.WriteByte('\n')
	if p.state == StateBuilt {
		b.WriteString("  (not optimized)\n")
		return b.String()
	}
	if p.state == StateFailed && p.norm == nil {
		fmt.Fprintf(&b, "  error: %v\n", p.err)
		return b.String()
	}

	n := c.Normalize
	fmt.Fprintf(&b, "  parse      kind=%s projection=[%s]\n", c.Parser.Kind, strings.Join(p.projection, ", "))
	fmt.Fprintf(&b, "  normalize  reference=%s default_currency=%q locale=%s scale_policy=%s",
		p.norm.Reference(), n.DefaultCurrency, n.DecimalLocale, n.ScaleErrorPolicy)
	if n.DedupeSourceIDs {
		fmt.Fprintf(&b, " dedupe_source_ids<=%d", n.MaxSourceRowID)
	}
	if n.StripMarkup {
		b.WriteString(" strip_markup")
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "  fingerprint min_token_length=%d collapse_repeats=%t\n",
		c.Fingerprint.MinTokenLength, c.Fingerprint.CollapseRepeats)
	fmt.Fprintf(&b, "  aggregate  name_policy=%s sort=%s shards=%d max_groups=%d max_group_bytes=%d\n",
		c.Aggregate.NamePolicy, c.Aggregate.Sort, p.rt.Shards, c.Aggregate.MaxGroups, c.Aggregate.MaxGroupBytes)
	fmt.Fprintf(&b, "  runtime    workers=%d batch_size=%d channel_buffer=%d timeout=%s\n",
		p.rt.Workers, p.rt.BatchSize, p.rt.ChannelBuffer, p.rt.Timeout)
	fmt.Fprintf(&b, "  write      storage=%s extended=%t\n", c.Storage.Kind, c.Storage.Extended)
	return b.String()
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

func atLeast(n, min int) int {
	if n < min {
		return min
	}
	return n
}
