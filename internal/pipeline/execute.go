package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"catalog/internal/aggregate"
	"catalog/internal/bitmap"
	"catalog/internal/record"
)

// Summary reports what a run did. For a completed run
// Rows == Accepted + Rejected.
type Summary struct {
	RunID string
	Job   string

	Rows     int64 // data rows seen by the parser, malformed ones included
	Accepted int64 // rows folded into a group
	Rejected int64

	RejectsByReason map[record.Reason]int64
	// Samples holds the first few reject messages per reason.
	Samples map[record.Reason][]string

	Groups     int64
	GroupBytes int64 // estimated size of the group table
	Batches    int64

	Elapsed      time.Duration
	PeakRSSBytes int64
}

// counters holds cross-goroutine statistics for one run.
type counters struct {
	rows     atomic.Int64
	accepted atomic.Int64
	batches  atomic.Int64
}

// Execute runs the plan once, optimizing it first if needed. On any error
// the sink is not written, so no partial output is left behind.
func (p *Plan) Execute(ctx context.Context) (Summary, error) {
	p.mu.Lock()
	if p.state == StateBuilt {
		if err := p.optimizeLocked(); err != nil {
			p.mu.Unlock()
			return Summary{}, err
		}
	}
	if p.state != StateOptimized {
		st := p.state
		p.mu.Unlock()
		return Summary{}, fmt.Errorf("%w: execute in state %s", ErrPlanState, st)
	}
	p.state = StateExecuting
	p.mu.Unlock()

	sum, err := p.run(ctx)

	p.mu.Lock()
	if err != nil {
		p.state, p.err = StateFailed, err
	} else {
		p.state = StateCompleted
	}
	p.mu.Unlock()

	p.report(sum, err)
	return sum, err
}

func (p *Plan) run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: p.runID, Job: p.cfg.Job}

	if p.rt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.rt.Timeout)
		defer cancel()
	}

	aggCfg := p.cfg.Aggregate
	aggCfg.Shards = p.rt.Shards
	table, err := aggregate.NewSharded(aggCfg)
	if err != nil {
		return sum, fmt.Errorf("pipeline: %w", err)
	}

	rc, err := p.src.Open(ctx)
	if err != nil {
		return sum, record.WrapIO("open source", err)
	}
	defer rc.Close()

	var stats counters
	rejects := newRejectAgg(p.sampleLimit)
	batches := make(chan *record.Batch, p.rt.ChannelBuffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(batches)
		return p.read(gctx, rc, batches, &stats, rejects)
	})
	for i := 0; i < p.rt.Workers; i++ {
		g.Go(func() error {
			return p.work(gctx, batches, table, &stats, rejects)
		})
	}
	err = g.Wait()
	for b := range batches {
		b.Free()
	}

	fill := func() {
		sum.Rows = stats.rows.Load()
		sum.Accepted = stats.accepted.Load()
		sum.Batches = stats.batches.Load()
		sum.Rejected, sum.RejectsByReason, sum.Samples = rejects.snapshot()
		sum.Groups = table.Len()
		sum.GroupBytes = table.Bytes()
		sum.Elapsed = time.Since(start)
		sum.PeakRSSBytes = peakRSSBytes()
	}

	p.rec.Step("aggregate", err, time.Since(start))
	if err != nil {
		fill()
		return sum, err
	}

	groups, err := table.Finalize(p.cfg.Aggregate.Sort)
	if err != nil {
		fill()
		return sum, fmt.Errorf("pipeline: %w", err)
	}
	if err := ctx.Err(); err != nil {
		fill()
		return sum, err
	}

	wstart := time.Now()
	err = p.sink.Write(ctx, groups)
	p.rec.Step("write", err, time.Since(wstart))
	fill()
	if err != nil {
		return sum, fmt.Errorf("pipeline: write: %w", err)
	}

	p.rec.Records("read", sum.Rows)
	p.rec.Records("normalized", sum.Accepted)
	p.rec.Records("rejected", sum.Rejected)
	p.rec.Batches(sum.Batches)
	for _, r := range record.Reasons {
		if n := sum.RejectsByReason[r]; n > 0 {
			p.rec.Rejects(string(r), n)
		}
	}
	p.rec.Groups(sum.Groups, sum.GroupBytes)
	return sum, nil
}

// read streams the source through the parser and hands fixed-size batches
// to the workers. It is the only goroutine touching the duplicate bitmap.
func (p *Plan) read(ctx context.Context, r io.Reader, out chan<- *record.Batch, st *counters, rej *rejectAgg) error {
	var seen *bitmap.Bitmap
	if p.cfg.Normalize.DedupeSourceIDs {
		seen = bitmap.New(int64(p.cfg.Normalize.MaxSourceRowID))
	}

	size := p.rt.BatchSize
	cur := record.GetBatch(size)
	defer func() { cur.Free() }()
	var seq int64

	flush := func() error {
		if cur.Len() == 0 {
			return nil
		}
		cur.Seq = seq
		select {
		case out <- cur:
		case <-ctx.Done():
			return ctx.Err()
		}
		seq++
		st.batches.Add(1)
		cur = record.GetBatch(size)
		return nil
	}

	emit := func(raw record.RawRecord) error {
		st.rows.Add(1)
		if seen != nil && seen.TestAndSet(raw.SourceRowID) {
			rej.add(record.Reject(record.ReasonDuplicateRow, raw.Line, "source id %d already seen", raw.SourceRowID))
			return nil
		}
		cur.Items = append(cur.Items, raw)
		if cur.Len() >= size {
			return flush()
		}
		return nil
	}
	onErr := func(_ int64, err error) {
		st.rows.Add(1)
		rej.add(err)
	}

	if err := p.stream(ctx, r, p.cfg.Parser.Options, emit, onErr); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("read: %w", err)
	}
	return flush()
}

// work normalizes and fingerprints batches into a private partial table,
// merging it into the shared table after every batch. Cancellation is
// checked between batches.
func (p *Plan) work(ctx context.Context, in <-chan *record.Batch, table *aggregate.Sharded, st *counters, rej *rejectAgg) error {
	part := aggregate.NewTable(table.Policy())
	for {
		var b *record.Batch
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok = <-in:
			if !ok {
				return nil
			}
		}

		var accepted int64
		for i := range b.Items {
			raw := &b.Items[i]
			nr, err := p.norm.Normalize(*raw)
			if err != nil {
				rej.add(err)
				continue
			}
			nr.Fingerprint = p.fp.Fingerprint(nr.CanonicalName)
			if nr.Fingerprint == "" {
				rej.add(record.Reject(record.ReasonFingerprintEmpty, raw.Line, "name %q has no significant tokens", nr.CanonicalName))
				continue
			}
			part.Add(nr)
			accepted++
		}
		b.Free()
		st.accepted.Add(accepted)

		if err := table.MergeTable(part); err != nil {
			return err
		}
	}
}

// rejectAgg counts rejected rows per reason and keeps the first few
// messages of each.
type rejectAgg struct {
	mu     sync.Mutex
	limit  int
	total  int64
	counts map[record.Reason]int64
	first  map[record.Reason][]string
}

func newRejectAgg(limit int) *rejectAgg {
	return &rejectAgg{
		limit:  limit,
		counts: make(map[record.Reason]int64),
		first:  make(map[record.Reason][]string),
	}
}

// add records err. Errors that are not a *record.RowError count as
// malformed rows.
func (a *rejectAgg) add(err error) {
	reason := record.ReasonMalformedRow
	var re *record.RowError
	if errors.As(err, &re) {
		reason = re.Reason
	}
	a.mu.Lock()
	a.total++
	a.counts[reason]++
	if len(a.first[reason]) < a.limit {
		a.first[reason] = append(a.first[reason], err.Error())
	}
	a.mu.Unlock()
}

func (a *rejectAgg) snapshot() (int64, map[record.Reason]int64, map[record.Reason][]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	counts := make(map[record.Reason]int64, len(a.counts))
	for k, v := range a.counts {
		counts[k] = v
	}
	first := make(map[record.Reason][]string, len(a.first))
	for k, v := range a.first {
		first[k] = append([]string(nil), v...)
	}
	return a.total, counts, first
}

// report logs the run summary, the per-reason reject counts and their
// samples.
func (p *Plan) report(s Summary, err error) {
	ctx := p.logger.WithFields(log.Fields{
		"run":         s.RunID,
		"job":         s.Job,
		"rows":        s.Rows,
		"accepted":    s.Accepted,
		"rejected":    s.Rejected,
		"groups":      s.Groups,
		"group_bytes": s.GroupBytes,
		"batches":     s.Batches,
		"elapsed":     s.Elapsed.Round(time.Millisecond).String(),
		"peak_rss":    s.PeakRSSBytes,
	})
	if err != nil {
		ctx.WithError(err).Error("run failed")
	} else {
		ctx.Info("summary")
	}

	for _, r := range sortedReasons(s.RejectsByReason) {
		rl := p.logger.WithField("reason", string(r))
		rl.WithField("count", s.RejectsByReason[r]).Warn("rejected rows")
		for i, msg := range s.Samples[r] {
			rl.Infof("  #%03d: %s", i+1, msg)
		}
	}

	if err == nil && s.Accepted+s.Rejected != s.Rows {
		p.logger.Warnf("row accounting mismatch: rows=%d accepted=%d rejected=%d", s.Rows, s.Accepted, s.Rejected)
	}
}

// sortedReasons returns the reasons present in m, known reasons first in
// reporting order.
func sortedReasons(m map[record.Reason]int64) []record.Reason {
	out := make([]record.Reason, 0, len(m))
	known := make(map[record.Reason]bool, len(record.Reasons))
	for _, r := range record.Reasons {
		known[r] = true
		if m[r] > 0 {
			out = append(out, r)
		}
	}
	var extra []record.Reason
	for r := range m {
		if !known[r] {
			extra = append(extra, r)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}
