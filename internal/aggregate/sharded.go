package aggregate

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"

	"catalog/internal/config"
	"catalog/internal/record"
)

type shard struct {
	mu sync.Mutex
	t  *Table
}

// Sharded is the run-wide group table. Fingerprints are spread over a fixed
// number of shards by xxh3 hash; each shard has its own lock so concurrent
// workers rarely contend. Totals are tracked atomically to enforce the
// capacity bounds.
type Sharded struct {
	policy    NamePolicy
	shards    []shard
	maxGroups int64
	maxBytes  int64

	groups atomic.Int64
	bytes  atomic.Int64
}

// NewSharded builds an empty table from the aggregate configuration.
func NewSharded(cfg config.Aggregate) (*Sharded, error) {
	policy, err := ParseNamePolicy(cfg.NamePolicy)
	if err != nil {
		return nil, err
	}
	n := cfg.Shards
	if n <= 0 {
		n = 32
	}
	if cfg.MaxGroups < 0 || cfg.MaxGroupBytes < 0 {
		return nil, fmt.Errorf("aggregate: capacity bounds must be >= 0")
	}
	s := &Sharded{
		policy:    policy,
		shards:    make([]shard, n),
		maxGroups: cfg.MaxGroups,
		maxBytes:  cfg.MaxGroupBytes,
	}
	for i := range s.shards {
		s.shards[i].t = NewTable(policy)
	}
	return s, nil
}

// Policy returns the representative name policy in use.
func (s *Sharded) Policy() NamePolicy { return s.policy }

// ShardCount returns the number of shards.
func (s *Sharded) ShardCount() int { return len(s.shards) }

func (s *Sharded) shardFor(fp record.Fingerprint) *shard {
	return &s.shards[xxh3.HashString(string(fp))%uint64(len(s.shards))]
}

// Add folds a single record into the table.
func (s *Sharded) Add(r record.NormalizedRecord) error {
	sh := s.shardFor(r.Fingerprint)
	sh.mu.Lock()
	beforeLen, beforeBytes := sh.t.Len(), sh.t.Bytes()
	sh.t.Add(r)
	newGroups, delta := int64(sh.t.Len()-beforeLen), sh.t.Bytes()-beforeBytes
	sh.mu.Unlock()
	return s.account(newGroups, delta)
}

// MergeTable folds a worker partial into the table and empties it. A
// *record.CapacityError is returned as soon as a bound is exceeded; the
// table is then unusable for output.
func (s *Sharded) MergeTable(t *Table) error {
	var newGroups, delta int64
	for fp, g := range t.groups {
		sh := s.shardFor(fp)
		sh.mu.Lock()
		created, d := sh.t.absorb(fp, g)
		sh.mu.Unlock()
		if created {
			newGroups++
		}
		delta += d
	}
	t.Reset()
	return s.account(newGroups, delta)
}

// account adds to the run totals and checks the bounds. The totals only
// grow with the set of observed records, so whether a bound trips does not
// depend on scheduling.
func (s *Sharded) account(newGroups, delta int64) error {
	groups := s.groups.Add(newGroups)
	bytes := s.bytes.Add(delta)
	switch {
	case s.maxGroups > 0 && groups > s.maxGroups:
		return &record.CapacityError{Groups: groups, Bytes: bytes, Limit: fmt.Sprintf("max_groups=%d", s.maxGroups)}
	case s.maxBytes > 0 && bytes > s.maxBytes:
		return &record.CapacityError{Groups: groups, Bytes: bytes, Limit: fmt.Sprintf("max_group_bytes=%d", s.maxBytes)}
	}
	return nil
}

// Len returns the number of distinct fingerprints seen so far.
func (s *Sharded) Len() int64 { return s.groups.Load() }

// Bytes returns the current memory estimate of the table.
func (s *Sharded) Bytes() int64 { return s.bytes.Load() }

// Finalize collects every group and sorts them by key. It must only be
// called once all merges have returned.
func (s *Sharded) Finalize(sortKey string) ([]record.ProductGroup, error) {
	less, err := sorter(sortKey)
	if err != nil {
		return nil, err
	}
	out := make([]record.ProductGroup, 0, s.Len())
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		out = append(out, sh.t.Groups()...)
		sh.mu.Unlock()
	}
	sortGroups(out, less)
	return out, nil
}
