// Package aggregate groups normalized records by fingerprint and reduces
// each group to one ProductGroup.
//
// Table is an unsynchronized partial used by a single worker for one batch.
// Sharded is the run-wide table; partials are merged into it under per-shard
// locks. Every reduction is associative and commutative, so the final
// groups do not depend on how the input was chunked or in which order the
// chunks arrived.
package aggregate

import (
	"fmt"
	"math"

	"catalog/internal/config"
	"catalog/internal/record"
)

// NamePolicy selects how a group's representative name is chosen.
type NamePolicy int

const (
	// FirstSeen keeps the name of the record with the smallest Line.
	FirstSeen NamePolicy = iota
	// MostFrequent keeps the name seen most often; ties go to the name seen
	// earliest.
	MostFrequent
	// Longest keeps the longest name; ties go to the lexicographically
	// smallest.
	Longest
)

// ParseNamePolicy maps a config value onto a NamePolicy. Empty means
// FirstSeen.
func ParseNamePolicy(s string) (NamePolicy, error) {
	switch s {
	case "", config.NameFirstSeen:
		return FirstSeen, nil
	case config.NameMostFrequent:
		return MostFrequent, nil
	case config.NameLongest:
		return Longest, nil
	}
	return FirstSeen, fmt.Errorf("aggregate: unknown name policy %q", s)
}

func (p NamePolicy) String() string {
	switch p {
	case MostFrequent:
		return config.NameMostFrequent
	case Longest:
		return config.NameLongest
	}
	return config.NameFirstSeen
}

// Rough per-entry overheads used by the byte estimate.
const (
	groupOverhead = 96
	nameOverhead  = 48
)

type nameStat struct {
	count     int64
	firstLine int64
}

// group is the live state of one fingerprint.
type group struct {
	min, max, sum int64
	count         int64
	flagged       int64

	// name/nameLine hold the current pick for FirstSeen and Longest.
	name     string
	nameLine int64
	hasName  bool

	// names is only used by MostFrequent; nameBytes sums its estimate.
	names     map[string]*nameStat
	nameBytes int64

	// nameCap is the longest name observed. It only grows, which keeps the
	// byte estimate independent of arrival order.
	nameCap int
}

// footprint estimates the bytes held by g under fingerprint fp.
func (g *group) footprint(fp record.Fingerprint) int64 {
	n := int64(groupOverhead + len(fp))
	if g.names != nil {
		return n + g.nameBytes
	}
	return n + int64(g.nameCap)
}

func (g *group) observe(p NamePolicy, r *record.NormalizedRecord) {
	if g.count == 0 {
		g.min, g.max = r.PriceCents, r.PriceCents
	} else {
		g.min = min(g.min, r.PriceCents)
		g.max = max(g.max, r.PriceCents)
	}
	g.sum = addCents(g.sum, r.PriceCents)
	g.count++
	if r.Flagged {
		g.flagged++
	}
	g.nameCap = max(g.nameCap, len(r.CanonicalName))

	switch p {
	case MostFrequent:
		if g.names == nil {
			g.names = make(map[string]*nameStat, 1)
		}
		if st, ok := g.names[r.CanonicalName]; ok {
			st.count++
			st.firstLine = min(st.firstLine, r.Line)
		} else {
			g.names[r.CanonicalName] = &nameStat{count: 1, firstLine: r.Line}
			g.nameBytes += int64(nameOverhead + len(r.CanonicalName))
		}
	default:
		g.pick(p, r.CanonicalName, r.Line)
	}
}

// addCents adds two non-negative cent amounts, saturating at math.MaxInt64.
// Saturation keeps the sum independent of merge order.
func addCents(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// pick offers a candidate name to the FirstSeen or Longest policy.
func (g *group) pick(p NamePolicy, name string, line int64) {
	if !g.hasName {
		g.name, g.nameLine, g.hasName = name, line, true
		return
	}
	var better bool
	switch p {
	case Longest:
		better = len(name) > len(g.name) || (len(name) == len(g.name) && name < g.name)
	default:
		better = line < g.nameLine || (line == g.nameLine && name < g.name)
	}
	if better {
		g.name, g.nameLine = name, line
	}
}

// merge folds o into g. o must not be used afterwards.
func (g *group) merge(p NamePolicy, o *group) {
	if o.count == 0 {
		return
	}
	if g.count == 0 {
		g.min, g.max = o.min, o.max
	} else {
		g.min = min(g.min, o.min)
		g.max = max(g.max, o.max)
	}
	g.sum = addCents(g.sum, o.sum)
	g.count += o.count
	g.flagged += o.flagged
	g.nameCap = max(g.nameCap, o.nameCap)

	switch p {
	case MostFrequent:
		if g.names == nil {
			g.names = make(map[string]*nameStat, len(o.names))
		}
		for name, st := range o.names {
			if cur, ok := g.names[name]; ok {
				cur.count += st.count
				cur.firstLine = min(cur.firstLine, st.firstLine)
				continue
			}
			g.names[name] = &nameStat{count: st.count, firstLine: st.firstLine}
			g.nameBytes += int64(nameOverhead + len(name))
		}
	default:
		if o.hasName {
			g.pick(p, o.name, o.nameLine)
		}
	}
}

// representative resolves the name to publish for the group.
func (g *group) representative(p NamePolicy) string {
	if p != MostFrequent {
		return g.name
	}
	var (
		best string
		bst  *nameStat
	)
	for name, st := range g.names {
		switch {
		case bst == nil,
			st.count > bst.count,
			st.count == bst.count && st.firstLine < bst.firstLine,
			st.count == bst.count && st.firstLine == bst.firstLine && name < best:
			best, bst = name, st
		}
	}
	return best
}

func (g *group) product(p NamePolicy, fp record.Fingerprint) record.ProductGroup {
	return record.ProductGroup{
		Fingerprint:        fp,
		RepresentativeName: g.representative(p),
		MinPriceCents:      g.min,
		MaxPriceCents:      g.max,
		SumPriceCents:      g.sum,
		MemberCount:        g.count,
		FlaggedCount:       g.flagged,
	}
}
