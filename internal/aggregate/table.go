package aggregate

import (
	"catalog/internal/record"
)

// Table is an unsynchronized fingerprint -> group map. Workers fill one per
// batch and hand it to Sharded.MergeTable.
type Table struct {
	policy NamePolicy
	groups map[record.Fingerprint]*group
	bytes  int64
}

// NewTable returns an empty table using policy for representative names.
func NewTable(policy NamePolicy) *Table {
	return &Table{policy: policy, groups: make(map[record.Fingerprint]*group)}
}

// Add folds one record into its group, creating the group on first sight.
func (t *Table) Add(r record.NormalizedRecord) {
	var before int64
	g, ok := t.groups[r.Fingerprint]
	if ok {
		before = g.footprint(r.Fingerprint)
	} else {
		g = &group{}
		t.groups[r.Fingerprint] = g
	}
	g.observe(t.policy, &r)
	t.bytes += g.footprint(r.Fingerprint) - before
}

// Merge folds every group of o into t. o is left empty.
func (t *Table) Merge(o *Table) {
	for fp, og := range o.groups {
		t.absorb(fp, og)
	}
	o.Reset()
}

// absorb merges og into the group for fp and reports whether the group is
// new along with the change of the byte estimate.
func (t *Table) absorb(fp record.Fingerprint, og *group) (created bool, delta int64) {
	g, ok := t.groups[fp]
	if !ok {
		t.groups[fp] = og
		delta = og.footprint(fp)
		t.bytes += delta
		return true, delta
	}
	before := g.footprint(fp)
	g.merge(t.policy, og)
	delta = g.footprint(fp) - before
	t.bytes += delta
	return false, delta
}

// Len returns the number of distinct fingerprints.
func (t *Table) Len() int { return len(t.groups) }

// Bytes returns the estimated memory held by the table.
func (t *Table) Bytes() int64 { return t.bytes }

// Reset empties the table, keeping its allocated map for reuse.
func (t *Table) Reset() {
	clear(t.groups)
	t.bytes = 0
}

// Groups returns the finalized groups in unspecified order.
func (t *Table) Groups() []record.ProductGroup {
	out := make([]record.ProductGroup, 0, len(t.groups))
	for fp, g := range t.groups {
		out = append(out, g.product(t.policy, fp))
	}
	return out
}
