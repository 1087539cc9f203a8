package aggregate

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/internal/config"
	"catalog/internal/record"
)

func rec(fp, name string, cents, line int64) record.NormalizedRecord {
	return record.NormalizedRecord{
		CanonicalName: name,
		Fingerprint:   record.Fingerprint(fp),
		PriceCents:    cents,
		SourceRowID:   line,
		Line:          line,
	}
}

func newSharded(t *testing.T, mutate func(*config.Aggregate)) *Sharded {
	t.Helper()
	cfg := config.Default().Aggregate
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSharded(cfg)
	require.NoError(t, err)
	return s
}

func TestSharded_GroupExample(t *testing.T) {
	s := newSharded(t, nil)
	input := []record.NormalizedRecord{
		rec("a", "A", 1000, 1),
		rec("b", "B", 500, 2),
		rec("a", "A", 950, 3),
		rec("b", "B", 500, 4),
		rec("a", "A", 1100, 5),
	}
	for _, r := range input {
		require.NoError(t, s.Add(r))
	}

	groups, err := s.Finalize(config.SortCountDesc)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, record.Fingerprint("a"), groups[0].Fingerprint)
	assert.Equal(t, int64(950), groups[0].MinPriceCents)
	assert.Equal(t, int64(1100), groups[0].MaxPriceCents)
	assert.Equal(t, int64(3), groups[0].MemberCount)
	assert.Equal(t, int64(1017), groups[0].AvgPriceCents())

	assert.Equal(t, record.Fingerprint("b"), groups[1].Fingerprint)
	assert.Equal(t, int64(500), groups[1].MinPriceCents)
	assert.Equal(t, int64(2), groups[1].MemberCount)
}

func TestNamePolicies(t *testing.T) {
	input := []record.NormalizedRecord{
		rec("x", "ACME WIDGET", 100, 5),
		rec("x", "WIDGET ACME", 100, 2),
		rec("x", "ACME WIDGET", 100, 9),
		rec("x", "ACME  WIDGET XL", 100, 7),
		rec("x", "ACME WIDGET XS", 100, 8),
	}
	tests := []struct {
		policy string
		want   string
	}{
		{config.NameFirstSeen, "WIDGET ACME"},
		{config.NameMostFrequent, "ACME WIDGET"},
		{config.NameLongest, "ACME  WIDGET XL"},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			s := newSharded(t, func(c *config.Aggregate) { c.NamePolicy = tt.policy })
			for _, r := range input {
				require.NoError(t, s.Add(r))
			}
			groups, err := s.Finalize(config.SortCountDesc)
			require.NoError(t, err)
			require.Len(t, groups, 1)
			assert.Equal(t, tt.want, groups[0].RepresentativeName)
		})
	}
}

func TestNamePolicies_TieBreaks(t *testing.T) {
	p, err := ParseNamePolicy(config.NameMostFrequent)
	require.NoError(t, err)
	tb := NewTable(p)
	tb.Add(rec("x", "BETA", 1, 4))
	tb.Add(rec("x", "ALPHA", 1, 6))
	tb.Add(rec("x", "ALPHA", 1, 7))
	tb.Add(rec("x", "BETA", 1, 9))
	assert.Equal(t, "BETA", tb.Groups()[0].RepresentativeName, "equal counts go to the earliest line")

	lt := NewTable(Longest)
	lt.Add(rec("y", "BBB", 1, 1))
	lt.Add(rec("y", "AAA", 1, 2))
	lt.Add(rec("y", "CC", 1, 3))
	assert.Equal(t, "AAA", lt.Groups()[0].RepresentativeName, "equal lengths go to the smallest name")

	_, err = ParseNamePolicy("random")
	assert.Error(t, err)
}

// randomInput builds n records over k fingerprints with several spellings
// per fingerprint and unique lines.
func randomInput(rng *rand.Rand, n, k int) []record.NormalizedRecord {
	out := make([]record.NormalizedRecord, n)
	for i := range out {
		f := rng.Intn(k)
		name := fmt.Sprintf("PRODUCT %d V%d", f, rng.Intn(3))
		r := rec(fmt.Sprintf("fp%03d", f), name, int64(rng.Intn(100000)), int64(i+1))
		r.Flagged = rng.Intn(10) == 0
		out[i] = r
	}
	return out
}

func TestMerge_ChunkingAndOrderIndependent(t *testing.T) {
	for _, policy := range []string{config.NameFirstSeen, config.NameMostFrequent, config.NameLongest} {
		t.Run(policy, func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			input := randomInput(rng, 2000, 37)

			base := newSharded(t, func(c *config.Aggregate) { c.NamePolicy = policy; c.Shards = 1 })
			whole := NewTable(base.Policy())
			for _, r := range input {
				whole.Add(r)
			}
			require.NoError(t, base.MergeTable(whole))
			want, err := base.Finalize(config.SortFingerprintAsc)
			require.NoError(t, err)
			require.Len(t, want, 37)

			for trial := 0; trial < 5; trial++ {
				shuffled := append([]record.NormalizedRecord(nil), input...)
				rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

				var chunks []*Table
				for len(shuffled) > 0 {
					n := 1 + rng.Intn(150)
					if n > len(shuffled) {
						n = len(shuffled)
					}
					tb := NewTable(base.Policy())
					for _, r := range shuffled[:n] {
						tb.Add(r)
					}
					chunks = append(chunks, tb)
					shuffled = shuffled[n:]
				}

				// Pre-merge some partials pairwise to exercise Table.Merge too.
				for i := 0; i+1 < len(chunks); i += 3 {
					chunks[i].Merge(chunks[i+1])
				}

				s := newSharded(t, func(c *config.Aggregate) { c.NamePolicy = policy; c.Shards = 7 })
				var wg sync.WaitGroup
				for _, tb := range chunks {
					wg.Add(1)
					go func(tb *Table) {
						defer wg.Done()
						assert.NoError(t, s.MergeTable(tb))
					}(tb)
				}
				wg.Wait()

				got, err := s.Finalize(config.SortFingerprintAsc)
				require.NoError(t, err)
				require.Equal(t, want, got, "trial %d", trial)
				assert.Equal(t, base.Bytes(), s.Bytes(), "byte estimate must not depend on chunking")
				assert.Equal(t, int64(37), s.Len())
			}
		})
	}
}

func TestTable_MergeEmptiesSource(t *testing.T) {
	a, b := NewTable(FirstSeen), NewTable(FirstSeen)
	a.Add(rec("x", "X", 10, 2))
	b.Add(rec("x", "X OLD", 20, 1))
	b.Add(rec("y", "Y", 30, 3))
	a.Merge(b)

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, int64(0), b.Bytes())
	require.Equal(t, 2, a.Len())

	groups := a.Groups()
	require.NoError(t, Sort(groups, config.SortFingerprintAsc))
	assert.Equal(t, "X OLD", groups[0].RepresentativeName)
	assert.Equal(t, int64(10), groups[0].MinPriceCents)
	assert.Equal(t, int64(20), groups[0].MaxPriceCents)
	assert.Equal(t, int64(30), groups[0].SumPriceCents)
}

func TestGroup_SumSaturates(t *testing.T) {
	big := int64(math.MaxInt64 / 2)

	a, b := NewTable(FirstSeen), NewTable(FirstSeen)
	a.Add(rec("x", "X", big, 1))
	a.Add(rec("x", "X", big, 2))
	b.Add(rec("x", "X", big, 3))
	a.Merge(b)

	s := newSharded(t, nil)
	require.NoError(t, s.Add(rec("x", "X", big, 4)))
	require.NoError(t, s.MergeTable(a))
	groups, err := s.Finalize(config.SortFingerprintAsc)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, int64(math.MaxInt64), g.SumPriceCents)
	assert.Equal(t, int64(4), g.MemberCount)
	assert.Equal(t, big, g.MinPriceCents)
	assert.GreaterOrEqual(t, g.AvgPriceCents(), int64(0))
}

func TestSharded_CapacityGroups(t *testing.T) {
	s := newSharded(t, func(c *config.Aggregate) { c.MaxGroups = 10 })
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Add(rec(fmt.Sprintf("fp%d", i), "N", 1, int64(i+1))))
	}
	// Repeats of a known fingerprint never trip the bound.
	require.NoError(t, s.Add(rec("fp0", "N", 1, 11)))

	err := s.Add(rec("fp10", "N", 1, 12))
	require.Error(t, err)
	assert.True(t, errors.Is(err, record.ErrCapacity))
	var cerr *record.CapacityError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "max_groups=10", cerr.Limit)
	assert.Equal(t, int64(11), cerr.Groups)
}

func TestSharded_CapacityBytes(t *testing.T) {
	s := newSharded(t, func(c *config.Aggregate) { c.MaxGroupBytes = 1000 })
	tb := NewTable(FirstSeen)
	for i := 0; i < 20; i++ {
		tb.Add(rec(fmt.Sprintf("fingerprint-%02d", i), "SOME PRODUCT NAME", 1, int64(i+1)))
	}
	err := s.MergeTable(tb)
	var cerr *record.CapacityError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Limit, "max_group_bytes")
	assert.Greater(t, cerr.Bytes, int64(1000))
}

func TestSort_Keys(t *testing.T) {
	gs := []record.ProductGroup{
		{Fingerprint: "c", RepresentativeName: "ALPHA", MinPriceCents: 300, MemberCount: 2},
		{Fingerprint: "a", RepresentativeName: "CHARLIE", MinPriceCents: 100, MemberCount: 2},
		{Fingerprint: "b", RepresentativeName: "BRAVO", MinPriceCents: 100, MemberCount: 5},
	}
	order := func(gs []record.ProductGroup) string {
		s := ""
		for _, g := range gs {
			s += string(g.Fingerprint)
		}
		return s
	}
	tests := map[string]string{
		config.SortCountDesc:      "bac",
		"":                        "bac",
		config.SortFingerprintAsc: "abc",
		config.SortPriceAsc:       "abc",
		config.SortNameAsc:        "cba",
	}
	for key, want := range tests {
		cp := append([]record.ProductGroup(nil), gs...)
		require.NoError(t, Sort(cp, key))
		assert.Equal(t, want, order(cp), "key %q", key)
	}

	assert.Error(t, Sort(gs, "price_desc"))
	_, err := newSharded(t, nil).Finalize("price_desc")
	assert.Error(t, err)
}

func TestNewSharded_Validation(t *testing.T) {
	_, err := NewSharded(config.Aggregate{NamePolicy: "bogus"})
	assert.Error(t, err)
	_, err = NewSharded(config.Aggregate{MaxGroups: -1})
	assert.Error(t, err)

	s, err := NewSharded(config.Aggregate{})
	require.NoError(t, err)
	assert.Equal(t, 32, s.ShardCount())
	assert.Equal(t, FirstSeen, s.Policy())
}

func BenchmarkShardedMerge(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	input := randomInput(rng, 4096, 512)
	s, err := NewSharded(config.Default().Aggregate)
	if err != nil {
		b.Fatal(err)
	}
	tb := NewTable(s.Policy())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, r := range input {
			tb.Add(r)
		}
		if err := s.MergeTable(tb); err != nil {
			b.Fatal(err)
		}
	}
}
