package aggregate

import (
	"fmt"
	"sort"

	"catalog/internal/config"
	"catalog/internal/record"
)

type lessFunc func(a, b *record.ProductGroup) bool

// sorter returns the ordering for a sort key. Every ordering falls back to
// the fingerprint, which is unique, so output order is total.
func sorter(key string) (lessFunc, error) {
	switch key {
	case "", config.SortCountDesc:
		return func(a, b *record.ProductGroup) bool {
			if a.MemberCount != b.MemberCount {
				return a.MemberCount > b.MemberCount
			}
			return a.Fingerprint < b.Fingerprint
		}, nil
	case config.SortFingerprintAsc:
		return func(a, b *record.ProductGroup) bool {
			return a.Fingerprint < b.Fingerprint
		}, nil
	case config.SortPriceAsc:
		return func(a, b *record.ProductGroup) bool {
			if a.MinPriceCents != b.MinPriceCents {
				return a.MinPriceCents < b.MinPriceCents
			}
			return a.Fingerprint < b.Fingerprint
		}, nil
	case config.SortNameAsc:
		return func(a, b *record.ProductGroup) bool {
			if a.RepresentativeName != b.RepresentativeName {
				return a.RepresentativeName < b.RepresentativeName
			}
			return a.Fingerprint < b.Fingerprint
		}, nil
	}
	return nil, fmt.Errorf("aggregate: unknown sort key %q", key)
}

func sortGroups(gs []record.ProductGroup, less lessFunc) {
	sort.Slice(gs, func(i, j int) bool { return less(&gs[i], &gs[j]) })
}

// Sort orders groups in place by key.
func Sort(gs []record.ProductGroup, key string) error {
	less, err := sorter(key)
	if err != nil {
		return err
	}
	sortGroups(gs, less)
	return nil
}
