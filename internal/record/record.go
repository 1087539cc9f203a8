// Package record defines the value types that flow through the catalog
// pipeline: raw scraped rows, their normalized form, and the per-row reject
// classification used for accounting.
//
// Records are plain values. Stages never mutate a record they received; they
// derive a new one.
package record

import (
	"strconv"
	"strings"
)

// RawRecord is one input row as produced by a parser. Price and Currency are
// kept as text; JSON numbers arrive as their literal representation.
type RawRecord struct {
	Name     string
	Price    string
	Currency string // empty when the source has no currency column

	// SourceRowID comes from the id column when one is mapped, otherwise it
	// equals Line.
	SourceRowID int64

	// Line is the 1-based position of the record in the input stream
	// (header excluded). It orders records for the first-seen name policy.
	Line int64
}

// SourceID parses an id column value. Rows without a usable integer id are
// identified by their line.
func SourceID(s string, line int64) int64 {
	if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return id
	}
	return line
}

// Fingerprint is the grouping key derived from a canonical name.
type Fingerprint string

// NormalizedRecord is a RawRecord after name/price normalization and
// fingerprinting.
type NormalizedRecord struct {
	CanonicalName string
	Fingerprint   Fingerprint

	// PriceCents is the price in the reference currency, in hundredths.
	// Always >= 0.
	PriceCents int64

	SourceRowID int64
	Line        int64

	// Flagged marks rows whose price violated the plausible range but was
	// kept by the scale policy (flag, clamp, rescale).
	Flagged bool
}

// ProductGroup is the finalized aggregate of every record sharing one
// fingerprint.
type ProductGroup struct {
	Fingerprint        Fingerprint
	RepresentativeName string

	MinPriceCents int64
	MaxPriceCents int64
	SumPriceCents int64

	MemberCount  int64
	FlaggedCount int64
}

// AvgPriceCents returns the mean member price rounded half away from zero.
func (g ProductGroup) AvgPriceCents() int64 {
	if g.MemberCount == 0 {
		return 0
	}
	q, r := g.SumPriceCents/g.MemberCount, g.SumPriceCents%g.MemberCount
	if 2*r >= g.MemberCount {
		q++
	}
	return q
}
