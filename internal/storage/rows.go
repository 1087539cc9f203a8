package storage

import (
	"strconv"

	"github.com/shopspring/decimal"

	"catalog/internal/record"
)

// Output column names.
const (
	ColName        = "canonical_name"
	ColPrice       = "price"
	ColCount       = "count"
	ColFingerprint = "fingerprint"
	ColAvgPrice    = "avg_price"
	ColMaxPrice    = "max_price"
	ColFlagged     = "flagged"
)

var (
	baseColumns     = []string{ColName, ColPrice, ColCount}
	extendedColumns = []string{ColName, ColPrice, ColCount, ColFingerprint, ColAvgPrice, ColMaxPrice, ColFlagged}
)

// Columns returns the output columns in write order. The returned slice must
// not be modified.
func Columns(extended bool) []string {
	if extended {
		return extendedColumns
	}
	return baseColumns
}

// Money renders an amount in hundredths as fixed two-place decimal text,
// e.g. 950 -> "9.50".
func Money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Values returns one output row for g, aligned with Columns(extended).
// Prices are decimal text; counts are int64.
func Values(g record.ProductGroup, extended bool) []any {
	row := []any{g.RepresentativeName, Money(g.MinPriceCents), g.MemberCount}
	if extended {
		row = append(row,
			string(g.Fingerprint),
			Money(g.AvgPriceCents()),
			Money(g.MaxPriceCents),
			g.FlaggedCount,
		)
	}
	return row
}

// TextValues is Values rendered as strings, for text sinks. dst is reused
// when it has room.
func TextValues(dst []string, g record.ProductGroup, extended bool) []string {
	dst = append(dst[:0], g.RepresentativeName, Money(g.MinPriceCents), strconv.FormatInt(g.MemberCount, 10))
	if extended {
		dst = append(dst,
			string(g.Fingerprint),
			Money(g.AvgPriceCents()),
			Money(g.MaxPriceCents),
			strconv.FormatInt(g.FlaggedCount, 10),
		)
	}
	return dst
}
