package normalize

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"catalog/internal/config"
)

// maxAmount bounds parsed amounts. It does not bound the converted value: a
// large rate can still push the cents past int64, which toCents reports.
var maxAmount = decimal.New(1, 15)

var maxCents = decimal.NewFromInt(math.MaxInt64)

// parseAmount turns the numeric remainder of a price text (digits, '.', ','
// and an optional leading '+') into a decimal, resolving which separator is
// the decimal point according to locale. ok is false when the text is not a
// single non-negative number.
func parseAmount(s, locale string) (decimal.Decimal, bool) {
	s = strings.TrimPrefix(s, "+")
	if s == "" || strings.ContainsAny(s, "+-") {
		return decimal.Zero, false
	}

	var canon string
	switch locale {
	case config.LocaleDot:
		canon = resolveSeparators(s, '.', ',')
	case config.LocaleComma:
		canon = resolveSeparators(s, ',', '.')
	default:
		canon = resolveAuto(s)
	}
	if canon == "" {
		return decimal.Zero, false
	}

	digits := 0
	for i := 0; i < len(canon); i++ {
		if canon[i] >= '0' && canon[i] <= '9' {
			digits++
		}
	}
	if digits == 0 {
		return decimal.Zero, false
	}
	canon = strings.TrimSuffix(canon, ".")
	if strings.HasPrefix(canon, ".") {
		canon = "0" + canon
	}
	d, err := decimal.NewFromString(canon)
	if err != nil || d.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, false
	}
	return d, true
}

// resolveSeparators drops every grouping separator and turns the decimal
// separator into '.'. More than one decimal separator yields "".
func resolveSeparators(s string, dec, group byte) string {
	if strings.Count(s, string(dec)) > 1 {
		return ""
	}
	s = strings.ReplaceAll(s, string(group), "")
	if dec != '.' {
		s = strings.Replace(s, string(dec), ".", 1)
	}
	return s
}

// resolveAuto infers the decimal separator. With both separators present the
// right-most one is decimal. A single kind of separator occurring more than
// once is grouping, and so is a lone separator followed by exactly three
// digits ("1.500", "12,000"); any other lone separator is decimal.
func resolveAuto(s string) string {
	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			return resolveSeparators(s, '.', ',')
		}
		return resolveSeparators(s, ',', '.')
	case lastDot < 0 && lastComma < 0:
		return s
	}

	sep, at := byte('.'), lastDot
	if lastComma >= 0 {
		sep, at = ',', lastComma
	}
	if strings.Count(s, string(sep)) > 1 || (at > 0 && len(s)-at-1 == 3) {
		return strings.ReplaceAll(s, string(sep), "")
	}
	if sep == ',' {
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}

// toCents converts an amount into integer minor units of the reference
// currency, rounding half away from zero. ok is false when the result does
// not fit in an int64.
func toCents(amount, rate decimal.Decimal) (cents int64, ok bool) {
	d := amount.Mul(rate).Shift(2).Round(0)
	if d.GreaterThan(maxCents) || d.LessThan(maxCents.Neg()) {
		return 0, false
	}
	return d.IntPart(), true
}
