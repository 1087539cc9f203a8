package normalize

import (
	"strings"
	"unicode"
)

// currencySymbols maps symbols that can appear in a scraped price to an ISO
// code. Multi-rune prefixes such as "US$" are matched before single runes.
var currencySymbols = map[string]string{
	"US$": "USD",
	"C$":  "CAD",
	"A$":  "AUD",
	"$":   "USD",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"₹":   "INR",
	"₽":   "RUB",
	"₩":   "KRW",
	"₺":   "TRY",
	"zł":  "PLN",
	"kč":  "CZK",
}

// currencyWords maps lowercase words and codes to an ISO code.
var currencyWords = map[string]string{
	"usd":     "USD",
	"dollar":  "USD",
	"dollars": "USD",
	"eur":     "EUR",
	"euro":    "EUR",
	"euros":   "EUR",
	"gbp":     "GBP",
	"pound":   "GBP",
	"pounds":  "GBP",
	"jpy":     "JPY",
	"yen":     "JPY",
	"chf":     "CHF",
	"cad":     "CAD",
	"aud":     "AUD",
	"inr":     "INR",
	"pln":     "PLN",
	"czk":     "CZK",
	"sek":     "SEK",
	"nok":     "NOK",
	"dkk":     "DKK",
}

// lookupCurrency resolves a standalone currency token (a column value, a
// word or a symbol) to an ISO code. ok is false when the token does not look
// like a currency at all; known is false when it looks like one (a 3-letter
// code or a currency symbol) but is not in the tables.
func lookupCurrency(tok string) (code string, ok, known bool) {
	t := strings.TrimSpace(tok)
	if t == "" {
		return "", false, false
	}
	if c, hit := currencySymbols[strings.ToLower(t)]; hit {
		return c, true, true
	}
	if c, hit := currencySymbols[t]; hit {
		return c, true, true
	}
	lt := strings.ToLower(t)
	if c, hit := currencyWords[lt]; hit {
		return c, true, true
	}
	if len(t) == 3 && isLetters(t) {
		return strings.ToUpper(t), true, false
	}
	if r := []rune(t); len(r) == 1 && unicode.Is(unicode.Sc, r[0]) {
		return t, true, false
	}
	return "", false, false
}

// splitPrice separates the currency markers embedded in a price text from the
// numeric remainder. markers holds every currency token found, in order of
// appearance; junk is true when a letter run that is not a currency was
// present (e.g. "approx").
func splitPrice(s string) (numeric string, markers []string, junk bool) {
	var num strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-', r == '+':
			num.WriteRune(r)
			i++
		case isGroupingSpace(r):
			// Spaces and apostrophes only matter between digits; they are
			// dropped and the digit runs join.
			i++
		case unicode.IsLetter(r) || unicode.Is(unicode.Sc, r):
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.Is(unicode.Sc, rs[j])) {
				j++
			}
			word := string(rs[i:j])
			i = j
			if code, ok, _ := matchMarker(word); ok {
				markers = append(markers, code)
				continue
			}
			junk = true
		default:
			junk = true
			i++
		}
	}
	return num.String(), markers, junk
}

// matchMarker resolves a letter/symbol run from inside a price text. Runs
// such as "US$" or "$USD" may contain more than one marker; the first known
// one wins and a mix of two different known codes is returned as a
// conflicting pair joined by "|".
func matchMarker(word string) (string, bool, bool) {
	if code, ok, known := lookupCurrency(word); ok {
		return code, true, known
	}
	// Split a glued run like "$USD" or "EUR€" into symbol and letter parts.
	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}
	for _, r := range word {
		if unicode.Is(unicode.Sc, r) {
			flush()
			parts = append(parts, string(r))
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	if len(parts) < 2 {
		return "", false, false
	}
	var codes []string
	for _, p := range parts {
		code, ok, _ := lookupCurrency(p)
		if !ok {
			return "", false, false
		}
		if len(codes) == 0 || codes[len(codes)-1] != code {
			codes = append(codes, code)
		}
	}
	return strings.Join(codes, "|"), true, true
}

func isGroupingSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\'' || r == '\u2019' || r == '\u202f'
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// CurrencyCode resolves a standalone currency token such as "usd", "€" or
// "euros" to a known ISO code.
func CurrencyCode(tok string) (string, bool) {
	code, ok, known := lookupCurrency(tok)
	return code, ok && known
}

// ScanPrice reports whether text reads as a price under locale and returns
// the currency codes it names. No rate or range is applied.
func ScanPrice(text, locale string) (codes []string, ok bool) {
	numeric, markers, junk := splitPrice(strings.TrimSpace(text))
	if junk || numeric == "" {
		return nil, false
	}
	if _, ok := parseAmount(numeric, locale); !ok {
		return nil, false
	}
	return markers, true
}
