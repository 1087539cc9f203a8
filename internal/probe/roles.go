package probe

import (
	"strings"
	"unicode"

	"catalog/internal/config"
	"catalog/internal/normalize"
)

// Roles names the source column guessed for each canonical column. Empty
// means no column was found.
type Roles struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	Currency string `json:"currency,omitempty"`
	ID       string `json:"id,omitempty"`
}

// Map returns source header -> canonical column for every guessed role.
func (r Roles) Map() map[string]string {
	m := map[string]string{}
	for col, src := range map[string]string{
		config.ColName:     r.Name,
		config.ColPrice:    r.Price,
		config.ColCurrency: r.Currency,
		config.ColID:       r.ID,
	} {
		if src != "" {
			m[src] = col
		}
	}
	return m
}

// Header words hinting at a role. Name hints are weighted: product-ish
// words beat a bare "name", which also labels suppliers and shops.
var (
	idWords       = []string{"sku", "ean", "gtin", "ref", "reference"}
	priceWords    = []string{"price", "prix", "preis", "cost", "amount", "montant", "tarif"}
	currencyWords = []string{"currency", "devise", "curr", "waehrung"}
	nameWords     = map[string]int{
		"product": 2, "title": 2, "designation": 2, "libelle": 2, "item": 2,
		"name": 1, "nom": 1, "label": 1, "description": 1,
	}
)

// colStats describes one sampled column.
type colStats struct {
	header string
	norm   string // normalized header

	priceShare    float64
	currencyShare float64
	intShare      float64
	textShare     float64
	avgLen        float64
	unique        bool
}

func statsFor(header string, vals []string) colStats {
	vals = nonEmptyTrimmed(vals)
	cs := colStats{header: header, norm: normalizeFieldName(header)}
	cs.priceShare = share(vals, func(v string) bool {
		_, ok := normalize.ScanPrice(v, config.LocaleAuto)
		return ok
	})
	cs.currencyShare = share(vals, func(v string) bool {
		_, ok := normalize.CurrencyCode(v)
		return ok
	})
	cs.intShare = share(vals, isInt)
	cs.textShare = share(vals, hasWord)

	seen := make(map[string]struct{}, len(vals))
	var total int
	for _, v := range vals {
		total += len([]rune(v))
		seen[v] = struct{}{}
	}
	if len(vals) > 0 {
		cs.avgLen = float64(total) / float64(len(vals))
	}
	cs.unique = len(vals) > 0 && len(seen) == len(vals)
	return cs
}

// hasWord reports whether s contains a run of at least two letters.
func hasWord(s string) bool {
	run := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			run++
			if run >= 2 {
				return true
			}
			continue
		}
		run = 0
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func isIDHeader(n string) bool {
	if n == "id" || strings.HasPrefix(n, "id_") || strings.HasSuffix(n, "_id") {
		return true
	}
	for _, w := range idWords {
		if n == w {
			return true
		}
	}
	return false
}

func nameWeight(n string) int {
	w := 0
	for word, weight := range nameWords {
		if strings.Contains(n, word) {
			w += weight
		}
	}
	return w
}

// guessRoles assigns at most one column per role, in the order currency,
// id, price, name. Header hints decide first; value shapes break ties and
// fill in for unhelpful headers.
func guessRoles(headers []string, rows [][]string) Roles {
	stats := make([]colStats, len(headers))
	for i, h := range headers {
		stats[i] = statsFor(h, column(rows, i))
	}
	used := make([]bool, len(stats))
	take := func(i int) string {
		if i < 0 {
			return ""
		}
		used[i] = true
		return stats[i].header
	}
	best := func(score func(colStats) float64) int {
		bi, bs := -1, 0.0
		for i, cs := range stats {
			if used[i] {
				continue
			}
			if s := score(cs); s > bs {
				bi, bs = i, s
			}
		}
		return bi
	}

	var r Roles
	r.Currency = take(best(func(cs colStats) float64 {
		if containsAny(cs.norm, currencyWords) && cs.currencyShare >= 0.5 {
			return 2 + cs.currencyShare
		}
		if cs.currencyShare >= 0.9 {
			return cs.currencyShare
		}
		return 0
	}))
	r.ID = take(best(func(cs colStats) float64 {
		if isIDHeader(cs.norm) && cs.intShare >= 0.9 {
			return 1 + cs.intShare
		}
		return 0
	}))
	r.Price = take(best(func(cs colStats) float64 {
		if containsAny(cs.norm, priceWords) && cs.priceShare >= 0.5 {
			return 2 + cs.priceShare
		}
		// Unique integers are more likely keys than prices.
		if cs.priceShare >= 0.8 && !(cs.unique && cs.intShare == 1) {
			return cs.priceShare
		}
		return 0
	}))
	r.Name = take(best(func(cs colStats) float64 {
		if cs.textShare < 0.5 {
			return 0
		}
		// avgLen only breaks ties between equally hinted columns.
		tie := cs.avgLen / (cs.avgLen + 100)
		if w := nameWeight(cs.norm); w > 0 {
			return float64(w) + tie
		}
		if cs.textShare >= 0.8 {
			return tie
		}
		return 0
	}))
	return r
}
