// Package fingerprint derives the grouping key of a product from its
// canonical name. Two names with the same fingerprint are the same product.
//
// The key is the sorted set of significant lowercase tokens of the name,
// after synonym rewriting and stop word removal:
//
//	"SONY PS5 EDITION LIMITEE" -> "5 playstation sony"
//	"PROMO SONY PLAYSTATION 5" -> "5 playstation sony"
package fingerprint

import (
	"sort"
	"strings"
	"unicode"

	"catalog/internal/config"
	"catalog/internal/record"
)

// DefaultSynonyms rewrites common model abbreviations to their long form.
var DefaultSynonyms = map[string]string{
	"ps5":          "playstation 5",
	"ps4":          "playstation 4",
	"playstation5": "playstation 5",
	"playstation4": "playstation 4",
	"s21":          "galaxy s21",
	"macbook":      "apple macbook",
	"iphone":       "apple iphone",
}

// DefaultStopWords are marketing words that carry no product identity.
var DefaultStopWords = []string{
	"edition", "eur", "promo", "soldes", "offre", "vente", "version",
	"limitee", "limited",
}

// Generator computes fingerprints. It is immutable after New and safe for
// concurrent use.
type Generator struct {
	minTokenLen int
	stop        map[string]struct{}
	synonyms    map[string][]string
	collapse    bool
}

// New builds a Generator. Nil StopWords or Synonyms select the defaults.
// Synonym keys match a single token; values may expand to several tokens.
func New(cfg config.Fingerprint) *Generator {
	stopWords := cfg.StopWords
	if stopWords == nil {
		stopWords = DefaultStopWords
	}
	syn := cfg.Synonyms
	if syn == nil {
		syn = DefaultSynonyms
	}

	g := &Generator{
		minTokenLen: cfg.MinTokenLength,
		stop:        make(map[string]struct{}, len(stopWords)),
		synonyms:    make(map[string][]string, len(syn)),
		collapse:    cfg.CollapseRepeats,
	}
	for _, w := range stopWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			g.stop[w] = struct{}{}
		}
	}
	for k, v := range syn {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		g.synonyms[k] = strings.Fields(strings.ToLower(v))
	}
	return g
}

// Fingerprint returns the grouping key of a canonical name. An empty result
// means the name has no significant token left.
func (g *Generator) Fingerprint(canonical string) record.Fingerprint {
	raw := strings.Fields(strings.ToLower(canonical))
	if len(raw) == 0 {
		return ""
	}

	tokens := make([]string, 0, len(raw)+2)
	for _, tok := range raw {
		if rep, ok := g.synonyms[tok]; ok {
			tokens = append(tokens, rep...)
			continue
		}
		tokens = append(tokens, tok)
	}

	kept := tokens[:0]
	for _, tok := range tokens {
		if _, ok := g.stop[tok]; ok {
			continue
		}
		if !hasDigit(tok) && len(tok) < g.minTokenLen {
			continue
		}
		if g.collapse {
			tok = collapseRepeats(tok)
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		return ""
	}

	sort.Strings(kept)
	uniq := kept[:1]
	for _, tok := range kept[1:] {
		if tok != uniq[len(uniq)-1] {
			uniq = append(uniq, tok)
		}
	}
	return record.Fingerprint(strings.Join(uniq, " "))
}

// collapseRepeats squeezes runs of the same letter ("wiiidget" -> "widget").
// Digits are left alone so that "100" and "10" stay distinct.
func collapseRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune = -1
	for _, r := range s {
		if r == prev && unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func hasDigit(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return true
		}
	}
	return false
}
