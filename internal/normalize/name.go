package normalize

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldPool holds diacritic folding chains. A transform.Transformer carries
// state, so each goroutine borrows its own.
var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	},
}

// nameCleaner canonicalizes product names. The zero value replaces every rune
// that is not a letter, digit or space.
type nameCleaner struct {
	punct       map[rune]struct{}
	stripMarkup bool
}

func newNameCleaner(punctuation string, stripMarkup bool) nameCleaner {
	if punctuation == "" {
		return nameCleaner{stripMarkup: stripMarkup}
	}
	set := make(map[rune]struct{}, utf8.RuneCountInString(punctuation))
	for _, r := range punctuation {
		set[r] = struct{}{}
	}
	return nameCleaner{punct: set, stripMarkup: stripMarkup}
}

func (c nameCleaner) isPunct(r rune) bool {
	if c.punct == nil {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
	}
	_, ok := c.punct[r]
	return ok
}

// clean folds diacritics, transliterates what is left to ASCII, replaces
// punctuation with spaces, collapses whitespace and upper-cases the result.
// "Café  Crème!" becomes "CAFE CREME".
func (c nameCleaner) clean(s string) string {
	if c.stripMarkup {
		s = stripMarkup(s)
	}
	if !isASCII(s) {
		t := foldPool.Get().(transform.Transformer)
		if folded, _, err := transform.String(t, s); err == nil {
			s = folded
		}
		foldPool.Put(t)
	}

	// Punctuation goes before transliteration so that symbols such as "€"
	// are not spelled out as letters.
	s = strings.Map(func(r rune) rune {
		if c.isPunct(r) {
			return ' '
		}
		return r
	}, s)

	if !isASCII(s) {
		s = unidecode.Unidecode(s)
		if c.punct == nil {
			s = strings.Map(func(r rune) rune {
				if c.isPunct(r) {
					return ' '
				}
				return r
			}, s)
		}
	}
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
