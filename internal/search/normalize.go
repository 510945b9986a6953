// Package search folds free text so that listing searches match
// regardless of case and diacritics ("Kadıköy" matches "kadikoy").
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dotless ı and ø-like letters carry no combining mark to strip.
var letterFold = runes.Map(func(r rune) rune {
	switch r {
	case 'ı':
		return 'i'
	case 'ø':
		return 'o'
	case 'ß':
		return 's'
	}
	return r
})

// Fold lower-cases s, strips combining marks and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), letterFold, norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(folded), " ")
}

// Terms splits a query into folded terms.
func Terms(query string) []string {
	return strings.Fields(Fold(query))
}

// MatchAll reports whether every term occurs in one of the fields.
func MatchAll(terms []string, fields ...string) bool {
	if len(terms) == 0 {
		return true
	}
	haystack := Fold(strings.Join(fields, " "))
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// Equal compares two strings after folding.
func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}
