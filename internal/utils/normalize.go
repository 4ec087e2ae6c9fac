// Package utils implements normalization shared across the trie, fuzzy, and
// corpus packages.
package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeWord normalizes a word for indexing and lookup: Unicode NFC plus
// lowercasing. Diacritics are preserved; trie lookups are
// diacritic-sensitive (café and cafe are distinct entries), and
// FoldDiacritics below produces the separate ASCII-folded key pkg/fuzzy
// uses to cross-link diacritic variants.
func NormalizeWord(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// FoldDiacritics strips Unicode combining marks from an already-normalized
// word, producing the ASCII-folded form diacritic variants share (café ->
// cafe), letting both forms coexist in the same vocabulary.
func FoldDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}
