// Package trie implements the compressed prefix structure: exact and prefix
// lookup over a normalized vocabulary, backed by a patricia trie and gated
// by a Bloom filter so most exact-lookup misses never descend the tree.
package trie

import (
	"sort"

	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/floridify/floridify/internal/utils"
	"github.com/floridify/floridify/pkg/bloom"
	"github.com/floridify/floridify/pkg/resource"
)

// Index is a built trie over one corpus's vocabulary: a normalized-key
// patricia trie pointing at positions in parallel original-form and
// frequency arrays, gated by a Bloom filter.
type Index struct {
	trie           *patricia.Trie
	original       []string
	frequency      []int
	bloom          *bloom.Filter
	vocabularyHash string
}

// Build constructs an Index from a corpus's vocabulary. originalForms and
// frequencies are parallel to normalizedWords; frequencies may be nil, in
// which case every word gets frequency 1.
func Build(normalizedWords, originalForms []string, frequencies []int, vocabularyHash string) *Index {
	t := patricia.NewTrie()
	bf := bloom.New(maxInt(len(normalizedWords), 1), bloom.DefaultErrorRate)

	idx := &Index{
		trie:           t,
		original:       make([]string, len(normalizedWords)),
		frequency:      make([]int, len(normalizedWords)),
		bloom:          bf,
		vocabularyHash: vocabularyHash,
	}

	for i, word := range normalizedWords {
		idx.original[i] = originalForms[i]
		if frequencies != nil {
			idx.frequency[i] = frequencies[i]
		} else {
			idx.frequency[i] = 1
		}
		t.Insert(patricia.Prefix(word), i)
		bf.Add(word)
	}
	return idx
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// VocabularyHash returns the vocabulary hash this index was built from,
// used to detect corpus-version drift.
func (idx *Index) VocabularyHash() string {
	return idx.vocabularyHash
}

// SearchExact returns the original-cased form of word if normalize(word) is
// in the trie. The Bloom filter is consulted first to reject misses without
// descending the tree.
func (idx *Index) SearchExact(word string) (string, bool) {
	normalized := utils.NormalizeWord(word)
	if !idx.bloom.Contains(normalized) {
		return "", false
	}
	item := idx.trie.Get(patricia.Prefix(normalized))
	if item == nil {
		return "", false
	}
	position, ok := item.(int)
	if !ok || position < 0 || position >= len(idx.original) {
		return "", false
	}
	return idx.original[position], true
}

// prefixMatch records a matched position; ranking reads its frequency from
// idx.frequency.
type prefixMatch struct {
	position int
}

// SearchPrefix returns original-cased forms for every word under prefix,
// ordered by descending frequency, tie-broken lexicographically. An empty
// prefix returns no results.
func (idx *Index) SearchPrefix(prefix string, maxResults int) []string {
	if prefix == "" {
		return nil
	}
	normalized := utils.NormalizeWord(prefix)

	var matches []prefixMatch
	idx.trie.VisitSubtree(patricia.Prefix(normalized), func(p patricia.Prefix, item patricia.Item) error {
		position, ok := item.(int)
		if !ok {
			return nil
		}
		matches = append(matches, prefixMatch{position: position})
		return nil
	})

	sort.Slice(matches, func(i, j int) bool {
		fi, fj := idx.frequency[matches[i].position], idx.frequency[matches[j].position]
		if fi != fj {
			return fi > fj
		}
		return idx.original[matches[i].position] < idx.original[matches[j].position]
	})

	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	results := make([]string, len(matches))
	for i, m := range matches {
		results[i] = idx.original[m.position]
	}
	return results
}

// Frequency returns the frequency recorded for the original-cased word, or
// 0 if the word is not indexed.
func (idx *Index) Frequency(word string) int {
	normalized := utils.NormalizeWord(word)
	item := idx.trie.Get(patricia.Prefix(normalized))
	position, ok := item.(int)
	if !ok {
		return 0
	}
	return idx.frequency[position]
}

// VerifyIntegrity recomputes the canonical hash over the indexed vocabulary
// and compares it against an expected digest (the corpus's vocabulary_hash,
// which is computed the same way). Construction is all-or-nothing: callers
// that detect a mismatch must rebuild from the corpus rather than trust the
// trie.
func VerifyIntegrity(normalizedWords []string, expectedHash string) error {
	actual, err := resource.ContentHash(normalizedWords)
	if err != nil {
		return err
	}
	if actual != expectedHash {
		return resource.NewError(resource.KindContentHashMismatch,
			"trie vocabulary hash does not match stored vocabulary_hash; rebuild from corpus")
	}
	return nil
}
