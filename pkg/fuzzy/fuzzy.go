// Package fuzzy implements the length-and-phrase-aware approximate matcher:
// candidates are pruned via length and prefix buckets before a base
// similarity score (weighted ratio or Jaro-Winkler) is corrected for length
// ratio, phrase shape, and prefix/first-word bonuses.
package fuzzy

import (
	"sort"
	"strings"

	"github.com/floridify/floridify/internal/utils"
)

// Method selects (or auto-selects) the base similarity scorer.
type Method string

const (
	MethodAuto        Method = "auto"
	MethodRapidFuzz   Method = "rapidfuzz"
	MethodJaroWinkler Method = "jaro_winkler"
)

// Match is a single scored candidate.
type Match struct {
	Word     string
	Score    float64
	Method   Method
	IsPhrase bool
}

const (
	defaultLengthTolerance = 2
	exactScoreThreshold    = 0.99
)

// entry is one vocabulary word prepared for pruning and scoring.
type entry struct {
	original   string
	normalized string
	length     int
}

// Matcher holds the length-bucket and prefix-bucket indices built once over
// a corpus's vocabulary.
type Matcher struct {
	entries       []entry
	lengthBuckets map[int][]int
	prefixBuckets map[string][]int // keyed by up to 3-char normalized prefix
	asciiBuckets  map[string][]int // diacritic-folded form -> indices
}

// NewMatcher builds a Matcher over originalWords (original casing/diacritics
// preserved; normalization happens internally).
func NewMatcher(originalWords []string) *Matcher {
	m := &Matcher{
		lengthBuckets: make(map[int][]int),
		prefixBuckets: make(map[string][]int),
		asciiBuckets:  make(map[string][]int),
	}
	m.entries = make([]entry, len(originalWords))
	for i, w := range originalWords {
		normalized := utils.NormalizeWord(w)
		m.entries[i] = entry{original: w, normalized: normalized, length: len([]rune(normalized))}

		m.lengthBuckets[m.entries[i].length] = append(m.lengthBuckets[m.entries[i].length], i)

		for _, plen := range []int{2, 3} {
			if key := prefixKey(normalized, plen); key != "" {
				m.prefixBuckets[key] = append(m.prefixBuckets[key], i)
			}
		}

		if asciiKey := utils.FoldDiacritics(normalized); asciiKey != normalized {
			m.asciiBuckets[asciiKey] = append(m.asciiBuckets[asciiKey], i)
		}
	}
	return m
}

func prefixKey(normalized string, n int) string {
	r := []rune(normalized)
	if len(r) < n {
		return ""
	}
	return string(r[:n])
}

func prefixScale(queryLen int) int {
	if queryLen <= 4 {
		return 2
	}
	return 3
}

// candidates returns the pruned candidate index set: the union of the
// length bucket (±tolerance) and the prefix bucket, plus any ASCII-folded
// diacritic variants of the query.
func (m *Matcher) candidates(normalizedQuery string, tolerance int) []int {
	seen := make(map[int]struct{})
	var out []int
	add := func(idx int) {
		if _, ok := seen[idx]; !ok {
			seen[idx] = struct{}{}
			out = append(out, idx)
		}
	}

	queryLen := len([]rune(normalizedQuery))
	for l := queryLen - tolerance; l <= queryLen+tolerance; l++ {
		for _, idx := range m.lengthBuckets[l] {
			add(idx)
		}
	}

	plen := prefixScale(queryLen)
	if key := prefixKey(normalizedQuery, plen); key != "" {
		for _, idx := range m.prefixBuckets[key] {
			add(idx)
		}
	}

	if asciiKey := utils.FoldDiacritics(normalizedQuery); asciiKey != normalizedQuery || len(m.asciiBuckets[asciiKey]) > 0 {
		for _, idx := range m.asciiBuckets[asciiKey] {
			add(idx)
		}
	}

	return out
}

func baseScore(method Method, query, candidate string) (float64, Method) {
	resolved := method
	if resolved == MethodAuto || resolved == "" {
		if len([]rune(query)) <= 4 {
			resolved = MethodJaroWinkler
		} else {
			resolved = MethodRapidFuzz
		}
	}
	if resolved == MethodJaroWinkler {
		return jaroWinkler(query, candidate), MethodJaroWinkler
	}
	return weightedRatio(query, candidate), MethodRapidFuzz
}

// correct applies the length-and-phrase correction table to a base score.
// Exact matches (base >= 0.99) bypass correction entirely.
func correct(base float64, query, candidate string) float64 {
	if base >= exactScoreThreshold {
		return base
	}

	q := len([]rune(query))
	c := len([]rune(candidate))
	ratio := float64(minInt(q, c)) / float64(maxInt(q, c))

	queryIsPhrase := strings.Contains(strings.TrimSpace(query), " ")
	candIsPhrase := strings.Contains(strings.TrimSpace(candidate), " ")
	lowerQuery := strings.ToLower(query)
	lowerCandidate := strings.ToLower(candidate)

	// A candidate the query is a clean prefix of is a completion, not a
	// length mismatch; penalizing it by length would cancel the prefix
	// bonus below and bury phrase completions like "en cou" -> "en
	// coulisse".
	lengthFactor := ratio
	if strings.HasPrefix(lowerCandidate, lowerQuery) {
		lengthFactor = 1.0
	}

	phraseFactor := 1.0
	switch {
	case queryIsPhrase && !candIsPhrase:
		phraseFactor = 0.7
	case !queryIsPhrase && candIsPhrase:
		prefixOrFirstWord := strings.HasPrefix(lowerCandidate, lowerQuery) ||
			strings.EqualFold(firstWhitespaceToken(candidate), query)
		if prefixOrFirstWord {
			phraseFactor = 1.2
		} else {
			phraseFactor = 0.95
		}
	case queryIsPhrase && candIsPhrase && ratio > 0.6:
		phraseFactor = 1.1
	}

	shortPenalty := 1.0
	switch {
	case c <= 3 && q > 6:
		shortPenalty = 0.5
	case float64(c) < float64(q)/2:
		shortPenalty = 0.75
	}

	prefixBonus := 1.0
	if strings.HasPrefix(lowerCandidate, lowerQuery) {
		prefixBonus = 1.3
	}

	firstWordBonus := 1.0
	if strings.EqualFold(firstWhitespaceToken(candidate), query) {
		firstWordBonus = 1.2
	}

	final := base * lengthFactor * phraseFactor * shortPenalty * prefixBonus * firstWordBonus
	return clamp01(final)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Search runs the pruned, scored, corrected fuzzy match over the matcher's
// vocabulary. Results are sorted by corrected score descending, deduplicated
// by canonical (normalized) form, and filtered by minScore after correction.
func (m *Matcher) Search(query string, maxResults int, minScore float64, method Method) []Match {
	normalizedQuery := utils.NormalizeWord(query)
	candidateIdx := m.candidates(normalizedQuery, defaultLengthTolerance)

	seenCanonical := make(map[string]struct{})
	var matches []Match

	for _, idx := range candidateIdx {
		e := m.entries[idx]
		if _, dup := seenCanonical[e.normalized]; dup {
			continue
		}

		base, resolvedMethod := baseScore(method, normalizedQuery, e.normalized)
		if base >= exactScoreThreshold {
			// Exact hit short-circuits pruning entirely.
			return []Match{{Word: e.original, Score: 1.0, Method: resolvedMethod, IsPhrase: strings.Contains(e.normalized, " ")}}
		}

		score := correct(base, normalizedQuery, e.normalized)
		if score < minScore {
			continue
		}
		seenCanonical[e.normalized] = struct{}{}
		matches = append(matches, Match{
			Word:     e.original,
			Score:    score,
			Method:   resolvedMethod,
			IsPhrase: strings.Contains(e.normalized, " "),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Word < matches[j].Word
	})

	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}
