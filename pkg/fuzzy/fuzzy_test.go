package fuzzy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floridify/floridify/pkg/fuzzy"
)

func TestSearchLengthCorrection(t *testing.T) {
	m := fuzzy.NewMatcher([]string{"ennui", "en coulisse", "coulisse", "bonjour"})
	matches := m.Search("enui", 5, 0.6, fuzzy.MethodRapidFuzz)
	require.NotEmpty(t, matches)
	assert.Equal(t, "ennui", matches[0].Word)
	assert.GreaterOrEqual(t, matches[0].Score, 0.6)
}

func TestSearchPrefixPhraseBonus(t *testing.T) {
	m := fuzzy.NewMatcher([]string{"ennui", "en coulisse", "coulisse", "bonjour"})
	matches := m.Search("en cou", 5, 0.3, fuzzy.MethodAuto)
	require.NotEmpty(t, matches)
	assert.Equal(t, "en coulisse", matches[0].Word)
	assert.Greater(t, matches[0].Score, 0.8)
}

func TestSearchDedupesByCanonicalForm(t *testing.T) {
	m := fuzzy.NewMatcher([]string{"Apple", "APPLE", "apple"})
	matches := m.Search("aple", 10, 0.1, fuzzy.MethodAuto)
	assert.Len(t, matches, 1)
}

func TestSearchDiacriticCoexistence(t *testing.T) {
	m := fuzzy.NewMatcher([]string{"café", "cafeteria"})
	matches := m.Search("cafe", 5, 0.3, fuzzy.MethodAuto)
	var found bool
	for _, match := range matches {
		if match.Word == "café" {
			found = true
		}
	}
	assert.True(t, found, "ascii-folded query should surface the diacritic form via the prefix/ascii bucket")
}

func TestExactMatchShortCircuits(t *testing.T) {
	m := fuzzy.NewMatcher([]string{"apple", "apply", "maple"})
	matches := m.Search("apple", 5, 0.5, fuzzy.MethodAuto)
	require.Len(t, matches, 1)
	assert.Equal(t, 1.0, matches[0].Score)
}
