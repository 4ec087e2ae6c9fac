package search_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floridify/floridify/pkg/resource"
	"github.com/floridify/floridify/pkg/search"
)

func TestTrieIndexResourceRebuildRoundTrip(t *testing.T) {
	words := []string{"apple", "banana"}
	hash, err := resource.ContentHash(words)
	require.NoError(t, err)

	r := &search.TrieIndexResource{
		CorpusUUID:     "corpus-1",
		VocabularyHash: hash,
		Words:          words,
		OriginalForms:  []string{"Apple", "Banana"},
	}
	idx, err := r.Rebuild()
	require.NoError(t, err)

	form, ok := idx.SearchExact("apple")
	require.True(t, ok)
	assert.Equal(t, "Apple", form)
}

func TestTrieIndexResourceRebuildRejectsCorruptBlob(t *testing.T) {
	r := &search.TrieIndexResource{
		CorpusUUID:     "corpus-1",
		VocabularyHash: "not-the-right-hash",
		Words:          []string{"apple"},
		OriginalForms:  []string{"Apple"},
	}
	_, err := r.Rebuild()
	require.Error(t, err)
	assert.ErrorIs(t, err, resource.ErrContentHashMismatch)
}

func TestIndexResourceIDConventions(t *testing.T) {
	assert.Equal(t, "u1:trie", search.TrieResourceID("u1"))
	assert.Equal(t, "u1:search", search.SearchResourceID("u1"))
}
