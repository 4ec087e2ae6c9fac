package search

import (
	"github.com/floridify/floridify/pkg/trie"
)

// TrieIndexResource is the persisted form of a built trie index, keyed by
// (corpus_uuid, vocabulary_hash): the normalized word list, the parallel
// original-form array, and the frequency table driving prefix ranking.
type TrieIndexResource struct {
	CorpusUUID     string   `json:"corpus_uuid" msgpack:"corpus_uuid"`
	VocabularyHash string   `json:"vocabulary_hash" msgpack:"vocabulary_hash"`
	Words          []string `json:"words" msgpack:"words"`
	OriginalForms  []string `json:"original_forms" msgpack:"original_forms"`
	Frequencies    []int    `json:"frequencies,omitempty" msgpack:"frequencies,omitempty"`
}

// SearchIndexResource references the subordinate indices built for a corpus
// plus the capability flags a status endpoint reports.
type SearchIndexResource struct {
	CorpusUUID      string `json:"corpus_uuid" msgpack:"corpus_uuid"`
	VocabularyHash  string `json:"vocabulary_hash" msgpack:"vocabulary_hash"`
	TrieIndexID     string `json:"trie_index_id" msgpack:"trie_index_id"`
	SemanticIndexID string `json:"semantic_index_id,omitempty" msgpack:"semantic_index_id,omitempty"`
	HasTrie         bool   `json:"has_trie" msgpack:"has_trie"`
	HasFuzzy        bool   `json:"has_fuzzy" msgpack:"has_fuzzy"`
	HasSemantic     bool   `json:"has_semantic" msgpack:"has_semantic"`
}

// TrieResourceID returns the version-store resource id for a corpus's trie
// index, following the `<corpus_uuid>:trie` convention.
func TrieResourceID(corpusUUID string) string {
	return corpusUUID + ":trie"
}

// SearchResourceID returns the version-store resource id for a corpus's
// search index, following the `<corpus_uuid>:search` convention.
func SearchResourceID(corpusUUID string) string {
	return corpusUUID + ":search"
}

// Rebuild materializes a trie index from the persisted resource.
// Construction is all-or-nothing: a vocabulary-hash mismatch aborts with
// ContentHashMismatch and the caller must rebuild from the corpus.
func (r *TrieIndexResource) Rebuild() (*trie.Index, error) {
	if err := trie.VerifyIntegrity(r.Words, r.VocabularyHash); err != nil {
		return nil, err
	}
	return trie.Build(r.Words, r.OriginalForms, r.Frequencies, r.VocabularyHash), nil
}
