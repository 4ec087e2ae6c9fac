package corpus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floridify/floridify/pkg/corpus"
	"github.com/floridify/floridify/pkg/resource"
	"github.com/floridify/floridify/pkg/store"
	"github.com/floridify/floridify/pkg/version"
)

func openManager(t *testing.T) *corpus.Manager {
	t.Helper()
	m, _ := openManagers(t)
	return m
}

func openManagers(t *testing.T) (*corpus.Manager, *version.Manager) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	versions := version.NewManager(s)
	return corpus.NewManager(versions, s), versions
}

func TestSaveAndGetCorpusByNameAndUUID(t *testing.T) {
	m := openManager(t)
	c, err := m.SaveCorpus("french", []string{"Bonjour", "chat", "chien"}, corpus.TypeLanguage, "fr", nil, false, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"bonjour", "chat", "chien"}, c.Vocabulary)
	assert.Equal(t, []string{"Bonjour", "chat", "chien"}, c.OriginalVocabulary)
	assert.Equal(t, 0, c.VocabularyToIndex["bonjour"])

	byName, ok, err := m.GetCorpus("", "french")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.CorpusUUID, byName.CorpusUUID)

	byUUID, ok, err := m.GetCorpus(c.CorpusUUID, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.CorpusName, byUUID.CorpusName)
}

func TestVocabularyToIndexInvariant(t *testing.T) {
	m := openManager(t)
	c, err := m.SaveCorpus("misc", []string{"zebra", "apple", "mango"}, corpus.TypeCustom, "", nil, false, nil)
	require.NoError(t, err)

	require.Equal(t, len(c.Vocabulary), len(c.OriginalVocabulary))
	require.Equal(t, len(c.Vocabulary), len(c.LemmatizedVocabulary))
	for i, w := range c.Vocabulary {
		assert.Equal(t, i, c.VocabularyToIndex[w])
	}
}

func TestUpdateParentRejectsCycle(t *testing.T) {
	m := openManager(t)
	root, err := m.SaveCorpus("root", nil, corpus.TypeCustom, "", nil, true, nil)
	require.NoError(t, err)
	child, err := m.SaveCorpus("child", nil, corpus.TypeCustom, "", nil, false, nil)
	require.NoError(t, err)

	ok, err := m.UpdateParent(root.CorpusUUID, child.CorpusUUID)
	require.NoError(t, err)
	require.True(t, ok)

	// child is now a descendant of root; attaching root under child must
	// be rejected as a cycle.
	ok, err = m.UpdateParent(child.CorpusUUID, root.CorpusUUID)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestUpdateParentRejectsSelfLoop(t *testing.T) {
	m := openManager(t)
	c, err := m.SaveCorpus("solo", nil, corpus.TypeCustom, "", nil, false, nil)
	require.NoError(t, err)

	ok, err := m.UpdateParent(c.CorpusUUID, c.CorpusUUID)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestAggregateVocabulariesUnionsChildren(t *testing.T) {
	m := openManager(t)
	master, err := m.SaveCorpus("master", nil, corpus.TypeCustom, "", nil, true, nil)
	require.NoError(t, err)

	parent := master.CorpusUUID
	_, err = m.SaveCorpus("child-a", []string{"apple", "banana"}, corpus.TypeCustom, "", &parent, false, nil)
	require.NoError(t, err)
	_, err = m.SaveCorpus("child-b", []string{"banana", "cherry"}, corpus.TypeCustom, "", &parent, false, nil)
	require.NoError(t, err)

	result, err := m.AggregateVocabularies(master.CorpusUUID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "banana", "cherry"}, result)

	reloaded, ok, err := m.GetCorpus(master.CorpusUUID, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result, reloaded.Vocabulary)
}

func TestDeleteCorpusOrphansChildrenNotCascadeDeletesThem(t *testing.T) {
	m := openManager(t)
	parent, err := m.SaveCorpus("parent", nil, corpus.TypeCustom, "", nil, true, nil)
	require.NoError(t, err)

	parentUUID := parent.CorpusUUID
	child, err := m.SaveCorpus("child", []string{"x"}, corpus.TypeCustom, "", &parentUUID, false, nil)
	require.NoError(t, err)

	ok, err := m.DeleteCorpus(parentUUID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, err := m.GetCorpus(parentUUID, "")
	require.NoError(t, err)
	assert.False(t, found)

	reloadedChild, found, err := m.GetCorpus(child.CorpusUUID, "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, reloadedChild.ParentUUID)
}

func TestDeleteCorpusCascadesToDerivedIndices(t *testing.T) {
	m, versions := openManagers(t)
	c, err := m.SaveCorpus("indexed", []string{"apple", "banana"}, corpus.TypeLexicon, "en", nil, false, nil)
	require.NoError(t, err)

	trieID := c.CorpusUUID + ":trie"
	searchID := c.CorpusUUID + ":search"
	semanticID := c.CorpusUUID + ":semantic:minilm"
	_, err = versions.Save(trieID, resource.TypeTrie, resource.NamespaceCorpus, map[string]any{"words": c.Vocabulary}, version.SaveConfig{})
	require.NoError(t, err)
	_, err = versions.Save(searchID, resource.TypeSearch, resource.NamespaceCorpus, map[string]any{"has_trie": true}, version.SaveConfig{})
	require.NoError(t, err)
	_, err = versions.Save(semanticID, resource.TypeSemantic, resource.NamespaceSemantic, map[string]any{"model": "minilm"}, version.SaveConfig{})
	require.NoError(t, err)

	ok, err := m.DeleteCorpus(c.CorpusUUID)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = versions.GetLatest(trieID, resource.TypeTrie)
	assert.ErrorIs(t, err, resource.ErrNotFound)
	_, _, err = versions.GetLatest(searchID, resource.TypeSearch)
	assert.ErrorIs(t, err, resource.ErrNotFound)
	_, _, err = versions.GetLatest(semanticID, resource.TypeSemantic)
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

type fakeConnector struct{ words []string }

func (f fakeConnector) FetchVocabulary(_ context.Context, _ string) ([]string, error) {
	return f.words, nil
}

func TestAddLanguageSourceCreatesChild(t *testing.T) {
	m := openManager(t)
	parent, err := m.SaveCorpus("parent", nil, corpus.TypeLanguage, "en", nil, true, nil)
	require.NoError(t, err)

	childUUID, err := m.AddLanguageSource(context.Background(), parent.CorpusUUID, "es-wordlist", fakeConnector{words: []string{"hola", "gato"}})
	require.NoError(t, err)

	child, ok, err := m.GetCorpus(childUUID, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"gato", "hola"}, child.Vocabulary)
	assert.Equal(t, parent.CorpusUUID, *child.ParentUUID)
}
