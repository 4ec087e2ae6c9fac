package version_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floridify/floridify/pkg/resource"
	"github.com/floridify/floridify/pkg/store"
	"github.com/floridify/floridify/pkg/version"
)

func openManager(t *testing.T) *version.Manager {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return version.NewManager(s)
}

// bigContent pads a payload past DefaultInlineThreshold so the snapshot
// decision is driven by chain position/delta-eligibility, not size.
func bigContent(body string) map[string]any {
	return map[string]any{
		"id":   "entry-1",
		"body": body + strings.Repeat("x", 300),
	}
}

func TestSaveFirstVersionIsSnapshot(t *testing.T) {
	m := openManager(t)
	res, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("hello"), version.SaveConfig{})
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", res.VersionInfo.Version)
	assert.True(t, res.VersionInfo.IsLatest)
	assert.Equal(t, resource.StorageSnapshot, res.VersionInfo.StorageMode)
	assert.Nil(t, res.VersionInfo.PreviousVersion)
}

func TestSaveIdenticalContentDedupes(t *testing.T) {
	m := openManager(t)
	content := bigContent("hello")
	first, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, content, version.SaveConfig{})
	require.NoError(t, err)

	second, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, content, version.SaveConfig{})
	require.NoError(t, err)

	assert.Equal(t, first.VersionInfo.Version, second.VersionInfo.Version)
	assert.Equal(t, first.ContentHash, second.ContentHash)
}

func TestSaveChangedContentIncrementsPatchByDefault(t *testing.T) {
	m := openManager(t)
	_, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("hello"), version.SaveConfig{})
	require.NoError(t, err)

	second, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("world"), version.SaveConfig{})
	require.NoError(t, err)

	assert.Equal(t, "0.1.1", second.VersionInfo.Version)
	require.NotNil(t, second.VersionInfo.PreviousVersion)
	assert.Equal(t, "0.1.0", *second.VersionInfo.PreviousVersion)
}

func TestSaveRespectsExplicitLevel(t *testing.T) {
	m := openManager(t)
	_, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("hello"), version.SaveConfig{})
	require.NoError(t, err)

	second, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("world"), version.SaveConfig{Level: version.LevelMinor})
	require.NoError(t, err)
	assert.Equal(t, "0.2.0", second.VersionInfo.Version)
}

func TestSaveUsesDeltaAfterFirstSnapshot(t *testing.T) {
	m := openManager(t)
	_, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("hello"), version.SaveConfig{SnapshotInterval: 10})
	require.NoError(t, err)

	second, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("world"), version.SaveConfig{SnapshotInterval: 10})
	require.NoError(t, err)

	assert.Equal(t, resource.StorageDelta, second.VersionInfo.StorageMode)
	require.NotNil(t, second.VersionInfo.DeltaBaseID)
	assert.Equal(t, "0.1.0", *second.VersionInfo.DeltaBaseID)
}

func TestSaveForcesSnapshotAtIntervalBoundary(t *testing.T) {
	m := openManager(t)
	cfg := version.SaveConfig{SnapshotInterval: 2}
	_, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v0"), cfg)
	require.NoError(t, err)
	second, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v1"), cfg)
	require.NoError(t, err)
	assert.Equal(t, resource.StorageDelta, second.VersionInfo.StorageMode)

	third, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v2"), cfg)
	require.NoError(t, err)
	assert.Equal(t, resource.StorageSnapshot, third.VersionInfo.StorageMode)
}

func TestSaveNonDeltaEligibleTypeAlwaysSnapshots(t *testing.T) {
	m := openManager(t)
	_, err := m.Save("trie-1", resource.TypeTrie, resource.NamespaceCorpus, bigContent("v0"), version.SaveConfig{})
	require.NoError(t, err)
	second, err := m.Save("trie-1", resource.TypeTrie, resource.NamespaceCorpus, bigContent("v1"), version.SaveConfig{})
	require.NoError(t, err)
	assert.Equal(t, resource.StorageSnapshot, second.VersionInfo.StorageMode)
}

func TestGetLatestAndGetByVersionReconstructDelta(t *testing.T) {
	m := openManager(t)
	cfg := version.SaveConfig{SnapshotInterval: 10}
	_, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v0"), cfg)
	require.NoError(t, err)
	_, err = m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v1"), cfg)
	require.NoError(t, err)
	third, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v2"), cfg)
	require.NoError(t, err)

	res, content, err := m.GetLatest("word-1", resource.TypeDictionary)
	require.NoError(t, err)
	assert.Equal(t, third.VersionInfo.Version, res.VersionInfo.Version)

	contentMap, ok := content.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, bigContent("v2")["body"], contentMap["body"])

	_, midContent, err := m.GetByVersion("word-1", resource.TypeDictionary, "0.1.1")
	require.NoError(t, err)
	midMap, ok := midContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, bigContent("v1")["body"], midMap["body"])
}

func TestListVersionsOrdersNewestFirst(t *testing.T) {
	m := openManager(t)
	_, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v0"), version.SaveConfig{})
	require.NoError(t, err)
	_, err = m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v1"), version.SaveConfig{})
	require.NoError(t, err)
	_, err = m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v2"), version.SaveConfig{})
	require.NoError(t, err)

	versions, err := m.ListVersions("word-1", resource.TypeDictionary)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "0.1.2", versions[0].Version)
	assert.Equal(t, "0.1.1", versions[1].Version)
	assert.Equal(t, "0.1.0", versions[2].Version)
}

func TestDeleteLatestVersionPromotesPrevious(t *testing.T) {
	m := openManager(t)
	_, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v0"), version.SaveConfig{})
	require.NoError(t, err)
	_, err = m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v1"), version.SaveConfig{})
	require.NoError(t, err)

	require.NoError(t, m.DeleteVersion("word-1", resource.TypeDictionary, "0.1.1"))

	res, _, err := m.GetLatest("word-1", resource.TypeDictionary)
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", res.VersionInfo.Version)
	assert.True(t, res.VersionInfo.IsLatest)
	assert.Nil(t, res.VersionInfo.NextVersion)
}

func TestDeleteMiddleVersionRelinksChain(t *testing.T) {
	m := openManager(t)
	_, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v0"), version.SaveConfig{})
	require.NoError(t, err)
	_, err = m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v1"), version.SaveConfig{})
	require.NoError(t, err)
	_, err = m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v2"), version.SaveConfig{})
	require.NoError(t, err)

	require.NoError(t, m.DeleteVersion("word-1", resource.TypeDictionary, "0.1.1"))

	versions, err := m.ListVersions("word-1", resource.TypeDictionary)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "0.1.2", versions[0].Version)
	assert.Equal(t, "0.1.0", versions[1].Version)
	require.NotNil(t, versions[0].PreviousVersion)
	assert.Equal(t, "0.1.0", *versions[0].PreviousVersion)
}

func TestRollbackCreatesNewVersionWithTargetContent(t *testing.T) {
	m := openManager(t)
	_, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v0"), version.SaveConfig{})
	require.NoError(t, err)
	_, err = m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v1"), version.SaveConfig{})
	require.NoError(t, err)

	rolled, err := m.Rollback("word-1", resource.TypeDictionary, resource.NamespaceDictionary, "0.1.0")
	require.NoError(t, err)
	assert.Equal(t, "0.1.2", rolled.VersionInfo.Version)
	assert.Equal(t, resource.StorageSnapshot, rolled.VersionInfo.StorageMode)

	_, content, err := m.GetLatest("word-1", resource.TypeDictionary)
	require.NoError(t, err)
	contentMap, ok := content.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, bigContent("v0")["body"], contentMap["body"])
}

func TestRollbackToContentEqualToLatestStillCreatesVersion(t *testing.T) {
	m := openManager(t)
	_, err := m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v0"), version.SaveConfig{})
	require.NoError(t, err)
	_, err = m.Save("word-1", resource.TypeDictionary, resource.NamespaceDictionary, bigContent("v1"), version.SaveConfig{})
	require.NoError(t, err)

	// The target's content equals the current latest; the dedup check must
	// not swallow the rollback.
	rolled, err := m.Rollback("word-1", resource.TypeDictionary, resource.NamespaceDictionary, "0.1.1")
	require.NoError(t, err)
	assert.Equal(t, "0.1.2", rolled.VersionInfo.Version)

	versions, err := m.ListVersions("word-1", resource.TypeDictionary)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "0.1.2", versions[0].Version)
}
