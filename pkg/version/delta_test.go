package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floridify/floridify/pkg/version"
)

func TestComputeApplyDeltaRoundTrip(t *testing.T) {
	old := map[string]any{
		"word": "test",
		"def":  "v1",
		"nested": map[string]any{
			"pos":      "noun",
			"examples": []any{"a", "b"},
		},
	}
	new := map[string]any{
		"word": "test",
		"def":  "v2",
		"nested": map[string]any{
			"pos": "verb",
		},
		"added": "field",
	}

	diff, err := version.ComputeDelta(old, new)
	require.NoError(t, err)
	require.NotEmpty(t, diff)

	reconstructed, err := version.ApplyDelta(old, diff)
	require.NoError(t, err)

	expected, err := version.ComputeDelta(reconstructed, new)
	require.NoError(t, err)
	assert.Empty(t, expected, "reconstructed content must equal the target")
}

func TestApplyDeltaRemovesDeletedKeys(t *testing.T) {
	old := map[string]any{"keep": "x", "drop": "y"}
	new := map[string]any{"keep": "x"}

	diff, err := version.ComputeDelta(old, new)
	require.NoError(t, err)

	result, err := version.ApplyDelta(old, diff)
	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	_, present := m["drop"]
	assert.False(t, present)
}

func TestComputeDeltaIdenticalContentIsEmpty(t *testing.T) {
	content := map[string]any{"a": 1, "b": map[string]any{"c": "d"}}
	diff, err := version.ComputeDelta(content, content)
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestReconstructVersionReplaysDiffsInOrder(t *testing.T) {
	v0 := map[string]any{"body": "v0"}
	v1 := map[string]any{"body": "v1", "extra": "added"}
	v2 := map[string]any{"body": "v2"}

	d1, err := version.ComputeDelta(v0, v1)
	require.NoError(t, err)
	d2, err := version.ComputeDelta(v1, v2)
	require.NoError(t, err)

	result, err := version.ReconstructVersion(v0, []version.Diff{d1, d2})
	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v2", m["body"])
	_, present := m["extra"]
	assert.False(t, present, "a key added in v1 and removed in v2 must not survive reconstruction")
}

func TestShouldKeepAsSnapshotIntervalPolicy(t *testing.T) {
	assert.True(t, version.ShouldKeepAsSnapshot(0, 10, false))
	assert.False(t, version.ShouldKeepAsSnapshot(5, 10, false))
	assert.True(t, version.ShouldKeepAsSnapshot(10, 10, false))
	assert.True(t, version.ShouldKeepAsSnapshot(5, 10, true))
}

func TestParseVersionRejectsMalformedStrings(t *testing.T) {
	for _, bad := range []string{"", "1", "1.2", "1.2.3.4", "a.b.c", "1.2.x"} {
		_, err := version.ParseVersion(bad)
		assert.Error(t, err, "expected %q to be rejected", bad)
	}
}

func TestIncrementVersionTruncatesLowerComponents(t *testing.T) {
	next, err := version.IncrementVersion("1.2.3", version.LevelPatch)
	require.NoError(t, err)
	assert.Equal(t, "1.2.4", next)

	next, err = version.IncrementVersion("1.2.3", version.LevelMinor)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", next)

	next, err = version.IncrementVersion("1.2.3", version.LevelMajor)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", next)
}

func TestCompareVersionsTotalOrder(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.1.0", "1.0.9", 1},
		{"2.0.0", "1.9.9", 1},
	}
	for _, c := range cases {
		got, err := version.CompareVersions(c.a, c.b)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%s vs %s", c.a, c.b)
	}
}
