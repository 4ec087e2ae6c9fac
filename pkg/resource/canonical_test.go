package resource_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floridify/floridify/pkg/resource"
)

func TestContentHashIsKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"word": "test", "def": "v1", "tags": []any{"x", "y"}}
	b := map[string]any{"tags": []any{"x", "y"}, "def": "v1", "word": "test"}

	ha, err := resource.ContentHash(a)
	require.NoError(t, err)
	hb, err := resource.ContentHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestContentHashStableForStructWithTypedMap(t *testing.T) {
	type doc struct {
		Name  string         `msgpack:"name"`
		Index map[string]int `msgpack:"index"`
	}

	build := func(reversed bool) doc {
		d := doc{Name: "vocab", Index: make(map[string]int, 26)}
		for i := 0; i < 26; i++ {
			k := rune('a' + i)
			if reversed {
				k = rune('z' - i)
			}
			d.Index[string(k)] = int(k - 'a')
		}
		return d
	}

	// Map iteration order is randomized per range, so hashing the same
	// logical content repeatedly is a real exercise of key-order
	// normalization, not a tautology.
	first, err := resource.ContentHash(build(false))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := resource.ContentHash(build(i%2 == 1))
		require.NoError(t, err)
		assert.Equal(t, first, again, "hash must not depend on map iteration or insertion order")
	}
}

func TestContentHashDistinguishesContent(t *testing.T) {
	ha, err := resource.ContentHash(map[string]any{"def": "v1"})
	require.NoError(t, err)
	hb, err := resource.ContentHash(map[string]any{"def": "v2"})
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestNewErrorWrapsMatchingSentinel(t *testing.T) {
	err := resource.NewError(resource.KindNotFound, "missing thing")
	assert.ErrorIs(t, err, resource.ErrNotFound)
	assert.Contains(t, err.Error(), "missing thing")

	err = resource.NewError(resource.KindCycleRejected, "")
	assert.ErrorIs(t, err, resource.ErrCycleRejected)
}

func TestCapabilityRegistryMarksBinaryIndicesSnapshotOnly(t *testing.T) {
	assert.False(t, resource.IsDeltaEligible(resource.TypeTrie))
	assert.False(t, resource.IsDeltaEligible(resource.TypeSemantic))
	assert.True(t, resource.IsDeltaEligible(resource.TypeDictionary))
	assert.True(t, resource.IsDeltaEligible(resource.TypeCorpus))

	unknown := resource.CapabilityFor(resource.Type("mystery"))
	assert.Equal(t, resource.NamespaceDefault, unknown.Namespace)
	assert.False(t, unknown.DeltaEligible)
}
