package resource

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// Canonicalize serializes an arbitrary content payload deterministically
// with msgpack, so the same logical content always produces identical bytes
// regardless of map key order. The payload is first round-tripped through
// msgpack onto a generic map/slice/scalar tree, which flattens structs,
// pointers, and concretely-typed maps (map[string]int and friends) into
// string-keyed maps; every map in that tree is then walked in sorted key
// order before the final encoding.
func Canonicalize(content any) ([]byte, error) {
	generic, err := toGeneric(content)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(normalize(generic))
}

// toGeneric reduces any encodable value to the map[string]any/[]any/scalar
// shape normalize can walk, regardless of the value's static type.
func toGeneric(v any) (any, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ContentHash computes the hex digest of the canonical serialization of a
// content payload. The hash covers the logical content regardless of
// whether it is stored inline or by location.
func ContentHash(content any) (string, error) {
	data, err := Canonicalize(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// normalize recursively converts maps into a deterministic representation
// (sorted key/value pairs) so msgpack's encoding is stable across runs that
// built the same logical map via different insertion orders.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]kv, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, kv{Key: k, Value: normalize(val[k])})
		}
		return pairs
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return val
	}
}

type kv struct {
	Key   string
	Value any
}
