package semantic

import (
	"fmt"

	"github.com/coder/hnsw"

	"github.com/floridify/floridify/internal/utils"
)

// IndexResource is the persisted form of a semantic index: the model that
// produced the vectors, a zlib-compressed row-major float32 buffer, and the
// parallel words list, keyed by (corpus_uuid, model_name).
type IndexResource struct {
	CorpusUUID         string    `json:"corpus_uuid" msgpack:"corpus_uuid"`
	ModelName          string    `json:"model_name" msgpack:"model_name"`
	EmbeddingDimension int       `json:"embedding_dimension" msgpack:"embedding_dimension"`
	IndexType          IndexType `json:"index_type" msgpack:"index_type"`
	Embeddings         []byte    `json:"embeddings" msgpack:"embeddings"`
	Words              []string  `json:"words" msgpack:"words"`
}

// ResourceIDFor returns the version-store resource id for a corpus's
// semantic index under one model, following the
// `<corpus_uuid>:semantic:<model_name>` convention.
func ResourceIDFor(corpusUUID, modelName string) string {
	return corpusUUID + ":semantic:" + modelName
}

// BuildResource embeds the full vocabulary and packages it as a persistable
// resource. Any embedding failure aborts the build; no partial resource is
// produced.
func BuildResource(corpusUUID string, vocabulary []string, embedder Embedder) (*IndexResource, error) {
	dims := embedder.Dimensions()
	buf := make([]float32, 0, len(vocabulary)*dims)
	for _, w := range vocabulary {
		vec, err := embedder.Embed(w)
		if err != nil {
			return nil, fmt.Errorf("embedding %q: %w", w, err)
		}
		if len(vec) != dims {
			return nil, fmt.Errorf("embedding %q: got %d dimensions, model reports %d", w, len(vec), dims)
		}
		buf = append(buf, vec...)
	}
	blob, err := EncodeEmbedding(buf)
	if err != nil {
		return nil, err
	}
	return &IndexResource{
		CorpusUUID:         corpusUUID,
		ModelName:          embedder.ModelName(),
		EmbeddingDimension: dims,
		IndexType:          indexTypeFor(len(vocabulary)),
		Embeddings:         blob,
		Words:              append([]string(nil), vocabulary...),
	}, nil
}

// RestoreIndex materializes a searchable Index from a persisted resource
// without re-embedding anything: the compressed buffer is decoded once and
// kept in the graph for the engine's lifetime.
func RestoreIndex(r *IndexResource) (*Index, error) {
	raw, err := DecodeEmbedding(r.Embeddings)
	if err != nil {
		return nil, err
	}
	if r.EmbeddingDimension <= 0 || len(raw) != len(r.Words)*r.EmbeddingDimension {
		return nil, fmt.Errorf("semantic: embedding buffer holds %d floats, want %d words x %d dims",
			len(raw), len(r.Words), r.EmbeddingDimension)
	}

	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.Ml = 0.25
	g.EfSearch = 20

	words := make(map[uint64]string, len(r.Words))
	keys := make(map[string]uint64, len(r.Words))
	var key uint64
	for i, w := range r.Words {
		vec := make([]float32, r.EmbeddingDimension)
		copy(vec, raw[i*r.EmbeddingDimension:(i+1)*r.EmbeddingDimension])
		normalizeVectorInPlace(vec)
		g.Add(hnsw.MakeNode(key, vec))
		words[key] = w
		keys[utils.NormalizeWord(w)] = key
		key++
	}

	idx := &Index{
		graph:     g,
		words:     words,
		keys:      keys,
		nextKey:   key,
		modelName: r.ModelName,
		dims:      r.EmbeddingDimension,
		enabled:   true,
		ready:     true,
	}
	return idx, nil
}
