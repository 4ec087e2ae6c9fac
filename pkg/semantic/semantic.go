// Package semantic implements the optional dense-vector adapter: a vector
// per vocabulary entry in an HNSW graph, with embeddings persisted
// zlib-compressed over a float32 buffer. Building is optional and goes
// through Rebuild, a blocking call made off the request path; Status
// reports Building while it runs.
package semantic

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/floridify/floridify/internal/utils"
)

// ivfpqThreshold is the vocabulary size at which the index type switches
// from flat exact cosine search to the approximate IVFPQ-equivalent regime
// for large vocabularies. The HNSW graph does not distinguish the two, but the
// IndexType is surfaced so callers/status reporting can see which regime a
// given corpus landed in.
const ivfpqThreshold = 50_000

// IndexType names the search regime chosen by vocabulary size.
type IndexType string

const (
	IndexFlat  IndexType = "flat"
	IndexIVFPQ IndexType = "ivfpq"
)

// Embedder produces a vector for a piece of text. Concrete implementations
// (a local model, a remote embedding API) are supplied by the caller;
// pkg/semantic only knows how to index and search vectors, never how to
// produce them.
type Embedder interface {
	Embed(text string) ([]float32, error)
	ModelName() string
	Dimensions() int
}

// Match is one semantic search result.
type Match struct {
	Word  string
	Score float64
}

// Status reports the adapter's lifecycle: building is async and
// optional, and a failed build disables semantic search without affecting
// exact/fuzzy.
type Status struct {
	Ready     bool
	Building  bool
	Enabled   bool
	IndexType IndexType
	Count     int
	InitError string
}

// Index is a semantic search adapter over one corpus's vocabulary.
type Index struct {
	mu sync.RWMutex

	enabled bool
	graph   *hnsw.Graph[uint64]

	words     map[uint64]string
	keys      map[string]uint64
	nextKey   uint64
	modelName string
	dims      int

	building  bool
	ready     bool
	initError string
}

// NewIndex constructs a disabled, empty adapter. Call Rebuild to populate it;
// until that completes the adapter reports Ready=false and Enabled=false,
// and callers must fall back to fuzzy search.
func NewIndex() *Index {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.Ml = 0.25
	g.EfSearch = 20
	return &Index{
		graph: g,
		words: make(map[uint64]string),
		keys:  make(map[string]uint64),
	}
}

func indexTypeFor(n int) IndexType {
	if n >= ivfpqThreshold {
		return IndexIVFPQ
	}
	return IndexFlat
}

// Rebuild re-embeds the full vocabulary and replaces the graph in place.
// It is meant to be invoked off the request path (the hot-reload controller
// or an explicit admin call); on any embedding failure the adapter is left
// disabled with InitError set rather than partially built.
func (idx *Index) Rebuild(vocabulary []string, embedder Embedder) error {
	idx.mu.Lock()
	idx.building = true
	idx.ready = false
	idx.initError = ""
	idx.mu.Unlock()

	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.Ml = 0.25
	g.EfSearch = 20

	words := make(map[uint64]string, len(vocabulary))
	keys := make(map[string]uint64, len(vocabulary))

	var key uint64
	for _, w := range vocabulary {
		vec, err := embedder.Embed(w)
		if err != nil {
			idx.mu.Lock()
			idx.building = false
			idx.enabled = false
			idx.initError = fmt.Sprintf("embedding %q: %v", w, err)
			idx.mu.Unlock()
			return err
		}
		normalizeVectorInPlace(vec)
		g.Add(hnsw.MakeNode(key, vec))
		words[key] = w
		keys[utils.NormalizeWord(w)] = key
		key++
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.graph = g
	idx.words = words
	idx.keys = keys
	idx.nextKey = key
	idx.modelName = embedder.ModelName()
	idx.dims = embedder.Dimensions()
	idx.enabled = true
	idx.ready = true
	idx.building = false
	idx.initError = ""
	return nil
}

// Search returns up to maxResults semantic matches for queryText scoring at
// or above minScore, via the supplied embedder. Returns an empty slice
// (never an error) if the index is not ready; callers are expected to check
// Status.Ready/Enabled and fall back to fuzzy themselves.
func (idx *Index) Search(queryText string, maxResults int, minScore float64, embedder Embedder) ([]Match, error) {
	idx.mu.RLock()
	ready := idx.ready && idx.enabled
	graph := idx.graph
	words := idx.words
	idx.mu.RUnlock()

	if !ready || graph == nil || graph.Len() == 0 {
		return nil, nil
	}

	vec, err := embedder.Embed(queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	normalizeVectorInPlace(vec)

	k := maxResults
	if k <= 0 {
		k = 10
	}
	nodes := graph.Search(vec, k)

	matches := make([]Match, 0, len(nodes))
	for _, node := range nodes {
		word, ok := words[node.Key]
		if !ok {
			continue
		}
		distance := graph.Distance(vec, node.Value)
		score := cosineDistanceToScore(distance)
		if score < minScore {
			continue
		}
		matches = append(matches, Match{Word: word, Score: score})
	}
	return matches, nil
}

// Status reports the adapter's current lifecycle flags for the search
// orchestrator's semantic_ready/semantic_building/semantic_enabled surface.
func (idx *Index) Status() Status {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Status{
		Ready:     idx.ready,
		Building:  idx.building,
		Enabled:   idx.enabled,
		IndexType: indexTypeFor(len(idx.words)),
		Count:     len(idx.words),
		InitError: idx.initError,
	}
}

func cosineDistanceToScore(distance float32) float64 {
	score := 1.0 - float64(distance)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func normalizeVectorInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// EncodeEmbedding zlib-compresses a float32 vector for storage inline on a
// semantic-index resource.
func EncodeEmbedding(vec []float32) ([]byte, error) {
	var buf bytes.Buffer
	raw := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(f))
	}
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEmbedding reverses EncodeEmbedding, materializing a float32 vector
// from its compressed on-disk form. RestoreIndex calls it once and keeps
// the decoded vectors in the graph.
func DecodeEmbedding(data []byte) ([]float32, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("semantic: corrupt embedding buffer: %d bytes not a multiple of 4", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, nil
}
