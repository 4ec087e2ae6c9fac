// Package search implements the orchestrator: it composes the
// Bloom-gated trie (exact), the length-and-phrase fuzzy matcher, and the
// optional semantic adapter behind a single mode-dispatched entry point.
package search

import (
	"strings"
	"time"

	"github.com/floridify/floridify/pkg/fuzzy"
	"github.com/floridify/floridify/pkg/semantic"
	"github.com/floridify/floridify/pkg/trie"
)

// Mode selects which matching strategy Search uses.
type Mode string

const (
	ModeExact    Mode = "exact"
	ModeFuzzy    Mode = "fuzzy"
	ModeSemantic Mode = "semantic"
	ModeSmart    Mode = "smart"
)

// Match is one scored search result. Degraded is set when a semantic-mode
// request fell back to fuzzy because semantic wasn't ready (an addition
// beyond the silent fallback, kept for observability).
type Match struct {
	Word     string
	Score    float64
	Mode     Mode
	IsPhrase bool
	Degraded bool
}

// Response is the search-result wire shape handed to transport
// collaborators: the matches plus the query echo, a total, and the elapsed
// search time.
type Response struct {
	Query        string
	Results      []Match
	TotalResults int
	SearchTimeMS float64
}

// Status reports the semantic adapter's lifecycle, mirrored from
// pkg/semantic for callers that only depend on pkg/search.
type Status struct {
	SemanticReady    bool
	SemanticBuilding bool
	SemanticEnabled  bool
}

// Engine is a built search engine over one corpus's vocabulary: a trie for
// exact lookup, a fuzzy matcher for approximate lookup, and an optional
// semantic adapter.
type Engine struct {
	trieIdx  *trie.Index
	fuzzy    *fuzzy.Matcher
	semantic *semantic.Index
	embedder semantic.Embedder
}

// New builds an Engine. semanticIdx and embedder may both be nil, in which
// case semantic mode always falls back to fuzzy.
func New(trieIdx *trie.Index, fuzzyMatcher *fuzzy.Matcher, semanticIdx *semantic.Index, embedder semantic.Embedder) *Engine {
	return &Engine{trieIdx: trieIdx, fuzzy: fuzzyMatcher, semantic: semanticIdx, embedder: embedder}
}

// Status reports the engine's semantic lifecycle flags.
func (e *Engine) Status() Status {
	if e.semantic == nil {
		return Status{}
	}
	s := e.semantic.Status()
	return Status{SemanticReady: s.Ready, SemanticBuilding: s.Building, SemanticEnabled: s.Enabled}
}

// Search dispatches to the requested mode. exact is the hot path: a Bloom
// gate, a trie lookup, and a single-element allocation for the result. No
// corpus-update side effects are ever invoked here.
func (e *Engine) Search(query string, mode Mode, maxResults int, minScore float64) []Match {
	switch mode {
	case ModeExact:
		return e.searchExact(query)
	case ModeFuzzy:
		return e.searchFuzzy(query, maxResults, minScore)
	case ModeSemantic:
		return e.searchSemantic(query, maxResults, minScore)
	case ModeSmart:
		return e.searchSmart(query, maxResults, minScore)
	default:
		return e.searchSmart(query, maxResults, minScore)
	}
}

// Query wraps Search in the transport wire shape, timing the call.
func (e *Engine) Query(query string, mode Mode, maxResults int, minScore float64) Response {
	start := time.Now()
	results := e.Search(query, mode, maxResults, minScore)
	return Response{
		Query:        query,
		Results:      results,
		TotalResults: len(results),
		SearchTimeMS: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

func (e *Engine) searchExact(query string) []Match {
	if e.trieIdx == nil {
		return nil
	}
	form, ok := e.trieIdx.SearchExact(query)
	if !ok {
		return nil
	}
	return []Match{{Word: form, Score: 1.0, Mode: ModeExact, IsPhrase: strings.Contains(form, " ")}}
}

func (e *Engine) searchFuzzy(query string, maxResults int, minScore float64) []Match {
	if e.fuzzy == nil {
		return nil
	}
	raw := e.fuzzy.Search(query, maxResults, minScore, fuzzy.MethodAuto)
	out := make([]Match, len(raw))
	for i, m := range raw {
		out[i] = Match{Word: m.Word, Score: m.Score, Mode: ModeFuzzy, IsPhrase: m.IsPhrase}
	}
	return out
}

// searchSemantic runs the semantic adapter if ready; otherwise it silently
// falls back to fuzzy and tags every result Degraded.
func (e *Engine) searchSemantic(query string, maxResults int, minScore float64) []Match {
	if e.semantic == nil || e.embedder == nil || !e.semantic.Status().Ready {
		fallback := e.searchFuzzy(query, maxResults, minScore)
		for i := range fallback {
			fallback[i].Mode = ModeSemantic
			fallback[i].Degraded = true
		}
		return fallback
	}

	raw, err := e.semantic.Search(query, maxResults, minScore, e.embedder)
	if err != nil || raw == nil {
		fallback := e.searchFuzzy(query, maxResults, minScore)
		for i := range fallback {
			fallback[i].Mode = ModeSemantic
			fallback[i].Degraded = true
		}
		return fallback
	}

	out := make([]Match, len(raw))
	for i, m := range raw {
		out[i] = Match{Word: m.Word, Score: m.Score, Mode: ModeSemantic, IsPhrase: strings.Contains(m.Word, " ")}
	}
	return out
}

// searchSmart cascades exact, then fuzzy, then semantic (when ready),
// de-duplicating by word and preserving first occurrence.
func (e *Engine) searchSmart(query string, maxResults int, minScore float64) []Match {
	seen := make(map[string]struct{})
	var out []Match

	appendDeduped := func(matches []Match) {
		for _, m := range matches {
			if maxResults > 0 && len(out) >= maxResults {
				return
			}
			if _, dup := seen[m.Word]; dup {
				continue
			}
			seen[m.Word] = struct{}{}
			out = append(out, m)
		}
	}

	appendDeduped(e.searchExact(query))
	if maxResults <= 0 || len(out) < maxResults {
		appendDeduped(e.searchFuzzy(query, maxResults, minScore))
	}
	if (maxResults <= 0 || len(out) < maxResults) && e.semantic != nil && e.embedder != nil && e.semantic.Status().Ready {
		sem, err := e.semantic.Search(query, maxResults, minScore, e.embedder)
		if err == nil {
			smartSem := make([]Match, len(sem))
			for i, m := range sem {
				smartSem[i] = Match{Word: m.Word, Score: m.Score, Mode: ModeSemantic, IsPhrase: strings.Contains(m.Word, " ")}
			}
			appendDeduped(smartSem)
		}
	}

	return out
}
