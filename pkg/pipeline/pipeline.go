// Package pipeline implements the lookup orchestrator: normalize the
// query, consult the search engine for a resolved headword, serve from the
// version store when a synthesis already exists, and otherwise fan out to
// the configured providers and synthesizer, saving the result for next
// time. Concurrent lookups of the same word are coalesced behind a single
// in-flight call (golang.org/x/sync/singleflight, the same primitive
// pkg/hotreload uses for rebuild coalescing).
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/floridify/floridify/internal/logger"
	"github.com/floridify/floridify/internal/utils"
	"github.com/floridify/floridify/pkg/cache"
	"github.com/floridify/floridify/pkg/provider"
	"github.com/floridify/floridify/pkg/resource"
	"github.com/floridify/floridify/pkg/search"
	"github.com/floridify/floridify/pkg/version"
)

// DefaultDedupWait is the CACHE_DEDUP_WAIT_TIME default that New fills
// into Config.DedupWait when it is unset. Lookup coalescing itself is
// singleflight-based: only callers that arrive while a lookup is in flight
// share its result, and DedupWait does not bound how long they wait on it.
const DefaultDedupWait = 120 * time.Second

// synthesisResourceID namespaces synthesized entries within the version
// store distinctly from raw per-provider fetches, neither of which this
// package persists on their own.
func synthesisResourceID(word string) string {
	return word + ":synthesis"
}

// Result is what a Lookup call returns: the synthesized entry plus the
// provenance of how it was produced.
type Result struct {
	Entry      *provider.SynthesizedEntry
	FromCache  bool
	ResolvedAs string
	Degraded   bool
}

// DefaultExactThreshold is the minimum resolution score at which the search
// engine's top match replaces the caller's input as the canonical headword
//; anything lower is treated as a miss and the normalized
// input is looked up as-is.
const DefaultExactThreshold = 1.0

// Config parameterizes a Pipeline.
type Config struct {
	DedupWait        time.Duration
	ProviderPriority []string
	CacheTTL         time.Duration
	ExactThreshold   float64
}

// Pipeline is the lookup orchestrator.
type Pipeline struct {
	engineFn    func() *search.Engine
	versions    *version.Manager
	providers   []provider.Provider
	synthesizer provider.Synthesizer
	cache       *cache.Cache
	cfg         Config

	group singleflight.Group
	log   *log.Logger
}

// New constructs a Pipeline. engineFn is called once per lookup so callers
// backed by pkg/hotreload always see the current engine rather than one
// captured at construction time. providers are tried in slice order,
// matching cfg.ProviderPriority when both are supplied by the caller.
func New(engineFn func() *search.Engine, versions *version.Manager, providers []provider.Provider, synthesizer provider.Synthesizer, cfg Config) *Pipeline {
	if cfg.DedupWait <= 0 {
		cfg.DedupWait = DefaultDedupWait
	}
	if cfg.ExactThreshold <= 0 {
		cfg.ExactThreshold = DefaultExactThreshold
	}
	return &Pipeline{
		engineFn:    engineFn,
		versions:    versions,
		providers:   providers,
		synthesizer: synthesizer,
		cfg:         cfg,
		log:         logger.New("pipeline"),
	}
}

// WithCache attaches the two-tier cache in front of the version store,
// so a repeat lookup's Result.FromCache reflects an actual cache hit rather
// than just "a synthesis already exists in the version store." Returns p
// for chaining at construction time.
func (p *Pipeline) WithCache(c *cache.Cache) *Pipeline {
	p.cache = c
	return p
}

// Lookup resolves word end to end: normalize, resolve against the search
// engine (smart mode), serve an existing synthesis from the version store
// if present, else fetch from providers and synthesize, persisting the
// result. forceRefresh bypasses both the cache and the persisted synthesis
// and goes straight to providers; re-synthesis creates a new version while
// the earlier ones stay retrievable. Concurrent callers for the same
// normalized word share one in-flight execution; refresh calls coalesce
// separately from plain lookups so a refresher never receives a stale
// in-flight result.
func (p *Pipeline) Lookup(ctx context.Context, word string, forceRefresh bool) (*Result, error) {
	normalized := utils.NormalizeWord(word)
	if normalized == "" {
		return nil, resource.NewError(resource.KindValidation, "empty query")
	}

	key := normalized
	if forceRefresh {
		key += ":refresh"
	}
	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.resolve(ctx, normalized, forceRefresh)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (p *Pipeline) resolve(ctx context.Context, normalized string, forceRefresh bool) (*Result, error) {
	resolved := normalized
	degraded := false
	if engine := p.engineFn(); engine != nil {
		matches := engine.Search(normalized, search.ModeSmart, 1, 0)
		if len(matches) > 0 && matches[0].Score >= p.cfg.ExactThreshold {
			resolved = matches[0].Word
			degraded = matches[0].Degraded
		}
	}

	resourceID := synthesisResourceID(resolved)

	if !forceRefresh {
		if p.cache != nil {
			if cached, ok := p.cache.Get(resource.NamespaceDictionary, resourceID); ok {
				if entry, err := decodeSynthesized(cached); err == nil {
					return &Result{Entry: entry, FromCache: true, ResolvedAs: resolved, Degraded: degraded}, nil
				}
			}
		}

		if _, content, err := p.versions.GetLatest(resourceID, resource.TypeDictionary); err == nil {
			entry, decodeErr := decodeSynthesized(content)
			if decodeErr == nil {
				p.cacheStore(resourceID, entry)
				return &Result{Entry: entry, FromCache: false, ResolvedAs: resolved, Degraded: degraded}, nil
			}
			p.log.Warnf("stored synthesis for %q unreadable, refetching: %v", resolved, decodeErr)
		}
	}

	entry, err := p.synthesize(ctx, resolved)
	if err != nil {
		return nil, err
	}

	if _, saveErr := p.versions.Save(resourceID, resource.TypeDictionary, resource.NamespaceDictionary, entry, version.SaveConfig{}); saveErr != nil {
		p.log.Errorf("failed to persist synthesis for %q: %v", resolved, saveErr)
	}
	p.cacheStore(resourceID, entry)

	return &Result{Entry: entry, FromCache: false, ResolvedAs: resolved, Degraded: degraded}, nil
}

// cacheStore writes entry into the cache tier keyed by resourceID, tolerating
// a nil cache (no-op) or a write failure (logged, not fatal to the lookup).
func (p *Pipeline) cacheStore(resourceID string, entry *provider.SynthesizedEntry) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(resource.NamespaceDictionary, resourceID, entry, p.cfg.CacheTTL); err != nil {
		p.log.Warnf("caching synthesis for %q: %v", resourceID, err)
	}
}

// synthesize fetches word from every configured provider in priority
// order, tolerating individual provider failures, and passes whatever raw
// entries succeeded to the synthesizer. It fails only when every provider
// fails or no synthesizer is configured.
func (p *Pipeline) synthesize(ctx context.Context, word string) (*provider.SynthesizedEntry, error) {
	if len(p.providers) == 0 {
		return nil, resource.NewError(resource.KindNotFound, fmt.Sprintf("no providers configured for %q", word))
	}

	var raw []provider.RawEntry
	for _, pr := range p.order() {
		entry, err := pr.Fetch(ctx, word)
		if err != nil {
			p.log.Warnf("provider %s failed for %q: %v", pr.Name(), word, err)
			continue
		}
		if entry != nil {
			raw = append(raw, *entry)
		}
	}
	if len(raw) == 0 {
		return nil, resource.NewError(resource.KindNotFound, fmt.Sprintf("all providers failed for %q", word))
	}

	if p.synthesizer == nil {
		return nil, resource.NewError(resource.KindValidation, "no synthesizer configured")
	}
	return p.synthesizer.Synthesize(ctx, raw, provider.SynthesisConfig{})
}

// order returns p.providers, reordered to match cfg.ProviderPriority when
// it names a subset or permutation of the configured providers.
func (p *Pipeline) order() []provider.Provider {
	if len(p.cfg.ProviderPriority) == 0 {
		return p.providers
	}
	byName := make(map[string]provider.Provider, len(p.providers))
	for _, pr := range p.providers {
		byName[pr.Name()] = pr
	}
	ordered := make([]provider.Provider, 0, len(p.providers))
	seen := make(map[string]struct{})
	for _, name := range p.cfg.ProviderPriority {
		if pr, ok := byName[name]; ok {
			ordered = append(ordered, pr)
			seen[name] = struct{}{}
		}
	}
	for _, pr := range p.providers {
		if _, ok := seen[pr.Name()]; !ok {
			ordered = append(ordered, pr)
		}
	}
	return ordered
}

// decodeSynthesized round-trips content (which may already be a
// *provider.SynthesizedEntry or, when read back from the version store,
// a generic map[string]interface{}) through encoding/json into a concrete
// struct, mirroring pkg/corpus's fromContent helper.
func decodeSynthesized(content any) (*provider.SynthesizedEntry, error) {
	if entry, ok := content.(*provider.SynthesizedEntry); ok {
		return entry, nil
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	var entry provider.SynthesizedEntry
	if err := json.Unmarshal(encoded, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
