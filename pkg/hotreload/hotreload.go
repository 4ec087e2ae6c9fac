// Package hotreload implements the hot-reload controller: a single
// SearchEngineManager per process that detects corpus-version changes via a
// polled fingerprint and rebuilds the search engine atomically, coalescing
// concurrent rebuild requests behind one in-flight build
// (golang.org/x/sync/singleflight, the same dedup primitive used by
// pkg/pipeline's lookup coalescing).
package hotreload

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/floridify/floridify/internal/logger"
	"github.com/floridify/floridify/pkg/search"
)

// DefaultCheckInterval is the default fingerprint re-check window.
const DefaultCheckInterval = 30 * time.Second

// Fingerprint is the hot-reload change signal:
// (corpus_name, vocabulary_hash, version).
type Fingerprint struct {
	CorpusName     string
	VocabularyHash string
	Version        string
}

func (f Fingerprint) key() string {
	return fmt.Sprintf("%s/%s/%s", f.CorpusName, f.VocabularyHash, f.Version)
}

// FingerprintFunc reads the latest corpus's fingerprint for the requested
// languages, without building anything.
type FingerprintFunc func(languages []string) (Fingerprint, error)

// BuildFunc builds a fresh search.Engine for the requested languages. Runs
// off the request path with the rest of the CPU-heavy work.
type BuildFunc func(languages []string) (*search.Engine, error)

// Status reports the manager's lifecycle for status endpoints.
type Status struct {
	EngineLoaded      bool
	Initializing      bool
	SemanticEnabled   bool
	CorpusFingerprint Fingerprint
	CheckInterval     time.Duration
}

// Manager is the SearchEngineManager singleton.
type Manager struct {
	mu            sync.RWMutex
	engine        *search.Engine
	fingerprint   Fingerprint
	lastChecked   time.Time
	checkInterval time.Duration
	initializing  bool

	semanticEnabled bool
	fingerprintFn   FingerprintFunc
	build           BuildFunc

	group singleflight.Group
	log   *log.Logger
}

// NewManager constructs a Manager. A zero checkInterval disables the no-work
// window entirely: every GetEngine call re-reads the fingerprint. Production
// callers pass the configured interval (DefaultCheckInterval unless
// overridden). semanticEnabled mirrors the global SEMANTIC_SEARCH_ENABLED
// flag; when false, built engines are expected to have semantic
// disabled and Status reports it accordingly regardless of what an
// individual engine reports.
func NewManager(checkInterval time.Duration, semanticEnabled bool, fingerprintFn FingerprintFunc, build BuildFunc) *Manager {
	if checkInterval < 0 {
		checkInterval = DefaultCheckInterval
	}
	return &Manager{
		checkInterval:   checkInterval,
		semanticEnabled: semanticEnabled,
		fingerprintFn:   fingerprintFn,
		build:           build,
		log:             logger.New("hotreload"),
	}
}

// GetEngine returns the cached engine without doing any work if the check
// window hasn't elapsed and forceRebuild is false. Otherwise it reads the
// current fingerprint; if unchanged, it just refreshes the check timestamp.
// If changed (or forceRebuild), a rebuild is scheduled under the single
// global singleflight group; concurrent callers await the same rebuild
// rather than each triggering their own.
func (m *Manager) GetEngine(languages []string, forceRebuild bool) (*search.Engine, error) {
	m.mu.RLock()
	engine := m.engine
	last := m.lastChecked
	current := m.fingerprint
	within := !forceRebuild && engine != nil && time.Since(last) < m.checkInterval
	m.mu.RUnlock()
	if within {
		return engine, nil
	}

	fp, err := m.fingerprintFn(languages)
	if err != nil {
		if engine != nil {
			// Non-blocking init: a transient fingerprint-read failure never
			// takes down an already-loaded engine.
			return engine, nil
		}
		return nil, err
	}

	if !forceRebuild && engine != nil && fp == current {
		m.mu.Lock()
		m.lastChecked = time.Now()
		m.mu.Unlock()
		return engine, nil
	}

	result, err, _ := m.group.Do(fp.key(), func() (any, error) {
		m.mu.Lock()
		m.initializing = true
		m.mu.Unlock()

		built, buildErr := m.build(languages)

		m.mu.Lock()
		m.initializing = false
		if buildErr == nil {
			m.engine = built
			m.fingerprint = fp
			m.lastChecked = time.Now()
		}
		current := m.engine
		m.mu.Unlock()

		if buildErr != nil {
			// Background rebuilds log and swallow errors, leaving the
			// previous engine in place.
			m.log.Errorf("search engine rebuild failed, keeping previous engine: %v", buildErr)
			if current != nil {
				return current, nil
			}
			return nil, buildErr
		}
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*search.Engine), nil
}

// Reset clears the cached engine and fingerprint, forcing the next
// GetEngine call to rebuild. Tests construct a fresh Manager per test
// rather than call Reset in production code, but Reset is kept for the rare caller
// that needs to force a cold reload without losing its FingerprintFunc/
// BuildFunc wiring.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine = nil
	m.fingerprint = Fingerprint{}
	m.lastChecked = time.Time{}
}

// Status reports the manager's current lifecycle flags.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		EngineLoaded:      m.engine != nil,
		Initializing:      m.initializing,
		SemanticEnabled:   m.semanticEnabled,
		CorpusFingerprint: m.fingerprint,
		CheckInterval:     m.checkInterval,
	}
}
