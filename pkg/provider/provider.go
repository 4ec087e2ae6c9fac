// Package provider defines the external collaborator interfaces:
// dictionary-provider fetchers, literature search, and the AI synthesizer,
// all treated as black boxes. Fetches are wrapped with a per-provider
// circuit breaker and exponential backoff implementing the
// ProviderTimeout/ProviderRateLimit retry policy.
package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker"

	"github.com/floridify/floridify/internal/logger"
	"github.com/floridify/floridify/pkg/resource"
)

// RawEntry is the raw per-provider payload a Provider.Fetch returns; its
// structure is opaque to the core beyond carrying the source provider's
// name.
type RawEntry struct {
	Provider string
	Word     string
	Payload  map[string]any
}

// RawSummary is one literature search hit.
type RawSummary struct {
	Provider string
	Title    string
	Payload  map[string]any
}

// SynthesizedEntry is the synthesizer's output: the lookup result wire
// format, minus transport concerns.
type SynthesizedEntry struct {
	Word             string
	Pronunciation    string
	Definitions      []Definition
	ProviderList     []string
	SynthesisModel   string
	SynthesisVersion string
}

// Definition is one sense within a synthesized entry.
type Definition struct {
	PartOfSpeech string
	Sense        string
	ClusterID    string
	Examples     []string
	Synonyms     []string
	Register     string
	CEFR         string
	Frequency    float64
	Domain       string
}

// Provider fetches a single word's raw entry from one dictionary source.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, word string) (*RawEntry, error)
}

// LiteratureProvider searches a literature source for works matching query.
type LiteratureProvider interface {
	Name() string
	SearchWorks(ctx context.Context, query string, limit int) ([]RawSummary, error)
}

// SynthesisConfig parameterizes a single Synthesize call.
type SynthesisConfig struct {
	Model string
}

// Synthesizer composes raw entries from one or more providers into a single
// synthesized entry. The concrete implementation (an LLM call) lives outside
// this module.
type Synthesizer interface {
	Synthesize(ctx context.Context, entries []RawEntry, cfg SynthesisConfig) (*SynthesizedEntry, error)
}

// RateLimitConfig is the per-provider rate-limit/backoff policy.
type RateLimitConfig struct {
	RequestsPerSec    float64
	MinDelay          time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	MaxRetries        int
	Timeout           time.Duration
}

// DefaultRateLimitConfig backs off at base x multiplier^n, clamped to
// max_delay, with the default API_LOOKUP_TIMEOUT of 120s.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSec:    2,
		MinDelay:          200 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		MaxRetries:        3,
		Timeout:           120 * time.Second,
	}
}

// GuardedProvider wraps a Provider with a circuit breaker and exponential
// backoff retry: ProviderTimeout/ProviderRateLimit failures are retried per
// the backoff config, and on exhaustion the provider is marked failed so
// the pipeline can continue with the remaining providers.
type GuardedProvider struct {
	inner   Provider
	cfg     RateLimitConfig
	breaker *gobreaker.CircuitBreaker
	log     *log.Logger
}

// NewGuardedProvider wraps inner with a circuit breaker named after the
// provider, tripping after 5 consecutive failures and resetting after 30s.
func NewGuardedProvider(inner Provider, cfg RateLimitConfig) *GuardedProvider {
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &GuardedProvider{
		inner:   inner,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     logger.New("provider:" + inner.Name()),
	}
}

func (g *GuardedProvider) Name() string { return g.inner.Name() }

// Fetch applies the provider's per-call timeout, retries transient
// ProviderTimeout/ProviderRateLimit failures with exponential backoff
// (clamped to MaxDelay), and routes every attempt through the circuit
// breaker so a provider already known to be unhealthy fails fast.
func (g *GuardedProvider) Fetch(ctx context.Context, word string) (*RawEntry, error) {
	timeout := g.cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRateLimitConfig().Timeout
	}

	var lastErr error
	delay := g.cfg.MinDelay
	if delay <= 0 {
		delay = DefaultRateLimitConfig().MinDelay
	}
	maxRetries := g.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultRateLimitConfig().MaxRetries
	}

	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := g.breaker.Execute(func() (any, error) {
			return g.inner.Fetch(callCtx, word)
		})
		cancel()

		if err == nil {
			entry, _ := result.(*RawEntry)
			return entry, nil
		}
		lastErr = classifyFetchError(err)
		if !isRetryable(lastErr) || attempt == maxRetries {
			break
		}

		jittered := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		g.log.Warnf("fetch %q from %s failed (attempt %d/%d), retrying in %s: %v",
			word, g.inner.Name(), attempt+1, maxRetries, jittered, lastErr)
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay = time.Duration(math.Min(float64(g.MaxDelayOrDefault()), float64(delay)*g.multiplier()))
	}

	g.log.Errorf("provider %s marked failed for %q after %d attempts: %v", g.inner.Name(), word, attempts, lastErr)
	return nil, lastErr
}

func (g *GuardedProvider) multiplier() float64 {
	if g.cfg.BackoffMultiplier <= 1 {
		return DefaultRateLimitConfig().BackoffMultiplier
	}
	return g.cfg.BackoffMultiplier
}

// MaxDelayOrDefault returns the configured max delay or the package default.
func (g *GuardedProvider) MaxDelayOrDefault() time.Duration {
	if g.cfg.MaxDelay <= 0 {
		return DefaultRateLimitConfig().MaxDelay
	}
	return g.cfg.MaxDelay
}

func classifyFetchError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return resource.NewError(resource.KindProviderTimeout, err.Error())
	}
	var storeErr *resource.StoreError
	if errors.As(err, &storeErr) {
		return storeErr
	}
	return fmt.Errorf("provider fetch: %w", err)
}

func isRetryable(err error) bool {
	return errors.Is(err, resource.ErrProviderTimeout) || errors.Is(err, resource.ErrProviderRateLimit)
}
