/*
Package config manages TOML config for the floridify core.

InitConfig handles automatic config file creation and loading with fallback to defaults.
LoadConfig and SaveConfig provide direct fs for runtime changes.
Update allows targeted parameter changes with persistence.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"

	"github.com/floridify/floridify/pkg/resource"
)

var fieldValidator = validator.New()

// Config holds the entire config structure.
type Config struct {
	Storage   StorageConfig   `toml:"storage" validate:"required"`
	Bloom     BloomConfig     `toml:"bloom" validate:"required"`
	Search    SearchConfig    `toml:"search" validate:"required"`
	Semantic  SemanticConfig  `toml:"semantic" validate:"required"`
	Version   VersionConfig   `toml:"version" validate:"required"`
	Cache     CacheConfig     `toml:"cache" validate:"required"`
	Provider  ProviderConfig  `toml:"provider" validate:"required"`
	HotReload HotReloadConfig `toml:"hot_reload" validate:"required"`
}

// StorageConfig points at the badger data directory backing pkg/store.
type StorageConfig struct {
	DataDir  string `toml:"data_dir" validate:"required"`
	CacheDir string `toml:"cache_dir" validate:"required"`
}

// BloomConfig parameterizes the Bloom filter.
type BloomConfig struct {
	TargetErrorRate float64 `toml:"target_error_rate" validate:"gt=0,lt=1"`
}

// SearchConfig covers the trie and fuzzy tunables.
type SearchConfig struct {
	LengthTolerance int     `toml:"length_tolerance" validate:"gte=0"`
	PrefixBucketMin int     `toml:"prefix_bucket_min" validate:"gte=1"`
	PrefixBucketMax int     `toml:"prefix_bucket_max" validate:"gtefield=PrefixBucketMin"`
	DefaultScorer   string  `toml:"default_scorer" validate:"oneof=auto rapidfuzz jaro_winkler"`
	ExactThreshold  float64 `toml:"exact_threshold" validate:"gte=0,lte=1"`
}

// SemanticConfig covers the semantic adapter's model and enablement.
type SemanticConfig struct {
	Enabled            bool   `toml:"enabled"` // mirrors SEMANTIC_SEARCH_ENABLED
	ModelName          string `toml:"model_name" validate:"required"`
	EmbeddingDimension int    `toml:"embedding_dimension" validate:"gt=0"`
	IVFPQThreshold     int    `toml:"ivfpq_threshold" validate:"gt=0"`
}

// VersionConfig covers the version-chain policy.
type VersionConfig struct {
	SnapshotInterval int    `toml:"snapshot_interval" validate:"gt=0"`
	DefaultLevel     string `toml:"default_level" validate:"oneof=major minor patch"`
	InlineThreshold  int    `toml:"inline_threshold" validate:"gte=0"`
}

// CacheConfig covers the two-tier cache policy.
type CacheConfig struct {
	LRUSize           int `toml:"lru_size" validate:"gt=0"`
	DefaultTTLSeconds int `toml:"default_ttl_seconds" validate:"gte=0"`
	DedupWaitSeconds  int `toml:"dedup_wait_seconds" validate:"gte=0"` // CACHE_DEDUP_WAIT_TIME
}

// ProviderConfig covers external-provider timeouts and backoff.
type ProviderConfig struct {
	LookupTimeoutSeconds int     `toml:"lookup_timeout_seconds" validate:"gt=0"` // API_LOOKUP_TIMEOUT
	BackoffBaseMillis    int     `toml:"backoff_base_millis" validate:"gt=0"`
	BackoffMultiplier    float64 `toml:"backoff_multiplier" validate:"gt=1"`
	BackoffMaxMillis     int     `toml:"backoff_max_millis" validate:"gtefield=BackoffBaseMillis"`
}

// HotReloadConfig covers the fingerprint-polling cadence.
type HotReloadConfig struct {
	CheckIntervalSeconds int `toml:"check_interval_seconds" validate:"gt=0"`
}

// Validate runs struct-tag validation over the whole config tree, returning
// a single error naming every failing field. Called by LoadConfig so a
// malformed or hand-edited config.toml is rejected before it reaches the
// rest of the module rather than silently producing zero-value behavior.
func (c *Config) Validate() error {
	err := fieldValidator.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		reasons = append(reasons, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return resource.NewError(resource.KindValidation, strings.Join(reasons, "; "))
}

// DefaultConfig returns a Config with default values: 1% Bloom FP rate,
// ±2 length tolerance, snapshot interval 10, CACHE_DEDUP_WAIT_TIME 120s,
// API_LOOKUP_TIMEOUT 120s, hot-reload check_interval 30s.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:  "data/store",
			CacheDir: "data/cache",
		},
		Bloom: BloomConfig{
			TargetErrorRate: 0.01,
		},
		Search: SearchConfig{
			LengthTolerance: 2,
			PrefixBucketMin: 2,
			PrefixBucketMax: 3,
			DefaultScorer:   "auto",
			ExactThreshold:  1.0,
		},
		Semantic: SemanticConfig{
			Enabled:            true,
			ModelName:          "default",
			EmbeddingDimension: 384,
			IVFPQThreshold:     50000,
		},
		Version: VersionConfig{
			SnapshotInterval: 10,
			DefaultLevel:     "patch",
			InlineThreshold:  256,
		},
		Cache: CacheConfig{
			LRUSize:           10000,
			DefaultTTLSeconds: 0,
			DedupWaitSeconds:  120,
		},
		Provider: ProviderConfig{
			LookupTimeoutSeconds: 120,
			BackoffBaseMillis:    200,
			BackoffMultiplier:    2.0,
			BackoffMaxMillis:     10000,
		},
		HotReload: HotReloadConfig{
			CheckIntervalSeconds: 30,
		},
	}
}

// InitConfig loads config from file or creates default if missing.
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, err
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			return nil, err
		}
		log.Debugf("Created default config file at: ( %s )", configPath)
		return config, nil
	}
	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config, using defaults: %v", err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file.
func LoadConfig(configPath string) (*Config, error) {
	var config Config
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		log.Errorf("Failed to decode config file: %v", err)
		return nil, err
	}
	if err := config.Validate(); err != nil {
		log.Errorf("Config failed validation: %v", err)
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves into a TOML file.
func SaveConfig(config *Config, configPath string) error {
	file, err := os.Create(configPath)
	if err != nil {
		log.Errorf("Failed to create config file: %v", err)
		return err
	}
	defer file.Close()
	encoder := toml.NewEncoder(file)
	return encoder.Encode(config)
}

// Update changes select config values and saves to file.
func (c *Config) Update(configPath string, semanticEnabled *bool, checkIntervalSeconds *int, dedupWaitSeconds *int) error {
	if semanticEnabled != nil {
		c.Semantic.Enabled = *semanticEnabled
	}
	if checkIntervalSeconds != nil {
		c.HotReload.CheckIntervalSeconds = *checkIntervalSeconds
	}
	if dedupWaitSeconds != nil {
		c.Cache.DedupWaitSeconds = *dedupWaitSeconds
	}
	if err := c.Validate(); err != nil {
		return err
	}
	return SaveConfig(c, configPath)
}
