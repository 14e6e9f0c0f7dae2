// Package config defines the configuration for the trade atlas pipeline
// and provides loading and validation helpers.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRADEATLAS_* environment
// variables.
type Config struct {
	Input    InputConfig    `toml:"input"`
	Graph    GraphConfig    `toml:"graph"`
	Cache    CacheConfig    `toml:"cache"`
	Wikidata WikidataConfig `toml:"wikidata"`
	LogLevel string         `toml:"log_level"`
}

// InputConfig describes the trade CSV source and how strictly it is read.
type InputConfig struct {
	Path   string `toml:"path"`
	Policy string `toml:"policy"`
}

// GraphConfig holds the graph file locations.
type GraphConfig struct {
	BasePath      string `toml:"base_path"`
	AugmentedPath string `toml:"augmented_path"`
}

// CacheConfig holds the persistent country-fact cache settings.
type CacheConfig struct {
	Path    string `toml:"path"`
	Enabled bool   `toml:"enabled"`
}

// WikidataConfig holds the SPARQL endpoint client settings.
type WikidataConfig struct {
	Endpoint     string `toml:"endpoint"`
	UserAgent    string `toml:"user_agent"`
	TimeoutSecs  int    `toml:"timeout_seconds"`
	MaxRetries   int    `toml:"max_retries"`
	RetryBaseMS  int    `toml:"retry_base_ms"`
	BatchSize    int    `toml:"batch_size"`
	Offline      bool   `toml:"offline"`
}

// Defaults returns a Config with sensible built-in values. The pipeline is
// runnable on defaults alone once an input path is supplied.
func Defaults() Config {
	return Config{
		Input: InputConfig{
			Policy: "skip",
		},
		Graph: GraphConfig{
			BasePath:      "data/trade.nt",
			AugmentedPath: "data/trade_enriched.nt",
		},
		Cache: CacheConfig{
			Path:    "data/facts.db",
			Enabled: true,
		},
		Wikidata: WikidataConfig{
			Endpoint:    "https://query.wikidata.org/sparql",
			UserAgent:   "TradeAtlas/0.1",
			TimeoutSecs: 30,
			MaxRetries:  3,
			RetryBaseMS: 500,
			BatchSize:   100,
		},
		LogLevel: "info",
	}
}

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEATLAS_* environment variable overrides,
// and returns the final Config. An empty path skips the file step so the
// defaults and environment alone drive the run. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// Validate checks the loaded configuration for values the pipeline cannot
// run with.
func (c *Config) Validate() error {
	if c.Graph.BasePath == "" {
		return fmt.Errorf("config: graph.base_path must not be empty")
	}
	if c.Graph.AugmentedPath == "" {
		return fmt.Errorf("config: graph.augmented_path must not be empty")
	}
	if c.Graph.AugmentedPath == c.Graph.BasePath {
		return fmt.Errorf("config: graph.augmented_path must differ from graph.base_path")
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		return fmt.Errorf("config: cache.path must not be empty when the cache is enabled")
	}
	if c.Wikidata.Endpoint == "" && !c.Wikidata.Offline {
		return fmt.Errorf("config: wikidata.endpoint must not be empty")
	}
	switch c.Input.Policy {
	case "skip", "strict":
	default:
		return fmt.Errorf("config: input.policy must be %q or %q, got %q", "skip", "strict", c.Input.Policy)
	}
	return nil
}

// WikidataTimeout returns the endpoint timeout as a duration.
func (c *Config) WikidataTimeout() time.Duration {
	return time.Duration(c.Wikidata.TimeoutSecs) * time.Second
}

// WikidataRetryBase returns the retry backoff base as a duration.
func (c *Config) WikidataRetryBase() time.Duration {
	return time.Duration(c.Wikidata.RetryBaseMS) * time.Millisecond
}

// applyEnvOverrides reads well-known TRADEATLAS_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators adjust a deployment without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Input.Path, "TRADEATLAS_INPUT_PATH")
	setStr(&cfg.Input.Policy, "TRADEATLAS_INPUT_POLICY")

	setStr(&cfg.Graph.BasePath, "TRADEATLAS_GRAPH_BASE_PATH")
	setStr(&cfg.Graph.AugmentedPath, "TRADEATLAS_GRAPH_AUGMENTED_PATH")

	setStr(&cfg.Cache.Path, "TRADEATLAS_CACHE_PATH")
	setBool(&cfg.Cache.Enabled, "TRADEATLAS_CACHE_ENABLED")

	setStr(&cfg.Wikidata.Endpoint, "TRADEATLAS_WIKIDATA_ENDPOINT")
	setStr(&cfg.Wikidata.UserAgent, "TRADEATLAS_WIKIDATA_USER_AGENT")
	setInt(&cfg.Wikidata.TimeoutSecs, "TRADEATLAS_WIKIDATA_TIMEOUT_SECONDS")
	setInt(&cfg.Wikidata.MaxRetries, "TRADEATLAS_WIKIDATA_MAX_RETRIES")
	setInt(&cfg.Wikidata.RetryBaseMS, "TRADEATLAS_WIKIDATA_RETRY_BASE_MS")
	setInt(&cfg.Wikidata.BatchSize, "TRADEATLAS_WIKIDATA_BATCH_SIZE")
	setBool(&cfg.Wikidata.Offline, "TRADEATLAS_WIKIDATA_OFFLINE")

	setStr(&cfg.LogLevel, "TRADEATLAS_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
