package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Input.Policy != "skip" {
		t.Fatalf("expected default policy skip, got %q", cfg.Input.Policy)
	}
	if cfg.Wikidata.Endpoint == "" {
		t.Fatal("expected default wikidata endpoint")
	}
	if !cfg.Cache.Enabled {
		t.Fatal("cache should be enabled by default")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "atlas.toml")
	body := `
log_level = "debug"

[input]
path = "trades.csv"
policy = "strict"

[graph]
base_path = "out/base.nt"

[wikidata]
batch_size = 25
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Input.Path != "trades.csv" || cfg.Input.Policy != "strict" {
		t.Fatalf("input section not applied: %+v", cfg.Input)
	}
	if cfg.Graph.BasePath != "out/base.nt" {
		t.Fatalf("graph section not applied: %+v", cfg.Graph)
	}
	if cfg.Wikidata.BatchSize != 25 {
		t.Fatalf("wikidata section not applied: %+v", cfg.Wikidata)
	}
	// Untouched fields keep their defaults.
	if cfg.Graph.AugmentedPath != "data/trade_enriched.nt" {
		t.Fatalf("unexpected augmented path: %q", cfg.Graph.AugmentedPath)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level: %q", cfg.LogLevel)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "atlas.toml")
	if err := os.WriteFile(path, []byte("[input]\npolicy = \"skip\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TRADEATLAS_INPUT_POLICY", "strict")
	t.Setenv("TRADEATLAS_WIKIDATA_BATCH_SIZE", "7")
	t.Setenv("TRADEATLAS_CACHE_ENABLED", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Input.Policy != "strict" {
		t.Fatalf("env override not applied: %q", cfg.Input.Policy)
	}
	if cfg.Wikidata.BatchSize != 7 {
		t.Fatalf("env override not applied: %d", cfg.Wikidata.BatchSize)
	}
	if cfg.Cache.Enabled {
		t.Fatal("env override not applied: cache still enabled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"empty base path", func(c *Config) { c.Graph.BasePath = "" }, false},
		{"same graph paths", func(c *Config) { c.Graph.AugmentedPath = c.Graph.BasePath }, false},
		{"cache enabled without path", func(c *Config) { c.Cache.Path = "" }, false},
		{"cache disabled without path", func(c *Config) { c.Cache.Enabled = false; c.Cache.Path = "" }, true},
		{"bad policy", func(c *Config) { c.Input.Policy = "lenient" }, false},
		{"empty endpoint offline", func(c *Config) { c.Wikidata.Endpoint = ""; c.Wikidata.Offline = true }, true},
		{"empty endpoint online", func(c *Config) { c.Wikidata.Endpoint = "" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
