package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"tradeatlas/internal/cache/sqlite"
	"tradeatlas/internal/config"
	"tradeatlas/internal/enrich"
	"tradeatlas/internal/ingest"
	"tradeatlas/internal/ontology"
	"tradeatlas/internal/providers"
	"tradeatlas/internal/providers/wikidata"
	"tradeatlas/internal/store/turtle"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		run(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func run(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to TOML config file (empty = defaults + env)")
	input := fs.String("input", "", "path to trade CSV file (overrides config)")
	graphPath := fs.String("graph", "", "path to the base graph file (overrides config)")
	cachePath := fs.String("cache", "", "path to the country-fact cache (overrides config)")
	policy := fs.String("policy", "", "row policy: skip or strict (overrides config)")
	offline := fs.Bool("offline", false, "skip endpoint enrichment, use the cache only")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "collector run failed:", err)
		os.Exit(1)
	}
	if *input != "" {
		cfg.Input.Path = *input
	}
	if *graphPath != "" {
		cfg.Graph.BasePath = *graphPath
	}
	if *cachePath != "" {
		cfg.Cache.Path = *cachePath
	}
	if *policy != "" {
		cfg.Input.Policy = *policy
	}
	if *offline {
		cfg.Wikidata.Offline = true
	}

	logger := newLogger(cfg.LogLevel, *verbose)
	if err := runCollector(cfg, logger); err != nil {
		logger.Fatal("collector run failed", "err", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: collector run [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -config    path to TOML config file")
	fmt.Fprintln(os.Stderr, "  -input     path to trade CSV file")
	fmt.Fprintln(os.Stderr, "  -graph     path to the base graph file")
	fmt.Fprintln(os.Stderr, "  -cache     path to the country-fact cache")
	fmt.Fprintln(os.Stderr, "  -policy    row policy: skip or strict (default: skip)")
	fmt.Fprintln(os.Stderr, "  -offline   skip endpoint enrichment, use the cache only")
	fmt.Fprintln(os.Stderr, "  -verbose   enable debug logging")
}

func newLogger(level string, verbose bool) *log.Logger {
	logLevel := log.InfoLevel
	if parsed, err := log.ParseLevel(level); err == nil {
		logLevel = parsed
	}
	if verbose {
		logLevel = log.DebugLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           logLevel,
	})
}

func runCollector(cfg *config.Config, logger *log.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Input.Path) == "" {
		return errors.New("no input file provided")
	}
	rowPolicy, err := ingest.ParsePolicy(cfg.Input.Policy)
	if err != nil {
		return err
	}

	ctx := context.Background()

	records, report, err := ingest.ReadFile(cfg.Input.Path, rowPolicy)
	if err != nil {
		return err
	}
	logger.Info("input read", "path", cfg.Input.Path, "rows", report.Rows, "valid", report.Valid, "rejected", len(report.Rejected))
	if len(report.Rejected) > 0 {
		logger.Warn("rows rejected", "summary", report.Summary())
	}
	if len(records) == 0 {
		return errors.New("no valid rows in input")
	}

	var factCache enrich.Cache
	if cfg.Cache.Enabled {
		opened, err := sqlite.New(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer opened.Close()
		factCache = opened
	}

	var provider providers.ReferenceProvider
	if !cfg.Wikidata.Offline {
		provider = wikidata.NewWithConfig(wikidata.Config{
			EndpointURL: cfg.Wikidata.Endpoint,
			UserAgent:   cfg.Wikidata.UserAgent,
			Timeout:     cfg.WikidataTimeout(),
			MaxRetries:  cfg.Wikidata.MaxRetries,
			RetryBase:   cfg.WikidataRetryBase(),
			BatchSize:   cfg.Wikidata.BatchSize,
		})
	}

	resolved, err := enrich.Resolve(ctx, provider, factCache, enrich.Codes(records))
	if err != nil {
		if !errors.Is(err, wikidata.ErrUnavailable) {
			return err
		}
		logger.Warn("reference endpoint unavailable, continuing with cached facts", "err", err)
	}
	logger.Debug("facts resolved", "cached", resolved.CacheHits, "fetched", resolved.Fetched)
	if resolved.CacheWriteErr != nil {
		logger.Warn("cache write failed", "err", resolved.CacheWriteErr)
	}
	if len(resolved.Unresolved) > 0 {
		logger.Warn("countries without reference facts", "codes", strings.Join(resolved.Unresolved, ","))
	}

	triples := ontology.Map(records, resolved.Facts)

	st, err := turtle.New(cfg.Graph.BasePath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Purge(); err != nil {
		return err
	}
	if err := st.Append(triples); err != nil {
		return err
	}

	logger.Info("collector run complete",
		"records", len(records),
		"countries", len(resolved.Facts),
		"unresolved", len(resolved.Unresolved),
		"triples", len(triples),
		"graph", st.Path(),
	)
	return nil
}
