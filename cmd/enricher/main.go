package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"tradeatlas/internal/balance"
	"tradeatlas/internal/config"
	"tradeatlas/internal/store/turtle"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "build":
		build(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func build(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", "", "path to TOML config file (empty = defaults + env)")
	in := fs.String("in", "", "path to the base graph file (overrides config)")
	out := fs.String("out", "", "path to the augmented graph file (overrides config)")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "enricher build failed:", err)
		os.Exit(1)
	}
	if *in != "" {
		cfg.Graph.BasePath = *in
	}
	if *out != "" {
		cfg.Graph.AugmentedPath = *out
	}

	logger := newLogger(cfg.LogLevel, *verbose)
	if err := runEnricher(cfg, logger); err != nil {
		logger.Fatal("enricher build failed", "err", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: enricher build [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -config    path to TOML config file")
	fmt.Fprintln(os.Stderr, "  -in        path to the base graph file")
	fmt.Fprintln(os.Stderr, "  -out       path to the augmented graph file")
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

func runEnricher(cfg *config.Config, logger *log.Logger) error {
	if cfg.Graph.BasePath == "" {
		return errors.New("no base graph provided")
	}
	if cfg.Graph.AugmentedPath == "" {
		return errors.New("no output graph provided")
	}
	if cfg.Graph.AugmentedPath == cfg.Graph.BasePath {
		return errors.New("output graph must differ from the base graph")
	}

	source, err := turtle.New(cfg.Graph.BasePath)
	if err != nil {
		return err
	}
	defer source.Close()
	base, err := source.Load()
	if err != nil {
		return err
	}
	if len(base) == 0 {
		return fmt.Errorf("base graph %s is empty", cfg.Graph.BasePath)
	}
	logger.Info("base graph loaded", "path", cfg.Graph.BasePath, "triples", len(base))

	augmented, balances, warnings := balance.Augment(base)
	for _, warning := range warnings {
		logger.Warn("flow skipped", "reason", warning.String())
	}
	for _, b := range balances {
		logger.Debug("balance computed",
			"country", b.ISO3,
			"year", b.Year,
			"exports", b.TotalExport(),
			"imports", b.TotalImport(),
			"balance", b.Balance(),
		)
	}

	sink, err := turtle.New(cfg.Graph.AugmentedPath)
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := sink.Purge(); err != nil {
		return err
	}
	if err := sink.Append(augmented); err != nil {
		return err
	}

	logger.Info("enricher build complete",
		"balances", len(balances),
		"skipped", len(warnings),
		"triples", len(augmented),
		"graph", sink.Path(),
	)
	return nil
}
