package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/canonical/bib-ranking/internal/config"
	"github.com/canonical/bib-ranking/internal/docsource"
	"github.com/canonical/bib-ranking/internal/logging"
	"github.com/canonical/bib-ranking/internal/mapper"
	"github.com/canonical/bib-ranking/internal/output"
)

type overrides struct {
	view, bibPolicy, logLevel            string
	sourceKind, source, database, output string
	failures, metricsFile                string
	workers                              int
}

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to config YAML (optional)")
	logJSON := flag.Bool("log-json", false, "Log as JSON instead of text")
	var o overrides
	flag.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&o.view, "view", "", "View to build")
	flag.StringVar(&o.bibPolicy, "bib-policy", "", "Bib check: truthy or present")
	flag.StringVar(&o.sourceKind, "source-kind", "", "Source kind (alldocs, couchdb, ndjson, sqlite)")
	flag.StringVar(&o.source, "source", "", "Source path, or CouchDB base URL for -source-kind couchdb")
	flag.StringVar(&o.database, "database", "", "CouchDB database name")
	flag.StringVar(&o.output, "output", "", "Rows output file (- for stdout)")
	flag.StringVar(&o.failures, "failures", "", "Append malformed documents to this file")
	flag.StringVar(&o.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	flag.IntVar(&o.workers, "workers", -1, "Number of map workers (0 = number of CPUs)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	o.apply(cfg)

	logger := logging.New(os.Stderr, cfg.LogLevel, *logJSON)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("rank failed", "error", err)
		os.Exit(1)
	}
}

func (o overrides) apply(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.LogLevel, o.logLevel)
	set(&cfg.View, o.view)
	set(&cfg.BibPolicy, o.bibPolicy)
	set(&cfg.Source.Kind, o.sourceKind)
	set(&cfg.Output, o.output)
	set(&cfg.FailuresPath, o.failures)
	set(&cfg.MetricsFile, o.metricsFile)
	set(&cfg.Source.Database, o.database)
	if cfg.Source.Kind == docsource.KindCouchDB {
		set(&cfg.Source.URL, o.source)
	} else {
		set(&cfg.Source.Path, o.source)
	}
	if o.workers >= 0 {
		cfg.Workers = o.workers
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	view, err := mapper.LookupView(cfg.View, cfg.Emitter())
	if err != nil {
		return err
	}

	opts := cfg.SourceOptions()
	opts.Logger = logger
	src, err := docsource.New(opts)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := mapper.NewMetrics()
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	runner := &mapper.Runner{
		View:         view,
		Workers:      cfg.Workers,
		Logger:       logger,
		Metrics:      metrics,
		FailuresPath: cfg.FailuresPath,
	}

	logger.Info("building view", "view", view.Name, "source", cfg.Source.Kind, "bib_policy", cfg.BibPolicy)
	res, err := runner.Run(ctx, src)
	if err != nil {
		return err
	}

	if err := output.WriteFile(cfg.Output, res.Entries); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
			// Non-fatal: the rows are already written.
			logger.Error("write metrics failed", "path", cfg.MetricsFile, "error", err)
		}
	}

	logger.Info("done",
		"view", res.View,
		"rows", len(res.Entries),
		"malformed", res.Stats.Malformed,
		"output", cfg.Output,
	)
	return nil
}
