// Command eurostat-elt is a thin front end over the Orchestrator entry
// point: it parses flags, loads Config, builds the adapters, and runs
// one dataset's ingestion to completion or failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gowthamrao/eurostat-elt/internal/config"
	"github.com/gowthamrao/eurostat-elt/internal/fetcher"
	"github.com/gowthamrao/eurostat-elt/internal/loader"
	"github.com/gowthamrao/eurostat-elt/internal/orchestrator"
	"github.com/gowthamrao/eurostat-elt/pkg/events"
	"github.com/gowthamrao/eurostat-elt/pkg/log"
	"github.com/gowthamrao/eurostat-elt/pkg/metrics"
	"github.com/gowthamrao/eurostat-elt/pkg/model"
)

var (
	flagDatasetID      string
	flagRepresentation string
	flagLoadStrategy   string
	flagConfigFile     string
)

func cliInit() {
	flag.StringVar(&flagDatasetID, "dataset-id", "", "Eurostat dataset id to ingest (required)")
	flag.StringVar(&flagRepresentation, "representation", "standard", "dimension representation: `standard` or `full`")
	flag.StringVar(&flagLoadStrategy, "load-strategy", "full", "load strategy: `full` or `delta`")
	flag.StringVar(&flagConfigFile, "config", "", "path to a JSON config file")
	flag.Parse()
}

func main() {
	if len(os.Args) < 2 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, "usage: eurostat-elt run --dataset-id <id> [--representation standard|full] [--load-strategy full|delta] [--config <path>]")
		os.Exit(2)
	}
	os.Args = append(os.Args[:1], os.Args[2:]...)
	cliInit()

	if flagDatasetID == "" {
		log.Fatal("--dataset-id is required")
	}

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	representation := model.Representation(flagRepresentation)
	if representation != model.RepresentationStandard && representation != model.RepresentationFull {
		log.Fatalf("invalid --representation %q", flagRepresentation)
	}
	strategy := model.LoadStrategy(flagLoadStrategy)
	if strategy != model.StrategyFull && strategy != model.StrategyDelta {
		log.Fatalf("invalid --load-strategy %q", flagLoadStrategy)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Warn("received shutdown signal, cancelling run")
		cancel()
	}()

	l, err := buildLoader(ctx, cfg)
	if err != nil {
		log.Fatalf("build loader: %v", err)
	}
	defer l.CloseConnection()

	var mirror fetcher.Mirror
	if cfg.CacheMirrorS3 != "" {
		m, err := fetcher.NewS3Mirror(ctx, cfg.CacheMirrorS3)
		if err != nil {
			log.Warnf("s3 mirror disabled: %v", err)
		} else {
			mirror = m
		}
	}
	f := fetcher.New(fetcher.Config{
		BaseURL:        cfg.BaseURL,
		CacheRoot:      cfg.CacheRoot,
		CacheEnabled:   cfg.CacheEnabled,
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		MaxRetries:     cfg.MaxRetries,
	}, mirror)

	var pub *events.Publisher
	if cfg.NatsURL != "" {
		p, err := events.Connect(cfg.NatsURL)
		if err != nil {
			log.Warnf("lifecycle event publishing disabled: %v", err)
		} else {
			pub = p
			defer pub.Close()
		}
	}

	metrics.Serve(cfg.MetricsListen)

	orch := orchestrator.New(f, l, cfg, pub)
	if err := orch.Run(ctx, flagDatasetID, representation, strategy); err != nil {
		log.Errorf("ingestion of %s failed: %v", flagDatasetID, err)
		os.Exit(1)
	}
}

func buildLoader(ctx context.Context, cfg config.Config) (loader.Loader, error) {
	switch cfg.DBDriver {
	case "postgres":
		return loader.NewPostgresLoader(ctx, cfg.DBDSN)
	case "sqlite3":
		return loader.NewSQLiteLoader(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

