package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/postgres"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Setup("indexer", cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}

	cat, err := catalog.New(cfg.Indexes, cfg.Indexer.DataDir, cfg.Indexer.KeepSnapshots, m)
	if err != nil {
		return fmt.Errorf("failed to build index catalog: %w", err)
	}
	defer func() {
		slog.Info("flushing all indexes before shutdown")
		if err := cat.Close(); err != nil {
			slog.Error("final flush failed", "error", err)
		}
	}()
	loaded := cat.ReloadAll()
	slog.Info("index catalog initialized",
		"indexes", cat.Names(),
		"snapshots_loaded", loaded,
		"data_dir", cfg.Indexer.DataDir,
	)

	checker := health.NewChecker()
	checker.Register("catalog", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d indexes", len(cat.Names()))}
	})

	var persist consumer.Persister
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer db.Close()
		entries := store.New(db)
		if err := entries.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate entry store: %w", err)
		}
		if err := restoreFromStore(ctx, cat, entries); err != nil {
			return err
		}
		persist = entries
		checker.RegisterPinger("postgres", entries)
	}

	invalidations := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
	defer invalidations.Close()
	checker.RegisterPinger("kafka", invalidations)

	handler := consumer.HandleMessage(cat, persist, consumer.NewInvalidator(invalidations), m)
	indexConsumer := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIndex, handler))

	cat.StartFlushLoops(ctx, cfg.Indexer.FlushInterval)

	// The indexer has no API of its own; probes share the metrics port.
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, checker)
		defer shutdown(context.Background())
	}

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIndex,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := indexConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("indexer service stopped")
	return nil
}

// restoreFromStore fills every index that has no snapshot from Postgres.
func restoreFromStore(ctx context.Context, cat *catalog.Catalog, entries *store.Store) error {
	for _, engine := range cat.Engines() {
		if engine.Stats().Snapshot != "" {
			continue
		}
		rows, err := entries.Load(ctx, engine.Name())
		if err != nil {
			return fmt.Errorf("failed to load %s entries: %w", engine.Name(), err)
		}
		if len(rows) == 0 {
			continue
		}
		engine.Restore(rows)
		slog.Info("index restored from postgres", "index", engine.Name(), "documents", len(rows))
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "dri-indexer",
		Usage:  "Consume document events and maintain the date recurring indexes",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "configs/development.yaml",
				Sources: cli.EnvVars("DRI_CONFIG_FILE"),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("indexer error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
