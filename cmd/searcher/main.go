package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/redis"
	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Setup("searcher", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}

	// Searchers only read snapshots; the indexer owns the data directory.
	cat, err := catalog.New(cfg.Indexes, cfg.Indexer.DataDir, 0, m)
	if err != nil {
		return fmt.Errorf("failed to build index catalog: %w", err)
	}
	loaded := cat.ReloadAll()
	slog.Info("index catalog initialized",
		"indexes", cat.Names(),
		"snapshots_loaded", loaded,
		"data_dir", cfg.Indexer.DataDir,
	)

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, query caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
		slog.Info("query cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	cat.StartReloadLoops(ctx, cfg.Indexer.ReloadInterval, func(e *indexer.Engine) {
		if queryCache == nil {
			return
		}
		if err := queryCache.Invalidate(ctx); err != nil {
			slog.Warn("cache invalidation after reload failed", "index", e.Name(), "error", err)
		}
	})

	if queryCache != nil {
		group := fmt.Sprintf("%s-searcher-%s", cfg.Kafka.ConsumerGroup, uuid.NewString()[:8])
		invalidations := kafka.NewGroupConsumer(cfg.Kafka, group, cfg.Kafka.Topics.CacheInvalidate, invalidateHandler(queryCache))
		defer invalidations.Close()
		go func() {
			if err := invalidations.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("invalidation consumer error", "error", err)
			}
		}()
	}

	checker := health.NewChecker()
	checker.Register("catalog", func(ctx context.Context) health.ComponentHealth {
		names := cat.Names()
		if len(names) == 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no indexes"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d indexes", len(names))}
	})
	var cachePinger health.Pinger
	if queryCache != nil {
		cachePinger = redisClient
	}
	checker.RegisterOptional("redis", cachePinger)

	exec := executor.NewMulti(handler.Resolver(cat), cat.Names(), cfg.Search.MaxKeys)
	h := handler.New(cat, exec, queryCache, m, cfg.Search.Timeout)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.NewRouter(h, checker, m, cfg.Server.WriteTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("search service stopped")
	return nil
}

// invalidateHandler drops cached results when the indexer reports a change.
// Cached keys carry the catalog version, so a stale entry is never served
// even before the snapshot reaches this process.
func invalidateHandler(queryCache *cache.QueryCache) kafka.MessageHandler {
	return func(ctx context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.CacheInvalidateEvent](value)
		if err != nil {
			slog.Warn("malformed cache invalidation event", "error", err)
			return nil
		}
		if err := queryCache.Invalidate(ctx); err != nil {
			return fmt.Errorf("invalidating query cache: %w", err)
		}
		slog.Debug("query cache invalidated", "indexes", event.Indexes, "version", event.Version)
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "dri-searcher",
		Usage:  "Serve point and range queries over the date recurring indexes",
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
		slog.Error("searcher error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
