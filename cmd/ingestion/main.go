// Command ingestion accepts index and unindex events over HTTP and publishes
// them to the document topic consumed by the indexer.
//
// Usage:
//
//	go run ./cmd/ingestion [--config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Setup("ingestion", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIndex)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIndex)

	checker := health.NewChecker()
	checker.RegisterPinger("kafka", producer)

	h := handler.New(publisher.New(producer))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(m))
	r.Route("/api/v1", h.Routes)
	r.Get("/health/live", checker.LiveHandler())
	r.Get("/health/ready", checker.ReadyHandler())
	if m != nil {
		r.Handle("/metrics", metrics.Handler())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	slog.Info("ingestion service stopped")
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "dri-ingestion",
		Usage:  "Accept document events over HTTP and publish them to Kafka",
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
		slog.Error("ingestion error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
