package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/health"
	"github.com/go-chi/chi/v5"
)

// NewServeMux routes /metrics and, when checker is non-nil, the health
// probes. Services without an API of their own expose it on the metrics
// port.
func NewServeMux(checker *health.Checker) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", Handler())
	if checker != nil {
		r.Get("/health/live", checker.LiveHandler())
		r.Get("/health/ready", checker.ReadyHandler())
	}
	return r
}

// StartServer serves NewServeMux on port in the background and returns its
// shutdown func.
func StartServer(port int, checker *health.Checker) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewServeMux(checker),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	logger := slog.Default().With("component", "metrics-server", "addr", server.Addr)
	go func() {
		logger.Info("metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return server.Shutdown
}
