package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.RegisterPinger("postgres", pingFunc(func(context.Context) error { return nil }))
	c.Register("snapshots", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded}
	})

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["postgres"].Status)

	c.RegisterPinger("redis", pingFunc(func(context.Context) error { return errors.New("refused") }))
	report = c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "refused", report.Components["redis"].Message)
}

func TestReadyHandlerStatusCode(t *testing.T) {
	c := NewChecker()
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.RegisterPinger("kafka", pingFunc(func(context.Context) error { return errors.New("down") }))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOptionalDependencyDegrades(t *testing.T) {
	c := NewChecker()
	c.RegisterOptional("cache", nil)
	c.RegisterOptional("redis", pingFunc(func(context.Context) error { return errors.New("timeout") }))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "not configured", report.Components["cache"].Message)

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckTimeout(t *testing.T) {
	c := NewChecker()
	c.timeout = 10 * time.Millisecond
	c.RegisterPinger("slow", pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
}
