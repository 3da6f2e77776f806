// Package postgres opens a lib/pq connection pool and runs transactions,
// retrying serializable ones that lose a race.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/resilience"
	"github.com/lib/pq"
)

// SQLSTATE codes of transactions that can be retried unchanged.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

type Client struct {
	DB      *sql.DB
	retries int
}

// New opens the pool and fails unless the server answers within five
// seconds.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres %s: %w", cfg.Host, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres %s: %w", cfg.Host, err)
	}
	return &Client{DB: db, retries: max(cfg.MaxRetries, 1)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx runs fn in a read-committed transaction, rolling back when fn fails.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return c.inTx(ctx, nil, fn)
}

// InSerializableTx runs fn in a SERIALIZABLE transaction and retries it,
// up to the configured budget, while it fails with a conflict. fn must be
// safe to run more than once.
func (c *Client) InSerializableTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	return resilience.Retry(ctx, name, resilience.RetryConfig{
		MaxAttempts:  c.retries,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     time.Second,
		Retryable:    IsConflict,
	}, func() error {
		return c.inTx(ctx, opts, fn)
	})
}

func (c *Client) inTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// IsConflict reports a serialization failure or deadlock.
func IsConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}
