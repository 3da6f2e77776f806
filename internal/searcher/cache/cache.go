// Package cache stores query results in Redis. Keys hash the parsed plans,
// the candidate set and the catalog version, so a reloaded index never
// serves results computed against older contents.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/resilience"
	"github.com/samber/mo"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "dri:query:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// entry is the cached form of a result. Docs holds the portable roaring
// serialization of the document set.
type entry struct {
	Indexes []string `json:"i"`
	Docs    []byte   `json:"d"`
}

// QueryCache calls Redis through a circuit breaker. While the circuit is
// open every lookup is a miss and nothing is written.
type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{}),
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, key string) (*executor.Result, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.GetBytes(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil || data == nil {
		if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	var docs index.PostingSet
	if err := docs.UnmarshalBinary(e.Docs); err != nil {
		c.logger.Error("cache decode failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", key)
	return &executor.Result{DocumentIDs: docs, Indexes: e.Indexes, Total: docs.Len()}, true
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.Result) {
	docs, err := result.DocumentIDs.MarshalBinary()
	if err != nil {
		c.logger.Error("cache encode failed", "key", key, "error", err)
		return
	}
	data, err := json.Marshal(entry{Indexes: result.Indexes, Docs: docs})
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for key or computes it once, even
// under concurrent identical requests.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	computeFn func() (*executor.Result, error),
) (*executor.Result, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Result), false, nil
}

// Invalidate drops every cached query.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Circuit reports the state of the Redis circuit breaker.
func (c *QueryCache) Circuit() resilience.State {
	return c.breaker.State()
}

// BuildKey derives the cache key of a planned query.
func BuildKey(planned []executor.Planned, candidates mo.Option[index.PostingSet], version uint64) string {
	parts := make([]string, 0, len(planned)+2)
	parts = append(parts, fmt.Sprintf("v=%d", version))
	for _, p := range planned {
		parts = append(parts, p.Plan.Fingerprint())
	}
	if cand, ok := candidates.Get(); ok {
		parts = append(parts, fmt.Sprintf("cand=%v", cand.Values()))
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
