// Package catalog holds the named date recurring indexes of a process. Each
// index owns an indexer.Engine backed by its own data directory, and the
// Catalog dispatches documents and queries by index name.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/metrics"
)

// Catalog maps index names to engines.
type Catalog struct {
	engines map[string]*indexer.Engine
	names   []string
	mu      sync.RWMutex
	logger  *slog.Logger
}

// New creates one engine per configured index. When dataDir is set each
// index snapshots to its own sub-directory.
func New(indexes []config.IndexConfig, dataDir string, keepSnapshots int, m *metrics.Metrics) (*Catalog, error) {
	c := &Catalog{
		engines: make(map[string]*indexer.Engine, len(indexes)),
		logger:  slog.Default().With("component", "catalog"),
	}
	for _, idx := range indexes {
		if _, dup := c.engines[idx.Name]; dup {
			c.closeAll()
			return nil, fmt.Errorf("%w: duplicate index %q", apperrors.ErrInvalidInput, idx.Name)
		}
		opts := []indexer.Option{indexer.WithMetrics(m), indexer.WithKeepSnapshots(keepSnapshots)}
		if dataDir != "" {
			opts = append(opts, indexer.WithDataDir(filepath.Join(dataDir, idx.Name)))
		}
		engine, err := indexer.NewEngine(idx, opts...)
		if err != nil {
			c.closeAll()
			return nil, fmt.Errorf("creating engine for index %s: %w", idx.Name, err)
		}
		c.engines[idx.Name] = engine
		c.names = append(c.names, idx.Name)
		c.logger.Info("index engine initialized",
			"index", idx.Name,
			"recurrence_type", idx.RecurrenceType,
			"dst", idx.DST,
		)
	}
	sort.Strings(c.names)
	c.logger.Info("catalog ready", "indexes", len(c.names))
	return c, nil
}

// Route returns the engine of the named index.
func (c *Catalog) Route(name string) (*indexer.Engine, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	engine, ok := c.engines[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownIndex, http.StatusNotFound, "index %q is not defined", name)
	}
	return engine, nil
}

// Names lists the index names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Engines returns the engines ordered by name.
func (c *Catalog) Engines() []*indexer.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*indexer.Engine, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.engines[name])
	}
	return out
}

// Unindex removes a document from every index and reports whether any
// index held it.
func (c *Catalog) Unindex(docID uint32) bool {
	removed := false
	for _, engine := range c.Engines() {
		if engine.Unindex(docID) {
			removed = true
		}
	}
	return removed
}

// Version sums the versions of all engines. It changes whenever any index
// changes.
func (c *Catalog) Version() uint64 {
	var v uint64
	for _, engine := range c.Engines() {
		v += engine.Version()
	}
	return v
}

// FlushAll snapshots every engine.
func (c *Catalog) FlushAll() error {
	var firstErr error
	for _, engine := range c.Engines() {
		if err := engine.Flush(); err != nil {
			c.logger.Error("flush failed", "index", engine.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ReloadAll loads newer snapshots into every engine and returns how many
// engines changed.
func (c *Catalog) ReloadAll() int {
	total := 0
	for _, engine := range c.Engines() {
		loaded, err := engine.Reload()
		if err != nil {
			c.logger.Error("reload failed", "index", engine.Name(), "error", err)
			continue
		}
		if loaded {
			total++
		}
	}
	return total
}

// StartFlushLoops starts the periodic snapshot writer of every engine.
func (c *Catalog) StartFlushLoops(ctx context.Context, interval time.Duration) {
	for _, engine := range c.Engines() {
		engine.StartFlushLoop(ctx, interval)
	}
}

// StartReloadLoops polls for snapshots written by the indexer. onReload
// runs after an engine loaded a newer snapshot.
func (c *Catalog) StartReloadLoops(ctx context.Context, interval time.Duration, onReload func(*indexer.Engine)) {
	for _, engine := range c.Engines() {
		engine.StartReloadLoop(ctx, interval, onReload)
	}
}

// Close flushes every engine.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeAll()
}

func (c *Catalog) closeAll() error {
	var firstErr error
	for name, engine := range c.engines {
		if err := engine.Close(); err != nil {
			c.logger.Error("close failed", "index", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
