// Package indexer turns documents into occurrence keys and keeps them in a
// named in-memory index backed by on-disk snapshots.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/accessor"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/recurrence"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/temporal"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/metrics"
	"github.com/RoaringBitmap/roaring"
	"github.com/samber/mo"
)

// Stats summarises one index.
type Stats struct {
	Index          string `json:"index"`
	RecurrenceType string `json:"recurrence_type"`
	DST            string `json:"dst"`
	Documents      int    `json:"documents"`
	Keys           int    `json:"keys"`
	Generation     uint64 `json:"generation"`
	Snapshot       string `json:"snapshot,omitempty"`
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithDataDir enables snapshots under dir. Without it Flush and Reload do
// nothing.
func WithDataDir(dir string) Option {
	return func(e *Engine) { e.dataDir = dir }
}

// WithKeepSnapshots sets how many snapshot files survive a flush.
func WithKeepSnapshots(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.keep = n
		}
	}
}

// Engine is one named date recurring index.
type Engine struct {
	cfg        config.IndexConfig
	strategy   recurrence.Strategy
	dst        recurrence.DSTPolicy
	normalizer *temporal.Normalizer
	parser     *recurrence.Parser
	memIndex   *index.MemoryIndex
	writer     *segment.Writer
	dataDir    string
	keep       int
	metrics    *metrics.Metrics
	logger     *slog.Logger

	snapMu     sync.Mutex
	snapshot   string
	flushedGen atomic.Uint64
}

func NewEngine(cfg config.IndexConfig, opts ...Option) (*Engine, error) {
	strategy, err := recurrence.ParseStrategy(cfg.RecurrenceType)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", cfg.Name, err)
	}
	dst, err := recurrence.ParseDSTPolicy(cfg.DST)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", cfg.Name, err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", cfg.Name, err)
	}
	norm := temporal.NewNormalizer(loc)
	e := &Engine{
		cfg:        cfg,
		strategy:   strategy,
		dst:        dst,
		normalizer: norm,
		parser:     recurrence.NewParser(norm),
		memIndex:   index.NewMemoryIndex(),
		keep:       2,
		logger:     logger.ForIndex("indexer", cfg.Name),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dataDir != "" {
		if err := os.MkdirAll(e.dataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating index data directory: %w", err)
		}
		e.writer = segment.NewWriter(e.dataDir)
	}
	return e, nil
}

func (e *Engine) Name() string {
	return e.cfg.Name
}

// Config returns the definition the index was created with.
func (e *Engine) Config() config.IndexConfig {
	return e.cfg
}

func (e *Engine) Normalizer() *temporal.Normalizer {
	return e.normalizer
}

// IndexDocument reads the configured values from doc and indexes them.
func (e *Engine) IndexDocument(docID uint32, doc accessor.DocumentAccessor) bool {
	start, ok := doc.Start()
	if !ok {
		start = nil
	}
	rec, ok := doc.Recurrence()
	if !ok {
		rec = nil
	}
	until, ok := doc.Until()
	if !ok {
		until = nil
	}
	return e.Index(docID, start, rec, until)
}

// Index computes the occurrence keys of a document and stores them,
// reporting whether the stored keys changed. A nil start leaves the index
// untouched. Invalid dates or rules are logged and index the document
// with no occurrences.
func (e *Engine) Index(docID uint32, start, rec, until any) bool {
	if start == nil {
		e.metrics.IndexOutcome(e.cfg.Name, "skipped")
		return false
	}
	keys, err := e.occurrences(start, rec, until)
	if err != nil {
		e.logger.Warn("document indexed without occurrences",
			"doc_id", docID,
			"index", e.cfg.Name,
			"error", err,
		)
		e.metrics.Contained(e.cfg.Name, apperrors.Kind(err))
		keys = index.PostingSet{}
	}

	changed := e.memIndex.Index(docID, keys)
	if !changed {
		e.metrics.IndexOutcome(e.cfg.Name, "unchanged")
		return false
	}
	e.metrics.IndexOutcome(e.cfg.Name, "changed")
	e.recordSize()
	e.logger.Debug("document indexed",
		"doc_id", docID,
		"keys", keys.Len(),
	)
	return true
}

// Keys computes the occurrence keys of a document without storing them.
func (e *Engine) Keys(start, rec, until any) (index.PostingSet, error) {
	return e.occurrences(start, rec, until)
}

func (e *Engine) occurrences(start, rec, until any) (index.PostingSet, error) {
	startAt, err := e.normalizer.Normalize(start)
	if err != nil {
		return index.PostingSet{}, fmt.Errorf("start: %w", err)
	}
	def := recurrence.Definition{Start: startAt, DST: e.dst}
	if until != nil {
		untilAt, err := e.normalizer.Normalize(until)
		if err != nil {
			return index.PostingSet{}, fmt.Errorf("until: %w", err)
		}
		def.Until = mo.Some(untilAt)
	}
	if rec != nil {
		r, err := e.parser.Recurrence(e.strategy, rec)
		if err != nil {
			return index.PostingSet{}, err
		}
		def.Recurrence = r
	}
	seq, err := recurrence.Generate(def)
	if err != nil {
		return index.PostingSet{}, err
	}
	bm := roaring.New()
	for k := range recurrence.Keys(seq) {
		bm.Add(uint32(k))
	}
	return index.FromBitmap(bm), nil
}

// Unindex removes a document. Unknown documents are ignored.
func (e *Engine) Unindex(docID uint32) bool {
	if !e.memIndex.Unindex(docID) {
		return false
	}
	e.metrics.Unindexed(e.cfg.Name)
	e.recordSize()
	return true
}

// Entry returns the stored keys of a document.
func (e *Engine) Entry(docID uint32) (index.PostingSet, bool) {
	return e.memIndex.KeysFor(docID)
}

func (e *Engine) DocumentsFor(key temporal.Key) (index.PostingSet, bool) {
	return e.memIndex.DocumentsFor(key)
}

func (e *Engine) UnionRange(lo, hi mo.Option[temporal.Key]) index.PostingSet {
	return e.memIndex.UnionRange(lo, hi)
}

// UniqueKeys lists the distinct keys between the optional bounds.
func (e *Engine) UniqueKeys(lo, hi mo.Option[temporal.Key]) []temporal.Key {
	return e.memIndex.UniqueKeys(lo, hi)
}

// Entries returns the forward map ordered by document id.
func (e *Engine) Entries() []index.Entry {
	return e.memIndex.Snapshot()
}

func (e *Engine) Stats() Stats {
	e.snapMu.Lock()
	snapshot := e.snapshot
	e.snapMu.Unlock()
	return Stats{
		Index:          e.cfg.Name,
		RecurrenceType: e.cfg.RecurrenceType,
		DST:            e.cfg.DST,
		Documents:      e.memIndex.DocumentCount(),
		Keys:           e.memIndex.KeyCount(),
		Generation:     e.memIndex.Generation(),
		Snapshot:       snapshot,
	}
}

// Version increases on every change to the index.
func (e *Engine) Version() uint64 {
	return e.memIndex.Generation()
}

// Clear drops every document.
func (e *Engine) Clear() {
	e.memIndex.Reset()
	e.recordSize()
	e.logger.Info("index cleared")
}

// Restore replaces the contents with entries.
func (e *Engine) Restore(entries []index.Entry) {
	e.memIndex.Restore(entries)
	e.recordSize()
}

func (e *Engine) recordSize() {
	e.metrics.IndexSize(e.cfg.Name, e.memIndex.DocumentCount(), e.memIndex.KeyCount())
}

// Flush writes a snapshot when the index changed since the last one and
// prunes old snapshots.
func (e *Engine) Flush() error {
	if e.writer == nil {
		return nil
	}
	gen := e.memIndex.Generation()
	if gen == e.flushedGen.Load() {
		return nil
	}
	entries := e.memIndex.Snapshot()
	name, err := e.writer.Write(entries)
	if err != nil {
		e.metrics.Snapshot(e.cfg.Name, "write", "error")
		return fmt.Errorf("writing snapshot: %w", err)
	}
	e.metrics.Snapshot(e.cfg.Name, "write", "ok")
	e.flushedGen.Store(gen)
	e.snapMu.Lock()
	e.snapshot = name
	e.snapMu.Unlock()

	removed, err := segment.Prune(e.dataDir, e.keep)
	if err != nil {
		e.logger.Error("pruning snapshots failed", "error", err)
	}
	e.logger.Info("snapshot flushed",
		"snapshot", name,
		"docs", len(entries),
		"pruned", removed,
	)
	return nil
}

// Reload replaces the in-memory index with the newest snapshot on disk if
// it differs from the one last written or loaded. It reports whether
// anything was loaded.
func (e *Engine) Reload() (bool, error) {
	if e.dataDir == "" {
		return false, nil
	}
	latest, err := segment.Latest(e.dataDir)
	if err != nil {
		return false, err
	}
	e.snapMu.Lock()
	current := e.snapshot
	e.snapMu.Unlock()
	if latest == "" || latest == current {
		return false, nil
	}

	reader, err := segment.OpenReader(filepath.Join(e.dataDir, latest))
	if err != nil {
		e.metrics.Snapshot(e.cfg.Name, "load", "error")
		return false, fmt.Errorf("opening snapshot %s: %w", latest, err)
	}
	defer reader.Close()
	entries, err := reader.Entries()
	if err != nil {
		e.metrics.Snapshot(e.cfg.Name, "load", "error")
		return false, fmt.Errorf("reading snapshot %s: %w", latest, err)
	}

	e.memIndex.Restore(entries)
	e.flushedGen.Store(e.memIndex.Generation())
	e.snapMu.Lock()
	e.snapshot = latest
	e.snapMu.Unlock()
	e.metrics.Snapshot(e.cfg.Name, "load", "ok")
	e.recordSize()
	e.logger.Info("snapshot loaded",
		"snapshot", latest,
		"docs", reader.DocCount(),
		"keys", reader.KeyCount(),
	)
	return true, nil
}

// StartFlushLoop flushes every interval until ctx is done, then flushes a
// final time.
func (e *Engine) StartFlushLoop(ctx context.Context, interval time.Duration) {
	if e.writer == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Flush(); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

// StartReloadLoop picks up snapshots written by another process.
func (e *Engine) StartReloadLoop(ctx context.Context, interval time.Duration, onReload func(*Engine)) {
	if e.dataDir == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				loaded, err := e.Reload()
				if err != nil {
					e.logger.Error("snapshot reload failed", "error", err)
					continue
				}
				if loaded && onReload != nil {
					onReload(e)
				}
			}
		}
	}()
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
		return err
	}
	return nil
}
