// Package store writes the forward map of every index through to
// PostgreSQL so an indexer can rebuild its indexes after losing its
// snapshots.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/postgres"
	"github.com/lib/pq"
	"github.com/RoaringBitmap/roaring"
)

const schema = `
CREATE TABLE IF NOT EXISTS recurring_index_entries (
	index_name  TEXT        NOT NULL,
	document_id BIGINT      NOT NULL,
	keys        BIGINT[]    NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (index_name, document_id)
)`

// Store persists index entries.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "entry-store"),
	}
}

// Migrate creates the entries table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating entries table: %w", err)
	}
	return nil
}

// Save replaces the stored keys of a document. An empty set deletes the
// row. Serialization conflicts are retried.
func (s *Store) Save(ctx context.Context, indexName string, docID uint32, keys index.PostingSet) error {
	if keys.IsEmpty() {
		return s.Delete(ctx, indexName, docID)
	}
	values := encodeKeys(keys)
	return s.db.InSerializableTx(ctx, "save entry", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO recurring_index_entries (index_name, document_id, keys, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (index_name, document_id) DO UPDATE SET keys = EXCLUDED.keys, updated_at = NOW()`,
			indexName, int64(docID), values)
		return err
	})
}

// Delete removes a document from one index. Missing rows are ignored.
func (s *Store) Delete(ctx context.Context, indexName string, docID uint32) error {
	return s.db.InSerializableTx(ctx, "delete entry", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM recurring_index_entries WHERE index_name = $1 AND document_id = $2`,
			indexName, int64(docID))
		return err
	})
}

// Load reads every entry of an index ordered by document id.
func (s *Store) Load(ctx context.Context, indexName string) ([]index.Entry, error) {
	start := time.Now()
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT document_id, keys FROM recurring_index_entries WHERE index_name = $1 ORDER BY document_id`,
		indexName)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []index.Entry
	for rows.Next() {
		var (
			docID  int64
			values pq.Int64Array
		)
		if err := rows.Scan(&docID, &values); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, index.Entry{DocID: uint32(docID), Keys: decodeKeys(values)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	s.logger.Info("entries loaded",
		"index", indexName,
		"count", len(entries),
		"duration", time.Since(start),
	)
	return entries, nil
}

// Ping reports database reachability for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func encodeKeys(keys index.PostingSet) pq.Int64Array {
	values := make(pq.Int64Array, 0, keys.Len())
	for k := range keys.All() {
		values = append(values, int64(k))
	}
	return values
}

// decodeKeys drops values outside the uint32 key space.
func decodeKeys(values pq.Int64Array) index.PostingSet {
	bm := roaring.New()
	for _, v := range values {
		if v >= 0 && v <= math.MaxUint32 {
			bm.Add(uint32(v))
		}
	}
	return index.FromBitmap(bm)
}
