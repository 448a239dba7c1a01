// Package storage is the persistence gateway: an idempotent block archive
// keyed by (network, height) that also serves as the source of truth for
// per-network sync cursors.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/devblac/chainsyncd/internal/adapter"
)

// Store wraps SQLite-backed persistence for normalized blocks.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS blocks (
  network      TEXT NOT NULL,
  height       INTEGER NOT NULL,
  hash         TEXT NOT NULL,
  block_time   TIMESTAMP NOT NULL,
  tx_count     INTEGER NOT NULL DEFAULT 0,
  event_count  INTEGER NOT NULL DEFAULT 0,
  payload_json TEXT NOT NULL,
  created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(network, height)
);

CREATE INDEX IF NOT EXISTS idx_blocks_created_at ON blocks(network, created_at);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertBlock stores a normalized block. The insert is idempotent on
// (network, height): a height already present is a silent no-op and the first
// stored payload wins.
func (s *Store) UpsertBlock(ctx context.Context, b *adapter.NormalizedBlock) error {
	if b == nil {
		return errors.New("block required")
	}
	if b.Network == "" {
		return errors.New("network required")
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO blocks (network, height, hash, block_time, tx_count, event_count, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(network, height) DO NOTHING;
`, b.Network, b.Height, b.Hash, b.Timestamp.UTC(), len(b.Transactions), len(b.Events), string(payload))
	if err != nil {
		return fmt.Errorf("upsert block: %w", err)
	}
	return nil
}

// MaxHeight returns the highest stored height for a network, 0 if none.
func (s *Store) MaxHeight(ctx context.Context, network string) (uint64, error) {
	if network == "" {
		return 0, errors.New("network required")
	}
	var h uint64
	err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(MAX(height), 0) FROM blocks WHERE network = ?;
`, network).Scan(&h)
	if err != nil {
		return 0, fmt.Errorf("max height: %w", err)
	}
	return h, nil
}

// GetBlock retrieves one stored block, ok=false if absent.
func (s *Store) GetBlock(ctx context.Context, network string, height uint64) (*adapter.NormalizedBlock, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
SELECT payload_json FROM blocks WHERE network = ? AND height = ?;
`, network, height).Scan(&payload)
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("get block: %w", err)
	}

	var b adapter.NormalizedBlock
	if err := json.Unmarshal([]byte(payload), &b); err != nil {
		return nil, false, fmt.Errorf("decode block payload: %w", err)
	}
	return &b, true, nil
}

// BlockCount returns the number of stored rows for a network.
func (s *Store) BlockCount(ctx context.Context, network string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM blocks WHERE network = ?;
`, network).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}
	return n, nil
}

// Networks lists the distinct networks that have at least one stored block.
func (s *Store) Networks(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT network FROM blocks ORDER BY network;`)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan network: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes rows ingested more than retentionDays ago. An empty
// network applies to all networks. Returns the number of rows deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, network string, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errors.New("retentionDays must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	var (
		res sql.Result
		err error
	)
	if network == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM blocks WHERE created_at < ?;`, cutoff)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM blocks WHERE network = ? AND created_at < ?;`, network, cutoff)
	}
	if err != nil {
		return 0, fmt.Errorf("delete older than: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
