package stage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	listSamplesQuery = `SELECT idx, position FROM samples ORDER BY idx`

	upsertSampleQuery = `
		INSERT INTO samples (idx, position, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(idx) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`

	getCenterQuery = `SELECT position FROM stage_center WHERE id = 1`

	upsertCenterQuery = `
		INSERT INTO stage_center (id, position, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`
)

// SQLiteRepository stores positions in the samples and stage_center tables
// as JSON objects.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an already migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListSamples returns every saved sample.
func (r *SQLiteRepository) ListSamples(ctx context.Context) (map[int]Position, error) {
	rows, err := r.db.QueryContext(ctx, listSamplesQuery)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	out := make(map[int]Position)
	for rows.Next() {
		var (
			idx int
			raw string
		)
		if err := rows.Scan(&idx, &raw); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		var pos Position
		if err := json.Unmarshal([]byte(raw), &pos); err != nil {
			return nil, fmt.Errorf("decoding sample %d: %w", idx, err)
		}
		out[idx] = pos
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating samples: %w", err)
	}
	return out, nil
}

// SaveSample inserts or replaces one sample.
func (r *SQLiteRepository) SaveSample(ctx context.Context, idx int, pos Position) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encoding sample %d: %w", idx, err)
	}
	if _, err := r.db.ExecContext(ctx, upsertSampleQuery, idx, string(raw), now()); err != nil {
		return fmt.Errorf("saving sample %d: %w", idx, err)
	}
	return nil
}

// SaveSamples inserts or replaces many samples in one transaction.
func (r *SQLiteRepository) SaveSamples(ctx context.Context, samples map[int]Position) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	ts := now()
	for _, idx := range sortedKeys(samples) {
		raw, err := json.Marshal(samples[idx])
		if err != nil {
			return fmt.Errorf("encoding sample %d: %w", idx, err)
		}
		if _, err := tx.ExecContext(ctx, upsertSampleQuery, idx, string(raw), ts); err != nil {
			return fmt.Errorf("saving sample %d: %w", idx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing samples: %w", err)
	}
	return nil
}

// GetCenter returns the saved center; ok is false when none was saved.
func (r *SQLiteRepository) GetCenter(ctx context.Context) (pos Position, ok bool, err error) {
	var raw string
	err = r.db.QueryRowContext(ctx, getCenterQuery).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying center: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &pos); err != nil {
		return nil, false, fmt.Errorf("decoding center: %w", err)
	}
	return pos, true, nil
}

// SaveCenter inserts or replaces the center.
func (r *SQLiteRepository) SaveCenter(ctx context.Context, pos Position) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encoding center: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, upsertCenterQuery, string(raw), now()); err != nil {
		return fmt.Errorf("saving center: %w", err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
var _ Repository = (*SQLiteRepository)(nil)
