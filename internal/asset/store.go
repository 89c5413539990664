package asset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by SQLiteStore lookups that match nothing.
var ErrNotFound = errors.New("asset: not found")

const (
	insertResourceQuery = `
		INSERT OR IGNORE INTO asset_resources (uid, spec, root, resource_path, resource_kwargs, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	insertDatumQuery = `
		INSERT OR IGNORE INTO asset_datums (datum_id, resource, datum_kwargs, created_at)
		VALUES (?, ?, ?, ?)`

	selectResourceQuery = `
		SELECT uid, spec, root, resource_path, resource_kwargs
		FROM asset_resources WHERE uid = ?`

	selectDatumsQuery = `
		SELECT datum_id, resource, datum_kwargs
		FROM asset_datums WHERE resource = ? ORDER BY created_at, rowid`

	selectDatumQuery = `
		SELECT datum_id, resource, datum_kwargs
		FROM asset_datums WHERE datum_id = ?`
)

// SQLiteStore indexes asset documents in the asset_resources and
// asset_datums tables.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Consume inserts docs in one transaction. Re-inserting a known uid is a no-op.
func (s *SQLiteStore) Consume(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrStorageWrite, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, d := range docs {
		if err := insertDocument(ctx, tx, d, now); err != nil {
			return fmt.Errorf("%w: %s %s: %w", ErrStorageWrite, d.Kind, d.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStorageWrite, err)
	}
	return nil
}

func insertDocument(ctx context.Context, tx *sql.Tx, d Document, now string) error {
	switch {
	case d.Resource != nil:
		kwargs, err := json.Marshal(d.Resource.Kwargs)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, insertResourceQuery,
			d.Resource.ID, string(d.Resource.Spec), d.Resource.Root, d.Resource.ResourcePath, string(kwargs), now)
		return err
	case d.Datum != nil:
		kwargs, err := json.Marshal(d.Datum.Kwargs)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, insertDatumQuery,
			d.Datum.ID, d.Datum.ResourceID, string(kwargs), now)
		return err
	default:
		return fmt.Errorf("empty document")
	}
}

// GetResource returns a stored resource.
func (s *SQLiteStore) GetResource(ctx context.Context, uid string) (Resource, error) {
	var (
		res    Resource
		spec   string
		kwargs string
	)
	err := s.db.QueryRowContext(ctx, selectResourceQuery, uid).
		Scan(&res.ID, &spec, &res.Root, &res.ResourcePath, &kwargs)
	if errors.Is(err, sql.ErrNoRows) {
		return Resource{}, fmt.Errorf("%w: resource %s", ErrNotFound, uid)
	}
	if err != nil {
		return Resource{}, fmt.Errorf("querying resource: %w", err)
	}
	res.Spec = Spec(spec)
	if err := json.Unmarshal([]byte(kwargs), &res.Kwargs); err != nil {
		return Resource{}, fmt.Errorf("decoding resource kwargs: %w", err)
	}
	return res, nil
}

// GetDatum returns a stored datum.
func (s *SQLiteStore) GetDatum(ctx context.Context, datumID string) (Datum, error) {
	d, err := scanDatum(s.db.QueryRowContext(ctx, selectDatumQuery, datumID))
	if errors.Is(err, sql.ErrNoRows) {
		return Datum{}, fmt.Errorf("%w: datum %s", ErrNotFound, datumID)
	}
	return d, err
}

// ListDatums returns the datums of a resource in insertion order.
func (s *SQLiteStore) ListDatums(ctx context.Context, resourceID string) ([]Datum, error) {
	rows, err := s.db.QueryContext(ctx, selectDatumsQuery, resourceID)
	if err != nil {
		return nil, fmt.Errorf("querying datums: %w", err)
	}
	defer rows.Close()

	var datums []Datum
	for rows.Next() {
		d, err := scanDatum(rows)
		if err != nil {
			return nil, err
		}
		datums = append(datums, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating datums: %w", err)
	}
	return datums, nil
}

// Resolve looks up a datum and its resource and returns the payload path.
func (s *SQLiteStore) Resolve(ctx context.Context, datumID string) (string, error) {
	d, err := s.GetDatum(ctx, datumID)
	if err != nil {
		return "", err
	}
	res, err := s.GetResource(ctx, d.ResourceID)
	if err != nil {
		return "", err
	}
	return ResolvePath(res, d)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDatum(row rowScanner) (Datum, error) {
	var (
		d      Datum
		kwargs string
	)
	if err := row.Scan(&d.ID, &d.ResourceID, &kwargs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Datum{}, err
		}
		return Datum{}, fmt.Errorf("scanning datum: %w", err)
	}
	if err := json.Unmarshal([]byte(kwargs), &d.Kwargs); err != nil {
		return Datum{}, fmt.Errorf("decoding datum kwargs: %w", err)
	}
	return d, nil
}
