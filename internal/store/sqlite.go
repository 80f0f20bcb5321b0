package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/pkg/geocode"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sweeps (
	id          TEXT PRIMARY KEY,
	postal_code TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'resolving',
	summary     TEXT,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS postal_cache (
	cache_key  TEXT PRIMARY KEY,
	result     TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sweeps_status ON sweeps(status);
CREATE INDEX IF NOT EXISTS idx_sweeps_postal_code ON sweeps(postal_code);
CREATE INDEX IF NOT EXISTS idx_postal_cache_expires_at ON postal_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSweep(ctx context.Context, sw *model.Sweep) error {
	now := time.Now().UTC()
	if sw.CreatedAt.IsZero() {
		sw.CreatedAt = now
	}
	sw.UpdatedAt = sw.CreatedAt
	if sw.Status == "" {
		sw.Status = model.SweepStatusResolving
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sweeps (id, postal_code, mode, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sw.ID, sw.PostalCode, string(sw.Mode), string(sw.Status), sw.CreatedAt.UTC(), sw.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert sweep %s", sw.ID)
}

func (s *SQLiteStore) UpdateSweepStatus(ctx context.Context, id string, status model.SweepStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sweeps SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update sweep status %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) CompleteSweep(ctx context.Context, id string, status model.SweepStatus, summary *model.SweepSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sweeps SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete sweep %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) GetSweep(ctx context.Context, id string) (*model.Sweep, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, postal_code, mode, status, summary, created_at, updated_at FROM sweeps WHERE id = ?`,
		id,
	)
	return scanSweep(row)
}

func (s *SQLiteStore) ListSweeps(ctx context.Context, filter SweepFilter) ([]model.Sweep, error) {
	query := `SELECT id, postal_code, mode, status, summary, created_at, updated_at FROM sweeps WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.PostalCode != "" {
		query += ` AND postal_code = ?`
		args = append(args, filter.PostalCode)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sweeps")
	}
	defer rows.Close() //nolint:errcheck

	var sweeps []model.Sweep
	for rows.Next() {
		sw, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		sweeps = append(sweeps, *sw)
	}
	return sweeps, eris.Wrap(rows.Err(), "sqlite: list sweeps iterate")
}

func (s *SQLiteStore) GetCachedPostal(ctx context.Context, key string) (*geocode.Result, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM postal_cache WHERE cache_key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached postal")
	}

	var r geocode.Result
	if err := json.Unmarshal([]byte(resultJSON), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached postal")
	}
	return &r, nil
}

func (s *SQLiteStore) SetCachedPostal(ctx context.Context, key string, r *geocode.Result, ttl time.Duration) error {
	resultJSON, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal postal result")
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO postal_cache (cache_key, result, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET result = excluded.result, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, string(resultJSON), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached postal")
}

func (s *SQLiteStore) DeleteExpiredPostal(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM postal_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired postal")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrSweepNotFound, "id %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSweep(row scannable) (*model.Sweep, error) {
	var sw model.Sweep
	var summaryJSON sql.NullString

	err := row.Scan(&sw.ID, &sw.PostalCode, &sw.Mode, &sw.Status, &summaryJSON, &sw.CreatedAt, &sw.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSweepNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan sweep")
	}

	if summaryJSON.Valid && summaryJSON.String != "" && summaryJSON.String != "null" {
		sw.Summary = &model.SweepSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), sw.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &sw, nil
}
