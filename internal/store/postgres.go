package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/camera-recon/internal/db"
	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/pkg/geocode"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"insert_sweep":        `INSERT INTO sweeps (id, postal_code, mode, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_sweep_status": `UPDATE sweeps SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_sweep":           `SELECT id, postal_code, mode, status, summary, created_at, updated_at FROM sweeps WHERE id = $1`,
	"get_cached_postal":   `SELECT result FROM postal_cache WHERE cache_key = $1 AND expires_at > now()`,
}

var sweepDeviceColumns = []string{
	"sweep_id", "identity", "signature", "organization", "product", "city", "latitude", "longitude", "port",
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sweeps (
	id          TEXT PRIMARY KEY,
	postal_code TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'resolving',
	summary     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sweep_devices (
	sweep_id     TEXT NOT NULL REFERENCES sweeps(id) ON DELETE CASCADE,
	identity     TEXT NOT NULL,
	signature    TEXT,
	organization TEXT,
	product      TEXT,
	city         TEXT,
	latitude     DOUBLE PRECISION,
	longitude    DOUBLE PRECISION,
	port         INTEGER,
	PRIMARY KEY (sweep_id, identity)
);

CREATE TABLE IF NOT EXISTS postal_cache (
	cache_key  TEXT PRIMARY KEY,
	result     JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sweeps_status ON sweeps(status);
CREATE INDEX IF NOT EXISTS idx_sweeps_postal_code ON sweeps(postal_code);
CREATE INDEX IF NOT EXISTS idx_sweep_devices_identity ON sweep_devices(identity);
CREATE INDEX IF NOT EXISTS idx_postal_cache_expires_at ON postal_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSweep(ctx context.Context, sw *model.Sweep) error {
	if sw.CreatedAt.IsZero() {
		sw.CreatedAt = time.Now().UTC()
	}
	sw.UpdatedAt = sw.CreatedAt
	if sw.Status == "" {
		sw.Status = model.SweepStatusResolving
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sweeps (id, postal_code, mode, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		sw.ID, sw.PostalCode, string(sw.Mode), string(sw.Status), sw.CreatedAt, sw.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert sweep %s", sw.ID)
}

func (s *PostgresStore) UpdateSweepStatus(ctx context.Context, id string, status model.SweepStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sweeps SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update sweep status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrSweepNotFound, "id %s", id)
	}
	return nil
}

// CompleteSweep stores the summary and copies the devices into
// sweep_devices in one transaction.
func (s *PostgresStore) CompleteSweep(ctx context.Context, id string, status model.SweepStatus, summary *model.SweepSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE sweeps SET summary = $1, status = $2, updated_at = $3 WHERE id = $4`,
			summaryJSON, string(status), time.Now().UTC(), id,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: complete sweep %s", id)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrSweepNotFound, "id %s", id)
		}
		if summary == nil || len(summary.Devices) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(summary.Devices))
		for _, d := range summary.Devices {
			rows = append(rows, []any{
				id, d.Identity, d.Signature, d.Organization, d.Product, d.City, d.Latitude, d.Longitude, d.Port,
			})
		}
		_, err = db.CopyFrom(ctx, tx, "sweep_devices", sweepDeviceColumns, rows)
		return err
	})
}

func (s *PostgresStore) GetSweep(ctx context.Context, id string) (*model.Sweep, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, postal_code, mode, status, summary, created_at, updated_at FROM sweeps WHERE id = $1`,
		id,
	)
	sw, err := scanPgSweep(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSweepNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get sweep %s", id)
	}
	return sw, nil
}

func (s *PostgresStore) ListSweeps(ctx context.Context, filter SweepFilter) ([]model.Sweep, error) {
	query := `SELECT id, postal_code, mode, status, summary, created_at, updated_at FROM sweeps WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.PostalCode != "" {
		query += fmt.Sprintf(` AND postal_code = $%d`, argIdx)
		args = append(args, filter.PostalCode)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sweeps")
	}
	defer rows.Close()

	var sweeps []model.Sweep
	for rows.Next() {
		sw, err := scanPgSweep(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan sweep")
		}
		sweeps = append(sweeps, *sw)
	}
	return sweeps, eris.Wrap(rows.Err(), "postgres: list sweeps iterate")
}

func (s *PostgresStore) GetCachedPostal(ctx context.Context, key string) (*geocode.Result, error) {
	var resultJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM postal_cache WHERE cache_key = $1 AND expires_at > now()`,
		key,
	).Scan(&resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached postal")
	}

	var r geocode.Result
	if err := json.Unmarshal(resultJSON, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached postal")
	}
	return &r, nil
}

func (s *PostgresStore) SetCachedPostal(ctx context.Context, key string, r *geocode.Result, ttl time.Duration) error {
	resultJSON, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal postal result")
	}
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO postal_cache (cache_key, result, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cache_key) DO UPDATE SET result = $2, cached_at = $3, expires_at = $4`,
		key, resultJSON, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached postal")
}

func (s *PostgresStore) DeleteExpiredPostal(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM postal_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired postal")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgSweep(row pgx.Row) (*model.Sweep, error) {
	var sw model.Sweep
	var mode, status string
	var summaryJSON []byte

	if err := row.Scan(&sw.ID, &sw.PostalCode, &mode, &status, &summaryJSON, &sw.CreatedAt, &sw.UpdatedAt); err != nil {
		return nil, err
	}
	sw.Mode = model.ScanMode(mode)
	sw.Status = model.SweepStatus(status)

	if len(summaryJSON) > 0 {
		sw.Summary = &model.SweepSummary{}
		if err := json.Unmarshal(summaryJSON, sw.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &sw, nil
}
