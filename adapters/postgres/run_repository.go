package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"siterisk/domain/core"
	"siterisk/domain/run"
	"siterisk/internal/errors"
	"siterisk/ports"
)

// RunRepository persists completed run results as JSONB payloads.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a PostgreSQL run store.
func NewRunRepository(db *sqlx.DB) ports.RunStore {
	return &RunRepository{db: db}
}

// Connect opens a database handle and verifies connectivity.
func Connect(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "database ping failed")
	}
	return db, nil
}

// Migrate creates the runs table when absent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_runs (
			id            TEXT PRIMARY KEY,
			fingerprint   TEXT NOT NULL,
			site_count    INT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			runtime_ms    BIGINT NOT NULL,
			result        JSONB NOT NULL
		)`)
	if err != nil {
		return errors.Wrap(err, "failed to create risk_runs table")
	}
	return nil
}

// SaveRun stores a run result, replacing any previous row with the same ID.
func (r *RunRepository) SaveRun(ctx context.Context, result *run.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "failed to marshal run result")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO risk_runs (id, fingerprint, site_count, created_at, runtime_ms, result)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			site_count = EXCLUDED.site_count,
			created_at = EXCLUDED.created_at,
			runtime_ms = EXCLUDED.runtime_ms,
			result = EXCLUDED.result`,
		result.RunID.String(), result.Fingerprint.String(),
		result.Manifest.SiteCount, result.Manifest.CreatedAt,
		result.Manifest.RuntimeMs, payload)
	if err != nil {
		return errors.Wrap(err, "failed to save run")
	}
	return nil
}

// GetRun retrieves a run result by ID.
func (r *RunRepository) GetRun(ctx context.Context, id core.RunID) (*run.Result, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT result FROM risk_runs WHERE id = $1`, id.String()).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("run")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load run")
	}

	var result run.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal run result")
	}
	return &result, nil
}

// ListRuns returns the most recent run manifests.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]run.Manifest, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, fingerprint, site_count, created_at, runtime_ms
		FROM risk_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var manifests []run.Manifest
	for rows.Next() {
		var m run.Manifest
		var id, fingerprint string
		if err := rows.Scan(&id, &fingerprint, &m.SiteCount, &m.CreatedAt, &m.RuntimeMs); err != nil {
			return nil, errors.Wrap(err, "failed to scan run row")
		}
		m.RunID = core.RunID(id)
		manifests = append(manifests, m)
	}
	return manifests, rows.Err()
}
