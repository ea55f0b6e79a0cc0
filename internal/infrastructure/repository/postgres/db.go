package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS maps (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	name TEXT NOT NULL,
	filename TEXT NOT NULL,
	file_type TEXT NOT NULL,
	file_size BIGINT NOT NULL DEFAULT 0,
	mime_type TEXT NOT NULL DEFAULT '',
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	scale JSONB,
	calibration_version INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL,
	uploaded_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	calibrated_at TIMESTAMPTZ,
	UNIQUE (project_id, name, version)
);

CREATE INDEX IF NOT EXISTS idx_maps_project ON maps(project_id, name, version DESC);

CREATE TABLE IF NOT EXISTS measurements (
	id TEXT PRIMARY KEY,
	map_id TEXT NOT NULL REFERENCES maps(id),
	project_id TEXT NOT NULL,
	type TEXT NOT NULL,
	points JSONB NOT NULL,
	height DOUBLE PRECISION,
	value DOUBLE PRECISION NOT NULL,
	unit TEXT NOT NULL,
	display_value TEXT NOT NULL,
	calibration_version INTEGER NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_measurements_map ON measurements(map_id);
CREATE INDEX IF NOT EXISTS idx_measurements_project ON measurements(project_id);

CREATE TABLE IF NOT EXISTS cost_estimates (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	map_id TEXT REFERENCES maps(id),
	name TEXT NOT NULL DEFAULT '',
	measurement_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	items JSONB NOT NULL DEFAULT '[]'::jsonb,
	subtotal DOUBLE PRECISION NOT NULL DEFAULT 0,
	tax_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	tax_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	total DOUBLE PRECISION NOT NULL DEFAULT 0,
	currency TEXT NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cost_estimates_project ON cost_estimates(project_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cost_estimates_map ON cost_estimates(map_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

func rowsAffected(result sql.Result, operation string) (int, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", operation, err)
	}
	return int(n), nil
}

// txFailed marks an error raised after a transaction started mutating.
// Rollback is deferred by the caller, so nothing was committed.
func txFailed(operation string, err error) error {
	return domain.WrapError(domain.ErrTransaction, operation, err)
}
