// Package postgres persists annotation task state and export records.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// schemaLockKey serializes bootstrap DDL across api/worker startups.
const schemaLockKey = int64(2026082501)

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

// EnsureSchema creates the task and export tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS study_tasks (
	id TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL,
	study_id TEXT NOT NULL,
	study_dir TEXT NOT NULL,
	image_path TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	crop_details JSONB NOT NULL DEFAULT '{}'::jsonb,
	assessment TEXT NOT NULL DEFAULT '',
	examination_ts TEXT NOT NULL DEFAULT '',
	version TEXT NOT NULL DEFAULT '',
	ls_project_id BIGINT NOT NULL DEFAULT 0,
	ls_task_id BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_study_tasks_status ON study_tasks(status);
CREATE INDEX IF NOT EXISTS idx_study_tasks_patient_study ON study_tasks(patient_id, study_id);

CREATE TABLE IF NOT EXISTS annotation_exports (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL DEFAULT '',
	ls_task_id BIGINT NOT NULL,
	ls_annotation_id BIGINT NOT NULL,
	view_key TEXT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	annotated_pixels INTEGER NOT NULL DEFAULT 0,
	output_path TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_annotation_exports_ls_task ON annotation_exports(ls_task_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
