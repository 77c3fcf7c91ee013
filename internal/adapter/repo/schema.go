package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the tables if needed. Keeping the migration in code
// keeps a fresh database bootable without separate tooling. The unique
// (job_id, position) index backs the duplicate-order guard at step creation.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	role TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS jobs (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	manager_id UUID NOT NULL REFERENCES users(id),
	worker_id UUID NOT NULL REFERENCES users(id),
	status TEXT NOT NULL,
	deadline TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS steps (
	id UUID PRIMARY KEY,
	job_id UUID NOT NULL REFERENCES jobs(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	instructions TEXT NOT NULL DEFAULT '',
	position INT NOT NULL CHECK (position > 0),
	status TEXT NOT NULL,
	deadline TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (job_id, position)
);
CREATE TABLE IF NOT EXISTS uploads (
	id UUID PRIMARY KEY,
	step_id UUID NOT NULL REFERENCES steps(id),
	worker_id UUID NOT NULL REFERENCES users(id),
	file_name TEXT NOT NULL,
	original_name TEXT NOT NULL DEFAULT '',
	mime_type TEXT NOT NULL DEFAULT '',
	size_bytes BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS reviews (
	id UUID PRIMARY KEY,
	upload_id UUID NOT NULL REFERENCES uploads(id),
	manager_id UUID NOT NULL REFERENCES users(id),
	decision TEXT NOT NULL,
	feedback TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_steps_job ON steps(job_id, position);
CREATE INDEX IF NOT EXISTS idx_uploads_step ON uploads(step_id, created_at);
CREATE INDEX IF NOT EXISTS idx_reviews_upload ON reviews(upload_id, created_at);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
