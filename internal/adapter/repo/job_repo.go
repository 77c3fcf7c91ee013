package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// CreateWithSteps inserts the job and its step batch in one transaction.
func (r *JobRepositoryPG) CreateWithSteps(ctx context.Context, job *domain.Job, steps []*domain.Step) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storageErr("begin create job", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO jobs (id, title, description, manager_id, worker_id, status, deadline, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`, job.ID, job.Title, job.Description, job.ManagerID, job.WorkerID, job.Status, job.Deadline, job.CreatedAt)
	if err != nil {
		return storageErr("create job", err)
	}
	for _, st := range steps {
		_, err = tx.Exec(ctx, `
INSERT INTO steps (id, job_id, title, description, instructions, position, status, deadline, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`, st.ID, st.JobID, st.Title, st.Description, st.Instructions, st.Position, st.Status, st.Deadline, st.CreatedAt)
		if err != nil {
			return storageErr("create step", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit create job", err)
	}
	return nil
}

const jobColumns = `id, title, description, manager_id, worker_id, status, deadline, created_at`

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
		}
		return nil, storageErr("get job", err)
	}
	return job, nil
}

// ListByManager returns jobs managed by the given user, oldest first.
func (r *JobRepositoryPG) ListByManager(ctx context.Context, managerID string) ([]domain.Job, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE manager_id = $1 ORDER BY created_at, id`, managerID)
}

// ListByWorker returns jobs assigned to the given worker, oldest first.
func (r *JobRepositoryPG) ListByWorker(ctx context.Context, workerID string) ([]domain.Job, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE worker_id = $1 ORDER BY created_at, id`, workerID)
}

// ListAll returns every job, oldest first.
func (r *JobRepositoryPG) ListAll(ctx context.Context) ([]domain.Job, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at, id`)
}

func (r *JobRepositoryPG) list(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list jobs", err)
	}
	defer rows.Close()
	out := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, storageErr("scan job", err)
		}
		out = append(out, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list jobs", err)
	}
	return out, nil
}

// UpdateStatus rewrites the cached aggregate status.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE jobs SET status = $2 WHERE id = $1`, jobID, status)
	if err != nil {
		return storageErr("update job status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	return nil
}

// Delete removes the job, cascading reviews, then uploads, then steps.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storageErr("begin delete job", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
DELETE FROM reviews WHERE upload_id IN (
	SELECT u.id FROM uploads u JOIN steps s ON u.step_id = s.id WHERE s.job_id = $1
);
`, jobID); err != nil {
		return storageErr("delete job reviews", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM uploads WHERE step_id IN (SELECT id FROM steps WHERE job_id = $1)`, jobID); err != nil {
		return storageErr("delete job uploads", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM steps WHERE job_id = $1`, jobID); err != nil {
		return storageErr("delete job steps", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		return storageErr("delete job", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit delete job", err)
	}
	return nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	if err := row.Scan(&j.ID, &j.Title, &j.Description, &j.ManagerID, &j.WorkerID, &j.Status, &j.Deadline, &j.CreatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}
