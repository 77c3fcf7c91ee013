package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// StepRepositoryPG implements domain.StepRepository.
type StepRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewStepRepository creates a new step repository backed by PostgreSQL.
func NewStepRepository(pool *pgxpool.Pool) *StepRepositoryPG {
	return &StepRepositoryPG{pool: pool}
}

const stepColumns = `id, job_id, title, description, instructions, position, status, deadline, created_at`

// GetByID fetches a step by its identifier.
func (r *StepRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Step, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+stepColumns+` FROM steps WHERE id = $1`, id)
	step, err := scanStep(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: step %s", domain.ErrNotFound, id)
		}
		return nil, storageErr("get step", err)
	}
	return step, nil
}

// ListByJob returns the job's steps ordered by position ascending.
func (r *StepRepositoryPG) ListByJob(ctx context.Context, jobID string) ([]domain.Step, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stepColumns+` FROM steps WHERE job_id = $1 ORDER BY position`, jobID)
	if err != nil {
		return nil, storageErr("list steps", err)
	}
	defer rows.Close()
	out := make([]domain.Step, 0)
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, storageErr("scan step", err)
		}
		out = append(out, *step)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list steps", err)
	}
	return out, nil
}

// UpdateStatus performs the conditional transition write. The WHERE clause on
// the prior status makes concurrent writers race for a single affected row;
// the loser sees ErrInvalidState.
func (r *StepRepositoryPG) UpdateStatus(ctx context.Context, stepID string, from, to domain.StepStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE steps SET status = $3 WHERE id = $1 AND status = $2`, stepID, from, to)
	if err != nil {
		return storageErr("update step status", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var current domain.StepStatus
	row := r.pool.QueryRow(ctx, `SELECT status FROM steps WHERE id = $1`, stepID)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: step %s", domain.ErrNotFound, stepID)
		}
		return storageErr("get step status", err)
	}
	return fmt.Errorf("%w: step is %s, expected %s", domain.ErrInvalidState, current, from)
}

// Delete removes the step, cascading reviews then uploads.
func (r *StepRepositoryPG) Delete(ctx context.Context, stepID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storageErr("begin delete step", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM reviews WHERE upload_id IN (SELECT id FROM uploads WHERE step_id = $1)`, stepID); err != nil {
		return storageErr("delete step reviews", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM uploads WHERE step_id = $1`, stepID); err != nil {
		return storageErr("delete step uploads", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM steps WHERE id = $1`, stepID)
	if err != nil {
		return storageErr("delete step", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: step %s", domain.ErrNotFound, stepID)
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit delete step", err)
	}
	return nil
}

func scanStep(row pgx.Row) (*domain.Step, error) {
	var s domain.Step
	if err := row.Scan(&s.ID, &s.JobID, &s.Title, &s.Description, &s.Instructions, &s.Position, &s.Status, &s.Deadline, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
