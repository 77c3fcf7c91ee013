package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// ReviewRepositoryPG implements domain.ReviewRepository.
type ReviewRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewReviewRepository creates a new review repository backed by PostgreSQL.
func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepositoryPG {
	return &ReviewRepositoryPG{pool: pool}
}

const reviewColumns = `id, upload_id, manager_id, decision, feedback, created_at`

// Create records a decision against an upload.
func (r *ReviewRepositoryPG) Create(ctx context.Context, review *domain.Review) error {
	query := `
INSERT INTO reviews (id, upload_id, manager_id, decision, feedback, created_at)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, query,
		review.ID,
		review.UploadID,
		review.ManagerID,
		review.Decision,
		review.Feedback,
		review.CreatedAt,
	)
	if err != nil {
		return storageErr("create review", err)
	}
	return nil
}

// GetByUpload returns the upload's first recorded review; the first one is
// canonical since the store does not enforce uniqueness.
func (r *ReviewRepositoryPG) GetByUpload(ctx context.Context, uploadID string) (*domain.Review, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE upload_id = $1 ORDER BY created_at, id LIMIT 1`, uploadID)
	rv, err := scanReview(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: upload %s has no review", domain.ErrNotFound, uploadID)
		}
		return nil, storageErr("get review", err)
	}
	return rv, nil
}

// ListByStep returns every review across the step's uploads in decision order.
func (r *ReviewRepositoryPG) ListByStep(ctx context.Context, stepID string) ([]domain.Review, error) {
	query := `
SELECT r.id, r.upload_id, r.manager_id, r.decision, r.feedback, r.created_at
FROM reviews r
JOIN uploads u ON r.upload_id = u.id
WHERE u.step_id = $1
ORDER BY r.created_at, r.id;
`
	rows, err := r.pool.Query(ctx, query, stepID)
	if err != nil {
		return nil, storageErr("list reviews", err)
	}
	defer rows.Close()
	out := make([]domain.Review, 0)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, storageErr("scan review", err)
		}
		out = append(out, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list reviews", err)
	}
	return out, nil
}

func scanReview(row pgx.Row) (*domain.Review, error) {
	var rv domain.Review
	if err := row.Scan(&rv.ID, &rv.UploadID, &rv.ManagerID, &rv.Decision, &rv.Feedback, &rv.CreatedAt); err != nil {
		return nil, err
	}
	return &rv, nil
}
