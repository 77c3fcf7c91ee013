package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// UploadRepositoryPG implements domain.UploadRepository.
type UploadRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUploadRepository creates a new upload repository backed by PostgreSQL.
func NewUploadRepository(pool *pgxpool.Pool) *UploadRepositoryPG {
	return &UploadRepositoryPG{pool: pool}
}

const uploadColumns = `id, step_id, worker_id, file_name, original_name, mime_type, size_bytes, created_at`

// Create appends a new upload to the step's history.
func (r *UploadRepositoryPG) Create(ctx context.Context, upload *domain.Upload) error {
	query := `
INSERT INTO uploads (id, step_id, worker_id, file_name, original_name, mime_type, size_bytes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := r.pool.Exec(ctx, query,
		upload.ID,
		upload.StepID,
		upload.WorkerID,
		upload.FileName,
		upload.OriginalName,
		upload.MimeType,
		upload.Size,
		upload.CreatedAt,
	)
	if err != nil {
		return storageErr("create upload", err)
	}
	return nil
}

// GetByID fetches an upload by its identifier.
func (r *UploadRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Upload, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = $1`, id)
	up, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: upload %s", domain.ErrNotFound, id)
		}
		return nil, storageErr("get upload", err)
	}
	return up, nil
}

// ListByStep returns the step's uploads oldest first.
func (r *UploadRepositoryPG) ListByStep(ctx context.Context, stepID string) ([]domain.Upload, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE step_id = $1 ORDER BY created_at, id`, stepID)
	if err != nil {
		return nil, storageErr("list uploads", err)
	}
	defer rows.Close()
	out := make([]domain.Upload, 0)
	for rows.Next() {
		up, err := scanUpload(rows)
		if err != nil {
			return nil, storageErr("scan upload", err)
		}
		out = append(out, *up)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list uploads", err)
	}
	return out, nil
}

// LatestByStep returns the step's most recent upload.
func (r *UploadRepositoryPG) LatestByStep(ctx context.Context, stepID string) (*domain.Upload, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE step_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, stepID)
	up, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: step %s has no uploads", domain.ErrNotFound, stepID)
		}
		return nil, storageErr("latest upload", err)
	}
	return up, nil
}

func scanUpload(row pgx.Row) (*domain.Upload, error) {
	var u domain.Upload
	if err := row.Scan(&u.ID, &u.StepID, &u.WorkerID, &u.FileName, &u.OriginalName, &u.MimeType, &u.Size, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
