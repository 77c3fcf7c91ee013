// Package repo implements the domain store on PostgreSQL via pgx.
package repo

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// Store bundles the pgx-backed repositories behind domain.Store.
type Store struct {
	pool    *pgxpool.Pool
	users   *UserRepositoryPG
	jobs    *JobRepositoryPG
	steps   *StepRepositoryPG
	uploads *UploadRepositoryPG
	reviews *ReviewRepositoryPG
}

// NewStore creates a Store over the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		users:   NewUserRepository(pool),
		jobs:    NewJobRepository(pool),
		steps:   NewStepRepository(pool),
		uploads: NewUploadRepository(pool),
		reviews: NewReviewRepository(pool),
	}
}

func (s *Store) Users() domain.UserRepository     { return s.users }
func (s *Store) Jobs() domain.JobRepository       { return s.jobs }
func (s *Store) Steps() domain.StepRepository     { return s.steps }
func (s *Store) Uploads() domain.UploadRepository { return s.uploads }
func (s *Store) Reviews() domain.ReviewRepository { return s.reviews }

var _ domain.Store = (*Store)(nil)

const uniqueViolation = "23505"

// storageErr folds driver failures into the generic storage error so callers
// can map them without seeing driver detail. Constraint violations on unique
// keys surface as validation errors instead.
func storageErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s: duplicate key", domain.ErrValidation, op)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStorage, op, err)
}
