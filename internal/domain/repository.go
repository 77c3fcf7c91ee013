package domain

import "context"

// UserRepository defines access methods for users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
}

// JobRepository defines persistence for jobs and their step batches.
type JobRepository interface {
	// CreateWithSteps persists the job and its steps atomically; a duplicate
	// step position fails the whole batch with ErrValidation.
	CreateWithSteps(ctx context.Context, job *Job, steps []*Step) error
	GetByID(ctx context.Context, id string) (*Job, error)
	ListByManager(ctx context.Context, managerID string) ([]Job, error)
	ListByWorker(ctx context.Context, workerID string) ([]Job, error)
	ListAll(ctx context.Context) ([]Job, error)
	UpdateStatus(ctx context.Context, jobID string, status JobStatus) error
	// Delete removes the job and cascades over its reviews, uploads and steps.
	Delete(ctx context.Context, jobID string) error
}

// StepRepository defines persistence for steps.
type StepRepository interface {
	GetByID(ctx context.Context, id string) (*Step, error)
	// ListByJob returns the job's steps ordered by position ascending.
	ListByJob(ctx context.Context, jobID string) ([]Step, error)
	// UpdateStatus moves the step from one status to another as a single
	// conditional write. It fails with ErrInvalidState when the step is no
	// longer in the expected prior status, so at most one caller wins a
	// contended transition.
	UpdateStatus(ctx context.Context, stepID string, from, to StepStatus) error
	// Delete removes the step and cascades over its reviews and uploads.
	Delete(ctx context.Context, stepID string) error
}

// UploadRepository defines persistence for the append-only upload history.
type UploadRepository interface {
	Create(ctx context.Context, upload *Upload) error
	GetByID(ctx context.Context, id string) (*Upload, error)
	// ListByStep returns the step's uploads ordered oldest first.
	ListByStep(ctx context.Context, stepID string) ([]Upload, error)
	// LatestByStep returns the step's most recent upload, or ErrNotFound when
	// the step has none.
	LatestByStep(ctx context.Context, stepID string) (*Upload, error)
}

// ReviewRepository defines persistence for review decisions.
type ReviewRepository interface {
	Create(ctx context.Context, review *Review) error
	// GetByUpload returns the upload's first recorded review, or ErrNotFound
	// when the upload is unreviewed. The first review is canonical; the store
	// does not enforce uniqueness.
	GetByUpload(ctx context.Context, uploadID string) (*Review, error)
	// ListByStep returns every review across the step's uploads, ordered by
	// upload then decision time.
	ListByStep(ctx context.Context, stepID string) ([]Review, error)
}

// Store aggregates the repositories the workflow service depends on.
type Store interface {
	Users() UserRepository
	Jobs() JobRepository
	Steps() StepRepository
	Uploads() UploadRepository
	Reviews() ReviewRepository
}
