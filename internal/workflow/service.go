// Package workflow coordinates the gated approval workflow: upload and review
// submissions pass through here, which sequences the step state machine, the
// job aggregation rules and the store so the single-active-step invariant
// holds after every operation.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Service is the workflow orchestrator.
type Service struct {
	store domain.Store
	log   zerolog.Logger
	locks *stripedLocks
	now   func() time.Time
	newID func() string
}

// NewService creates a workflow service over the given store.
func NewService(store domain.Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("component", "workflow").Logger(),
		locks: newStripedLocks(64),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// CreateJob validates the drafts and persists the job with its steps in one
// atomic batch: positions 1..N in draft order, first step awaiting_upload,
// the rest pending, job in_progress.
func (s *Service) CreateJob(ctx context.Context, actor domain.Actor, in CreateJobInput) (*JobWithSteps, error) {
	if actor.Role != domain.UserRoleManager {
		return nil, fmt.Errorf("%w: only managers create jobs", domain.ErrForbidden)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: job title is required", domain.ErrValidation)
	}
	if len(in.Steps) == 0 {
		return nil, fmt.Errorf("%w: a job needs at least one step", domain.ErrValidation)
	}
	worker, err := s.store.Users().GetByID(ctx, in.WorkerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: worker %s", domain.ErrNotFound, in.WorkerID)
		}
		return nil, err
	}
	if worker.Role != domain.UserRoleWorker {
		return nil, fmt.Errorf("%w: jobs must be assigned to a worker account", domain.ErrValidation)
	}

	now := s.now().UTC()
	job := &domain.Job{
		ID:          s.newID(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		ManagerID:   actor.ID,
		WorkerID:    worker.ID,
		Status:      domain.JobStatusInProgress,
		Deadline:    in.Deadline,
		CreatedAt:   now,
	}
	steps := make([]*domain.Step, 0, len(in.Steps))
	for i, draft := range in.Steps {
		if strings.TrimSpace(draft.Title) == "" {
			return nil, fmt.Errorf("%w: step %d title is required", domain.ErrValidation, i+1)
		}
		status := domain.StepStatusPending
		if i == 0 {
			status = domain.StepStatusAwaitingUpload
		}
		steps = append(steps, &domain.Step{
			ID:           s.newID(),
			JobID:        job.ID,
			Title:        strings.TrimSpace(draft.Title),
			Description:  draft.Description,
			Instructions: draft.Instructions,
			Position:     i + 1,
			Status:       status,
			Deadline:     draft.Deadline,
			CreatedAt:    now,
		})
	}
	if err := s.store.Jobs().CreateWithSteps(ctx, job, steps); err != nil {
		return nil, err
	}
	s.log.Info().Str("job_id", job.ID).Str("worker_id", worker.ID).Int("steps", len(steps)).Msg("job created")
	return s.assemble(ctx, job)
}

// SubmitUpload records a worker photo submission against an upload-eligible
// step and moves the step to awaiting_review.
func (s *Service) SubmitUpload(ctx context.Context, actor domain.Actor, stepID string, meta domain.FileMeta) (*domain.Upload, error) {
	if strings.TrimSpace(meta.FileName) == "" {
		return nil, fmt.Errorf("%w: upload file reference is required", domain.ErrValidation)
	}
	step, err := s.store.Steps().GetByID(ctx, stepID)
	if err != nil {
		return nil, err
	}
	job, err := s.store.Jobs().GetByID(ctx, step.JobID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.UserRoleWorker || actor.ID != job.WorkerID {
		return nil, fmt.Errorf("%w: only the assigned worker may upload to this step", domain.ErrForbidden)
	}

	unlock := s.locks.lock(stepID)
	defer unlock()

	// Re-read under the lock so the eligibility check sees the latest status.
	step, err = s.store.Steps().GetByID(ctx, stepID)
	if err != nil {
		return nil, err
	}
	next, err := domain.TransitionOnUpload(step.Status)
	if err != nil {
		return nil, err
	}
	upload := &domain.Upload{
		ID:           s.newID(),
		StepID:       step.ID,
		WorkerID:     actor.ID,
		FileName:     meta.FileName,
		OriginalName: meta.OriginalName,
		MimeType:     meta.MimeType,
		Size:         meta.Size,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Uploads().Create(ctx, upload); err != nil {
		return nil, err
	}
	if err := s.store.Steps().UpdateStatus(ctx, step.ID, step.Status, next); err != nil {
		return nil, err
	}
	if err := s.refreshJobStatus(ctx, job.ID); err != nil {
		return nil, err
	}
	s.log.Info().Str("step_id", step.ID).Str("upload_id", upload.ID).Msg("upload submitted")
	return upload, nil
}

// SubmitReview records a manager decision on the step's latest upload. An
// approval closes the step and advances the job; a rejection reopens the
// step for a new upload and leaves the job's active step unchanged.
func (s *Service) SubmitReview(ctx context.Context, actor domain.Actor, uploadID string, decision domain.ReviewDecision, feedback string) (*domain.Review, error) {
	if decision != domain.ReviewApproved && decision != domain.ReviewRejected {
		return nil, fmt.Errorf("%w: unknown decision %q", domain.ErrValidation, decision)
	}
	feedback = strings.TrimSpace(feedback)
	if decision == domain.ReviewRejected && feedback == "" {
		return nil, fmt.Errorf("%w: feedback is required when rejecting", domain.ErrValidation)
	}
	upload, err := s.store.Uploads().GetByID(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	job, err := s.jobOfStep(ctx, upload.StepID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.UserRoleManager || actor.ID != job.ManagerID {
		return nil, fmt.Errorf("%w: only the job's manager may review", domain.ErrForbidden)
	}

	unlock := s.locks.lock(upload.StepID)
	defer unlock()

	step, err := s.store.Steps().GetByID(ctx, upload.StepID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.Uploads().LatestByStep(ctx, step.ID)
	if err != nil {
		return nil, err
	}
	if latest.ID != upload.ID {
		return nil, fmt.Errorf("%w: upload %s is not the step's latest submission", domain.ErrInvalidState, upload.ID)
	}
	if _, err := s.store.Reviews().GetByUpload(ctx, uploadID); err == nil {
		return nil, fmt.Errorf("%w: upload %s is already reviewed", domain.ErrInvalidState, uploadID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	next, err := domain.TransitionOnReview(step.Status, decision)
	if err != nil {
		return nil, err
	}
	review := &domain.Review{
		ID:        s.newID(),
		UploadID:  upload.ID,
		ManagerID: actor.ID,
		Decision:  decision,
		Feedback:  feedback,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Reviews().Create(ctx, review); err != nil {
		return nil, err
	}
	if err := s.store.Steps().UpdateStatus(ctx, step.ID, step.Status, next); err != nil {
		return nil, err
	}
	if decision == domain.ReviewApproved {
		if err := s.advance(ctx, job, *step); err != nil {
			return nil, err
		}
	} else if err := s.refreshJobStatus(ctx, job.ID); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("step_id", step.ID).
		Str("upload_id", upload.ID).
		Str("decision", string(decision)).
		Msg("review submitted")
	return review, nil
}

// DeleteJob removes the job and everything under it. Manager-of-the-job only.
func (s *Service) DeleteJob(ctx context.Context, actor domain.Actor, jobID string) error {
	job, err := s.store.Jobs().GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if actor.Role != domain.UserRoleManager || actor.ID != job.ManagerID {
		return fmt.Errorf("%w: only the job's manager may delete it", domain.ErrForbidden)
	}
	if err := s.store.Jobs().Delete(ctx, jobID); err != nil {
		return err
	}
	s.log.Info().Str("job_id", jobID).Msg("job deleted")
	return nil
}

// DeleteStep removes one step and its history, then recomputes the job
// status from the remaining steps.
func (s *Service) DeleteStep(ctx context.Context, actor domain.Actor, stepID string) error {
	step, err := s.store.Steps().GetByID(ctx, stepID)
	if err != nil {
		return err
	}
	job, err := s.store.Jobs().GetByID(ctx, step.JobID)
	if err != nil {
		return err
	}
	if actor.Role != domain.UserRoleManager || actor.ID != job.ManagerID {
		return fmt.Errorf("%w: only the job's manager may delete its steps", domain.ErrForbidden)
	}
	if err := s.store.Steps().Delete(ctx, stepID); err != nil {
		return err
	}
	if err := s.refreshJobStatus(ctx, job.ID); err != nil {
		return err
	}
	s.log.Info().Str("job_id", job.ID).Str("step_id", stepID).Msg("step deleted")
	return nil
}

// GetJob returns the job with its steps and history, aggregate status
// recomputed from the step set.
func (s *Service) GetJob(ctx context.Context, actor domain.Actor, jobID string) (*JobWithSteps, error) {
	job, err := s.store.Jobs().GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !CanView(actor, job) {
		return nil, fmt.Errorf("%w: job %s is not visible to this account", domain.ErrForbidden, jobID)
	}
	return s.assemble(ctx, job)
}

// ListJobs returns the jobs visible to the actor: managers see jobs they
// manage, workers see jobs assigned to them, viewers see everything.
func (s *Service) ListJobs(ctx context.Context, actor domain.Actor) ([]JobWithSteps, error) {
	var (
		jobs []domain.Job
		err  error
	)
	switch actor.Role {
	case domain.UserRoleManager:
		jobs, err = s.store.Jobs().ListByManager(ctx, actor.ID)
	case domain.UserRoleWorker:
		jobs, err = s.store.Jobs().ListByWorker(ctx, actor.ID)
	case domain.UserRoleViewer:
		jobs, err = s.store.Jobs().ListAll(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrForbidden, actor.Role)
	}
	if err != nil {
		return nil, err
	}
	out := make([]JobWithSteps, 0, len(jobs))
	for i := range jobs {
		assembled, err := s.assemble(ctx, &jobs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *assembled)
	}
	return out, nil
}

// CanView reports whether the actor may read the job.
func CanView(actor domain.Actor, job *domain.Job) bool {
	switch actor.Role {
	case domain.UserRoleViewer:
		return true
	case domain.UserRoleManager:
		return job.ManagerID == actor.ID
	case domain.UserRoleWorker:
		return job.WorkerID == actor.ID
	}
	return false
}

// advance activates the first pending step after the just-approved one, or
// leaves activation to refreshJobStatus marking the job completed when none
// remains.
func (s *Service) advance(ctx context.Context, job *domain.Job, approved domain.Step) error {
	steps, err := s.store.Steps().ListByJob(ctx, job.ID)
	if err != nil {
		return err
	}
	for _, st := range steps {
		if st.Position <= approved.Position || st.Status != domain.StepStatusPending {
			continue
		}
		if err := s.store.Steps().UpdateStatus(ctx, st.ID, domain.StepStatusPending, domain.StepStatusAwaitingUpload); err != nil {
			return err
		}
		break
	}
	return s.refreshJobStatus(ctx, job.ID)
}

// refreshJobStatus rewrites the cached job status from the current step set.
func (s *Service) refreshJobStatus(ctx context.Context, jobID string) error {
	steps, err := s.store.Steps().ListByJob(ctx, jobID)
	if err != nil {
		return err
	}
	return s.store.Jobs().UpdateStatus(ctx, jobID, domain.ComputeJobStatus(steps))
}

func (s *Service) jobOfStep(ctx context.Context, stepID string) (*domain.Job, error) {
	step, err := s.store.Steps().GetByID(ctx, stepID)
	if err != nil {
		return nil, err
	}
	return s.store.Jobs().GetByID(ctx, step.JobID)
}

// assemble builds the read model: ordered steps with their histories, display
// statuses derived from the latest review, aggregate status recomputed.
func (s *Service) assemble(ctx context.Context, job *domain.Job) (*JobWithSteps, error) {
	steps, err := s.store.Steps().ListByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	out := &JobWithSteps{Job: *job}
	out.Status = domain.ComputeJobStatus(steps)
	out.Steps = make([]StepView, 0, len(steps))
	for _, st := range steps {
		uploads, err := s.store.Uploads().ListByStep(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		reviews, err := s.store.Reviews().ListByStep(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		var last *domain.Review
		if len(reviews) > 0 {
			last = &reviews[len(reviews)-1]
		}
		out.Steps = append(out.Steps, StepView{
			Step:          st,
			DisplayStatus: domain.DerivedStatus(st, last),
			Uploads:       uploads,
			Reviews:       reviews,
		})
	}
	return out, nil
}
