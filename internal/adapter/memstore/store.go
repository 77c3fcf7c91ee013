// Package memstore is an in-memory implementation of the domain store. It
// backs the memory storage driver and the workflow tests; every record is
// copied on the way in and out so callers never share mutable state.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"server/internal/domain"
)

// Store holds every entity in RWMutex-guarded maps.
type Store struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	jobs    map[string]domain.Job
	steps   map[string]domain.Step
	uploads map[string]uploadRec
	reviews map[string]reviewRec
	seq     uint64
}

// seq breaks creation-time ties so "latest upload" stays well defined even
// when two rows share a timestamp.
type uploadRec struct {
	domain.Upload
	seq uint64
}

type reviewRec struct {
	domain.Review
	seq uint64
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		users:   make(map[string]domain.User),
		jobs:    make(map[string]domain.Job),
		steps:   make(map[string]domain.Step),
		uploads: make(map[string]uploadRec),
		reviews: make(map[string]reviewRec),
	}
}

func (s *Store) Users() domain.UserRepository     { return userRepo{s} }
func (s *Store) Jobs() domain.JobRepository       { return jobRepo{s} }
func (s *Store) Steps() domain.StepRepository     { return stepRepo{s} }
func (s *Store) Uploads() domain.UploadRepository { return uploadRepo{s} }
func (s *Store) Reviews() domain.ReviewRepository { return reviewRepo{s} }

var _ domain.Store = (*Store)(nil)

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return fmt.Errorf("%w: user %s already exists", domain.ErrValidation, user.ID)
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	return &u, nil
}

type jobRepo struct{ s *Store }

func (r jobRepo) CreateWithSteps(_ context.Context, job *domain.Job, steps []*domain.Step) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: job %s already exists", domain.ErrValidation, job.ID)
	}
	seen := make(map[int]struct{}, len(steps))
	for _, st := range steps {
		if st.Position <= 0 {
			return fmt.Errorf("%w: step position must be positive", domain.ErrValidation)
		}
		if _, dup := seen[st.Position]; dup {
			return fmt.Errorf("%w: duplicate step position %d", domain.ErrValidation, st.Position)
		}
		seen[st.Position] = struct{}{}
	}
	r.s.jobs[job.ID] = *job
	for _, st := range steps {
		r.s.steps[st.ID] = *st
	}
	return nil
}

func (r jobRepo) GetByID(_ context.Context, id string) (*domain.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return &j, nil
}

func (r jobRepo) ListByManager(_ context.Context, managerID string) ([]domain.Job, error) {
	return r.list(func(j domain.Job) bool { return j.ManagerID == managerID }), nil
}

func (r jobRepo) ListByWorker(_ context.Context, workerID string) ([]domain.Job, error) {
	return r.list(func(j domain.Job) bool { return j.WorkerID == workerID }), nil
}

func (r jobRepo) ListAll(_ context.Context) ([]domain.Job, error) {
	return r.list(func(domain.Job) bool { return true }), nil
}

func (r jobRepo) list(keep func(domain.Job) bool) []domain.Job {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Job, 0)
	for _, j := range r.s.jobs {
		if keep(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}

func (r jobRepo) UpdateStatus(_ context.Context, jobID string, status domain.JobStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	j.Status = status
	r.s.jobs[jobID] = j
	return nil
}

func (r jobRepo) Delete(_ context.Context, jobID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[jobID]; !ok {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	for stepID, st := range r.s.steps {
		if st.JobID == jobID {
			r.s.deleteStepLocked(stepID)
		}
	}
	delete(r.s.jobs, jobID)
	return nil
}

type stepRepo struct{ s *Store }

func (r stepRepo) GetByID(_ context.Context, id string) (*domain.Step, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.steps[id]
	if !ok {
		return nil, fmt.Errorf("%w: step %s", domain.ErrNotFound, id)
	}
	return &st, nil
}

func (r stepRepo) ListByJob(_ context.Context, jobID string) ([]domain.Step, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Step, 0)
	for _, st := range r.s.steps {
		if st.JobID == jobID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Position < out[k].Position })
	return out, nil
}

func (r stepRepo) UpdateStatus(_ context.Context, stepID string, from, to domain.StepStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.steps[stepID]
	if !ok {
		return fmt.Errorf("%w: step %s", domain.ErrNotFound, stepID)
	}
	if st.Status != from {
		return fmt.Errorf("%w: step is %s, expected %s", domain.ErrInvalidState, st.Status, from)
	}
	st.Status = to
	r.s.steps[stepID] = st
	return nil
}

func (r stepRepo) Delete(_ context.Context, stepID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.steps[stepID]; !ok {
		return fmt.Errorf("%w: step %s", domain.ErrNotFound, stepID)
	}
	r.s.deleteStepLocked(stepID)
	return nil
}

// deleteStepLocked cascades reviews, then uploads, then the step itself.
func (s *Store) deleteStepLocked(stepID string) {
	for uploadID, up := range s.uploads {
		if up.StepID != stepID {
			continue
		}
		for reviewID, rv := range s.reviews {
			if rv.UploadID == uploadID {
				delete(s.reviews, reviewID)
			}
		}
		delete(s.uploads, uploadID)
	}
	delete(s.steps, stepID)
}

type uploadRepo struct{ s *Store }

func (r uploadRepo) Create(_ context.Context, upload *domain.Upload) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.steps[upload.StepID]; !ok {
		return fmt.Errorf("%w: step %s", domain.ErrNotFound, upload.StepID)
	}
	r.s.seq++
	r.s.uploads[upload.ID] = uploadRec{Upload: *upload, seq: r.s.seq}
	return nil
}

func (r uploadRepo) GetByID(_ context.Context, id string) (*domain.Upload, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	up, ok := r.s.uploads[id]
	if !ok {
		return nil, fmt.Errorf("%w: upload %s", domain.ErrNotFound, id)
	}
	u := up.Upload
	return &u, nil
}

func (r uploadRepo) ListByStep(_ context.Context, stepID string) ([]domain.Upload, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	recs := r.s.uploadsOfStepLocked(stepID)
	out := make([]domain.Upload, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Upload)
	}
	return out, nil
}

func (r uploadRepo) LatestByStep(_ context.Context, stepID string) (*domain.Upload, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	recs := r.s.uploadsOfStepLocked(stepID)
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: step %s has no uploads", domain.ErrNotFound, stepID)
	}
	u := recs[len(recs)-1].Upload
	return &u, nil
}

func (s *Store) uploadsOfStepLocked(stepID string) []uploadRec {
	out := make([]uploadRec, 0)
	for _, rec := range s.uploads {
		if rec.StepID == stepID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].seq < out[k].seq })
	return out
}

type reviewRepo struct{ s *Store }

func (r reviewRepo) Create(_ context.Context, review *domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.uploads[review.UploadID]; !ok {
		return fmt.Errorf("%w: upload %s", domain.ErrNotFound, review.UploadID)
	}
	r.s.seq++
	r.s.reviews[review.ID] = reviewRec{Review: *review, seq: r.s.seq}
	return nil
}

func (r reviewRepo) GetByUpload(_ context.Context, uploadID string) (*domain.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *reviewRec
	for _, rec := range r.s.reviews {
		rec := rec
		if rec.UploadID != uploadID {
			continue
		}
		if found == nil || rec.seq < found.seq {
			found = &rec
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: upload %s has no review", domain.ErrNotFound, uploadID)
	}
	rv := found.Review
	return &rv, nil
}

func (r reviewRepo) ListByStep(_ context.Context, stepID string) ([]domain.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stepUploads := make(map[string]struct{})
	for _, rec := range r.s.uploads {
		if rec.StepID == stepID {
			stepUploads[rec.ID] = struct{}{}
		}
	}
	recs := make([]reviewRec, 0)
	for _, rec := range r.s.reviews {
		if _, ok := stepUploads[rec.UploadID]; ok {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, k int) bool { return recs[i].seq < recs[k].seq })
	out := make([]domain.Review, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Review)
	}
	return out, nil
}
