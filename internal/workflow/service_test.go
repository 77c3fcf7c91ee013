package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/adapter/memstore"
	"server/internal/domain"
)

type fixture struct {
	svc     *Service
	store   *memstore.Store
	manager domain.Actor
	worker  domain.Actor
	viewer  domain.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	f := &fixture{
		svc:     NewService(store, zerolog.Nop()),
		store:   store,
		manager: newAccount(t, store, domain.UserRoleManager),
		worker:  newAccount(t, store, domain.UserRoleWorker),
		viewer:  newAccount(t, store, domain.UserRoleViewer),
	}
	return f
}

func newAccount(t *testing.T, store domain.Store, role domain.UserRole) domain.Actor {
	t.Helper()
	user := &domain.User{
		ID:        uuid.NewString(),
		Email:     fmt.Sprintf("%s-%s@example.com", role, uuid.NewString()[:8]),
		Name:      string(role),
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("create %s account: %v", role, err)
	}
	return domain.Actor{ID: user.ID, Role: role}
}

func (f *fixture) createJob(t *testing.T, stepTitles ...string) *JobWithSteps {
	t.Helper()
	in := CreateJobInput{Title: "inspection", WorkerID: f.worker.ID}
	for _, title := range stepTitles {
		in.Steps = append(in.Steps, StepDraft{Title: title})
	}
	job, err := f.svc.CreateJob(context.Background(), f.manager, in)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func (f *fixture) upload(t *testing.T, stepID string) *domain.Upload {
	t.Helper()
	up, err := f.svc.SubmitUpload(context.Background(), f.worker, stepID, testMeta())
	if err != nil {
		t.Fatalf("SubmitUpload(%s): %v", stepID, err)
	}
	return up
}

func (f *fixture) review(t *testing.T, uploadID string, decision domain.ReviewDecision, feedback string) *domain.Review {
	t.Helper()
	rv, err := f.svc.SubmitReview(context.Background(), f.manager, uploadID, decision, feedback)
	if err != nil {
		t.Fatalf("SubmitReview(%s, %s): %v", uploadID, decision, err)
	}
	return rv
}

func (f *fixture) reload(t *testing.T, jobID string) *JobWithSteps {
	t.Helper()
	job, err := f.svc.GetJob(context.Background(), f.manager, jobID)
	if err != nil {
		t.Fatalf("GetJob(%s): %v", jobID, err)
	}
	return job
}

func testMeta() domain.FileMeta {
	return domain.FileMeta{
		FileName:     "steps/" + uuid.NewString() + ".jpg",
		OriginalName: "proof.jpg",
		MimeType:     "image/jpeg",
		Size:         2048,
	}
}

// assertSingleActive checks the invariant that at most one step per job is
// accepting uploads or awaiting a decision at any quiescent point.
func assertSingleActive(t *testing.T, job *JobWithSteps) {
	t.Helper()
	active := 0
	for _, st := range job.Steps {
		if st.Active() {
			active++
		}
	}
	if active > 1 {
		t.Fatalf("job %s has %d active steps, want at most 1", job.ID, active)
	}
}

func TestCreateJobInitialState(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t, "foundation", "framing", "roofing")

	if job.Status != domain.JobStatusInProgress {
		t.Fatalf("job status = %s, want in_progress", job.Status)
	}
	if len(job.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(job.Steps))
	}
	for i, st := range job.Steps {
		if st.Position != i+1 {
			t.Fatalf("step %d position = %d", i, st.Position)
		}
		want := domain.StepStatusPending
		if i == 0 {
			want = domain.StepStatusAwaitingUpload
		}
		if st.Status != want {
			t.Fatalf("step %d status = %s, want %s", i, st.Status, want)
		}
	}
	assertSingleActive(t, job)
}

func TestCreateJobValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateJob(ctx, f.worker, CreateJobInput{Title: "x", WorkerID: f.worker.ID, Steps: []StepDraft{{Title: "a"}}}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("worker-created job error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.CreateJob(ctx, f.manager, CreateJobInput{Title: "x", WorkerID: f.worker.ID}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty step list error = %v, want ErrValidation", err)
	}
	if _, err := f.svc.CreateJob(ctx, f.manager, CreateJobInput{Title: "", WorkerID: f.worker.ID, Steps: []StepDraft{{Title: "a"}}}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing title error = %v, want ErrValidation", err)
	}
	if _, err := f.svc.CreateJob(ctx, f.manager, CreateJobInput{Title: "x", WorkerID: uuid.NewString(), Steps: []StepDraft{{Title: "a"}}}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown worker error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.CreateJob(ctx, f.manager, CreateJobInput{Title: "x", WorkerID: f.manager.ID, Steps: []StepDraft{{Title: "a"}}}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("manager as assignee error = %v, want ErrValidation", err)
	}
}

// TestApprovalScenario walks the full three-step lifecycle: approvals unlock
// the next step, a wrong re-review is refused, a rejection loops the step
// back, and the final approval completes the job.
func TestApprovalScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, "A", "B", "C")
	stepA, stepB, stepC := job.Steps[0], job.Steps[1], job.Steps[2]

	upA := f.upload(t, stepA.ID)
	got := f.reload(t, job.ID)
	if got.Steps[0].Status != domain.StepStatusAwaitingReview {
		t.Fatalf("A after upload = %s, want awaiting_review", got.Steps[0].Status)
	}
	if got.Status != domain.JobStatusAwaitingReview {
		t.Fatalf("job after upload = %s, want awaiting_review", got.Status)
	}
	assertSingleActive(t, got)

	f.review(t, upA.ID, domain.ReviewApproved, "")
	got = f.reload(t, job.ID)
	if got.Steps[0].Status != domain.StepStatusApproved {
		t.Fatalf("A after approval = %s, want approved", got.Steps[0].Status)
	}
	if got.Steps[1].Status != domain.StepStatusAwaitingUpload {
		t.Fatalf("B after A approval = %s, want awaiting_upload", got.Steps[1].Status)
	}
	if got.Status != domain.JobStatusInProgress {
		t.Fatalf("job = %s, want in_progress", got.Status)
	}
	assertSingleActive(t, got)

	// Reviewing A again must be refused.
	if _, err := f.svc.SubmitReview(ctx, f.manager, upA.ID, domain.ReviewApproved, ""); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second review of A error = %v, want ErrInvalidState", err)
	}

	upB := f.upload(t, stepB.ID)
	rejection := f.review(t, upB.ID, domain.ReviewRejected, "blurry")
	if rejection.Feedback != "blurry" {
		t.Fatalf("rejection feedback = %q", rejection.Feedback)
	}
	got = f.reload(t, job.ID)
	if got.Steps[1].Status != domain.StepStatusAwaitingUpload {
		t.Fatalf("B after rejection = %s, want awaiting_upload", got.Steps[1].Status)
	}
	if got.Steps[1].DisplayStatus != domain.StepStatusRejected {
		t.Fatalf("B display after rejection = %s, want rejected", got.Steps[1].DisplayStatus)
	}
	assertSingleActive(t, got)

	upB2 := f.upload(t, stepB.ID)
	got = f.reload(t, job.ID)
	if n := len(got.Steps[1].Uploads); n != 2 {
		t.Fatalf("B uploads = %d, want 2", n)
	}
	if n := len(got.Steps[1].Reviews); n != 1 {
		t.Fatalf("B reviews = %d, want 1", n)
	}
	if got.Steps[1].Status != domain.StepStatusAwaitingReview {
		t.Fatalf("B after resubmission = %s, want awaiting_review", got.Steps[1].Status)
	}
	if got.Steps[1].DisplayStatus != domain.StepStatusAwaitingReview {
		t.Fatalf("B display after resubmission = %s, want awaiting_review", got.Steps[1].DisplayStatus)
	}

	f.review(t, upB2.ID, domain.ReviewApproved, "")
	got = f.reload(t, job.ID)
	if got.Steps[2].Status != domain.StepStatusAwaitingUpload {
		t.Fatalf("C after B approval = %s, want awaiting_upload", got.Steps[2].Status)
	}

	upC := f.upload(t, stepC.ID)
	f.review(t, upC.ID, domain.ReviewApproved, "")
	got = f.reload(t, job.ID)
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("job after final approval = %s, want completed", got.Status)
	}
	for i, st := range got.Steps {
		if st.Status != domain.StepStatusApproved {
			t.Fatalf("step %d = %s, want approved", i, st.Status)
		}
	}
}

func TestSubmitUploadGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, "A", "B")
	pendingStep := job.Steps[1]

	if _, err := f.svc.SubmitUpload(ctx, f.worker, pendingStep.ID, testMeta()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("upload to pending step error = %v, want ErrInvalidState", err)
	}
	uploads, err := f.store.Uploads().ListByStep(ctx, pendingStep.ID)
	if err != nil || len(uploads) != 0 {
		t.Fatalf("pending step uploads = %d (%v), want 0", len(uploads), err)
	}

	if _, err := f.svc.SubmitUpload(ctx, f.manager, job.Steps[0].ID, testMeta()); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("manager upload error = %v, want ErrForbidden", err)
	}
	otherWorker := newAccount(t, f.store, domain.UserRoleWorker)
	if _, err := f.svc.SubmitUpload(ctx, otherWorker, job.Steps[0].ID, testMeta()); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("unassigned worker upload error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.SubmitUpload(ctx, f.worker, uuid.NewString(), testMeta()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown step upload error = %v, want ErrNotFound", err)
	}

	// Approve A, then uploading to it again must be refused.
	up := f.upload(t, job.Steps[0].ID)
	f.review(t, up.ID, domain.ReviewApproved, "")
	if _, err := f.svc.SubmitUpload(ctx, f.worker, job.Steps[0].ID, testMeta()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("upload to approved step error = %v, want ErrInvalidState", err)
	}
}

func TestSubmitReviewGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, "A")
	up := f.upload(t, job.Steps[0].ID)

	if _, err := f.svc.SubmitReview(ctx, f.manager, up.ID, domain.ReviewRejected, "   "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank feedback rejection error = %v, want ErrValidation", err)
	}
	reviews, err := f.store.Reviews().ListByStep(ctx, job.Steps[0].ID)
	if err != nil || len(reviews) != 0 {
		t.Fatalf("reviews after refused rejection = %d (%v), want 0", len(reviews), err)
	}

	if _, err := f.svc.SubmitReview(ctx, f.manager, up.ID, "maybe", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown decision error = %v, want ErrValidation", err)
	}
	if _, err := f.svc.SubmitReview(ctx, f.worker, up.ID, domain.ReviewApproved, ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("worker review error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.SubmitReview(ctx, f.viewer, up.ID, domain.ReviewApproved, ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("viewer review error = %v, want ErrForbidden", err)
	}
	otherManager := newAccount(t, f.store, domain.UserRoleManager)
	if _, err := f.svc.SubmitReview(ctx, otherManager, up.ID, domain.ReviewApproved, ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("other manager review error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.SubmitReview(ctx, f.manager, uuid.NewString(), domain.ReviewApproved, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown upload review error = %v, want ErrNotFound", err)
	}
}

func TestReviewOnStaleUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, "A")

	first := f.upload(t, job.Steps[0].ID)
	f.review(t, first.ID, domain.ReviewRejected, "redo it")
	second := f.upload(t, job.Steps[0].ID)

	// The superseded upload can no longer be reviewed.
	if _, err := f.svc.SubmitReview(ctx, f.manager, first.ID, domain.ReviewApproved, ""); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("stale upload review error = %v, want ErrInvalidState", err)
	}
	f.review(t, second.ID, domain.ReviewApproved, "")
	got := f.reload(t, job.ID)
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("job = %s, want completed", got.Status)
	}
}

func TestStoredJobStatusMatchesDerivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, "A", "B")

	check := func(when string) {
		t.Helper()
		stored, err := f.store.Jobs().GetByID(ctx, job.ID)
		if err != nil {
			t.Fatalf("%s: get job: %v", when, err)
		}
		steps, err := f.store.Steps().ListByJob(ctx, job.ID)
		if err != nil {
			t.Fatalf("%s: list steps: %v", when, err)
		}
		if derived := domain.ComputeJobStatus(steps); stored.Status != derived {
			t.Fatalf("%s: stored status %s diverges from derived %s", when, stored.Status, derived)
		}
	}

	check("after create")
	up := f.upload(t, job.Steps[0].ID)
	check("after upload")
	f.review(t, up.ID, domain.ReviewRejected, "try again")
	check("after rejection")
	up = f.upload(t, job.Steps[0].ID)
	f.review(t, up.ID, domain.ReviewApproved, "")
	check("after approval")
	up = f.upload(t, job.Steps[1].ID)
	f.review(t, up.ID, domain.ReviewApproved, "")
	check("after completion")
}

func TestGetJobRecomputesStaleStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, "A")

	// Corrupt the cached column; the read side must not trust it.
	if err := f.store.Jobs().UpdateStatus(ctx, job.ID, domain.JobStatusCompleted); err != nil {
		t.Fatalf("seed stale status: %v", err)
	}
	got := f.reload(t, job.ID)
	if got.Status != domain.JobStatusInProgress {
		t.Fatalf("recomputed status = %s, want in_progress", got.Status)
	}
}

func TestDeleteJobCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, "A", "B")
	stepID := job.Steps[0].ID
	up := f.upload(t, stepID)
	f.review(t, up.ID, domain.ReviewRejected, "nope")

	if err := f.svc.DeleteJob(ctx, f.worker, job.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("worker delete error = %v, want ErrForbidden", err)
	}
	if err := f.svc.DeleteJob(ctx, f.manager, job.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := f.svc.GetJob(ctx, f.manager, job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetJob after delete error = %v, want ErrNotFound", err)
	}
	if _, err := f.store.Steps().GetByID(ctx, stepID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("step survived cascade")
	}
	if _, err := f.store.Uploads().GetByID(ctx, up.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("upload survived cascade")
	}
	if _, err := f.store.Reviews().GetByUpload(ctx, up.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("review survived cascade")
	}
}

func TestDeleteStepRecomputesJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, "A", "B")

	// Approve A, then drop B: the remaining set is fully approved.
	up := f.upload(t, job.Steps[0].ID)
	f.review(t, up.ID, domain.ReviewApproved, "")
	if err := f.svc.DeleteStep(ctx, f.manager, job.Steps[1].ID); err != nil {
		t.Fatalf("DeleteStep: %v", err)
	}
	got := f.reload(t, job.ID)
	if len(got.Steps) != 1 {
		t.Fatalf("steps after delete = %d, want 1", len(got.Steps))
	}
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("job after step delete = %s, want completed", got.Status)
	}
}

func TestListJobsVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, "A")

	otherManager := newAccount(t, f.store, domain.UserRoleManager)

	for _, tt := range []struct {
		name  string
		actor domain.Actor
		want  int
	}{
		{"owning manager", f.manager, 1},
		{"assigned worker", f.worker, 1},
		{"viewer", f.viewer, 1},
		{"other manager", otherManager, 0},
	} {
		jobs, err := f.svc.ListJobs(ctx, tt.actor)
		if err != nil {
			t.Fatalf("%s: ListJobs: %v", tt.name, err)
		}
		if len(jobs) != tt.want {
			t.Fatalf("%s: jobs = %d, want %d", tt.name, len(jobs), tt.want)
		}
	}

	if _, err := f.svc.GetJob(ctx, otherManager, job.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("other manager GetJob error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.GetJob(ctx, f.viewer, job.ID); err != nil {
		t.Fatalf("viewer GetJob: %v", err)
	}
}

func TestConcurrentUploadsAcceptOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, "A")
	stepID := job.Steps[0].ID

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.SubmitUpload(ctx, f.worker, stepID, testMeta())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrInvalidState):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("concurrent uploads accepted = %d, want 1", wins)
	}
	uploads, err := f.store.Uploads().ListByStep(ctx, stepID)
	if err != nil || len(uploads) != 1 {
		t.Fatalf("upload rows = %d (%v), want 1", len(uploads), err)
	}
}

func TestConcurrentReviewsResolveOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, "A", "B")
	up := f.upload(t, job.Steps[0].ID)

	var wg sync.WaitGroup
	results := make([]error, 2)
	decisions := []domain.ReviewDecision{domain.ReviewApproved, domain.ReviewRejected}
	for i, decision := range decisions {
		wg.Add(1)
		go func(i int, decision domain.ReviewDecision) {
			defer wg.Done()
			_, results[i] = f.svc.SubmitReview(ctx, f.manager, up.ID, decision, "duplicate race")
		}(i, decision)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrInvalidState):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("concurrent reviews applied = %d, want 1", wins)
	}

	reviews, err := f.store.Reviews().ListByStep(ctx, job.Steps[0].ID)
	if err != nil || len(reviews) != 1 {
		t.Fatalf("review rows = %d (%v), want 1", len(reviews), err)
	}
	got := f.reload(t, job.ID)
	assertSingleActive(t, got)
}
