package workflow

import (
	"time"

	"server/internal/domain"
)

// StepDraft is one step of a job being created, in draft order.
type StepDraft struct {
	Title        string
	Description  string
	Instructions string
	Deadline     *time.Time
}

// CreateJobInput carries everything a manager supplies when creating a job.
type CreateJobInput struct {
	Title       string
	Description string
	WorkerID    string
	Deadline    *time.Time
	Steps       []StepDraft
}

// StepView is a step with its history and the status shown to callers.
// DisplayStatus differs from Step.Status only for steps reopened by a
// rejection, which read as rejected until the worker resubmits.
type StepView struct {
	domain.Step
	DisplayStatus domain.StepStatus
	Uploads       []domain.Upload
	Reviews       []domain.Review
}

// JobWithSteps is a job with its ordered steps, aggregate status recomputed
// from the step set.
type JobWithSteps struct {
	domain.Job
	Steps []StepView
}
