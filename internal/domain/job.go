package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending        JobStatus = "pending"
	JobStatusInProgress     JobStatus = "in_progress"
	JobStatusAwaitingReview JobStatus = "awaiting_review"
	JobStatusCompleted      JobStatus = "completed"
)

// Job is a unit of work a manager assigns to a worker, made of ordered steps.
// Its persisted status is a cache of ComputeJobStatus over its steps and is
// refreshed inside every operation that moves a step.
type Job struct {
	ID          string
	Title       string
	Description string
	ManagerID   string
	WorkerID    string
	Status      JobStatus
	Deadline    *time.Time
	CreatedAt   time.Time
}

// ComputeJobStatus derives the job status from its steps. Calling it twice on
// the same step set yields the same result; readers prefer this derivation
// over the stored column whenever the two could diverge.
func ComputeJobStatus(steps []Step) JobStatus {
	if len(steps) == 0 {
		return JobStatusPending
	}
	allApproved := true
	anyStarted := false
	for _, s := range steps {
		switch s.Status {
		case StepStatusAwaitingReview:
			return JobStatusAwaitingReview
		case StepStatusApproved:
			anyStarted = true
		case StepStatusAwaitingUpload:
			anyStarted = true
			allApproved = false
		default:
			allApproved = false
		}
	}
	if allApproved {
		return JobStatusCompleted
	}
	if anyStarted {
		return JobStatusInProgress
	}
	return JobStatusPending
}
