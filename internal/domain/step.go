package domain

import (
	"fmt"
	"time"
)

// StepStatus enumerates step lifecycle states. A rejection never persists as
// a step status: it reopens the step as awaiting_upload and lives on in the
// review history. StepStatusRejected exists only as the derived display label
// for such reopened steps (see DerivedStatus).
type StepStatus string

const (
	StepStatusPending        StepStatus = "pending"
	StepStatusAwaitingUpload StepStatus = "awaiting_upload"
	StepStatusAwaitingReview StepStatus = "awaiting_review"
	StepStatusApproved       StepStatus = "approved"
	StepStatusRejected       StepStatus = "rejected"
)

// Step is one ordered unit of a job. Position is a positive integer, unique
// within the job, and defines the total order steps must be completed in.
type Step struct {
	ID           string
	JobID        string
	Title        string
	Description  string
	Instructions string
	Position     int
	Status       StepStatus
	Deadline     *time.Time
	CreatedAt    time.Time
}

// Active reports whether the step is the job's current step, accepting
// uploads or waiting on a decision.
func (s Step) Active() bool {
	return s.Status == StepStatusAwaitingUpload || s.Status == StepStatusAwaitingReview
}

// Terminal reports whether no further transitions can move the step.
func (s Step) Terminal() bool {
	return s.Status == StepStatusApproved
}

// TransitionOnUpload returns the status a step enters when its worker submits
// a photo, or ErrInvalidState naming the precondition that failed.
func TransitionOnUpload(current StepStatus) (StepStatus, error) {
	switch current {
	case StepStatusAwaitingUpload:
		return StepStatusAwaitingReview, nil
	case StepStatusPending:
		return "", fmt.Errorf("%w: step is not active yet", ErrInvalidState)
	case StepStatusAwaitingReview:
		return "", fmt.Errorf("%w: step already has a submission awaiting review", ErrInvalidState)
	case StepStatusApproved:
		return "", fmt.Errorf("%w: step is already approved", ErrInvalidState)
	default:
		return "", fmt.Errorf("%w: step status %q cannot accept uploads", ErrInvalidState, current)
	}
}

// TransitionOnReview returns the status a step enters when a manager decides
// on its latest upload. Approval closes the step; rejection reopens it for a
// new upload.
func TransitionOnReview(current StepStatus, decision ReviewDecision) (StepStatus, error) {
	if current != StepStatusAwaitingReview {
		return "", fmt.Errorf("%w: step is %s, not awaiting review", ErrInvalidState, current)
	}
	switch decision {
	case ReviewApproved:
		return StepStatusApproved, nil
	case ReviewRejected:
		return StepStatusAwaitingUpload, nil
	default:
		return "", fmt.Errorf("%w: unknown review decision %q", ErrValidation, decision)
	}
}

// DerivedStatus returns the status shown to callers. A step reopened by a
// rejection reads as rejected until the worker resubmits; every other state
// reads as stored.
func DerivedStatus(s Step, lastReview *Review) StepStatus {
	if s.Status == StepStatusAwaitingUpload && lastReview != nil && lastReview.Decision == ReviewRejected {
		return StepStatusRejected
	}
	return s.Status
}
