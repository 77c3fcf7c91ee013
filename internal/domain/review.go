package domain

import "time"

// ReviewDecision enumerates the outcomes a manager can record for an upload.
type ReviewDecision string

const (
	ReviewApproved ReviewDecision = "approved"
	ReviewRejected ReviewDecision = "rejected"
)

// Review is a manager's decision on exactly one upload. Feedback is required
// when the decision is a rejection.
type Review struct {
	ID        string
	UploadID  string
	ManagerID string
	Decision  ReviewDecision
	Feedback  string
	CreatedAt time.Time
}
