package handlers

import (
	"time"

	"server/internal/domain"
	"server/internal/workflow"
)

type jobResponse struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	ManagerID   string         `json:"manager_id"`
	WorkerID    string         `json:"worker_id"`
	Status      string         `json:"status"`
	Deadline    *time.Time     `json:"deadline,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Steps       []stepResponse `json:"steps"`
}

type stepResponse struct {
	ID           string           `json:"id"`
	JobID        string           `json:"job_id"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
	Position     int              `json:"position"`
	Status       string           `json:"status"`
	Deadline     *time.Time       `json:"deadline,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	Uploads      []uploadResponse `json:"uploads"`
	Reviews      []reviewResponse `json:"reviews"`
}

type uploadResponse struct {
	ID           string    `json:"id"`
	StepID       string    `json:"step_id"`
	WorkerID     string    `json:"worker_id"`
	OriginalName string    `json:"original_name,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

type reviewResponse struct {
	ID        string    `json:"id"`
	UploadID  string    `json:"upload_id"`
	ManagerID string    `json:"manager_id"`
	Decision  string    `json:"decision"`
	Feedback  string    `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toJobResponse(j workflow.JobWithSteps) jobResponse {
	out := jobResponse{
		ID:          j.ID,
		Title:       j.Title,
		Description: j.Description,
		ManagerID:   j.ManagerID,
		WorkerID:    j.WorkerID,
		Status:      string(j.Status),
		Deadline:    j.Deadline,
		CreatedAt:   j.CreatedAt,
		Steps:       make([]stepResponse, 0, len(j.Steps)),
	}
	for _, st := range j.Steps {
		out.Steps = append(out.Steps, toStepResponse(st))
	}
	return out
}

// The step's wire status is the display status, so a step reopened by a
// rejection reads as rejected.
func toStepResponse(st workflow.StepView) stepResponse {
	out := stepResponse{
		ID:           st.ID,
		JobID:        st.JobID,
		Title:        st.Title,
		Description:  st.Description,
		Instructions: st.Instructions,
		Position:     st.Position,
		Status:       string(st.DisplayStatus),
		Deadline:     st.Deadline,
		CreatedAt:    st.CreatedAt,
		Uploads:      make([]uploadResponse, 0, len(st.Uploads)),
		Reviews:      make([]reviewResponse, 0, len(st.Reviews)),
	}
	for _, up := range st.Uploads {
		out.Uploads = append(out.Uploads, toUploadResponse(up))
	}
	for _, rv := range st.Reviews {
		out.Reviews = append(out.Reviews, toReviewResponse(rv))
	}
	return out
}

func toUploadResponse(up domain.Upload) uploadResponse {
	return uploadResponse{
		ID:           up.ID,
		StepID:       up.StepID,
		WorkerID:     up.WorkerID,
		OriginalName: up.OriginalName,
		MimeType:     up.MimeType,
		Size:         up.Size,
		CreatedAt:    up.CreatedAt,
	}
}

func toReviewResponse(rv domain.Review) reviewResponse {
	return reviewResponse{
		ID:        rv.ID,
		UploadID:  rv.UploadID,
		ManagerID: rv.ManagerID,
		Decision:  string(rv.Decision),
		Feedback:  rv.Feedback,
		CreatedAt: rv.CreatedAt,
	}
}
