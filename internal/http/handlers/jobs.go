package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/workflow"
)

type createJobRequest struct {
	Title       string             `json:"title" validate:"required,max=200"`
	Description string             `json:"description" validate:"max=2000"`
	WorkerID    string             `json:"worker_id" validate:"required,uuid"`
	Deadline    *time.Time         `json:"deadline"`
	Steps       []stepDraftRequest `json:"steps" validate:"required,min=1,dive"`
}

type stepDraftRequest struct {
	Title        string     `json:"title" validate:"required,max=200"`
	Description  string     `json:"description" validate:"max=2000"`
	Instructions string     `json:"instructions" validate:"max=5000"`
	Deadline     *time.Time `json:"deadline"`
}

// JobCreate handles POST /v1/jobs.
func (a *App) JobCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}
	in := workflow.CreateJobInput{
		Title:       req.Title,
		Description: req.Description,
		WorkerID:    req.WorkerID,
		Deadline:    req.Deadline,
		Steps:       make([]workflow.StepDraft, 0, len(req.Steps)),
	}
	for _, draft := range req.Steps {
		in.Steps = append(in.Steps, workflow.StepDraft{
			Title:        draft.Title,
			Description:  draft.Description,
			Instructions: draft.Instructions,
			Deadline:     draft.Deadline,
		})
	}
	job, err := a.Workflow.CreateJob(r.Context(), actor, in)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, toJobResponse(*job))
}

// JobsList handles GET /v1/jobs.
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobs, err := a.Workflow.ListJobs(r.Context(), actor)
	if err != nil {
		a.domainError(w, err)
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, toJobResponse(j))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// JobGet handles GET /v1/jobs/{job_id}.
func (a *App) JobGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Workflow.GetJob(r.Context(), actor, jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(*job))
}

// JobDelete handles DELETE /v1/jobs/{job_id}.
func (a *App) JobDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	if err := a.Workflow.DeleteJob(r.Context(), actor, jobID); err != nil {
		a.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
