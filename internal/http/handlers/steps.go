package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StepDelete handles DELETE /v1/steps/{step_id}.
func (a *App) StepDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	stepID := chi.URLParam(r, "step_id")
	if stepID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "step_id required")
		return
	}
	if err := a.Workflow.DeleteStep(r.Context(), actor, stepID); err != nil {
		a.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
