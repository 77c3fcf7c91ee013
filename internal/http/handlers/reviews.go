package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type createReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Feedback string `json:"feedback" validate:"max=5000"`
}

// UploadReviewCreate handles POST /v1/uploads/{upload_id}/reviews.
func (a *App) UploadReviewCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	uploadID := chi.URLParam(r, "upload_id")
	if uploadID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "upload_id required")
		return
	}
	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}
	review, err := a.Workflow.SubmitReview(r.Context(), actor, uploadID, domain.ReviewDecision(req.Decision), req.Feedback)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, toReviewResponse(*review))
}
