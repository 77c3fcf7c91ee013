package handlers

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/workflow"
)

// StepUploadCreate handles POST /v1/steps/{step_id}/uploads. The photo bytes
// go to the object store first; the workflow only ever sees the opaque key
// and metadata. When the state machine refuses the submission, the stored
// object is removed again best-effort.
func (a *App) StepUploadCreate(w http.ResponseWriter, r *http.Request) {
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
	r.Body = http.MaxBytesReader(w, r.Body, a.Cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.Cfg.MaxUploadBytes); err != nil {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "photo exceeds the upload limit")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		a.error(w, http.StatusUnprocessableEntity, "validation_error", "multipart field 'photo' is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		a.error(w, http.StatusUnprocessableEntity, "validation_error", "photo must be an image")
		return
	}

	key := photoKey(stepID, header.Filename)
	if err := a.Objects.Put(r.Context(), key, file, header.Size, contentType); err != nil {
		a.Log.Error().Err(err).Str("key", key).Msg("photo store failed")
		a.error(w, http.StatusInternalServerError, "storage_error", "failed to store photo")
		return
	}

	upload, err := a.Workflow.SubmitUpload(r.Context(), actor, stepID, domain.FileMeta{
		FileName:     key,
		OriginalName: header.Filename,
		MimeType:     contentType,
		Size:         header.Size,
	})
	if err != nil {
		a.removePhoto(key)
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, toUploadResponse(*upload))
}

// UploadPhotoURL handles GET /v1/uploads/{upload_id}/photo and returns a
// time-limited link for the stored bytes.
func (a *App) UploadPhotoURL(w http.ResponseWriter, r *http.Request) {
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
	upload, err := a.Store.Uploads().GetByID(r.Context(), uploadID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	step, err := a.Store.Steps().GetByID(r.Context(), upload.StepID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	job, err := a.Store.Jobs().GetByID(r.Context(), step.JobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if !workflow.CanView(actor, job) {
		a.error(w, http.StatusForbidden, "forbidden", "upload is not visible to this account")
		return
	}
	url, err := a.Objects.URL(r.Context(), upload.FileName, a.Cfg.PhotoURLExpiry)
	if err != nil {
		a.Log.Error().Err(err).Str("upload_id", uploadID).Msg("photo url failed")
		a.error(w, http.StatusInternalServerError, "storage_error", "failed to resolve photo")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"url":        url,
		"expires_in": int(a.Cfg.PhotoURLExpiry / time.Second),
	})
}

func (a *App) removePhoto(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Objects.Remove(ctx, key); err != nil {
		a.Log.Warn().Err(err).Str("key", key).Msg("orphan photo cleanup failed")
	}
}

func photoKey(stepID, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if len(ext) > 8 {
		ext = ""
	}
	return fmt.Sprintf("steps/%s/%s%s", stepID, uuid.NewString(), ext)
}
