package handlers

import (
	"errors"
	"net/http"

	"server/internal/domain"
)

// domainError maps the workflow error taxonomy onto HTTP statuses. Every
// rejected operation carries the failed precondition in its message so
// callers can render something better than a generic error.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		a.error(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	default:
		a.Log.Error().Err(err).Msg("storage failure")
		a.error(w, http.StatusInternalServerError, "storage_error", "operation failed")
	}
}
