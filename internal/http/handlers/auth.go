package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"server/internal/domain"
	"server/internal/middleware"
)

type tokenRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// TokenIssue handles POST /v1/auth/token. It mints a bearer token carrying
// the user's id and role; upstream identity verification belongs to the
// deployment's gateway, not this service.
func (a *App) TokenIssue(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}
	user, err := a.Store.Users().GetByID(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "unknown user")
			return
		}
		a.domainError(w, err)
		return
	}
	token, err := middleware.SignToken(a.Cfg.JWTSecret, user.ID, string(user.Role), a.Cfg.TokenTTL)
	if err != nil {
		a.Log.Error().Err(err).Msg("token signing failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to issue token")
		return
	}
	a.json(w, http.StatusOK, map[string]string{
		"token": token,
		"role":  string(user.Role),
	})
}
