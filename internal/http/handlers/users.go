package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
)

type createUserRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,max=200"`
	Role  string `json:"role" validate:"required,oneof=manager worker viewer"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserCreate handles POST /v1/users. Accounts are provisioned here; identity
// federation is out of scope, tokens come from the auth endpoint.
func (a *App) UserCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}
	user := &domain.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Name:      req.Name,
		Role:      domain.UserRole(req.Role),
		CreatedAt: time.Now().UTC(),
	}
	if err := a.Store.Users().Create(r.Context(), user); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, toUserResponse(*user))
}

// Me handles GET /v1/me.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	user, err := a.Store.Users().GetByID(r.Context(), actor.ID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toUserResponse(*user))
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}
