// Package handlers exposes the workflow service over HTTP.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/objstore"
	"server/internal/workflow"
)

// App is the handler container; everything a request needs hangs off it.
type App struct {
	Workflow *workflow.Service
	Store    domain.Store
	Objects  objstore.ObjectStore
	Cfg      *infra.Config
	Log      zerolog.Logger

	validate *validator.Validate
}

// NewApp wires the container.
func NewApp(wf *workflow.Service, store domain.Store, objects objstore.ObjectStore, cfg *infra.Config, log zerolog.Logger) *App {
	return &App{
		Workflow: wf,
		Store:    store,
		Objects:  objects,
		Cfg:      cfg,
		Log:      log.With().Str("component", "http").Logger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

// actor resolves the authenticated caller from the request context.
func (a *App) actor(r *http.Request) (domain.Actor, bool) {
	id := middleware.UserIDFromContext(r.Context())
	role := domain.UserRole(middleware.RoleFromContext(r.Context()))
	if id == "" || !domain.ValidRole(role) {
		return domain.Actor{}, false
	}
	return domain.Actor{ID: id, Role: role}, true
}
