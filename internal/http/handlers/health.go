package handlers

import "net/http"

// Health handles GET /v1/healthz.
func (a *App) Health(w http.ResponseWriter, _ *http.Request) {
	a.json(w, http.StatusOK, map[string]string{
		"status": "ok",
		"env":    a.Cfg.AppEnv,
	})
}
