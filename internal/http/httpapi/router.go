package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

// RouterOptions carries the pieces the router needs beyond the App container.
type RouterOptions struct {
	JWTSecret       string
	RateLimitPerMin int
	CORSOrigins     []string
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	// StaticDir, when set, serves stored photos under /static for the
	// filesystem object driver.
	StaticDir string
}

// NewRouter assembles the chi router for the API.
func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Log),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Post("/v1/users", app.UserCreate)
	r.Post("/v1/auth/token", app.TokenIssue)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Get("/v1/me", app.Me)

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.JobCreate)
			r.Get("/", app.JobsList)
			r.Get("/{job_id}", app.JobGet)
			r.Delete("/{job_id}", app.JobDelete)
		})

		r.Route("/v1/steps/{step_id}", func(r chi.Router) {
			r.Post("/uploads", app.StepUploadCreate)
			r.Delete("/", app.StepDelete)
		})

		r.Route("/v1/uploads/{upload_id}", func(r chi.Router) {
			r.Post("/reviews", app.UploadReviewCreate)
			r.Get("/photo", app.UploadPhotoURL)
		})
	})

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
