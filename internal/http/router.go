package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"tensorjobs/internal/http/handlers"
	"tensorjobs/internal/middleware"
)

type RouterOptions struct {
	Logger         zerolog.Logger
	AllowedOrigins []string
	// RateLimit is requests per minute per client; zero disables limiting.
	RateLimit int
}

func NewRouter(app *handlers.App, opts RouterOptions) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimit, time.Minute))
		r.Get("/", app.ListJobs)
		r.Get("/{id}", app.GetJob)
	})

	return r
}
