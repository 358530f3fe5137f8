package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"tensorjobs/internal/infra"
	"tensorjobs/internal/ledger"
	"tensorjobs/internal/middleware"
)

// App serves the read-only job ledger.
type App struct {
	Jobs   ledger.Reader
	Ping   func(ctx context.Context) error
	Logger *infra.Logger
}

func NewApp(jobs ledger.Reader, ping func(ctx context.Context) error, logger *infra.Logger) *App {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &App{Jobs: jobs, Ping: ping, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, code int, msg string, err error) {
	if err != nil {
		a.Logger.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg(msg)
	}
	a.json(w, code, map[string]string{
		"error":      msg,
		"request_id": middleware.RequestIDFromContext(r.Context()),
	})
}
