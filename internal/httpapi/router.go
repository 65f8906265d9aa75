// Package httpapi is the operator surface: source registry, manual
// triggers, the run ledger, daily stats and the live event stream.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/shalom-dev-bot/astremina/internal/clock"
)

func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recover)
	r.Use(AccessLog)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", "X-Shutdown-Token"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	hh := HealthHandler{DB: d.DB, PollStatus: d.PollStatus, Queues: d.Queues, Runner: d.Runner}
	r.Get("/healthz", hh.Health)

	clk := d.Clock
	if clk == nil {
		clk = clock.System()
	}
	sh := SourcesHandler{DB: d.DB, Runner: d.Runner, Clock: clk, SourcesPath: d.SourcesPath, SetPassword: d.SetPassword}
	r.Route("/sources", func(r chi.Router) {
		r.Get("/", sh.List)
		r.Get("/export", sh.Export)
		r.With(LocalOnly).Put("/", sh.Replace)
		r.Get("/{id}", sh.Get)
		r.Post("/{id}/run", sh.Run)
		r.Post("/{id}/cancel", sh.Cancel)
		if d.SetPassword != nil {
			r.With(LocalOnly).Post("/{id}/password", sh.SetMailboxPassword)
		}
	})

	rh := RunsHandler{DB: d.DB}
	r.Get("/runs", rh.List)
	r.Get("/stats/daily", rh.Daily)

	ch := ConfigHandler{Cfg: d.Config}
	r.With(LocalOnly).Get("/config", ch.Get)
	r.With(LocalOnly).Get("/config/validate", ch.Validate)

	if d.Hub != nil {
		eh := EventsHandler{Hub: d.Hub}
		r.Get("/events", eh.ServeSSE)
	}

	sd := ShutdownHandler{Token: d.ShutdownToken, Shutdown: d.Shutdown}
	r.With(LocalOnly).Post("/shutdown", sd.Handle)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, "not_found", "no such route")
	})
	return r
}
