package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/castellan-platform/castellan/internal/auth"
	"github.com/castellan-platform/castellan/internal/domains"
	"github.com/castellan-platform/castellan/internal/groups"
	"github.com/castellan-platform/castellan/internal/observability"
	"github.com/castellan-platform/castellan/internal/users"
	"github.com/castellan-platform/castellan/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Resolver       *auth.Resolver
	UsersHandler   *users.Handler
	GroupsHandler  *groups.Handler
	DomainsHandler *domains.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with Castellan defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Resolver: params.Resolver,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.GroupsHandler != nil {
		r.Route("/groups", params.GroupsHandler.MountRoutes)
	}
	if params.DomainsHandler != nil {
		r.Route("/domains", params.DomainsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
