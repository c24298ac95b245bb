package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/relaytrack/relaytrack/internal/catalog"
	"github.com/relaytrack/relaytrack/internal/observability"
	"github.com/relaytrack/relaytrack/internal/reports"
	"github.com/relaytrack/relaytrack/internal/shipments"
	"github.com/relaytrack/relaytrack/internal/users"
	"github.com/relaytrack/relaytrack/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	CatalogHandler   *catalog.Handler
	ShipmentsHandler *shipments.Handler
	ReportsHandler   *reports.Handler
	UsersHandler     *users.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with RelayTrack defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", params.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		params.CatalogHandler.MountRoutes(r)
		params.ShipmentsHandler.MountRoutes(r)
		params.ReportsHandler.MountRoutes(r)
		params.UsersHandler.MountRoutes(r)
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}
