package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitestock/sitestock/internal/billing"
	"github.com/sitestock/sitestock/internal/catalog"
	"github.com/sitestock/sitestock/internal/dispatch"
	"github.com/sitestock/sitestock/internal/ledger"
	"github.com/sitestock/sitestock/internal/observability"
	"github.com/sitestock/sitestock/internal/requests"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Pool            *pgxpool.Pool
	RequestsHandler *requests.Handler
	DispatchHandler *dispatch.Handler
	LedgerHandler   *ledger.Handler
	BillingHandler  *billing.Handler
	CatalogHandler  *catalog.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with sitestock defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Get("/metrics", params.Metrics.Handler().ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		params.RequestsHandler.MountRoutes(r)
		params.DispatchHandler.MountRoutes(r)
		params.LedgerHandler.MountRoutes(r)
		params.BillingHandler.MountRoutes(r)
		params.CatalogHandler.MountRoutes(r)
	})

	return r
}
