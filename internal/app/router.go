package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/balances"
	"github.com/meridian-erp/meridian-erp/internal/conversion"
	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/payments"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stockledger"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// RouterConfig aggregates every handler mounted on the API router.
type RouterConfig struct {
	Middleware MiddlewareConfig
	Documents  *documents.Handler
	Payments   *payments.Handler
	Balances   *balances.Handler
	Conversion *conversion.Handler
	Stock      *stockledger.Handler
	Jobs       *jobs.Handler
	Metrics    *observability.Metrics
}

// NewRouter assembles the HTTP surface.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(cfg.Middleware) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}
	if cfg.Jobs != nil {
		r.Route("/jobs", cfg.Jobs.MountRoutes)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(requireTenant)
		if cfg.Documents != nil {
			cfg.Documents.MountRoutes(api)
		}
		if cfg.Payments != nil {
			cfg.Payments.MountRoutes(api)
		}
		if cfg.Balances != nil {
			cfg.Balances.MountRoutes(api)
		}
		if cfg.Conversion != nil {
			cfg.Conversion.MountRoutes(api)
		}
		if cfg.Stock != nil {
			cfg.Stock.MountRoutes(api)
		}
	})

	return r
}

// requireTenant rejects API calls that arrive without a resolved tenant.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.ActorFromContext(r.Context()).TenantID == 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Missing Tenant", "The X-Tenant-ID header is required.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
