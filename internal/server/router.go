package server

import (
	"net/http"
	"time"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/config"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/handler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handlers groups everything mounted by NewRouter.
type Handlers struct {
	Health     handler.HealthHandler
	Materials  handler.MaterialHandler
	Recipes    handler.RecipeHandler
	Orders     handler.OrderHandler
	Sales      handler.SalesHandler
	Activities handler.ActivityLogHandler
	Stats      handler.StatsHandler
}

// NewRouter wires HTTP routes and middleware.
func NewRouter(cfg config.Config, logger *zap.Logger, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-User-ID", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "Idempotent-Replayed"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, 1*time.Minute))
	}

	h.Health.RegisterRoutes(r)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(OperatorMiddleware(cfg.DefaultUserID))
		h.Materials.RegisterRoutes(api)
		h.Recipes.RegisterRoutes(api)
		h.Orders.RegisterRoutes(api)
		h.Sales.RegisterRoutes(api)
		h.Activities.RegisterRoutes(api)
		h.Stats.RegisterRoutes(api)
	})

	return r
}
