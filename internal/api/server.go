package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/coreledger/bankads/internal/analytics"
	"github.com/coreledger/bankads/internal/cache"
	"github.com/coreledger/bankads/internal/config"
	"github.com/coreledger/bankads/internal/db"
	"github.com/coreledger/bankads/internal/logic"
	"github.com/coreledger/bankads/internal/logic/ratelimit"
	"github.com/coreledger/bankads/internal/middleware"
	"github.com/coreledger/bankads/internal/observability"
)

var tracer = otel.Tracer("bankads")

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Store     *db.RedisStore
	Catalog   db.Catalog
	Selector  *logic.AdSelector
	Cache     *cache.Cache
	Limiter   *ratelimit.Limiter
	Analytics analytics.Sink
	Metrics   observability.MetricsRegistry
	Config    config.Config
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, store *db.RedisStore, catalog db.Catalog, selector *logic.AdSelector, c *cache.Cache, limiter *ratelimit.Limiter, sink analytics.Sink, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	return &Server{
		Logger:    logger,
		Store:     store,
		Catalog:   catalog,
		Selector:  selector,
		Cache:     c,
		Limiter:   limiter,
		Analytics: sink,
		Metrics:   metrics,
		Config:    cfg,
	}
}

// Router builds the HTTP surface. Serving is open but rate-limited; the
// admin and event routes require an API key, and the event routes are
// rate-limited by the caller's tier.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))

	rl := middleware.RateLimit(s.Limiter, s.Config.APIKeys)
	auth := middleware.APIKeyAuth(s.Config.APIKeys, s.Logger)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.HealthHandler).Methods("GET")
	v1.Handle("/ads/serve", rl(http.HandlerFunc(s.ServeAdHandler))).Methods("POST")
	v1.Handle("/ads/create", auth(http.HandlerFunc(s.CreateAdHandler))).Methods("POST")
	v1.Handle("/ads/impression", auth(rl(http.HandlerFunc(s.ImpressionHandler)))).Methods("POST")
	v1.Handle("/ads/click", auth(rl(http.HandlerFunc(s.ClickHandler)))).Methods("POST")

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
