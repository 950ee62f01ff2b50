package rest

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/VadimShubkin/ii/interfaces/http/rest/handlers"
	"github.com/VadimShubkin/ii/interfaces/http/rest/middleware"
	"github.com/VadimShubkin/ii/pkg/auth"
	"github.com/VadimShubkin/ii/pkg/common"
	"github.com/VadimShubkin/ii/pkg/observability"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Options selects the optional router layers
type Options struct {
	ServiceName    string
	EnableCORS     bool
	EnableTracing  bool
	TrustGateway   bool
	ModeratorRoles []string
	AllowedOrigins []string
}

// Router creates and configures the HTTP router
type Router struct {
	topics     *handlers.TopicHandler
	moderation *handlers.ModerationHandler
	validator  *auth.Validator
	collector  *observability.Collector
	checks     map[string]ReadinessCheck
	options    Options
	logger     *zap.Logger
}

// NewRouter creates a new router instance. validator and collector may be nil.
func NewRouter(
	topics *handlers.TopicHandler,
	moderation *handlers.ModerationHandler,
	validator *auth.Validator,
	collector *observability.Collector,
	checks map[string]ReadinessCheck,
	options Options,
	logger *zap.Logger,
) *Router {
	if options.ServiceName == "" {
		options.ServiceName = "topics"
	}
	if len(options.AllowedOrigins) == 0 {
		options.AllowedOrigins = []string{"http://localhost:3000"}
	}
	return &Router{
		topics:     topics,
		moderation: moderation,
		validator:  validator,
		collector:  collector,
		checks:     checks,
		options:    options,
		logger:     logger,
	}
}

// Setup configures all routes and middleware, adding the X-Ray handler
// when tracing is enabled
func (rt *Router) Setup() http.Handler {
	router := rt.Mux()
	if rt.options.EnableTracing {
		return xray.Handler(xray.NewFixedSegmentNamer(rt.options.ServiceName), router)
	}
	return router
}

// Mux builds the bare chi router. The Lambda adapter needs it unwrapped.
func (rt *Router) Mux() *chi.Mux {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	var rec middleware.HTTPRecorder
	if rt.collector != nil {
		rec = rt.collector
	}
	router.Use(middleware.Logger(rt.logger, rec))

	if rt.options.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.options.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.collector != nil {
		router.Handle("/metrics", rt.collector.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.validator, rt.options.TrustGateway, rt.logger))

		r.Route("/topic", rt.topics.Routes)

		r.Route("/moderation", func(r chi.Router) {
			r.Use(middleware.RequireRole(rt.options.ModeratorRoles...))
			rt.moderation.Routes(r)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck runs every registered dependency check
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(rt.checks))
	for name := range rt.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := rt.checks[name](ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	common.RespondJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": results,
	})
}
