// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/okian/dashboard-api/internal/app"
	"github.com/okian/dashboard-api/internal/domain/analytics"
	"github.com/okian/dashboard-api/internal/domain/model"
	"github.com/okian/dashboard-api/pkg/logger"
	"github.com/okian/dashboard-api/pkg/metrics"
)

const (
	defaultMaxBodyBytes    = 1 << 20
	defaultMaxRecentLimit  = 100
	defaultRecentLimit     = 10
	jsonContentType        = "application/json; charset=utf-8"
	routeHealth            = "/health"
	routeDeploymentPattern = "/deployments/{deployment_id}/analytics"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	// Submit queues an event for recording.
	Submit(ctx context.Context, e model.UserEvent) (service.SubmitResult, error)

	// ResolveRange fills absent range bounds.
	ResolveRange(from, to time.Time) (analytics.Range, error)

	Stats(ctx context.Context, deploymentID int64, r analytics.Range) (analytics.Stats, error)
	RecentSignups(ctx context.Context, deploymentID int64, limit int) ([]analytics.RecentSignup, error)
	DailyCounts(ctx context.Context, deploymentID int64, t model.EventType, r analytics.Range) ([]analytics.DailyCount, error)
}

// StatusProvider reports service statistics for GET /stats.
type StatusProvider interface {
	Status(ctx context.Context) service.Status
}

// Mounter attaches extra routes, such as documentation pages, to the router.
type Mounter func(r chi.Router)

// Server wires HTTP routes for the dashboard API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	eventsHandler    *EventsHandler
	analyticsHandler *AnalyticsHandler

	maxBodyBytes   int64
	maxRecentLimit int
	corsOrigins    []string
	mounts         []Mounter

	logger logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, status StatusProvider, opts ...Option) *Server {
	s := &Server{
		maxBodyBytes:   defaultMaxBodyBytes,
		maxRecentLimit: defaultMaxRecentLimit,
		corsOrigins:    []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(status)
	s.eventsHandler = NewEventsHandler(deps)
	s.analyticsHandler = NewAnalyticsHandler(deps, s.maxRecentLimit)
	return s
}

// Handler builds the router with its middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(Recoverer(s.logger))
	r.Use(middleware.GetHead)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(CORS(s.corsOrigins))
	r.Use(MetricsMiddleware)
	r.Use(BodyLimit(s.maxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, NewKind("api.route", ErrNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, NewKind("api.route", ErrMethodNotAllowed))
	})

	r.Get(routeHealth, s.healthHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	r.Get("/stats", s.statsHandler.HandleStats)
	r.Post("/events", s.eventsHandler.HandlePostEvent)
	r.Route(routeDeploymentPattern, func(r chi.Router) {
		r.Get("/stats", s.analyticsHandler.HandleStats)
		r.Get("/recent-signups", s.analyticsHandler.HandleRecentSignups)
		r.Get("/daily", s.analyticsHandler.HandleDaily)
	})

	for _, mount := range s.mounts {
		mount(r)
	}
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeJSON(w, status, errorResponse{Code: code, Message: publicMessage(err, status)})
}
