package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-metrics/internal/analytics"
	"github.com/kubilitics/kubilitics-metrics/internal/audit"
	"github.com/kubilitics/kubilitics-metrics/internal/collector"
	"github.com/kubilitics/kubilitics-metrics/internal/config"
	"github.com/kubilitics/kubilitics-metrics/internal/dashboard"
	"github.com/kubilitics/kubilitics-metrics/internal/middleware"
	"github.com/kubilitics/kubilitics-metrics/internal/scheduler"
	"github.com/kubilitics/kubilitics-metrics/internal/storage"
)

// Deps are the components the API serves. Scheduler and Audit may be nil.
type Deps struct {
	Collector  *collector.Collector
	Analytics  *analytics.Engine
	Dashboards *dashboard.Builder
	Scheduler  *scheduler.Scheduler
	Audit      audit.Logger
}

// Server is the metrics HTTP API.
type Server struct {
	config config.ServerConfig
	deps   Deps
	logger *zap.Logger

	retentionDays  int
	streamInterval time.Duration
	heartbeat      time.Duration

	limiter  *middleware.RateLimiter
	upgrader websocket.Upgrader
	router   *mux.Router

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// NewServer wires the API over deps.
func NewServer(cfg *config.Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if deps.Collector == nil || deps.Analytics == nil || deps.Dashboards == nil {
		return nil, fmt.Errorf("collector, analytics and dashboards are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}

	streamInterval := time.Duration(cfg.Dashboard.StreamIntervalSeconds) * time.Second
	if streamInterval <= 0 {
		streamInterval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:         cfg.Server,
		deps:           deps,
		logger:         logger.Named("server"),
		retentionDays:  cfg.Collection.RetentionDays,
		streamInterval: streamInterval,
		heartbeat:      30 * time.Second,
		limiter:        middleware.NewRateLimiter(cfg.Server.RateLimitPerMin),
		upgrader:       newUpgrader(cfg.Server.AllowedOrigins),
		ctx:            ctx,
		cancel:         cancel,
	}
	s.router = s.routes()
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/metrics/cluster", s.handleClusterMetrics).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/collect", s.limiter.Middleware(s.handleCollect)).Methods(http.MethodPost)
	api.HandleFunc("/metrics", s.limiter.Middleware(s.handleDeleteMetrics)).Methods(http.MethodDelete)
	api.HandleFunc("/metrics/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/metrics/services/{id}/summary", s.handleServiceSummary).Methods(http.MethodGet)
	api.HandleFunc("/scheduler/jobs", s.handleJobs).Methods(http.MethodGet)

	api.HandleFunc("/analytics/aggregate", s.handleAggregate).Methods(http.MethodGet)
	api.HandleFunc("/analytics/trends", s.handleTrends).Methods(http.MethodGet)
	api.HandleFunc("/analytics/services", s.handleServices).Methods(http.MethodGet)
	api.HandleFunc("/analytics/services/{id}", s.handleServices).Methods(http.MethodGet)
	api.HandleFunc("/analytics/nodes", s.handleNodes).Methods(http.MethodGet)
	api.HandleFunc("/analytics/predict", s.handlePredict).Methods(http.MethodGet)
	api.HandleFunc("/analytics/export", s.limiter.Middleware(s.handleExport)).Methods(http.MethodPost)

	api.HandleFunc("/dashboards/data", s.handleDashboardData).Methods(http.MethodPost)
	api.HandleFunc("/dashboards/templates", s.handleDashboardTemplates).Methods(http.MethodGet)
	api.HandleFunc("/dashboards/stream", s.handleDashboardStream).Methods(http.MethodGet)

	return r
}

// Start begins serving on the configured address.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the listener down, closes open streams and waits for them.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		if err = s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
	}
	s.cancel()
	s.limiter.Stop()
	s.wg.Wait()
	s.logger.Info("http server stopped")
	return err
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// recordAudit records a data event attributed to the calling client.
func (s *Server) recordAudit(r *http.Request, event *audit.Event) {
	event.WithActor(middleware.ClientKey(r), r.UserAgent())
	if err := s.deps.Audit.Log(r.Context(), event); err != nil {
		s.logger.Warn("audit log failed", zap.Error(err))
	}
}

func (s *Server) backend() storage.Backend {
	return s.deps.Collector.Backend()
}

// degradedNote is the note attached to answers served by a stand-in backend.
func (s *Server) degradedNote() string {
	if degraded, reason := storage.Degraded(s.backend()); degraded {
		return fmt.Sprintf("storage degraded, results are empty: %v", reason)
	}
	return ""
}
