package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"hookdeploy/internal/config"
	"hookdeploy/internal/deployment"
	"hookdeploy/internal/history"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 30 * time.Second

	// GlobalRateLimit is the per-IP limit for read-only routes, per minute.
	GlobalRateLimit = 120
)

// Deployer accepts deployment requests for asynchronous execution.
type Deployer interface {
	Submit(req deployment.Request) error
	Len() int
}

// HistoryReader is the read side of the deployment history.
type HistoryReader interface {
	GetLatestDeployment(ctx context.Context) (*history.DeploymentRecord, error)
	GetDeployment(ctx context.Context, runID string) (*history.DeploymentRecord, error)
	GetDeploymentHistory(ctx context.Context, limit int) ([]history.DeploymentRecord, error)
	GetSummary(ctx context.Context) (*history.Summary, error)
}

// Server represents the HTTP server
type Server struct {
	Config   *config.Config
	Deployer Deployer
	History  HistoryReader // nil when history is disabled
	Logger   *slog.Logger
	TestMode bool
	Now      func() time.Time

	httpServer *http.Server
}

// NewServer creates a new server instance. hist may be nil.
func NewServer(cfg *config.Config, deployer Deployer, hist HistoryReader, logger *slog.Logger, testMode bool) *Server {
	return &Server{
		Config:   cfg,
		Deployer: deployer,
		History:  hist,
		Logger:   logger,
		TestMode: testMode,
		Now:      time.Now,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	// Logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"request_id", middleware.GetReqID(r.Context()),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	// The status page always answers, so it stays outside the limiter.
	r.Get("/", s.HandleStatus)

	r.Group(func(r chi.Router) {
		if !s.TestMode {
			r.Use(NewRateLimitMiddleware("global", GlobalRateLimit, s.Logger))
		}
		r.Get("/health", s.HandleHealth)
		r.Get("/runs", s.HandleRuns)
		r.Get("/runs/{runID}", s.HandleRun)
	})

	r.Group(func(r chi.Router) {
		if !s.TestMode && s.Config.Webhook.RatePerMinute > 0 {
			r.Use(NewRateLimitMiddleware("webhook", s.Config.Webhook.RatePerMinute, s.Logger))
		}
		r.Post("/", s.HandleWebhook)
	})

	return r
}

// ListenAndServe serves on the configured listen address until Shutdown.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.Config.Listen,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	s.Logger.Info("Starting server", "addr", s.Config.Listen)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
// Queued deployments are not affected.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
