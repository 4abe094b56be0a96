package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"leadboard/internal/audit"
	"leadboard/internal/auth"
	"leadboard/internal/security"
	"leadboard/internal/store"
	"leadboard/internal/webhook"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 65 * time.Second // longer than RequestTimeout so slow forwards still answer
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 60 * time.Second

	// Backend reachability check in /health
	HealthPingTimeout = 3 * time.Second
)

// Forwarder relays a webhook payload to an already validated target.
type Forwarder interface {
	Forward(ctx context.Context, target *url.URL, data json.RawMessage) (*webhook.Result, error)
}

// AuditLog records forwards and lists recent ones.
type AuditLog interface {
	Record(ctx context.Context, f *audit.Forward) (int64, error)
	Recent(ctx context.Context, host string, limit int) ([]audit.Forward, error)
}

// Options holds the optional parts of a Server.
type Options struct {
	// Auth gates non-public routes; nil leaves every route public.
	Auth *auth.Authenticator
	// Audit records forwards; nil disables the log and its endpoint.
	Audit AuditLog

	RequestsPerMinute      int // 0 disables
	ProxyRequestsPerMinute int // 0 disables

	Version string
}

// Server represents the HTTP server
type Server struct {
	Store     store.Store
	Guard     *security.TargetGuard
	Forwarder Forwarder
	Auth      *auth.Authenticator
	Audit     AuditLog
	Logger    *slog.Logger

	requestsPerMinute      int
	proxyRequestsPerMinute int
	version                string
}

// NewServer creates a new server instance
func NewServer(st store.Store, guard *security.TargetGuard, fwd Forwarder, logger *slog.Logger, opts Options) *Server {
	if guard == nil {
		guard = security.NewTargetGuard(nil, nil)
	}
	if fwd == nil {
		fwd = webhook.NewForwarder(guard)
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	return &Server{
		Store:                  st,
		Guard:                  guard,
		Forwarder:              fwd,
		Auth:                   opts.Auth,
		Audit:                  opts.Audit,
		Logger:                 logger,
		requestsPerMinute:      opts.RequestsPerMinute,
		proxyRequestsPerMinute: opts.ProxyRequestsPerMinute,
		version:                opts.Version,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
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
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	r.Use(CORS)

	if s.requestsPerMinute > 0 {
		r.Use(NewRateLimitMiddleware("global", s.requestsPerMinute, s.Logger))
	}

	for _, rt := range s.routes() {
		var h http.Handler = rt.handler
		if rt.role != "" {
			h = s.requireRole(rt.role, h)
		}
		if !rt.public {
			h = s.requireAuth(h)
		}
		if rt.limit > 0 {
			h = NewRateLimitMiddleware(rt.pattern, rt.limit, s.Logger)(h)
		}
		r.Method(rt.method, rt.pattern, h)
	}

	r.NotFound(s.HandleNotFound)
	r.MethodNotAllowed(s.HandleNotFound)

	return r
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	respondJSON(s.Logger, w, statusCode, data)
}

func respondJSON(logger *slog.Logger, w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}
