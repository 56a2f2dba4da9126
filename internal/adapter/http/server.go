package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/meteo-telemetry-service/internal/display"
	"github.com/couchcryptid/meteo-telemetry-service/internal/store"
	"github.com/couchcryptid/meteo-telemetry-service/internal/telemetry"
	"github.com/couchcryptid/meteo-telemetry-service/internal/units"
)

// Service is the telemetry API the handlers call.
type Service interface {
	Ingest(ctx context.Context, req telemetry.Request) (telemetry.Result, error)
	Latest(ctx context.Context, keys []string, targets units.Set) (store.Snapshot, error)
	Render(ctx context.Context, opts display.Options) (display.Output, error)
}

// Server exposes the telemetry API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer     *http.Server
	svc            Service
	clientIPHeader string
	logger         *slog.Logger
}

// NewServer creates an HTTP server. clientIPHeader, when non-empty, names a
// proxy header whose first entry is trusted as the client address.
func NewServer(addr string, svc Service, ready sharedobs.ReadinessChecker, clientIPHeader string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:            svc,
		clientIPHeader: clientIPHeader,
		logger:         logger,
	}

	mux.HandleFunc("GET /api/v1/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/v1/ingest", s.handleIngest)
	mux.HandleFunc("GET /api/v1/latest", s.handleLatest)
	mux.HandleFunc("GET /api/v1/display", s.handleDisplay)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
