// Package adminserver is the worker's optional observability HTTP surface:
// read-only endpoints reporting check store and cooldown state, plus health
// and Prometheus metrics. It never drives or gates worker behavior.
package adminserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/checkstore"
	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/cooldown"
)

// CheckStoreReader is the narrow slice of CheckStore the admin server reads.
type CheckStoreReader interface {
	Stats() checkstore.Stats
	DeferredStats() checkstore.DeferredStats
	DeferredChecks() []checkstore.DeferredCheck
	IsHealthy(cooldown checkstore.CooldownHealth) bool
}

// CooldownReader is the narrow slice of CooldownController the admin server
// reads.
type CooldownReader interface {
	ConnectionStatus() cooldown.ConnectionStatusReport
	AnyEndpointAvailable() bool
}

// Server is the admin HTTP surface.
type Server struct {
	router   *chi.Mux
	store    CheckStoreReader
	cooldown CooldownReader
	logger   *slog.Logger
}

// New builds a Server exposing /stats, /deferred, /cooldowns, /healthz and
// /metrics (registered against registry).
func New(store CheckStoreReader, cooldownCtrl CooldownReader, registry *prometheus.Registry, logger *slog.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		store:    store,
		cooldown: cooldownCtrl,
		logger:   logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/deferred", s.handleDeferred)
	s.router.Get("/cooldowns", s.handleCooldowns)
	if registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the admin server on addr and blocks, returning the
// error of http.Server.ListenAndServe (http.ErrServerClosed once the server
// has been shut down). The http.Server it builds is not exposed to callers.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	healthy := s.store.IsHealthy(s.cooldown)
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	respond(w, s.logger, status, map[string]bool{"healthy": healthy})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respond(w, s.logger, http.StatusOK, s.store.Stats())
}

func (s *Server) handleDeferred(w http.ResponseWriter, _ *http.Request) {
	respond(w, s.logger, http.StatusOK, map[string]any{
		"summary": s.store.DeferredStats(),
		"checks":  s.store.DeferredChecks(),
	})
}

func (s *Server) handleCooldowns(w http.ResponseWriter, _ *http.Request) {
	respond(w, s.logger, http.StatusOK, s.cooldown.ConnectionStatus())
}
