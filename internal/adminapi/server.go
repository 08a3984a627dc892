// Package adminapi implements a read-only HTTP surface, separate from the
// line-protocol listener, exposing health, Prometheus metrics, a registry
// snapshot, and a live dispatch feed.
package adminapi

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"spoolerd/internal/registry"
)

// Server is the Admin API's http.Handler plus the state it reports on.
type Server struct {
	router *chi.Mux
	reg    *registry.Registry
	log    zerolog.Logger
	ready  atomic.Bool
}

// New builds the Admin API router. metricsReg is the Prometheus registry
// Bootstrap has already registered every component's collectors with.
func New(reg *registry.Registry, metricsReg *prometheus.Registry, log zerolog.Logger) *Server {
	s := &Server{reg: reg, log: log}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	r.Get("/tasks", s.handleTasks)
	r.Get("/ws/dispatch", s.handleWSDispatch)
	s.router = r

	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// SetReady flips /healthz to 200. Bootstrap calls this once the Queue Set,
// Dispatch Channel, and Worker Pool are fully wired.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "bootstrap has not finished wiring the engine")
		return
	}
	writeJSON(w, http.StatusOK, []byte(`{"status":"ok"}`))
}
