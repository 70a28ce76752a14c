// Package httpapi exposes the ambient liveness/introspection surface: a
// health check and a Prometheus-text /metrics endpoint reading from the
// domain metrics sink, both mounted on a gorilla/mux router.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"

	"utms/internal/entitystore"
	"utms/internal/logger"
	"utms/internal/metrics"
)

// Server is the ambient health/metrics HTTP surface: a liveness and
// introspection port, not a REST CRUD surface.
type Server struct {
	router    *mux.Router
	store     *entitystore.Store
	sink      *metrics.Sink
	startTime time.Time
}

// New builds a Server wired to store and sink (sink may be nil, in which
// case /metrics reports no samples).
func New(store *entitystore.Store, sink *metrics.Sink) *Server {
	s := &Server{router: mux.NewRouter(), store: store, sink: sink, startTime: time.Now()}
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	return s
}

// Handler returns the mux.Router to mount in an http.Server.
func (s *Server) Handler() http.Handler { return s.router }

type healthResponse struct {
	Status     string `json:"status"`
	UptimeSecs int64  `json:"uptime_seconds"`
	Entities   int    `json:"entity_count"`
	GoRoutines int    `json:"goroutines"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "healthy",
		UptimeSecs: int64(time.Since(s.startTime).Seconds()),
		Entities:   len(s.store.All()),
		GoRoutines: runtime.NumGoroutine(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("httpapi: encoding health response: %v", err)
	}
}

// handleMetrics renders a minimal Prometheus text-exposition document: the
// live entity and goroutine gauges plus, when a sink is wired, the newest
// value of each category/name pair among the 100 most recent samples
// logged through the log-metric built-in.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP utms_entities_total Entities currently loaded in the store\n")
	fmt.Fprintf(w, "# TYPE utms_entities_total gauge\n")
	fmt.Fprintf(w, "utms_entities_total %d\n", len(s.store.All()))
	fmt.Fprintf(w, "# HELP utms_goroutines Goroutines currently running\n")
	fmt.Fprintf(w, "# TYPE utms_goroutines gauge\n")
	fmt.Fprintf(w, "utms_goroutines %d\n", runtime.NumGoroutine())

	if s.sink == nil {
		return
	}
	samples, err := s.sink.AllRecent(100)
	if err != nil {
		logger.Error("httpapi: reading recent metric samples: %v", err)
		return
	}
	fmt.Fprintf(w, "# HELP utms_logged_metric Most recent value logged through log-metric, per category/name\n")
	fmt.Fprintf(w, "# TYPE utms_logged_metric gauge\n")
	seen := make(map[string]bool, len(samples))
	for _, smp := range samples {
		key := smp.Category + "/" + smp.Name
		if seen[key] {
			continue
		}
		seen[key] = true
		fmt.Fprintf(w, "utms_logged_metric{category=%q,name=%q} %g\n", smp.Category, smp.Name, smp.Value)
	}
}
