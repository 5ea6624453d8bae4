package server

import (
	"net/http"
	"strings"
)

// setupRoutes registers the API surface.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket telemetry back to the producer
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Offload pipeline
	mux.HandleFunc("/api/offload", s.app.OffloadHandler.SubmitHandler)            // POST - submit work
	mux.HandleFunc("/api/offload/stats", s.app.OffloadHandler.StatsHandler)       // GET - queue counters
	mux.HandleFunc("/api/offload/outcomes", s.app.OffloadHandler.OutcomesHandler) // GET - archived outcomes
	mux.HandleFunc("/api/offload/clear", s.app.OffloadHandler.ClearHandler)       // POST - drop pending work
	mux.HandleFunc("/api/offload/breakers", s.app.OffloadHandler.BreakersHandler) // GET - breaker states
	mux.HandleFunc("/api/offload/breakers/", s.handleBreakerRoutes)               // POST /{backend}/reset

	// Health / status
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler) // GET - full status
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)    // GET - liveness

	return mux
}

// handleBreakerRoutes dispatches /api/offload/breakers/{backend}/reset
func (s *Server) handleBreakerRoutes(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/reset") {
		s.app.OffloadHandler.BreakerResetHandler(w, r)
		return
	}
	http.NotFound(w, r)
}
