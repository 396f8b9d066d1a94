package server

import "net/http"

// setupRoutes wires the API handlers onto method+pattern routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Job admin surface
	mux.HandleFunc("GET /api/jobs", s.api.ListJobs)
	mux.HandleFunc("GET /api/jobs/runs", s.api.ListRuns)
	mux.HandleFunc("POST /api/jobs/{id}/trigger", s.api.TriggerJob)
	mux.HandleFunc("PUT /api/jobs/{id}", s.api.UpdateJob)
	mux.HandleFunc("POST /api/jobs/{id}/enable", s.api.EnableJob)
	mux.HandleFunc("POST /api/jobs/{id}/disable", s.api.DisableJob)

	// Dashboard reads
	mux.HandleFunc("GET /api/widgets/{key}", s.api.GetWidget)
	mux.HandleFunc("GET /api/widgets/{key}/{scope}", s.api.GetWidgetScope)
	mux.HandleFunc("GET /api/insights", s.api.GetInsight)
	mux.HandleFunc("GET /api/catalog", s.api.GetCatalog)

	// Operational
	mux.HandleFunc("GET /api/health", s.api.Health)
	mux.HandleFunc("GET /api/version", s.api.Version)
	mux.HandleFunc("GET /api/status", s.api.Status)

	return mux
}
