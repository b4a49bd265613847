package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Worker protocol
	mux.HandleFunc("/api/work", s.app.WorkHandler.GetWorkHandler)         // GET - poll for assignments
	mux.HandleFunc("/api/work/", s.app.WorkHandler.UpdateWorkItemHandler) // PUT /{id} - post completion

	// Job management
	mux.HandleFunc("/api/jobs", s.handleJobsRoute) // GET (list), POST (submit)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)

	// Artifact catalogs, served to workers read-only
	mux.Handle("/catalogs/", http.StripPrefix("/catalogs/",
		http.FileServer(http.Dir(s.app.Config.Storage.Catalog.Path))))

	// Metrics scrape endpoint
	mux.Handle("/metrics", s.app.MetricsSink.Handler())

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.JobHandler.ListJobsHandler(w, r)
	case http.MethodPost:
		s.app.JobHandler.SubmitJobHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes routes /api/jobs/{id} and its lifecycle subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if path == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	jobID, action, _ := strings.Cut(path, "/")

	switch action {
	case "":
		if r.Method == http.MethodGet {
			s.app.JobHandler.GetJobHandler(w, r, jobID)
			return
		}
	case "cancel":
		s.app.JobHandler.CancelJobHandler(w, r, jobID)
		return
	case "pause":
		s.app.JobHandler.PauseJobHandler(w, r, jobID)
		return
	case "resume":
		s.app.JobHandler.ResumeJobHandler(w, r, jobID)
		return
	case "skip-preview":
		s.app.JobHandler.SkipPreviewHandler(w, r, jobID)
		return
	}

	http.Error(w, "Not found", http.StatusNotFound)
}
