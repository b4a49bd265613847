// -----------------------------------------------------------------------
// Job handler - job submission and lifecycle endpoints
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/interfaces"
	"github.com/harmony-svc/orchestrator/internal/services/jobs"
)

type JobHandler struct {
	jobs   *jobs.Service
	logger arbor.ILogger
}

func NewJobHandler(jobService *jobs.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:   jobService,
		logger: logger,
	}
}

// SubmitJobHandler handles POST /api/jobs
func (h *JobHandler) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req jobs.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.jobs.Submit(r.Context(), &req)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// ListJobsHandler handles GET /api/jobs?username=&status=&limit=&offset=
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := &interfaces.JobListOptions{
		Username: r.URL.Query().Get("username"),
		Status:   r.URL.Query().Get("status"),
		Limit:    QueryInt(r, "limit", 50),
		Offset:   QueryInt(r, "offset", 0),
	}

	jobList, total, err := h.jobs.List(r.Context(), opts)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobList,
		"total": total,
	})
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	detail, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

// CancelJobHandler handles POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	h.lifecycle(w, r, jobID, h.jobs.Cancel)
}

// PauseJobHandler handles POST /api/jobs/{id}/pause
func (h *JobHandler) PauseJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	h.lifecycle(w, r, jobID, h.jobs.Pause)
}

// ResumeJobHandler handles POST /api/jobs/{id}/resume
func (h *JobHandler) ResumeJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	h.lifecycle(w, r, jobID, h.jobs.Resume)
}

// SkipPreviewHandler handles POST /api/jobs/{id}/skip-preview
func (h *JobHandler) SkipPreviewHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	h.lifecycle(w, r, jobID, h.jobs.SkipPreview)
}

func (h *JobHandler) lifecycle(w http.ResponseWriter, r *http.Request, jobID string, op func(ctx context.Context, jobID string) error) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	if err := op(r.Context(), jobID); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
