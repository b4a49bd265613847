// -----------------------------------------------------------------------
// Work handler - the worker-facing poll and completion endpoints
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/engine"
	"github.com/harmony-svc/orchestrator/internal/models"
	"github.com/harmony-svc/orchestrator/internal/scheduler"
)

// WorkHandler serves the worker protocol: GET /api/work polls for
// assignments, PUT /api/work/{id} posts a completion.
type WorkHandler struct {
	scheduler *scheduler.Scheduler
	engine    *engine.Engine
	logger    arbor.ILogger
}

func NewWorkHandler(sched *scheduler.Scheduler, eng *engine.Engine, logger arbor.ILogger) *WorkHandler {
	return &WorkHandler{
		scheduler: sched,
		engine:    eng,
		logger:    logger,
	}
}

// GetWorkHandler handles GET /api/work?serviceID=...&batchSize=...
// Responds 200 with assignments or 404 when the service has no ready work.
func (h *WorkHandler) GetWorkHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	serviceID := r.URL.Query().Get("serviceID")
	batchSize := QueryInt(r, "batchSize", 0)

	assignments, err := h.scheduler.GetWork(r.Context(), serviceID, batchSize)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"work": assignments,
	})
}

// UpdateWorkItemHandler handles PUT /api/work/{id}. Responds 200 on
// accepted, 400 on a malformed payload, 404 on unknown id, 409 when the
// update arrives out of state.
func (h *WorkHandler) UpdateWorkItemHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/work/")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		WriteError(w, http.StatusBadRequest, "invalid work item id")
		return
	}

	var update models.WorkItemUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	update.ID = id

	if err := h.engine.UpdateWorkItem(r.Context(), &update); err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
