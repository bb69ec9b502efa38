package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/beeflow/internal/domain"
)

// SubmitTasks кладёт tasks в submit-очередь Task Manager'а.
// POST /api/v1/tasks
func (h *Handler) SubmitTasks(w http.ResponseWriter, r *http.Request) {
	var req SubmitTasksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	for _, task := range req.Tasks {
		if task == nil || task.Name == "" {
			BadRequest(w, "task without name")
			return
		}
	}

	if err := h.tasks.Enqueue(r.Context(), req.Tasks); HandleError(w, h.logger, err, "") {
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: map[string]int{"queued": len(req.Tasks)}})
}

// CancelWorkflowTasks снимает все tasks workflow.
// POST /api/v1/workflows/{id}/tasks/cancel
func (h *Handler) CancelWorkflowTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	results, err := h.tasks.CancelWorkflow(r.Context(), id)
	if HandleError(w, h.logger, err, "") {
		return
	}
	if results == nil {
		results = []domain.CancelResult{}
	}

	List(w, results, len(results))
}

// QueueStats возвращает длины очередей.
// GET /api/v1/queues
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tasks.Stats(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, QueueStatsResponse{
		Submit: stats.Submit,
		Job:    stats.Job,
		Update: stats.Update,
	})
}
