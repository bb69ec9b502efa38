package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/engine"
)

// maxBundleSize — предел тела POST /api/v1/workflows.
const maxBundleSize = 32 << 20

// SubmitWorkflow загружает workflow (YAML или JSON bundle).
// POST /api/v1/workflows
func (h *Handler) SubmitWorkflow(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBundleSize))
	if err != nil {
		BadRequest(w, "failed to read request body")
		return
	}

	bundle, err := engine.ParseBundle(data)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	id, err := h.workflows.Submit(r.Context(), bundle)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Created(w, SubmitResponse{ID: id})
}

// ListWorkflows возвращает статусы всех загруженных workflows.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := h.workflows.List(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, list, len(list))
}

// GetWorkflow возвращает статус workflow и его tasks.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	status, err := h.workflows.Query(r.Context(), id)
	if HandleError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, status)
}

// StartWorkflow запускает workflow.
// POST /api/v1/workflows/{id}/start
func (h *Handler) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflows.Start)
}

// PauseWorkflow приостанавливает workflow.
// POST /api/v1/workflows/{id}/pause
func (h *Handler) PauseWorkflow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflows.Pause)
}

// ResumeWorkflow возобновляет workflow.
// POST /api/v1/workflows/{id}/resume
func (h *Handler) ResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.workflows.Resume)
}

// transition выполняет действие и отвечает новым статусом workflow.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id uuid.UUID) error) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	if err := action(r.Context(), id); HandleError(w, h.logger, err, "workflow not found") {
		return
	}

	status, err := h.workflows.Query(r.Context(), id)
	if HandleError(w, h.logger, err, "workflow not found") {
		return
	}
	Success(w, status)
}

// CancelWorkflow отменяет workflow.
// POST /api/v1/workflows/{id}/cancel
func (h *Handler) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	lines, err := h.workflows.Cancel(r.Context(), id)
	if HandleError(w, h.logger, err, "workflow not found") {
		return
	}
	if lines == nil {
		lines = []string{}
	}

	Success(w, CancelResponse{Lines: lines})
}

// DeleteWorkflow удаляет workflow.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	if err := h.workflows.Delete(r.Context(), id); HandleError(w, h.logger, err, "workflow not found") {
		return
	}

	NoContent(w)
}

// ReexecuteWorkflow создаёт новый workflow из архивированного.
// POST /api/v1/workflows/{id}/reexecute
func (h *Handler) ReexecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	newID, err := h.workflows.Reexecute(r.Context(), id)
	if HandleError(w, h.logger, err, "workflow not found") {
		return
	}

	Created(w, SubmitResponse{ID: newID})
}

// ListOutputs возвращает записи side-store outputs workflow.
// GET /api/v1/workflows/{id}/outputs?task_id=...
func (h *Handler) ListOutputs(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}

	var taskID *uuid.UUID
	if s := r.URL.Query().Get("task_id"); s != "" {
		parsed, err := uuid.Parse(s)
		if err != nil {
			BadRequest(w, "invalid task_id")
			return
		}
		taskID = &parsed
	}

	outputs, err := h.outputs.ListOutputs(r.Context(), id, taskID)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]OutputResponse, len(outputs))
	for i, o := range outputs {
		result[i] = OutputFromRepo(o)
	}
	List(w, result, len(result))
}

// ApplyUpdates принимает пачку updates от Task Manager'а.
// PUT /api/v1/updates
func (h *Handler) ApplyUpdates(w http.ResponseWriter, r *http.Request) {
	var req UpdatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.workflows.ApplyUpdates(r.Context(), req.Updates); HandleError(w, h.logger, err, "") {
		return
	}

	NoContent(w)
}

func workflowID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return uuid.Nil, false
	}
	return id, true
}
