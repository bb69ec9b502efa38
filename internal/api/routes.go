package api

import (
	"net/http"
)

// RegisterRoutes регистрирует маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)

	// Workflow Manager
	if h.workflows != nil {
		mux.Handle("GET /api/v1/workflows", chain(http.HandlerFunc(h.ListWorkflows)))
		mux.Handle("POST /api/v1/workflows", chain(http.HandlerFunc(h.SubmitWorkflow)))
		mux.Handle("GET /api/v1/workflows/{id}", chain(http.HandlerFunc(h.GetWorkflow)))
		mux.Handle("DELETE /api/v1/workflows/{id}", chain(http.HandlerFunc(h.DeleteWorkflow)))
		mux.Handle("POST /api/v1/workflows/{id}/start", chain(http.HandlerFunc(h.StartWorkflow)))
		mux.Handle("POST /api/v1/workflows/{id}/pause", chain(http.HandlerFunc(h.PauseWorkflow)))
		mux.Handle("POST /api/v1/workflows/{id}/resume", chain(http.HandlerFunc(h.ResumeWorkflow)))
		mux.Handle("POST /api/v1/workflows/{id}/cancel", chain(http.HandlerFunc(h.CancelWorkflow)))
		mux.Handle("POST /api/v1/workflows/{id}/reexecute", chain(http.HandlerFunc(h.ReexecuteWorkflow)))
		mux.Handle("PUT /api/v1/updates", chain(http.HandlerFunc(h.ApplyUpdates)))

		if h.outputs != nil {
			mux.Handle("GET /api/v1/workflows/{id}/outputs", chain(http.HandlerFunc(h.ListOutputs)))
		}
	}

	// Task Manager
	if h.tasks != nil {
		mux.Handle("POST /api/v1/tasks", chain(http.HandlerFunc(h.SubmitTasks)))
		mux.Handle("POST /api/v1/workflows/{id}/tasks/cancel", chain(http.HandlerFunc(h.CancelWorkflowTasks)))
		mux.Handle("GET /api/v1/queues", chain(http.HandlerFunc(h.QueueStats)))
	}
}
