package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/queue"
	"github.com/shaiso/beeflow/internal/repo"
)

// WorkflowService — действия Workflow Manager'а (orchestrator.Orchestrator).
type WorkflowService interface {
	Submit(ctx context.Context, bundle *domain.Bundle) (uuid.UUID, error)
	Start(ctx context.Context, id uuid.UUID) error
	Pause(ctx context.Context, id uuid.UUID) error
	Resume(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) ([]string, error)
	Query(ctx context.Context, id uuid.UUID) (*domain.WorkflowStatus, error)
	List(ctx context.Context) ([]domain.WorkflowStatus, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Reexecute(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	ApplyUpdates(ctx context.Context, updates []domain.TaskUpdate) error
}

// OutputLister читает side-store outputs (repo.OutputRepo).
type OutputLister interface {
	ListOutputs(ctx context.Context, wfID uuid.UUID, taskID *uuid.UUID) ([]repo.TaskOutput, error)
}

// TaskService — операции Task Manager'а (dispatch.Dispatcher).
type TaskService interface {
	Enqueue(ctx context.Context, tasks []*domain.Task) error
	CancelWorkflow(ctx context.Context, wfID uuid.UUID) ([]domain.CancelResult, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// Handler — главный обработчик API с зависимостями.
//
// Один тип обслуживает оба процесса: WFM регистрирует Workflows,
// TM регистрирует Tasks. Маршруты без зависимости не регистрируются.
type Handler struct {
	workflows WorkflowService
	outputs   OutputLister
	tasks     TaskService
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Workflows WorkflowService
	Outputs   OutputLister
	Tasks     TaskService
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		workflows: cfg.Workflows,
		outputs:   cfg.Outputs,
		tasks:     cfg.Tasks,
		logger:    logger.With("component", "api"),
	}
}
