package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/graph"
	"github.com/shaiso/beeflow/internal/scheduler"
	"github.com/shaiso/beeflow/internal/telemetry"
)

// Snapshots — долговременное хранилище снимков графа (repo.WorkflowRepo).
type Snapshots interface {
	Save(ctx context.Context, bundle *domain.Bundle) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Bundle, error)
	ListActive(ctx context.Context) ([]domain.Bundle, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// OutputStore — side-store для outputs из updates (repo.OutputRepo).
type OutputStore interface {
	SaveOutput(ctx context.Context, wfID, taskID uuid.UUID, ts time.Time, output map[string]any) error
}

// TaskDispatcher — Task Manager (client.TM).
type TaskDispatcher interface {
	SubmitTasks(ctx context.Context, tasks []*domain.Task) error
	CancelWorkflow(ctx context.Context, wfID uuid.UUID) ([]domain.CancelResult, error)
}

// Allocator распределяет готовые tasks по ресурсам (scheduler.Allocator).
type Allocator interface {
	Allocate(ctx context.Context, tasks []*domain.Task) (*scheduler.Allocation, error)
}

// Archiver выполняет export/компрессию архивируемого workflow.
type Archiver interface {
	Archive(ctx context.Context, bundle *domain.Bundle, final domain.ArchiveFinal) error
}

// workflow — загруженный workflow и его мьютекс.
type workflow struct {
	store *graph.Store
	mu    sync.Mutex
}

// Orchestrator — Workflow Manager.
type Orchestrator struct {
	snapshots  Snapshots
	outputs    OutputStore
	dispatcher TaskDispatcher
	allocator  Allocator
	archiver   Archiver

	workDirRoot string

	workflows map[uuid.UUID]*workflow
	mu        sync.RWMutex

	logger *slog.Logger
}

// Config — конфигурация Orchestrator. Все зависимости, кроме Dispatcher, опциональны.
type Config struct {
	Snapshots  Snapshots
	Outputs    OutputStore
	Dispatcher TaskDispatcher
	Allocator  Allocator
	Archiver   Archiver

	// WorkDirRoot — корень рабочих директорий workflows без явного workdir.
	WorkDirRoot string

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	allocator := cfg.Allocator
	if allocator == nil {
		allocator = scheduler.NewAllocator(scheduler.Config{Logger: logger})
	}

	return &Orchestrator{
		snapshots:   cfg.Snapshots,
		outputs:     cfg.Outputs,
		dispatcher:  cfg.Dispatcher,
		allocator:   allocator,
		archiver:    cfg.Archiver,
		workDirRoot: cfg.WorkDirRoot,
		workflows:   make(map[uuid.UUID]*workflow),
		logger:      logger.With("component", "orchestrator"),
	}
}

// Restore загружает незаархивированные workflows из Snapshots.
// Вызывается один раз при старте.
func (o *Orchestrator) Restore(ctx context.Context) (int, error) {
	if o.snapshots == nil {
		return 0, nil
	}

	bundles, err := o.snapshots.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active workflows: %w", err)
	}

	restored := 0
	for i := range bundles {
		store := graph.NewStore()
		if err := store.Restore(&bundles[i]); err != nil {
			o.logger.Error("failed to restore workflow",
				"wf_id", bundles[i].Workflow.ID,
				"error", err,
			)
			continue
		}
		o.register(bundles[i].Workflow.ID, store)
		restored++
	}

	o.logger.Info("workflows restored", "count", restored)
	return restored, nil
}

// register добавляет store в набор загруженных workflows.
func (o *Orchestrator) register(id uuid.UUID, store *graph.Store) *workflow {
	wf := &workflow{store: store}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.workflows[id] = wf
	telemetry.ActiveWorkflows.Set(float64(len(o.workflows)))
	return wf
}

func (o *Orchestrator) unregister(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.workflows, id)
	telemetry.ActiveWorkflows.Set(float64(len(o.workflows)))
}

// lookup возвращает загруженный workflow.
func (o *Orchestrator) lookup(id uuid.UUID) (*workflow, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	wf, ok := o.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return wf, nil
}

// ids возвращает ID загруженных workflows.
func (o *Orchestrator) ids() []uuid.UUID {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(o.workflows))
	for id := range o.workflows {
		out = append(out, id)
	}
	return out
}

// persist сохраняет снимок графа. Ошибка логируется: граф в памяти остаётся источником истины.
func (o *Orchestrator) persist(ctx context.Context, wf *workflow) {
	if o.snapshots == nil {
		return
	}
	bundle, err := wf.store.Snapshot()
	if err != nil {
		o.logger.Error("failed to snapshot workflow", "error", err)
		return
	}
	if err := o.snapshots.Save(ctx, bundle); err != nil {
		o.logger.Error("failed to persist workflow",
			"wf_id", bundle.Workflow.ID,
			"error", err,
		)
	}
}

// dispatch передаёт tasks в Allocator и Task Manager.
// Назначенные tasks помечаются PENDING; при ошибке TM они остаются READY
// и уйдут при следующем dispatchReady.
func (o *Orchestrator) dispatch(ctx context.Context, wf *workflow, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if o.dispatcher == nil {
		return ErrNoDispatcher
	}

	alloc, err := o.allocator.Allocate(ctx, tasks)
	if err != nil {
		return fmt.Errorf("allocate: %w", err)
	}
	if len(alloc.Scheduled) == 0 {
		return nil
	}

	if err := o.dispatcher.SubmitTasks(ctx, alloc.Scheduled); err != nil {
		return fmt.Errorf("submit tasks: %w", err)
	}

	for _, task := range alloc.Scheduled {
		if err := wf.store.SetTaskState(task.ID, domain.JobPending); err != nil {
			o.logger.Error("failed to mark task pending", "task_id", task.ID, "error", err)
		}
	}

	o.logger.Info("tasks dispatched",
		"wf_id", alloc.Scheduled[0].WorkflowID,
		"count", len(alloc.Scheduled),
		"unscheduled", len(alloc.Unscheduled),
	)
	return nil
}

// dispatchReady отправляет все READY tasks, если workflow RUNNING.
func (o *Orchestrator) dispatchReady(ctx context.Context, wf *workflow) error {
	if wf.store.WorkflowState() != domain.WorkflowRunning {
		return nil
	}
	return o.dispatch(ctx, wf, wf.store.ReadyTasks())
}

// archive переводит workflow в ARCHIVED[/final]. Повторный вызов — no-op.
func (o *Orchestrator) archive(ctx context.Context, wf *workflow, final domain.ArchiveFinal) error {
	if wf.store.WorkflowState().IsArchived() {
		return nil
	}

	if err := wf.store.SetWorkflowState(final.ArchivedState()); err != nil {
		return err
	}

	bundle, err := wf.store.Snapshot()
	if err != nil {
		return err
	}
	logger := telemetry.WithWorkflowID(o.logger, bundle.Workflow.ID.String())

	if o.archiver != nil {
		if err := o.archiver.Archive(ctx, bundle, final); err != nil {
			// Статус уже финальный; export повторяется вручную
			logger.Error("archive export failed", "final", final, "error", err)
		}
	}

	o.persist(ctx, wf)
	telemetry.WorkflowsArchived.WithLabelValues(string(bundle.Workflow.State)).Inc()
	logger.Info("workflow archived", "state", bundle.Workflow.State)
	return nil
}

// status собирает ответ на query.
func status(store *graph.Store) (*domain.WorkflowStatus, error) {
	wf, err := store.Workflow()
	if err != nil {
		return nil, err
	}

	tasks := store.Tasks()
	out := &domain.WorkflowStatus{
		ID:    wf.ID,
		Name:  wf.Name,
		State: wf.State,
		Tasks: make([]domain.TaskSummary, 0, len(tasks)),
	}
	for _, t := range tasks {
		out.Tasks = append(out.Tasks, domain.TaskSummary{ID: t.ID, Name: t.Name, State: t.State})
	}
	return out, nil
}

// List возвращает статусы всех загруженных workflows, по имени.
func (o *Orchestrator) List(ctx context.Context) ([]domain.WorkflowStatus, error) {
	var out []domain.WorkflowStatus
	for _, id := range o.ids() {
		wf, err := o.lookup(id)
		if err != nil {
			continue
		}
		st, err := status(wf.store)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, ctx.Err()
}
