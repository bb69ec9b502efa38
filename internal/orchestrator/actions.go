package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/engine"
	"github.com/shaiso/beeflow/internal/graph"
	"github.com/shaiso/beeflow/internal/repo"
	"github.com/shaiso/beeflow/internal/telemetry"
)

// Submit загружает workflow в новый граф в статусе SUBMITTED.
func (o *Orchestrator) Submit(ctx context.Context, bundle *domain.Bundle) (uuid.UUID, error) {
	// 1. ID и рабочая директория
	if bundle.Workflow.ID == uuid.Nil {
		bundle.Workflow.ID = uuid.New()
	}
	if bundle.Workflow.WorkDir == "" && o.workDirRoot != "" {
		bundle.Workflow.WorkDir = filepath.Join(o.workDirRoot, bundle.Workflow.ID.String())
	}
	bundle.Workflow.State = domain.WorkflowSubmitted
	for i := range bundle.Tasks {
		bundle.Tasks[i].State = domain.TaskWaiting
	}
	engine.Normalize(bundle)

	// 2. Валидация
	if err := engine.Validate(bundle); err != nil {
		return uuid.Nil, err
	}

	if bundle.Workflow.WorkDir != "" {
		if err := os.MkdirAll(bundle.Workflow.WorkDir, 0o750); err != nil {
			return uuid.Nil, fmt.Errorf("create workdir: %w", err)
		}
	}

	// 3. Граф
	store := graph.NewStore()
	if err := store.Initialize(&bundle.Workflow); err != nil {
		return uuid.Nil, err
	}
	for i := range bundle.Tasks {
		if err := store.LoadTask(&bundle.Tasks[i]); err != nil {
			return uuid.Nil, fmt.Errorf("load task %s: %w", bundle.Tasks[i].Name, err)
		}
	}

	id := bundle.Workflow.ID
	wf := o.register(id, store)
	o.persist(ctx, wf)

	telemetry.WithWorkflowID(o.logger, id.String()).Info("workflow submitted",
		"name", bundle.Workflow.Name,
		"tasks", len(bundle.Tasks),
	)
	return id, nil
}

// Start переводит SUBMITTED → RUNNING и отправляет готовые tasks.
func (o *Orchestrator) Start(ctx context.Context, id uuid.UUID) error {
	wf, err := o.lookup(id)
	if err != nil {
		return err
	}
	wf.mu.Lock()
	defer wf.mu.Unlock()

	if state := wf.store.WorkflowState(); state != domain.WorkflowSubmitted {
		return &StateError{Action: "start", State: string(state)}
	}

	if err := wf.store.SetWorkflowState(domain.WorkflowInitializing); err != nil {
		return err
	}
	if err := wf.store.InitializeReadyTasks(); err != nil {
		return err
	}
	if err := wf.store.SetWorkflowState(domain.WorkflowRunning); err != nil {
		return err
	}
	defer o.persist(ctx, wf)

	if err := o.dispatchReady(ctx, wf); err != nil {
		return fmt.Errorf("workflow started, dispatch failed: %w", err)
	}

	telemetry.WithWorkflowID(o.logger, id.String()).Info("workflow started")
	return nil
}

// Pause переводит RUNNING/INITIALIZING → PAUSED. Запущенные jobs продолжают работу.
func (o *Orchestrator) Pause(ctx context.Context, id uuid.UUID) error {
	wf, err := o.lookup(id)
	if err != nil {
		return err
	}
	wf.mu.Lock()
	defer wf.mu.Unlock()

	switch state := wf.store.WorkflowState(); state {
	case domain.WorkflowRunning, domain.WorkflowInitializing:
	default:
		return &StateError{Action: "pause", State: string(state)}
	}

	if err := wf.store.SetWorkflowState(domain.WorkflowPaused); err != nil {
		return err
	}
	o.persist(ctx, wf)

	telemetry.WithWorkflowID(o.logger, id.String()).Info("workflow paused")
	return nil
}

// Resume переводит PAUSED → RUNNING и отправляет tasks, ставшие готовыми за время паузы.
func (o *Orchestrator) Resume(ctx context.Context, id uuid.UUID) error {
	wf, err := o.lookup(id)
	if err != nil {
		return err
	}
	wf.mu.Lock()
	defer wf.mu.Unlock()

	if state := wf.store.WorkflowState(); state != domain.WorkflowPaused {
		return &StateError{Action: "resume", State: string(state)}
	}

	if err := wf.store.SetWorkflowState(domain.WorkflowRunning); err != nil {
		return err
	}
	defer o.persist(ctx, wf)

	if err := o.dispatchReady(ctx, wf); err != nil {
		return fmt.Errorf("workflow resumed, dispatch failed: %w", err)
	}

	telemetry.WithWorkflowID(o.logger, id.String()).Info("workflow resumed")
	return nil
}

// Cancel останавливает workflow: новые tasks больше не отправляются,
// Task Manager снимает свои tasks. Возвращает строки
// "<name> <task_id> <job_id> <state>" от Task Manager'а.
//
// Вызов TM идёт без блокировки workflow: TM в это время может
// доставлять updates этого же workflow.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID) ([]string, error) {
	wf, err := o.lookup(id)
	if err != nil {
		return nil, err
	}

	// 1. CANCELLED под блокировкой
	wf.mu.Lock()
	prev := wf.store.WorkflowState()
	switch prev {
	case domain.WorkflowSubmitted, domain.WorkflowInitializing, domain.WorkflowRunning, domain.WorkflowPaused:
	default:
		wf.mu.Unlock()
		return nil, &StateError{Action: "cancel", State: string(prev)}
	}
	if err := wf.store.SetWorkflowState(domain.WorkflowCancelled); err != nil {
		wf.mu.Unlock()
		return nil, err
	}
	o.persist(ctx, wf)
	wf.mu.Unlock()

	logger := telemetry.WithWorkflowID(o.logger, id.String())

	// 2. Снимаем tasks в TM (ничего не отправлялось — TM не трогаем)
	var results []domain.CancelResult
	if prev != domain.WorkflowSubmitted && o.dispatcher != nil {
		results, err = o.dispatcher.CancelWorkflow(ctx, id)
		if err != nil {
			logger.Error("task manager cancel failed", "error", err)
			return nil, fmt.Errorf("cancel tasks: %w", err)
		}
	}

	// 3. Применяем итоговые статусы и архивируем, если всё отправленное завершилось
	wf.mu.Lock()
	defer wf.mu.Unlock()

	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.String())
		if err := wf.store.SetTaskState(r.TaskID, r.State); err != nil {
			logger.Warn("cancel result for unknown task", "task_id", r.TaskID, "error", err)
		}
	}

	if scheduledFinished(wf.store) {
		if err := o.archive(ctx, wf, domain.ArchiveFinalCancelled); err != nil {
			return lines, err
		}
	} else {
		o.persist(ctx, wf)
	}

	logger.Info("workflow cancelled", "tasks", len(results))
	return lines, nil
}

// Query возвращает статус workflow и его tasks.
func (o *Orchestrator) Query(ctx context.Context, id uuid.UUID) (*domain.WorkflowStatus, error) {
	wf, err := o.lookup(id)
	if err != nil {
		return nil, err
	}
	return status(wf.store)
}

// Delete удаляет workflow. RUNNING и PAUSED удалить нельзя.
func (o *Orchestrator) Delete(ctx context.Context, id uuid.UUID) error {
	wf, err := o.lookup(id)
	if err != nil {
		return err
	}
	wf.mu.Lock()
	defer wf.mu.Unlock()

	switch state := wf.store.WorkflowState(); state {
	case domain.WorkflowRunning, domain.WorkflowPaused, domain.WorkflowInitializing:
		return &StateError{Action: "delete", State: string(state)}
	}

	if o.snapshots != nil {
		if err := o.snapshots.Delete(ctx, id); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("delete snapshot: %w", err)
		}
	}
	o.unregister(id)

	telemetry.WithWorkflowID(o.logger, id.String()).Info("workflow deleted")
	return nil
}

// Reexecute создаёт новый workflow из архивированного: те же tasks
// в исходном состоянии, новый ID workflow и новые ID tasks.
func (o *Orchestrator) Reexecute(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	// 1. Снимок источника: из памяти или из хранилища
	source, err := o.archivedSnapshot(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}

	// 2. Откат к исходному графу под новым ID
	newID := uuid.New()
	scratch := graph.NewStore()
	if err := scratch.Restore(source); err != nil {
		return uuid.Nil, err
	}
	if err := scratch.Rewind(); err != nil {
		return uuid.Nil, err
	}
	if err := scratch.Reset(newID); err != nil {
		return uuid.Nil, err
	}

	bundle, err := scratch.Snapshot()
	if err != nil {
		return uuid.Nil, err
	}
	for i := range bundle.Tasks {
		bundle.Tasks[i].ID = uuid.New()
	}
	bundle.Workflow.CreatedAt = time.Now().UTC()
	// Автоматическая workdir источника не переиспользуется
	if old := bundle.Workflow.WorkDir; o.workDirRoot != "" && old == filepath.Join(o.workDirRoot, id.String()) {
		bundle.Workflow.WorkDir = ""
		for i := range bundle.Tasks {
			if bundle.Tasks[i].WorkDir == old {
				bundle.Tasks[i].WorkDir = ""
			}
		}
	}

	// 3. Обычная загрузка
	newID, err = o.Submit(ctx, bundle)
	if err != nil {
		return uuid.Nil, err
	}

	telemetry.WithWorkflowID(o.logger, newID.String()).Info("workflow re-executed", "source", id)
	return newID, nil
}

func (o *Orchestrator) archivedSnapshot(ctx context.Context, id uuid.UUID) (*domain.Bundle, error) {
	if wf, err := o.lookup(id); err == nil {
		wf.mu.Lock()
		defer wf.mu.Unlock()

		if state := wf.store.WorkflowState(); !state.IsArchived() {
			return nil, &StateError{Action: "re-execute", State: string(state)}
		}
		return wf.store.Snapshot()
	}

	if o.snapshots == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	bundle, err := o.snapshots.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !bundle.Workflow.State.IsArchived() {
		return nil, &StateError{Action: "re-execute", State: string(bundle.Workflow.State)}
	}
	return bundle, nil
}

// scheduledFinished — все отправленные в TM tasks в финальном статусе.
func scheduledFinished(store *graph.Store) bool {
	for _, task := range store.Tasks() {
		if task.State.IsScheduled() && !task.State.IsFinal() {
			return false
		}
	}
	return true
}
