package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/graph"
	"github.com/shaiso/beeflow/internal/telemetry"
)

// outputSentinel — значение output без glob, которое разблокирует зависимые tasks.
const outputSentinel = "__beeflow_output__"

// ApplyUpdates применяет пачку updates в порядке получения.
//
// Сначала проверяется форма всей пачки: при ошибке (ErrInvalidUpdate)
// ничего не применяется и отправитель должен повторить или исправить пачку.
// Updates для удалённых workflows и неизвестных tasks пропускаются с
// предупреждением, иначе такая пачка блокировала бы доставку навсегда.
func (o *Orchestrator) ApplyUpdates(ctx context.Context, updates []domain.TaskUpdate) error {
	// 1. Проверка пачки целиком
	for i := range updates {
		if err := checkUpdate(&updates[i]); err != nil {
			return fmt.Errorf("%w: update %d: %v", ErrInvalidUpdate, i, err)
		}
	}

	// 2. Применение по порядку
	touched := make(map[uuid.UUID]*workflow)
	for i := range updates {
		u := &updates[i]

		wf, err := o.lookup(u.WorkflowID)
		if err != nil {
			o.logger.Warn("update for unknown workflow skipped",
				"wf_id", u.WorkflowID,
				"task_id", u.TaskID,
				"state", u.JobState,
			)
			continue
		}

		wf.mu.Lock()
		err = o.applyUpdate(ctx, wf, u)
		o.persist(ctx, wf)
		wf.mu.Unlock()
		if err != nil {
			return err
		}

		touched[u.WorkflowID] = wf
		telemetry.TaskUpdates.WithLabelValues(string(u.JobState)).Inc()
	}

	// 3. READY tasks, не ушедшие раньше (например, TM был недоступен)
	for id, wf := range touched {
		wf.mu.Lock()
		if err := o.dispatchReady(ctx, wf); err != nil {
			o.logger.Error("failed to dispatch ready tasks", "wf_id", id, "error", err)
		}
		o.persist(ctx, wf)
		wf.mu.Unlock()
	}
	return nil
}

func checkUpdate(u *domain.TaskUpdate) error {
	switch {
	case u.WorkflowID == uuid.Nil:
		return errors.New("missing wf_id")
	case u.TaskID == uuid.Nil:
		return errors.New("missing task_id")
	case u.JobState == "":
		return errors.New("missing job_state")
	case u.TaskInfo != nil && u.TaskInfo.Restart && u.TaskInfo.CheckpointFile == "":
		return errors.New("restart requested without checkpoint_file")
	}
	return nil
}

// applyUpdate применяет один update. Вызывается под wf.mu.
func (o *Orchestrator) applyUpdate(ctx context.Context, wf *workflow, u *domain.TaskUpdate) error {
	store := wf.store
	logger := telemetry.WithTaskID(telemetry.WithWorkflowID(o.logger, u.WorkflowID.String()), u.TaskID.String())

	// Повторная доставка для уже перезапущенного task: копия создана и отправлена
	current, err := store.TaskState(u.TaskID)
	if err != nil {
		if errors.Is(err, graph.ErrTaskNotFound) {
			logger.Warn("update for unknown task skipped", "state", u.JobState)
			return nil
		}
		return err
	}
	if current == domain.TaskRestarted {
		logger.Debug("update for restarted task skipped", "state", u.JobState)
		return nil
	}

	// 1. Статус: всегда, даже если дальше restart или cascade
	if err := store.SetTaskState(u.TaskID, u.JobState); err != nil {
		return err
	}
	logger.Debug("task state updated", "state", u.JobState)

	// 2. Metadata: объединение, update побеждает
	if u.Metadata != nil {
		metadata, err := store.TaskMetadata(u.TaskID)
		if err != nil {
			return err
		}
		if metadata == nil {
			metadata = make(map[string]any, len(u.Metadata))
		}
		maps.Copy(metadata, u.Metadata)
		if err := store.SetTaskMetadata(u.TaskID, metadata); err != nil {
			return err
		}
	}

	// 3. Output: side-store и значения outputs task
	if u.Output != nil {
		o.saveOutput(ctx, u)
		for outputID, value := range u.Output {
			if err := store.SetTaskOutput(u.TaskID, outputID, value); err != nil && !errors.Is(err, graph.ErrOutputNotFound) {
				return err
			}
		}
	}

	// Архивированный workflow только фиксирует поздние статусы
	if store.WorkflowState().IsArchived() {
		logger.Debug("late update for archived workflow", "state", u.JobState)
		return nil
	}

	// 4. Checkpoint-restart
	if u.TaskInfo != nil && u.TaskInfo.CheckpointFile != "" {
		return o.restart(ctx, wf, u)
	}

	// 5. Обычная смена статуса
	switch {
	case u.JobState == domain.TaskCompleted:
		if err := o.complete(ctx, wf, u.TaskID); err != nil {
			return err
		}
	case u.JobState == domain.TaskSubmitFail || u.JobState == domain.JobUnknown || u.JobState.IsTerminalFailure():
		if err := o.cascade(wf, u.TaskID); err != nil {
			return err
		}
	case u.JobState == domain.TaskBuildFail:
		return o.archive(ctx, wf, domain.ArchiveFinalFailed)
	}

	// 6. Итог workflow
	return o.checkWorkflow(ctx, wf)
}

// restart создаёт перезапущенную копию task. Если попытки исчерпаны,
// workflow архивируется как FAILED.
func (o *Orchestrator) restart(ctx context.Context, wf *workflow, u *domain.TaskUpdate) error {
	logger := telemetry.WithTaskID(o.logger, u.TaskID.String())

	task, err := wf.store.RestartTask(u.TaskID, u.TaskInfo.CheckpointFile)
	if err != nil {
		return err
	}
	if task == nil {
		logger.Info("checkpoint restarts exhausted", "state", u.JobState)
		return o.archive(ctx, wf, domain.ArchiveFinalFailed)
	}

	logger.Info("task restarted from checkpoint",
		"new_task_id", task.ID,
		"new_task_name", task.Name,
		"checkpoint_file", u.TaskInfo.CheckpointFile,
	)

	// Перезапуск безусловно готов; не отправляем только в отменённый workflow
	if wf.store.WorkflowState() == domain.WorkflowCancelled {
		return nil
	}
	if err := o.dispatch(ctx, wf, []*domain.Task{task}); err != nil {
		logger.Error("failed to dispatch restarted task", "new_task_id", task.ID, "error", err)
	}
	return nil
}

// complete заполняет outputs без значения и продвигает граф.
func (o *Orchestrator) complete(ctx context.Context, wf *workflow, taskID uuid.UUID) error {
	task, err := wf.store.Task(taskID)
	if err != nil {
		return err
	}

	for _, out := range task.Outputs {
		if out.Value != nil {
			continue
		}
		value := any(outputSentinel)
		if out.Glob != "" {
			value = out.Glob
		}
		if err := wf.store.SetTaskOutput(taskID, out.ID, value); err != nil {
			return err
		}
	}

	ready, err := wf.store.FinalizeTask(taskID)
	if err != nil {
		return err
	}

	// PAUSED: ready tasks ждут Resume; CANCELLED: больше не отправляем
	if wf.store.WorkflowState() != domain.WorkflowRunning {
		return nil
	}
	if err := o.dispatch(ctx, wf, ready); err != nil {
		o.logger.Error("failed to dispatch ready tasks", "task_id", taskID, "error", err)
	}
	return nil
}

// cascade помечает DEP_FAIL все транзитивно зависимые tasks (BFS, каждый task один раз).
func (o *Orchestrator) cascade(wf *workflow, taskID uuid.UUID) error {
	visited := map[uuid.UUID]struct{}{taskID: {}}
	queue := []uuid.UUID{taskID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		dependents, err := wf.store.DependentTasks(id)
		if err != nil {
			return err
		}
		for _, dep := range dependents {
			if _, seen := visited[dep.ID]; seen {
				continue
			}
			visited[dep.ID] = struct{}{}
			if err := wf.store.SetTaskState(dep.ID, domain.TaskDepFail); err != nil {
				return err
			}
			queue = append(queue, dep.ID)
		}
	}

	if n := len(visited) - 1; n > 0 {
		o.logger.Info("dependency failure cascaded", "task_id", taskID, "dep_fail", n)
	}
	return nil
}

// checkWorkflow архивирует workflow, если ему больше нечего делать.
func (o *Orchestrator) checkWorkflow(ctx context.Context, wf *workflow) error {
	store := wf.store
	state := store.WorkflowState()
	if state.IsArchived() {
		return nil
	}

	switch {
	case store.WorkflowCompleted():
		return o.archive(ctx, wf, completedFinal(store))
	case state == domain.WorkflowCancelled && scheduledFinished(store):
		return o.archive(ctx, wf, domain.ArchiveFinalCancelled)
	case store.WorkflowFinished():
		// Ветки упали, запускать больше нечего
		return o.archive(ctx, wf, domain.ArchiveFinalFailed)
	}
	return nil
}

// completedFinal — FAILED, если хоть один task закончился не COMPLETED
// (RESTARTED не считается: его заменила копия).
func completedFinal(store *graph.Store) domain.ArchiveFinal {
	for _, task := range store.Tasks() {
		if task.State != domain.TaskCompleted && task.State != domain.TaskRestarted {
			return domain.ArchiveFinalFailed
		}
	}
	return domain.ArchiveFinalNone
}

func (o *Orchestrator) saveOutput(ctx context.Context, u *domain.TaskUpdate) {
	if o.outputs == nil {
		return
	}
	if err := o.outputs.SaveOutput(ctx, u.WorkflowID, u.TaskID, time.Now().UTC(), u.Output); err != nil {
		o.logger.Error("failed to persist task output",
			"wf_id", u.WorkflowID,
			"task_id", u.TaskID,
			"error", err,
		)
	}
}
