package dispatch

import (
	"context"
	"errors"

	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/queue"
	"github.com/shaiso/beeflow/internal/telemetry"
)

// submitJobs отправляет все tasks из submit-очереди.
func (d *Dispatcher) submitJobs(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		row, err := d.queue.PopSubmit(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			return
		}
		if err != nil {
			d.logger.Error("failed to pop submit queue", "error", err)
			return
		}

		d.submitTask(ctx, &row.Task)
	}
}

// submitTask готовит контейнер и отправляет task.
// Ошибки превращаются в updates BUILD_FAIL / SUBMIT_FAIL, task дальше не обрабатывается.
func (d *Dispatcher) submitTask(ctx context.Context, task *domain.Task) {
	logger := telemetry.WithTaskID(d.logger, task.ID.String()).With("task_name", task.Name)

	// 1. Контейнер
	if d.container != nil {
		buildCtx, cancel := context.WithTimeout(ctx, d.buildTimeout)
		err := d.container.Resolve(buildCtx, task)
		cancel()
		if err != nil {
			logger.Error("container build failed", "error", err)
			telemetry.JobEvents.WithLabelValues(telemetry.EventBuildFail).Inc()
			d.pushUpdate(ctx, failureUpdate(task, domain.TaskBuildFail, err))
			return
		}
	}

	// 2. Отправка
	jobID, state, err := d.submit(ctx, task)
	if err != nil {
		logger.Error("job submission failed", "error", err)
		telemetry.JobEvents.WithLabelValues(telemetry.EventSubmitFail).Inc()
		d.pushUpdate(ctx, failureUpdate(task, domain.TaskSubmitFail, err))
		return
	}

	// 3. Job-очередь и update с job id одной транзакцией
	if _, err := d.queue.StartJob(ctx, task, jobID, state, jobUpdate(task, jobID, state)); err != nil {
		// Без строки job никто не опросит: снимаем job и сообщаем SUBMIT_FAIL
		logger.Error("failed to record submitted job", "job_id", jobID, "error", err)
		final := d.cancelJob(ctx, jobID, state)
		logger.Warn("untracked job cancelled", "job_id", jobID, "state", final)
		telemetry.JobEvents.WithLabelValues(telemetry.EventSubmitFail).Inc()
		d.pushUpdate(ctx, failureUpdate(task, domain.TaskSubmitFail, err))
		return
	}
	telemetry.JobEvents.WithLabelValues(telemetry.EventSubmitted).Inc()

	logger.Info("job submitted", "job_id", jobID, "state", state)
}

// updateJobs опрашивает Worker по всем нефинальным jobs.
func (d *Dispatcher) updateJobs(ctx context.Context) {
	rows, err := d.queue.Jobs(ctx)
	if err != nil {
		d.logger.Error("failed to list job queue", "error", err)
		return
	}

	for i := range rows {
		if ctx.Err() != nil {
			return
		}
		row := &rows[i]
		if row.JobState.IsJobTerminal() {
			continue
		}
		d.updateJob(ctx, row)
	}
}

func (d *Dispatcher) updateJob(ctx context.Context, row *domain.JobRow) {
	task := &row.Task
	logger := telemetry.WithJobID(d.logger, row.JobID).With("task_id", task.ID, "task_name", task.Name)

	state, err := d.query(ctx, row.JobID)
	if err != nil {
		// Временная ошибка: UNKNOWN только в логах, строка остаётся
		logger.Warn("job query failed", "state", domain.JobUnknown, "error", err)
		telemetry.JobEvents.WithLabelValues(telemetry.EventQueryError).Inc()
		return
	}
	if state == row.JobState {
		return
	}

	switch {
	case state.IsNodeFailure():
		d.resubmit(ctx, row, state)

	case state.IsTerminalFailure():
		update := d.checkpointUpdate(task, row.JobID, state)
		if err := d.queue.FinishJob(ctx, row.ID, update); err != nil {
			logger.Error("failed to finish job", "error", err)
			return
		}
		logger.Info("job failed", "state", state, "restart", update.TaskInfo != nil)

	case state.IsJobTerminal():
		if err := d.queue.FinishJob(ctx, row.ID, jobUpdate(task, row.JobID, state)); err != nil {
			logger.Error("failed to finish job", "error", err)
			return
		}
		logger.Info("job finished", "state", state)

	default:
		if err := d.queue.UpdateJobState(ctx, row.ID, state); err != nil {
			logger.Error("failed to update job state", "error", err)
			return
		}
		d.pushUpdate(ctx, jobUpdate(task, row.JobID, state))
		logger.Debug("job state changed", "from", row.JobState, "to", state)
	}
}

// resubmit лечит отказ узла: тот же task отправляется заново,
// WFM получает только статус нового job.
func (d *Dispatcher) resubmit(ctx context.Context, row *domain.JobRow, failure domain.TaskState) {
	task := &row.Task
	logger := telemetry.WithJobID(d.logger, row.JobID).With("task_id", task.ID, "failure", failure)

	jobID, state, err := d.submit(ctx, task)
	if err != nil {
		logger.Error("resubmission failed", "error", err)
		telemetry.JobEvents.WithLabelValues(telemetry.EventSubmitFail).Inc()
		if err := d.queue.FinishJob(ctx, row.ID, failureUpdate(task, domain.TaskSubmitFail, err)); err != nil {
			logger.Error("failed to finish job", "error", err)
		}
		return
	}

	if _, err := d.queue.RequeueJob(ctx, row.ID, task, jobID, state, jobUpdate(task, jobID, state)); err != nil {
		logger.Error("failed to requeue job", "new_job_id", jobID, "error", err)
		return
	}
	telemetry.JobEvents.WithLabelValues(telemetry.EventResubmitted).Inc()
	logger.Info("job resubmitted after node failure", "new_job_id", jobID, "state", state)
}

// flushUpdates доставляет всю update-очередь одной пачкой.
func (d *Dispatcher) flushUpdates(ctx context.Context) {
	rows, err := d.queue.Updates(ctx)
	if err != nil {
		d.logger.Error("failed to list update queue", "error", err)
		return
	}
	if len(rows) == 0 {
		return
	}
	if d.sink == nil {
		d.logger.Warn("updates pending but no sink configured", "count", len(rows), "error", ErrNoSink)
		return
	}

	updates := make([]domain.TaskUpdate, len(rows))
	for i, row := range rows {
		updates[i] = row.Update
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
	defer cancel()

	if err := d.sink.SendUpdates(sendCtx, updates); err != nil {
		// Очередь не трогаем: повторим на следующем цикле
		d.logger.Warn("update delivery failed", "count", len(updates), "error", err)
		telemetry.UpdateDeliveries.WithLabelValues("failure").Inc()
		return
	}
	telemetry.UpdateDeliveries.WithLabelValues("success").Inc()

	if err := d.queue.ClearUpdates(ctx, rows[len(rows)-1].ID); err != nil {
		d.logger.Error("failed to clear delivered updates", "error", err)
		return
	}
	d.logger.Debug("updates delivered", "count", len(updates))
}

func (d *Dispatcher) recordQueueLengths(ctx context.Context) {
	st, err := d.queue.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to read queue stats", "error", err)
		return
	}
	telemetry.QueueLength.WithLabelValues("submit").Set(float64(st.Submit))
	telemetry.QueueLength.WithLabelValues("job").Set(float64(st.Job))
	telemetry.QueueLength.WithLabelValues("update").Set(float64(st.Update))
}

func (d *Dispatcher) pushUpdate(ctx context.Context, update *domain.TaskUpdate) {
	if err := d.queue.PushUpdate(ctx, update); err != nil {
		d.logger.Error("failed to push update",
			"task_id", update.TaskID,
			"state", update.JobState,
			"error", err,
		)
	}
}

// submit вызывает Worker.Submit с таймаутом.
func (d *Dispatcher) submit(ctx context.Context, task *domain.Task) (string, domain.TaskState, error) {
	ctx, cancel := context.WithTimeout(ctx, d.workerTimeout)
	defer cancel()
	return d.worker.Submit(ctx, task)
}

// query вызывает Worker.Query с таймаутом.
func (d *Dispatcher) query(ctx context.Context, jobID string) (domain.TaskState, error) {
	ctx, cancel := context.WithTimeout(ctx, d.workerTimeout)
	defer cancel()
	return d.worker.Query(ctx, jobID)
}

func jobUpdate(task *domain.Task, jobID string, state domain.TaskState) *domain.TaskUpdate {
	return &domain.TaskUpdate{
		WorkflowID: task.WorkflowID,
		TaskID:     task.ID,
		JobState:   state,
		Metadata:   map[string]any{"job_id": jobID},
	}
}

func failureUpdate(task *domain.Task, state domain.TaskState, err error) *domain.TaskUpdate {
	return &domain.TaskUpdate{
		WorkflowID: task.WorkflowID,
		TaskID:     task.ID,
		JobState:   state,
		Metadata:   map[string]any{"error": err.Error()},
	}
}
