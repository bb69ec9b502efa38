package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/telemetry"
)

// CancelWorkflow снимает все tasks workflow.
//
// Tasks из submit-очереди просто удаляются (CANCELLED, job id "-").
// Для каждого job делается до MaxCancelAttempts попыток Cancel;
// если Worker так и не подтвердил отмену, job помечается ZOMBIE.
// Строка job-очереди удаляется в обоих случаях.
func (d *Dispatcher) CancelWorkflow(ctx context.Context, wfID uuid.UUID) ([]domain.CancelResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	logger := telemetry.WithWorkflowID(d.logger, wfID.String())
	var results []domain.CancelResult

	// 1. Ещё не отправленные tasks
	pending, err := d.queue.RemoveSubmitByWorkflow(ctx, wfID)
	if err != nil {
		return nil, fmt.Errorf("drop submit rows: %w", err)
	}
	for _, row := range pending {
		results = append(results, domain.CancelResult{
			TaskID: row.Task.ID,
			Name:   row.Task.Name,
			JobID:  "-",
			State:  domain.TaskCancelled,
		})
	}

	// 2. Отправленные jobs
	jobs, err := d.queue.JobsByWorkflow(ctx, wfID)
	if err != nil {
		return results, fmt.Errorf("list jobs: %w", err)
	}

	for _, row := range jobs {
		state := d.cancelJob(ctx, row.JobID, row.JobState)
		if state == domain.TaskZombie {
			telemetry.JobEvents.WithLabelValues(telemetry.EventZombie).Inc()
			logger.Warn("job did not confirm cancellation", "job_id", row.JobID, "task_id", row.Task.ID)
		}

		if err := d.queue.RemoveJob(ctx, row.ID); err != nil {
			logger.Error("failed to remove cancelled job", "job_id", row.JobID, "error", err)
		}

		results = append(results, domain.CancelResult{
			TaskID: row.Task.ID,
			Name:   row.Task.Name,
			JobID:  row.JobID,
			State:  state,
		})
	}

	logger.Info("workflow cancelled", "tasks", len(results))
	return results, nil
}

// cancelJob вызывает Worker.Cancel с ограниченным числом попыток.
// Уже завершённый job не трогается.
func (d *Dispatcher) cancelJob(ctx context.Context, jobID string, current domain.TaskState) domain.TaskState {
	if current.IsJobTerminal() {
		return current
	}

	for attempt := 1; attempt <= d.maxCancelAttempts; attempt++ {
		cancelCtx, cancel := context.WithTimeout(ctx, d.workerTimeout)
		state, err := d.worker.Cancel(cancelCtx, jobID)
		cancel()
		if err == nil {
			return state
		}
		d.logger.Warn("job cancel attempt failed",
			"job_id", jobID,
			"attempt", attempt,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}
	return domain.TaskZombie
}
