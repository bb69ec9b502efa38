package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
)

// LocalWorker запускает tasks как процессы на текущем хосте.
//
// Job id — uuid: строки job-очереди переживают рестарт TM, и новый job
// не должен совпасть со старым. После рестарта старые job id отвечают UNKNOWN.
type LocalWorker struct {
	logDir string
	logger *slog.Logger

	jobs map[string]*localJob
	mu   sync.Mutex
}

type localJob struct {
	cmd       *exec.Cmd
	state     domain.TaskState
	cancelled bool
	done      chan struct{}
}

// NewLocal создаёт LocalWorker.
func NewLocal(logDir string, logger *slog.Logger) *LocalWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalWorker{
		logDir: logDir,
		logger: logger.With("component", "worker", "backend", BackendLocal),
		jobs:   make(map[string]*localJob),
	}
}

// Submit запускает процесс task и возвращает RUNNING.
func (w *LocalWorker) Submit(ctx context.Context, task *domain.Task) (string, domain.TaskState, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	args, err := BuildCommand(task)
	if err != nil {
		return "", "", err
	}

	// Процесс переживает ctx: ctx ограничивает только сам submit
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = task.WorkDir

	stdout, err := w.openLog(task, task.Stdout, "out")
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	stderr, err := w.openLog(task, task.Stderr, "err")
	if err != nil {
		closeQuietly(stdout)
		return "", "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}
	if stderr != nil {
		cmd.Stderr = stderr
	}

	if err := cmd.Start(); err != nil {
		closeQuietly(stdout)
		closeQuietly(stderr)
		return "", "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	jobID := uuid.NewString()
	job := &localJob{
		cmd:   cmd,
		state: domain.TaskRunning,
		done:  make(chan struct{}),
	}

	w.mu.Lock()
	w.jobs[jobID] = job
	w.mu.Unlock()

	go w.wait(jobID, job, stdout, stderr)

	w.logger.Info("job started",
		"job_id", jobID,
		"task_id", task.ID,
		"task_name", task.Name,
		"pid", cmd.Process.Pid,
	)
	return jobID, domain.TaskRunning, nil
}

// wait ждёт завершения процесса и фиксирует итоговый статус.
func (w *LocalWorker) wait(jobID string, job *localJob, files ...io.Closer) {
	err := job.cmd.Wait()
	for _, f := range files {
		closeQuietly(f)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case job.cancelled:
		job.state = domain.TaskCancelled
	case err == nil:
		job.state = domain.TaskCompleted
	default:
		job.state = domain.TaskFailed
	}
	close(job.done)

	w.logger.Debug("job finished", "job_id", jobID, "state", job.state, "error", err)
}

// Query возвращает статус job. Неизвестный job — UNKNOWN.
func (w *LocalWorker) Query(ctx context.Context, jobID string) (domain.TaskState, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	job, ok := w.jobs[jobID]
	if !ok {
		return domain.JobUnknown, nil
	}
	return job.state, nil
}

// Cancel убивает процесс и ждёт его завершения (в пределах ctx).
// Отмена завершённого job возвращает его итоговый статус.
func (w *LocalWorker) Cancel(ctx context.Context, jobID string) (domain.TaskState, error) {
	w.mu.Lock()
	job, ok := w.jobs[jobID]
	if !ok {
		w.mu.Unlock()
		return domain.JobUnknown, nil
	}
	if job.state.IsJobTerminal() {
		state := job.state
		w.mu.Unlock()
		return state, nil
	}
	job.cancelled = true
	w.mu.Unlock()

	if err := job.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return "", fmt.Errorf("kill job %s: %w", jobID, err)
	}

	select {
	case <-job.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return job.state, nil
}

// openLog открывает файл для stdout/stderr. Без пути и LogDir вывод отбрасывается.
func (w *LocalWorker) openLog(task *domain.Task, path, suffix string) (*os.File, error) {
	if path == "" {
		if w.logDir == "" {
			return nil, nil
		}
		path = filepath.Join(w.logDir, fmt.Sprintf("%s-%s.%s", task.Name, task.ID, suffix))
	} else if !filepath.IsAbs(path) && task.WorkDir != "" {
		path = filepath.Join(task.WorkDir, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
}

func closeQuietly(c io.Closer) {
	if f, ok := c.(*os.File); ok && f == nil {
		return
	}
	if c != nil {
		_ = c.Close()
	}
}
