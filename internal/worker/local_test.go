package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
)

// waitState опрашивает job, пока статус не станет финальным.
func waitState(t *testing.T, w *LocalWorker, jobID string) domain.TaskState {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		state, err := w.Query(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if state.IsJobTerminal() {
			return state
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
	return ""
}

func TestLocalWorker_Completed(t *testing.T) {
	dir := t.TempDir()
	w := NewLocal("", nil)

	task := &domain.Task{
		ID:          uuid.New(),
		Name:        "echo",
		BaseCommand: []string{"echo", "hello"},
		WorkDir:     dir,
		Stdout:      "echo.out",
	}

	jobID, state, err := w.Submit(context.Background(), task)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if state != domain.TaskRunning {
		t.Errorf("expected RUNNING after submit, got %s", state)
	}

	if got := waitState(t, w, jobID); got != domain.TaskCompleted {
		t.Fatalf("expected COMPLETED, got %s", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, "echo.out"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "hello" {
		t.Errorf("unexpected stdout: %q", data)
	}
}

func TestLocalWorker_Failed(t *testing.T) {
	w := NewLocal(t.TempDir(), nil)
	task := &domain.Task{ID: uuid.New(), Name: "false", BaseCommand: []string{"false"}}

	jobID, _, err := w.Submit(context.Background(), task)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := waitState(t, w, jobID); got != domain.TaskFailed {
		t.Errorf("expected FAILED, got %s", got)
	}
}

func TestLocalWorker_SubmitMissingBinary(t *testing.T) {
	w := NewLocal("", nil)
	task := &domain.Task{ID: uuid.New(), BaseCommand: []string{"/nonexistent/beeflow-binary"}}

	if _, _, err := w.Submit(context.Background(), task); err == nil {
		t.Error("expected submit error")
	}
}

func TestLocalWorker_Cancel(t *testing.T) {
	w := NewLocal("", nil)
	task := &domain.Task{ID: uuid.New(), Name: "sleep", BaseCommand: []string{"sleep", "30"}}

	jobID, _, err := w.Submit(context.Background(), task)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := w.Cancel(ctx, jobID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if state != domain.TaskCancelled {
		t.Errorf("expected CANCELLED, got %s", state)
	}

	// Повторная отмена — no-op
	state, err = w.Cancel(ctx, jobID)
	if err != nil || state != domain.TaskCancelled {
		t.Errorf("second cancel: %s, %v", state, err)
	}
}

func TestLocalWorker_UnknownJob(t *testing.T) {
	w := NewLocal("", nil)

	state, err := w.Query(context.Background(), "999")
	if err != nil {
		t.Fatal(err)
	}
	if state != domain.JobUnknown {
		t.Errorf("expected UNKNOWN, got %s", state)
	}
}

func TestLocalWorker_JobIDsUniqueAcrossRestart(t *testing.T) {
	task := &domain.Task{ID: uuid.New(), Name: "true", BaseCommand: []string{"true"}}

	first := NewLocal(t.TempDir(), nil)
	oldID, _, err := first.Submit(context.Background(), task)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Новый процесс TM: свой LocalWorker
	second := NewLocal(t.TempDir(), nil)
	newID, _, err := second.Submit(context.Background(), task)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if oldID == newID {
		t.Fatalf("job id %s reused after restart", oldID)
	}
	state, err := second.Query(context.Background(), oldID)
	if err != nil {
		t.Fatal(err)
	}
	if state != domain.JobUnknown {
		t.Errorf("old job state = %s, want UNKNOWN", state)
	}
	waitState(t, first, oldID)
	waitState(t, second, newID)
}
