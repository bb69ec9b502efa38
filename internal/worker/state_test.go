package worker

import (
	"testing"

	"github.com/shaiso/beeflow/internal/domain"
)

func TestMapState(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.TaskState
	}{
		{"PENDING", domain.JobPending},
		{"running", domain.TaskRunning},
		{"COMPLETED", domain.TaskCompleted},
		{"CANCELLED by 1234", domain.TaskCancelled},
		{"TIMEOUT", domain.TaskTimeout},
		{"NODE_FAIL", domain.JobNodeFail},
		{"OUT_OF_MEMORY", domain.JobOutOfMemory},
		{"PREEMPTED", domain.JobPreempted},
		{"CD", domain.TaskCompleted},
		{"FAILED+", domain.TaskFailed},
		{"SPECIAL_EXIT", domain.JobUnknown},
		{"", domain.JobUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := MapState(tt.raw); got != tt.want {
				t.Errorf("MapState(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New(Config{Backend: "pbs"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	w, err := New(Config{})
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if _, ok := w.(*LocalWorker); !ok {
		t.Errorf("expected *LocalWorker, got %T", w)
	}
}
