package worker

import (
	"strings"

	"github.com/shaiso/beeflow/internal/domain"
)

// backendStates — статусы batch-планировщиков (Slurm/LSF/Flux) в словаре tasks.
var backendStates = map[string]domain.TaskState{
	"PENDING":       domain.JobPending,
	"PD":            domain.JobPending,
	"PEND":          domain.JobPending,
	"CONFIGURING":   domain.JobPending,
	"REQUEUED":      domain.JobPending,
	"RUNNING":       domain.TaskRunning,
	"R":             domain.TaskRunning,
	"RUN":           domain.TaskRunning,
	"COMPLETING":    domain.TaskRunning,
	"SUSPENDED":     domain.TaskPaused,
	"PSUSP":         domain.TaskPaused,
	"USUSP":         domain.TaskPaused,
	"COMPLETED":     domain.TaskCompleted,
	"CD":            domain.TaskCompleted,
	"DONE":          domain.TaskCompleted,
	"FAILED":        domain.TaskFailed,
	"F":             domain.TaskFailed,
	"EXIT":          domain.TaskFailed,
	"TIMEOUT":       domain.TaskTimeout,
	"TO":            domain.TaskTimeout,
	"TIMELIMIT":     domain.TaskTimelimit,
	"DEADLINE":      domain.TaskTimelimit,
	"CANCELLED":     domain.TaskCancelled,
	"CA":            domain.TaskCancelled,
	"BOOT_FAIL":     domain.JobBootFail,
	"BF":            domain.JobBootFail,
	"NODE_FAIL":     domain.JobNodeFail,
	"NF":            domain.JobNodeFail,
	"OUT_OF_MEMORY": domain.JobOutOfMemory,
	"OOM":           domain.JobOutOfMemory,
	"PREEMPTED":     domain.JobPreempted,
	"PR":            domain.JobPreempted,
	"ZOMBIE":        domain.TaskZombie,
}

// MapState приводит статус backend'а к domain.TaskState.
// "CANCELLED by 1234" → CANCELLED; неизвестное → UNKNOWN.
func MapState(raw string) domain.TaskState {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, "+")
	if state, ok := backendStates[s]; ok {
		return state
	}
	return domain.JobUnknown
}
