package domain

// WorkflowState — статус workflow.
//
// Жизненный цикл:
//
//	SUBMITTED → RUNNING ⇄ PAUSED
//	          ↘ CANCELLED
//	RUNNING/CANCELLED → ARCHIVED | ARCHIVED/FAILED | ARCHIVED/CANCELLED
type WorkflowState string

const (
	// WorkflowSubmitted — workflow загружен, но ещё не запущен.
	WorkflowSubmitted WorkflowState = "SUBMITTED"

	// WorkflowInitializing — идёт запуск (вычисление первых готовых tasks).
	WorkflowInitializing WorkflowState = "INITIALIZING"

	// WorkflowRunning — workflow выполняется.
	WorkflowRunning WorkflowState = "RUNNING"

	// WorkflowPaused — новые tasks не отправляются, запущенные продолжают работу.
	WorkflowPaused WorkflowState = "PAUSED"

	// WorkflowCancelled — отменён пользователем, ждёт завершения запущенных tasks.
	WorkflowCancelled WorkflowState = "CANCELLED"

	// WorkflowArchived — успешно завершён и заархивирован.
	WorkflowArchived WorkflowState = "ARCHIVED"

	// WorkflowArchivedFailed — завершён с ошибкой и заархивирован.
	WorkflowArchivedFailed WorkflowState = "ARCHIVED/FAILED"

	// WorkflowArchivedCancelled — отменён и заархивирован.
	WorkflowArchivedCancelled WorkflowState = "ARCHIVED/CANCELLED"
)

// IsArchived возвращает true для всех ARCHIVED* статусов.
func (s WorkflowState) IsArchived() bool {
	switch s {
	case WorkflowArchived, WorkflowArchivedFailed, WorkflowArchivedCancelled:
		return true
	default:
		return false
	}
}

// ArchiveFinal — итог, с которым архивируется workflow.
type ArchiveFinal string

const (
	ArchiveFinalNone      ArchiveFinal = ""
	ArchiveFinalFailed    ArchiveFinal = "FAILED"
	ArchiveFinalCancelled ArchiveFinal = "CANCELLED"
)

// ArchivedState возвращает статус workflow для итога архивации.
func (f ArchiveFinal) ArchivedState() WorkflowState {
	switch f {
	case ArchiveFinalFailed:
		return WorkflowArchivedFailed
	case ArchiveFinalCancelled:
		return WorkflowArchivedCancelled
	default:
		return WorkflowArchived
	}
}

// TaskState — статус task и одновременно словарь состояний job'ов,
// которые сообщают воркеры (batch-планировщики).
//
// Жизненный цикл task:
//
//	WAITING → READY → PENDING → RUNNING → COMPLETED
//	                                     ↘ FAILED | TIMEOUT | TIMELIMIT → RESTARTED (+ новый task)
//	любой → DEP_FAIL, BUILD_FAIL, SUBMIT_FAIL, CANCELLED, ZOMBIE
type TaskState string

const (
	TaskWaiting    TaskState = "WAITING"
	TaskReady      TaskState = "READY"
	TaskRunning    TaskState = "RUNNING"
	TaskPaused     TaskState = "PAUSED"
	TaskCompleted  TaskState = "COMPLETED"
	TaskFailed     TaskState = "FAILED"
	TaskDepFail    TaskState = "DEP_FAIL"
	TaskRestarted  TaskState = "RESTARTED"
	TaskBuildFail  TaskState = "BUILD_FAIL"
	TaskSubmitFail TaskState = "SUBMIT_FAIL"
	TaskCancelled  TaskState = "CANCELLED"
	TaskTimeout    TaskState = "TIMEOUT"
	TaskTimelimit  TaskState = "TIMELIMIT"
	TaskZombie     TaskState = "ZOMBIE"
)

// Состояния job'ов, которые встречаются только в ответах воркеров.
const (
	JobPending     TaskState = "PENDING"
	JobUnknown     TaskState = "UNKNOWN"
	JobBootFail    TaskState = "BOOT_FAIL"
	JobNodeFail    TaskState = "NODE_FAIL"
	JobOutOfMemory TaskState = "OUT_OF_MEMORY"
	JobPreempted   TaskState = "PREEMPTED"
)

// IsJobTerminal возвращает true, если job больше не нужно опрашивать.
// UNKNOWN сюда входит: job пропал у планировщика.
func (s TaskState) IsJobTerminal() bool {
	switch s {
	case TaskCompleted, TaskCancelled, TaskFailed, TaskTimeout, TaskTimelimit, JobUnknown, TaskZombie:
		return true
	default:
		return false
	}
}

// IsNodeFailure возвращает true для отказов узла, которые лечатся пересабмитом.
func (s TaskState) IsNodeFailure() bool {
	switch s {
	case JobBootFail, JobNodeFail, JobOutOfMemory, JobPreempted:
		return true
	default:
		return false
	}
}

// IsTerminalFailure возвращает true для ошибок, после которых пробуем checkpoint-restart.
func (s TaskState) IsTerminalFailure() bool {
	switch s {
	case TaskFailed, TaskTimelimit, TaskTimeout:
		return true
	default:
		return false
	}
}

// IsFinal возвращает true, если task больше не изменит состояние сам по себе.
// RESTARTED считается финальным: работу продолжает новый task.
// UNKNOWN тоже финальный: TM снял job с учёта и больше его не опрашивает.
func (s TaskState) IsFinal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskDepFail, TaskRestarted, TaskBuildFail,
		TaskSubmitFail, TaskCancelled, TaskTimeout, TaskTimelimit, TaskZombie, JobUnknown:
		return true
	default:
		return false
	}
}

// IsScheduled возвращает true, если task уже был передан на исполнение.
func (s TaskState) IsScheduled() bool {
	return s != TaskWaiting && s != TaskReady
}

// String возвращает строковое представление TaskState.
func (s TaskState) String() string {
	return string(s)
}
