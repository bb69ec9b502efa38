package orchestrator

import (
	"errors"
	"fmt"
)

// Ошибки Workflow Manager'а.
var (
	// ErrWorkflowNotFound — workflow не загружен и не найден в хранилище.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInvalidState — действие недопустимо в текущем статусе workflow.
	ErrInvalidState = errors.New("invalid workflow state")

	// ErrInvalidUpdate — пачка updates не прошла проверку и отвергнута целиком.
	ErrInvalidUpdate = errors.New("invalid task update")

	// ErrNoDispatcher — Task Manager не настроен.
	ErrNoDispatcher = errors.New("task dispatcher not configured")
)

// StateError — действие не разрешено из текущего статуса.
type StateError struct {
	Action string
	State  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s workflow in state %s", e.Action, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}
