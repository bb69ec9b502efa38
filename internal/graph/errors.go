package graph

import "errors"

// Ошибки хранилища графа.
var (
	// ErrAlreadyInitialized — в хранилище уже загружен workflow.
	ErrAlreadyInitialized = errors.New("workflow already initialized")

	// ErrNotInitialized — workflow ещё не загружен.
	ErrNotInitialized = errors.New("workflow not initialized")

	// ErrTaskNotFound — task не найден в графе.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists — task с таким ID уже загружен.
	ErrTaskExists = errors.New("task already exists")

	// ErrWrongWorkflow — task принадлежит другому workflow.
	ErrWrongWorkflow = errors.New("task belongs to another workflow")

	// ErrInputNotFound — у task нет входа с таким ID.
	ErrInputNotFound = errors.New("task input not found")

	// ErrOutputNotFound — у task нет выхода с таким ID.
	ErrOutputNotFound = errors.New("task output not found")
)
