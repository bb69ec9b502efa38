package engine

import "errors"

// Ошибки валидации bundle.
var (
	// ErrNoTasks — workflow не содержит tasks.
	ErrNoTasks = errors.New("workflow has no tasks")

	// ErrEmptyTaskName — task не имеет имени.
	ErrEmptyTaskName = errors.New("task has empty name")

	// ErrDuplicateTaskName — несколько tasks с одинаковым именем.
	ErrDuplicateTaskName = errors.New("duplicate task name")

	// ErrDuplicateOutputID — несколько выходов с одинаковым ID.
	ErrDuplicateOutputID = errors.New("duplicate output ID")

	// ErrUnknownSource — вход ссылается на несуществующий выход или вход workflow.
	ErrUnknownSource = errors.New("input source not found")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency — task зависит от собственного выхода.
	ErrSelfDependency = errors.New("task depends on itself")

	// ErrEmptyBundle — пустой payload.
	ErrEmptyBundle = errors.New("bundle payload is empty")
)

// Ошибки вычисления выражений.
var (
	// ErrTemplateRender — ошибка рендеринга выражения.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга выражения.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Task    string // имя task, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Task != "" {
		return "task " + e.Task + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(task, field, message string, err error) *ValidationError {
	return &ValidationError{
		Task:    task,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
