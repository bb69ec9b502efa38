package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownBackend — backend с таким именем не поддерживается.
	ErrUnknownBackend = errors.New("unknown worker backend")

	// ErrEmptyCommand — у task нет команды для запуска.
	ErrEmptyCommand = errors.New("task has empty command")

	// ErrSubmitFailed — backend не принял job.
	ErrSubmitFailed = errors.New("job submission failed")

	// ErrJobNotFound — backend не знает такой job.
	ErrJobNotFound = errors.New("job not found")
)
