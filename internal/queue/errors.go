package queue

import "errors"

// Ошибки очередей.
var (
	// ErrEmpty — очередь пуста.
	ErrEmpty = errors.New("queue is empty")

	// ErrRowNotFound — строка с таким id не найдена.
	ErrRowNotFound = errors.New("queue row not found")
)
