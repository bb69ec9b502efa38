package dispatch

import "errors"

// Ошибки dispatcher'а.
var (
	// ErrNoSink — не настроен получатель updates.
	ErrNoSink = errors.New("update sink not configured")

	// ErrDispatcherStopped — dispatcher остановлен.
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)
