package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/beeflow/internal/domain"
)

// Backend names.
const (
	BackendLocal = "local"
)

// Worker — адаптер batch-планировщика.
//
// Все вызовы должны уважать дедлайн ctx: истёкший таймаут
// обрабатывается вызывающим так же, как ошибка backend'а.
type Worker interface {
	// Submit отправляет task и возвращает job id и начальный статус.
	Submit(ctx context.Context, task *domain.Task) (string, domain.TaskState, error)

	// Query возвращает текущий статус job.
	Query(ctx context.Context, jobID string) (domain.TaskState, error)

	// Cancel просит backend завершить job и возвращает его статус после отмены.
	Cancel(ctx context.Context, jobID string) (domain.TaskState, error)
}

// Config — конфигурация backend'а.
type Config struct {
	// Backend — имя backend'а (default: local).
	Backend string

	// LogDir — каталог для stdout/stderr tasks без явных путей.
	LogDir string

	// Logger
	Logger *slog.Logger
}

// New создаёт Worker по имени backend'а.
func New(cfg Config) (Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case "", BackendLocal:
		return NewLocal(cfg.LogDir, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
