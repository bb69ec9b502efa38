package scheduler

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
)

// DefaultResourceID — ресурс по умолчанию, если ресурсы не настроены.
const DefaultResourceID = "default"

// Resource — вычислительный ресурс (кластер, partition, локальный хост).
type Resource struct {
	ID    string `yaml:"id" json:"id"`
	Cores int    `yaml:"cores" json:"cores"`
}

// Allocation — результат распределения.
type Allocation struct {
	// Assignments — task id → resource id.
	Assignments map[uuid.UUID]string

	// Scheduled — назначенные tasks в порядке поступления.
	Scheduled []*domain.Task

	// Unscheduled — tasks, которые не помещаются ни на один ресурс.
	Unscheduled []*domain.Task
}

// Allocator — FCFS планировщик ресурсов.
type Allocator struct {
	resources []Resource
	logger    *slog.Logger
}

// Config — конфигурация Allocator.
type Config struct {
	Resources []Resource
	Logger    *slog.Logger
}

// NewAllocator создаёт Allocator.
func NewAllocator(cfg Config) *Allocator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		resources: cfg.Resources,
		logger:    logger.With("component", "scheduler"),
	}
}

// Allocate распределяет tasks по ресурсам.
func (a *Allocator) Allocate(ctx context.Context, tasks []*domain.Task) (*Allocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	alloc := &Allocation{Assignments: make(map[uuid.UUID]string, len(tasks))}

	// Без ресурсов всё уходит на ресурс по умолчанию
	if len(a.resources) == 0 {
		for _, task := range tasks {
			alloc.Assignments[task.ID] = DefaultResourceID
			alloc.Scheduled = append(alloc.Scheduled, task)
		}
		return alloc, nil
	}

	free := make([]int, len(a.resources))
	for i, r := range a.resources {
		free[i] = r.Cores
	}

	for _, task := range tasks {
		cores := requiredCores(task)

		idx := -1
		for i := range a.resources {
			if free[i] >= cores {
				idx = i
				break
			}
		}
		if idx < 0 {
			for i, r := range a.resources {
				if r.Cores >= cores {
					idx = i
					break
				}
			}
		}

		if idx < 0 {
			a.logger.Warn("task does not fit any resource",
				"task_id", task.ID,
				"task_name", task.Name,
				"cores", cores,
			)
			alloc.Unscheduled = append(alloc.Unscheduled, task)
			continue
		}

		free[idx] -= cores
		alloc.Assignments[task.ID] = a.resources[idx].ID
		alloc.Scheduled = append(alloc.Scheduled, task)
	}

	return alloc, nil
}

// requiredCores возвращает coresMin из ResourceRequirement (default: 1).
func requiredCores(task *domain.Task) int {
	req, ok := task.Requirement(domain.ClassResource)
	if !ok {
		return 1
	}
	return req.Resources().CoresMin
}
