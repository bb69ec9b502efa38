package worker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/engine"
)

// BuildCommand собирает argv для task.
//
// Порядок: BaseCommand, затем входы с Position по возрастанию
// (префикс отдельным аргументом), затем для перезапуска
// restart_parameters и путь к checkpoint-файлу.
// Булевы входы дают только префикс, если значение true.
func BuildCommand(task *domain.Task) ([]string, error) {
	if len(task.BaseCommand) == 0 {
		return nil, ErrEmptyCommand
	}
	args := append([]string(nil), task.BaseCommand...)

	positional := make([]domain.TaskInput, 0, len(task.Inputs))
	for _, in := range task.Inputs {
		if in.Position != nil {
			positional = append(positional, in)
		}
	}
	sort.SliceStable(positional, func(i, j int) bool {
		return *positional[i].Position < *positional[j].Position
	})

	for _, in := range positional {
		if strings.EqualFold(in.Type, "boolean") {
			if b, ok := in.Effective().(bool); ok && b && in.Prefix != "" {
				args = append(args, in.Prefix)
			}
			continue
		}

		value, err := engine.InputValue(task, in)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.ID, err)
		}
		if value == "" && in.Effective() == nil {
			continue
		}
		if in.Prefix != "" {
			args = append(args, in.Prefix)
		}
		args = append(args, value)
	}

	if req, ok := task.Requirement(domain.ClassCheckpoint); ok {
		cp := req.Checkpoint()
		if cp.Restart && cp.CheckpointFile != "" {
			if cp.RestartParameters != "" {
				args = append(args, strings.Fields(cp.RestartParameters)...)
			}
			args = append(args, cp.CheckpointFile)
		}
	}

	return args, nil
}
