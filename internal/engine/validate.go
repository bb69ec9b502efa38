package engine

import (
	"fmt"

	"github.com/shaiso/beeflow/internal/domain"
)

// Validate выполняет полную валидацию bundle.
//
// Проверяет:
// - Наличие tasks
// - Уникальность имён tasks и ID выходов
// - Что каждый source ссылается на выход task или вход workflow
// - Что выходы workflow ссылаются на существующие выходы tasks
// - Отсутствие циклов (делегируется DAG)
func Validate(b *domain.Bundle) error {
	if b == nil || len(b.Tasks) == 0 {
		return ErrNoTasks
	}

	names := make(map[string]bool, len(b.Tasks))
	outputs := make(map[string]string)

	for i := range b.Tasks {
		task := &b.Tasks[i]

		if task.Name == "" {
			return NewValidationError("", "name",
				fmt.Sprintf("task %d has empty name", i), ErrEmptyTaskName)
		}
		if names[task.Name] {
			return NewValidationError(task.Name, "name",
				fmt.Sprintf("duplicate task name: %s", task.Name), ErrDuplicateTaskName)
		}
		names[task.Name] = true

		for _, out := range task.Outputs {
			if owner, exists := outputs[out.ID]; exists {
				return NewValidationError(task.Name, "outputs",
					fmt.Sprintf("output %s already produced by %s", out.ID, owner), ErrDuplicateOutputID)
			}
			outputs[out.ID] = task.Name
		}
	}

	wfInputs := make(map[string]bool, len(b.Workflow.Inputs))
	for _, in := range b.Workflow.Inputs {
		wfInputs[in.ID] = true
	}

	for i := range b.Tasks {
		task := &b.Tasks[i]
		for _, in := range task.Inputs {
			if in.Source == "" {
				continue
			}
			if _, ok := outputs[in.Source]; ok {
				continue
			}
			if wfInputs[in.Source] {
				continue
			}
			// Вход без источника допустим, если есть значение или default
			if in.Resolved() {
				continue
			}
			return NewValidationError(task.Name, "inputs",
				fmt.Sprintf("input %s: unknown source %s", in.ID, in.Source), ErrUnknownSource)
		}
	}

	for _, out := range b.Workflow.Outputs {
		if _, ok := outputs[out.Source]; !ok {
			return NewValidationError("", "outputs",
				fmt.Sprintf("workflow output %s: unknown source %s", out.ID, out.Source), ErrUnknownSource)
		}
	}

	if _, err := BuildDAG(b); err != nil {
		return err
	}

	return nil
}
