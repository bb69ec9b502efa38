package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Task — отдельная единица работы внутри workflow.
//
// Task загружается в граф при разборе workflow в статусе WAITING,
// становится READY когда все входы получили значения,
// и исполняется Worker'ом как job batch-планировщика.
//
// При checkpoint-restart создаётся новый Task с новым ID,
// а старый переходит в RESTARTED.
type Task struct {
	// ID — уникальный идентификатор task. При restart выдаётся новый.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на родительский workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Name — отображаемое имя. У перезапущенных tasks суффикс "(N)".
	Name string `json:"name"`

	// BaseCommand — команда без аргументов, например ["python", "solve.py"].
	BaseCommand []string `json:"base_command,omitempty"`

	// Hints — необязательные требования (упорядочены).
	Hints []Requirement `json:"hints,omitempty"`

	// Requirements — обязательные требования.
	Requirements []Requirement `json:"requirements,omitempty"`

	// Inputs — входы task в порядке объявления.
	Inputs []TaskInput `json:"inputs,omitempty"`

	// Outputs — выходы task.
	Outputs []TaskOutput `json:"outputs,omitempty"`

	// Stdout/Stderr — пути для перехвата потоков вывода.
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`

	// WorkDir — рабочая директория job.
	WorkDir string `json:"workdir,omitempty"`

	// State — текущий статус task.
	State TaskState `json:"state"`

	// Metadata — произвольные данные: job id, хост, digest контейнера.
	Metadata map[string]any `json:"metadata,omitempty"`

	// RestartedFrom — обратная ссылка на task, из которого создан этот (checkpoint-restart).
	RestartedFrom *uuid.UUID `json:"restarted_from,omitempty"`
}

// TaskInput — вход task.
type TaskInput struct {
	// ID — идентификатор входа.
	ID string `json:"id"`

	// Type — тип значения ("File", "string", "int", ...).
	Type string `json:"type"`

	// Value — разрешённое значение. Nil, пока источник не завершился.
	Value any `json:"value,omitempty"`

	// Default — значение по умолчанию.
	Default any `json:"default,omitempty"`

	// Source — ссылка на выход другого task ("<task>/<output>") или вход workflow.
	Source string `json:"source,omitempty"`

	// Prefix — префикс аргумента командной строки, например "-i".
	Prefix string `json:"prefix,omitempty"`

	// Position — позиция аргумента. Nil — вход не попадает в командную строку.
	Position *int `json:"position,omitempty"`

	// ValueFrom — выражение для вычисления значения.
	ValueFrom string `json:"value_from,omitempty"`
}

// Resolved возвращает true, если у входа есть значение или default.
func (in TaskInput) Resolved() bool {
	return in.Value != nil || in.Default != nil
}

// Effective возвращает значение входа с учётом default.
func (in TaskInput) Effective() any {
	if in.Value != nil {
		return in.Value
	}
	return in.Default
}

// TaskOutput — выход task.
type TaskOutput struct {
	// ID — идентификатор выхода. На него ссылаются входы зависимых tasks.
	ID string `json:"id"`

	// Type — тип значения.
	Type string `json:"type"`

	// Value — значение после завершения task.
	Value any `json:"value,omitempty"`

	// Glob — выражение для поиска артефактов в рабочей директории.
	Glob string `json:"glob,omitempty"`
}

// Input возвращает вход по ID.
func (t *Task) Input(id string) (*TaskInput, bool) {
	for i := range t.Inputs {
		if t.Inputs[i].ID == id {
			return &t.Inputs[i], true
		}
	}
	return nil, false
}

// Output возвращает выход по ID.
func (t *Task) Output(id string) (*TaskOutput, bool) {
	for i := range t.Outputs {
		if t.Outputs[i].ID == id {
			return &t.Outputs[i], true
		}
	}
	return nil, false
}

// IsReady проверяет условие готовности: WAITING и все входы разрешены.
func (t *Task) IsReady() bool {
	if t.State != TaskWaiting {
		return false
	}
	for _, in := range t.Inputs {
		if !in.Resolved() {
			return false
		}
	}
	return true
}

// Requirement ищет требование класса сначала в Hints, потом в Requirements.
func (t *Task) Requirement(class string) (*Requirement, bool) {
	for i := range t.Hints {
		if t.Hints[i].Class == class {
			return &t.Hints[i], true
		}
	}
	for i := range t.Requirements {
		if t.Requirements[i].Class == class {
			return &t.Requirements[i], true
		}
	}
	return nil, false
}

// Clone возвращает глубокую копию task.
// Значения any копируются через JSON, поэтому числа становятся float64.
func (t *Task) Clone() *Task {
	c := *t
	c.BaseCommand = append([]string(nil), t.BaseCommand...)
	c.Hints = cloneRequirements(t.Hints)
	c.Requirements = cloneRequirements(t.Requirements)
	c.Inputs = make([]TaskInput, len(t.Inputs))
	for i, in := range t.Inputs {
		if in.Position != nil {
			p := *in.Position
			in.Position = &p
		}
		in.Value = cloneValue(in.Value)
		in.Default = cloneValue(in.Default)
		c.Inputs[i] = in
	}
	c.Outputs = make([]TaskOutput, len(t.Outputs))
	for i, out := range t.Outputs {
		out.Value = cloneValue(out.Value)
		c.Outputs[i] = out
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = cloneValue(v)
		}
	}
	if t.RestartedFrom != nil {
		id := *t.RestartedFrom
		c.RestartedFrom = &id
	}
	return &c
}

// cloneValue копирует составные значения (map/slice), скаляры возвращает как есть.
func cloneValue(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return v
		}
		return out
	default:
		return v
	}
}
