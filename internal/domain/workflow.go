package domain

import (
	"time"

	"github.com/google/uuid"
)

// Workflow — DAG tasks с типизированными входами и выходами.
//
// Workflow создаётся при submission, меняется действиями
// start/pause/resume/cancel и архивацией, удаляется явным delete.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name"`

	// Hints — необязательные требования (упорядочены).
	Hints []Requirement `json:"hints,omitempty"`

	// Requirements — обязательные требования.
	Requirements []Requirement `json:"requirements,omitempty"`

	// Inputs — входы workflow. На них ссылаются входы tasks по ID.
	Inputs []WorkflowInput `json:"inputs,omitempty"`

	// Outputs — выходы workflow, привязанные к выходам tasks через Source.
	Outputs []WorkflowOutput `json:"outputs,omitempty"`

	// State — текущий статус.
	State WorkflowState `json:"state"`

	// WorkDir — рабочая директория workflow (архивируется по завершении).
	WorkDir string `json:"workdir,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// WorkflowInput — вход workflow.
type WorkflowInput struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Value   any    `json:"value,omitempty"`
	Default any    `json:"default,omitempty"`
}

// WorkflowOutput — выход workflow.
type WorkflowOutput struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Value  any    `json:"value,omitempty"`
	Source string `json:"source"`
}

// Clone возвращает копию workflow.
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Hints = cloneRequirements(w.Hints)
	c.Requirements = cloneRequirements(w.Requirements)
	c.Inputs = make([]WorkflowInput, len(w.Inputs))
	for i, in := range w.Inputs {
		in.Value = cloneValue(in.Value)
		in.Default = cloneValue(in.Default)
		c.Inputs[i] = in
	}
	c.Outputs = make([]WorkflowOutput, len(w.Outputs))
	for i, out := range w.Outputs {
		out.Value = cloneValue(out.Value)
		c.Outputs[i] = out
	}
	return &c
}

// Bundle — payload submission: workflow и его tasks.
type Bundle struct {
	Workflow Workflow `json:"workflow"`
	Tasks    []Task   `json:"tasks"`
}

// TaskSummary — строка ответа на query: (id, name, state).
type TaskSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	State TaskState `json:"state"`
}

// WorkflowStatus — ответ на query: статус workflow и его tasks.
type WorkflowStatus struct {
	ID    uuid.UUID     `json:"id"`
	Name  string        `json:"name"`
	State WorkflowState `json:"state"`
	Tasks []TaskSummary `json:"tasks"`
}
