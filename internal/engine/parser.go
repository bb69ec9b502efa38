package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
	"gopkg.in/yaml.v3"
)

// ParseBundle декодирует bundle из YAML или JSON (JSON — подмножество YAML).
//
// YAML сначала разбирается в дерево значений, затем приводится к domain.Bundle
// через JSON-теги, поэтому формат файла совпадает с телом POST /api/v1/workflows.
func ParseBundle(data []byte) (*domain.Bundle, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyBundle
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}

	var b domain.Bundle
	if err := json.Unmarshal(encoded, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}

	return &b, nil
}

// LoadBundleReader читает bundle из io.Reader.
func LoadBundleReader(r io.Reader) (*domain.Bundle, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return ParseBundle(content)
}

// LoadBundleFile читает bundle из файла.
func LoadBundleFile(path string) (*domain.Bundle, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	b, err := ParseBundle(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Normalize готовит bundle к загрузке в граф: выдаёт ID,
// проставляет workflow_id, начальные статусы и время создания.
func Normalize(b *domain.Bundle) {
	if b.Workflow.ID == uuid.Nil {
		b.Workflow.ID = uuid.New()
	}
	if b.Workflow.State == "" {
		b.Workflow.State = domain.WorkflowSubmitted
	}
	if b.Workflow.CreatedAt.IsZero() {
		b.Workflow.CreatedAt = time.Now().UTC()
	}

	for i := range b.Tasks {
		task := &b.Tasks[i]
		if task.ID == uuid.Nil {
			task.ID = uuid.New()
		}
		task.WorkflowID = b.Workflow.ID
		if task.State == "" {
			task.State = domain.TaskWaiting
		}
		if task.WorkDir == "" {
			task.WorkDir = b.Workflow.WorkDir
		}
	}
}
