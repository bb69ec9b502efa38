package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskOutput — запись side-store для output из update.
type TaskOutput struct {
	WorkflowID uuid.UUID      `json:"wf_id"`
	TaskID     uuid.UUID      `json:"task_id"`
	Timestamp  time.Time      `json:"ts"`
	Output     map[string]any `json:"output"`
}

// OutputRepo — side-store для outputs tasks, ключ (wf_id, task_id, ts).
type OutputRepo struct {
	pool *pgxpool.Pool
}

// NewOutputRepo создаёт новый OutputRepo.
func NewOutputRepo(pool *pgxpool.Pool) *OutputRepo {
	return &OutputRepo{pool: pool}
}

// SaveOutput сохраняет output task.
func (r *OutputRepo) SaveOutput(ctx context.Context, wfID, taskID uuid.UUID, ts time.Time, output map[string]any) error {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	query := `
		INSERT INTO task_outputs (wf_id, task_id, ts, output)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.pool.Exec(ctx, query, wfID, taskID, ts, data); err != nil {
		return fmt.Errorf("insert task output: %w", err)
	}
	return nil
}

// ListOutputs возвращает outputs workflow в порядке времени.
// taskID == nil — outputs всех tasks.
func (r *OutputRepo) ListOutputs(ctx context.Context, wfID uuid.UUID, taskID *uuid.UUID) ([]TaskOutput, error) {
	query := `
		SELECT wf_id, task_id, ts, output
		FROM task_outputs
		WHERE wf_id = $1
		  AND ($2::uuid IS NULL OR task_id = $2)
		ORDER BY ts ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, wfID, nullUUID(taskID))
	if err != nil {
		return nil, fmt.Errorf("list task outputs: %w", err)
	}
	defer rows.Close()

	var outputs []TaskOutput
	for rows.Next() {
		var (
			out  TaskOutput
			data []byte
		)
		if err := rows.Scan(&out.WorkflowID, &out.TaskID, &out.Timestamp, &data); err != nil {
			return nil, fmt.Errorf("scan task output: %w", err)
		}
		if err := json.Unmarshal(data, &out.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}
