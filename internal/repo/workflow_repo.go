package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/beeflow/internal/domain"
)

// WorkflowRepo хранит снимки графа workflow.
//
// Снимок (domain.Bundle) пишется целиком в JSONB после каждой
// мутации; state и name дублируются в колонки для фильтрации.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// WorkflowFilter — параметры фильтрации списка.
type WorkflowFilter struct {
	State  domain.WorkflowState
	Active bool // только не архивированные
	Limit  int
	Offset int
}

// Save вставляет или заменяет снимок workflow.
func (r *WorkflowRepo) Save(ctx context.Context, bundle *domain.Bundle) error {
	snapshot, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	wf := bundle.Workflow
	query := `
		INSERT INTO workflows (id, name, state, workdir, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    state = EXCLUDED.state,
		    workdir = EXCLUDED.workdir,
		    snapshot = EXCLUDED.snapshot,
		    updated_at = EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, query,
		wf.ID,
		wf.Name,
		wf.State,
		wf.WorkDir,
		snapshot,
		wf.CreatedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// Get возвращает снимок workflow по ID.
func (r *WorkflowRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Bundle, error) {
	var snapshot []byte
	err := r.pool.QueryRow(ctx, `SELECT snapshot FROM workflows WHERE id = $1`, id).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return decodeSnapshot(snapshot)
}

// List возвращает снимки workflows, новые первыми.
func (r *WorkflowRepo) List(ctx context.Context, filter WorkflowFilter) ([]domain.Bundle, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT snapshot
		FROM workflows
		WHERE ($1::text IS NULL OR state = $1)
		  AND (NOT $2 OR state NOT LIKE 'ARCHIVED%')
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.State)),
		filter.Active,
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var bundles []domain.Bundle
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		b, err := decodeSnapshot(snapshot)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, *b)
	}
	return bundles, rows.Err()
}

// ListActive возвращает все не архивированные workflows (для восстановления при старте).
func (r *WorkflowRepo) ListActive(ctx context.Context) ([]domain.Bundle, error) {
	query := `
		SELECT snapshot
		FROM workflows
		WHERE state NOT LIKE 'ARCHIVED%'
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active workflows: %w", err)
	}
	defer rows.Close()

	var bundles []domain.Bundle
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		b, err := decodeSnapshot(snapshot)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, *b)
	}
	return bundles, rows.Err()
}

// Delete удаляет workflow и его outputs.
func (r *WorkflowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM task_outputs WHERE wf_id = $1`, id); err != nil {
		return fmt.Errorf("delete task outputs: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM archives WHERE wf_id = $1`, id); err != nil {
		return fmt.Errorf("delete archive record: %w", err)
	}

	return tx.Commit(ctx)
}

func decodeSnapshot(data []byte) (*domain.Bundle, error) {
	var b domain.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &b, nil
}
