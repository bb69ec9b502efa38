package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ArchiveRecord — запись об архивированном workflow.
type ArchiveRecord struct {
	WorkflowID  uuid.UUID `json:"wf_id"`
	FinalState  string    `json:"final_state"`
	GraphPath   string    `json:"graph_path"`
	ArchivePath string    `json:"archive_path"`
	ArchivedAt  time.Time `json:"archived_at"`
}

// ArchiveRepo — журнал архивирования.
type ArchiveRepo struct {
	pool *pgxpool.Pool
}

// NewArchiveRepo создаёт новый ArchiveRepo.
func NewArchiveRepo(pool *pgxpool.Pool) *ArchiveRepo {
	return &ArchiveRepo{pool: pool}
}

// CreateArchive записывает факт архивирования.
// Повторная запись для того же workflow — ErrAlreadyExists.
func (r *ArchiveRepo) CreateArchive(ctx context.Context, rec *ArchiveRecord) error {
	query := `
		INSERT INTO archives (wf_id, final_state, graph_path, archive_path, archived_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wf_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		rec.WorkflowID,
		rec.FinalState,
		rec.GraphPath,
		rec.ArchivePath,
		rec.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert archive: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetArchive возвращает запись об архиве workflow.
func (r *ArchiveRepo) GetArchive(ctx context.Context, wfID uuid.UUID) (*ArchiveRecord, error) {
	query := `
		SELECT wf_id, final_state, graph_path, archive_path, archived_at
		FROM archives
		WHERE wf_id = $1
	`
	var rec ArchiveRecord
	err := r.pool.QueryRow(ctx, query, wfID).Scan(
		&rec.WorkflowID,
		&rec.FinalState,
		&rec.GraphPath,
		&rec.ArchivePath,
		&rec.ArchivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get archive: %w", err)
	}
	return &rec, nil
}
