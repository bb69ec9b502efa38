package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS submit_queue (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	wf_id TEXT NOT NULL,
	task  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS job_queue (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	wf_id     TEXT NOT NULL,
	task      TEXT NOT NULL,
	job_id    TEXT NOT NULL,
	job_state TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS update_queue (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	wf_id     TEXT NOT NULL,
	task_id   TEXT NOT NULL,
	job_state TEXT NOT NULL,
	task_info TEXT,
	metadata  TEXT,
	output    TEXT
);
`

// Store — три durable очереди в одном файле SQLite.
type Store struct {
	db *sql.DB
}

// Stats — длины очередей.
type Stats struct {
	Submit int `json:"submit"`
	Job    int `json:"job"`
	Update int `json:"update"`
}

// Open открывает (или создаёт) базу очередей.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	// Один писатель: фоновый цикл и HTTP-хендлеры сериализуются на соединении
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("create schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close закрывает базу.
func (s *Store) Close() error {
	return s.db.Close()
}

// PushSubmit добавляет tasks в хвост submit-очереди одной транзакцией.
func (s *Store) PushSubmit(ctx context.Context, tasks ...*domain.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, task := range tasks {
		blob, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("marshal task %s: %w", task.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO submit_queue (wf_id, task) VALUES (?, ?)`,
			task.WorkflowID.String(), string(blob),
		); err != nil {
			return fmt.Errorf("insert submit row: %w", err)
		}
	}

	return tx.Commit()
}

// PopSubmit извлекает голову submit-очереди. Пустая очередь — ErrEmpty.
func (s *Store) PopSubmit(ctx context.Context) (*domain.SubmitRow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		row  domain.SubmitRow
		blob string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, task FROM submit_queue ORDER BY id ASC LIMIT 1`,
	).Scan(&row.ID, &blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("select submit head: %w", err)
	}
	if err := json.Unmarshal([]byte(blob), &row.Task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM submit_queue WHERE id = ?`, row.ID); err != nil {
		return nil, fmt.Errorf("delete submit row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &row, nil
}

// SubmitRows возвращает содержимое submit-очереди.
func (s *Store) SubmitRows(ctx context.Context) ([]domain.SubmitRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task FROM submit_queue ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list submit rows: %w", err)
	}
	defer rows.Close()

	var out []domain.SubmitRow
	for rows.Next() {
		var (
			row  domain.SubmitRow
			blob string
		)
		if err := rows.Scan(&row.ID, &blob); err != nil {
			return nil, fmt.Errorf("scan submit row: %w", err)
		}
		if err := json.Unmarshal([]byte(blob), &row.Task); err != nil {
			return nil, fmt.Errorf("unmarshal task: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RemoveSubmitByWorkflow удаляет из submit-очереди tasks workflow.
// Возвращает удалённые строки.
func (s *Store) RemoveSubmitByWorkflow(ctx context.Context, wfID uuid.UUID) ([]domain.SubmitRow, error) {
	rows, err := s.SubmitRows(ctx)
	if err != nil {
		return nil, err
	}

	var removed []domain.SubmitRow
	for _, row := range rows {
		if row.Task.WorkflowID != wfID {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM submit_queue WHERE id = ?`, row.ID); err != nil {
			return removed, fmt.Errorf("delete submit row: %w", err)
		}
		removed = append(removed, row)
	}
	return removed, nil
}

// PushJob добавляет отправленный job в хвост job-очереди.
func (s *Store) PushJob(ctx context.Context, task *domain.Task, jobID string, state domain.TaskState) (int64, error) {
	return pushJob(ctx, s.db, task, jobID, state)
}

// execer — общий интерфейс *sql.DB и *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func pushJob(ctx context.Context, db execer, task *domain.Task, jobID string, state domain.TaskState) (int64, error) {
	blob, err := json.Marshal(task)
	if err != nil {
		return 0, fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO job_queue (wf_id, task, job_id, job_state) VALUES (?, ?, ?, ?)`,
		task.WorkflowID.String(), string(blob), jobID, string(state),
	)
	if err != nil {
		return 0, fmt.Errorf("insert job row: %w", err)
	}
	return res.LastInsertId()
}

// Jobs возвращает содержимое job-очереди.
func (s *Store) Jobs(ctx context.Context) ([]domain.JobRow, error) {
	return s.queryJobs(ctx, `SELECT id, task, job_id, job_state FROM job_queue ORDER BY id ASC`)
}

// JobsByWorkflow возвращает jobs одного workflow.
func (s *Store) JobsByWorkflow(ctx context.Context, wfID uuid.UUID) ([]domain.JobRow, error) {
	return s.queryJobs(ctx,
		`SELECT id, task, job_id, job_state FROM job_queue WHERE wf_id = ? ORDER BY id ASC`,
		wfID.String(),
	)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]domain.JobRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list job rows: %w", err)
	}
	defer rows.Close()

	var out []domain.JobRow
	for rows.Next() {
		var (
			row   domain.JobRow
			blob  string
			state string
		)
		if err := rows.Scan(&row.ID, &blob, &row.JobID, &state); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		if err := json.Unmarshal([]byte(blob), &row.Task); err != nil {
			return nil, fmt.Errorf("unmarshal task: %w", err)
		}
		row.JobState = domain.TaskState(state)
		out = append(out, row)
	}
	return out, rows.Err()
}

// UpdateJobState сохраняет новый статус job.
func (s *Store) UpdateJobState(ctx context.Context, id int64, state domain.TaskState) error {
	res, err := s.db.ExecContext(ctx, `UPDATE job_queue SET job_state = ? WHERE id = ?`, string(state), id)
	if err != nil {
		return fmt.Errorf("update job state: %w", err)
	}
	return checkAffected(res)
}

// RemoveJob удаляет строку job-очереди.
func (s *Store) RemoveJob(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job row: %w", err)
	}
	return checkAffected(res)
}

// StartJob атомарно добавляет строку отправленного job и update о нём.
func (s *Store) StartJob(ctx context.Context, task *domain.Task, jobID string, state domain.TaskState, update *domain.TaskUpdate) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := pushJob(ctx, tx, task, jobID, state)
	if err != nil {
		return 0, err
	}
	if err := pushUpdate(ctx, tx, update); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// FinishJob атомарно ставит update в очередь и удаляет строку job.
func (s *Store) FinishJob(ctx context.Context, id int64, update *domain.TaskUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := pushUpdate(ctx, tx, update); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM job_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job row: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}

	return tx.Commit()
}

// RequeueJob атомарно заменяет строку job новой (после пересабмита):
// старая удаляется, новая добавляется в хвост вместе с update.
func (s *Store) RequeueJob(ctx context.Context, id int64, task *domain.Task, jobID string, state domain.TaskState, update *domain.TaskUpdate) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM job_queue WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete job row: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return 0, err
	}

	newID, err := pushJob(ctx, tx, task, jobID, state)
	if err != nil {
		return 0, err
	}
	if update != nil {
		if err := pushUpdate(ctx, tx, update); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newID, nil
}

// PushUpdate добавляет update в хвост update-очереди.
func (s *Store) PushUpdate(ctx context.Context, update *domain.TaskUpdate) error {
	return pushUpdate(ctx, s.db, update)
}

func pushUpdate(ctx context.Context, db execer, update *domain.TaskUpdate) error {
	taskInfo, err := marshalNullable(update.TaskInfo)
	if err != nil {
		return fmt.Errorf("marshal task_info: %w", err)
	}
	metadata, err := marshalNullable(update.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	output, err := marshalNullable(update.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO update_queue (wf_id, task_id, job_state, task_info, metadata, output)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		update.WorkflowID.String(), update.TaskID.String(), string(update.JobState),
		taskInfo, metadata, output,
	)
	if err != nil {
		return fmt.Errorf("insert update row: %w", err)
	}
	return nil
}

// Updates возвращает содержимое update-очереди в порядке добавления.
func (s *Store) Updates(ctx context.Context) ([]domain.UpdateRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, wf_id, task_id, job_state, task_info, metadata, output
		 FROM update_queue ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list update rows: %w", err)
	}
	defer rows.Close()

	var out []domain.UpdateRow
	for rows.Next() {
		var (
			row                        domain.UpdateRow
			wfID, taskID, state        string
			taskInfo, metadata, output sql.NullString
		)
		if err := rows.Scan(&row.ID, &wfID, &taskID, &state, &taskInfo, &metadata, &output); err != nil {
			return nil, fmt.Errorf("scan update row: %w", err)
		}

		u := &row.Update
		if u.WorkflowID, err = uuid.Parse(wfID); err != nil {
			return nil, fmt.Errorf("parse wf_id: %w", err)
		}
		if u.TaskID, err = uuid.Parse(taskID); err != nil {
			return nil, fmt.Errorf("parse task_id: %w", err)
		}
		u.JobState = domain.TaskState(state)
		if err := unmarshalNullable(taskInfo, &u.TaskInfo); err != nil {
			return nil, fmt.Errorf("unmarshal task_info: %w", err)
		}
		if err := unmarshalNullable(metadata, &u.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		if err := unmarshalNullable(output, &u.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ClearUpdates удаляет доставленные updates с id <= maxID.
// Updates, добавленные после чтения пачки, остаются.
func (s *Store) ClearUpdates(ctx context.Context, maxID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM update_queue WHERE id <= ?`, maxID); err != nil {
		return fmt.Errorf("clear updates: %w", err)
	}
	return nil
}

// Stats возвращает длины очередей.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM submit_queue),
			(SELECT COUNT(*) FROM job_queue),
			(SELECT COUNT(*) FROM update_queue)
	`).Scan(&st.Submit, &st.Job, &st.Update)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return st, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrRowNotFound
	}
	return nil
}

// marshalNullable возвращает NULL для пустых значений.
func marshalNullable[T any](v T) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable[T any](s sql.NullString, dst *T) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}
