package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/orchestrator"
	"github.com/shaiso/beeflow/internal/queue"
	"github.com/shaiso/beeflow/internal/repo"
)

type fakeWorkflows struct {
	id        uuid.UUID
	submitted *domain.Bundle
	updates   []domain.TaskUpdate
	actions   []string
	err       error
}

func (f *fakeWorkflows) Submit(ctx context.Context, b *domain.Bundle) (uuid.UUID, error) {
	f.submitted = b
	return f.id, f.err
}

func (f *fakeWorkflows) action(name string, id uuid.UUID) error {
	f.actions = append(f.actions, name)
	if f.err != nil {
		return f.err
	}
	if id != f.id {
		return fmt.Errorf("%w: %s", orchestrator.ErrWorkflowNotFound, id)
	}
	return nil
}

func (f *fakeWorkflows) Start(ctx context.Context, id uuid.UUID) error  { return f.action("start", id) }
func (f *fakeWorkflows) Pause(ctx context.Context, id uuid.UUID) error  { return f.action("pause", id) }
func (f *fakeWorkflows) Resume(ctx context.Context, id uuid.UUID) error { return f.action("resume", id) }
func (f *fakeWorkflows) Delete(ctx context.Context, id uuid.UUID) error { return f.action("delete", id) }

func (f *fakeWorkflows) Cancel(ctx context.Context, id uuid.UUID) ([]string, error) {
	if err := f.action("cancel", id); err != nil {
		return nil, err
	}
	return []string{"A " + id.String() + " job-1 CANCELLED"}, nil
}

func (f *fakeWorkflows) Query(ctx context.Context, id uuid.UUID) (*domain.WorkflowStatus, error) {
	if id != f.id {
		return nil, fmt.Errorf("%w: %s", orchestrator.ErrWorkflowNotFound, id)
	}
	return &domain.WorkflowStatus{ID: id, Name: "wf", State: domain.WorkflowRunning}, nil
}

func (f *fakeWorkflows) List(ctx context.Context) ([]domain.WorkflowStatus, error) {
	return []domain.WorkflowStatus{{ID: f.id, Name: "wf", State: domain.WorkflowRunning}}, nil
}

func (f *fakeWorkflows) Reexecute(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	if err := f.action("reexecute", id); err != nil {
		return uuid.Nil, err
	}
	return uuid.New(), nil
}

func (f *fakeWorkflows) ApplyUpdates(ctx context.Context, updates []domain.TaskUpdate) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, updates...)
	return nil
}

type fakeOutputs struct {
	taskID *uuid.UUID
}

func (f *fakeOutputs) ListOutputs(ctx context.Context, wfID uuid.UUID, taskID *uuid.UUID) ([]repo.TaskOutput, error) {
	f.taskID = taskID
	return []repo.TaskOutput{{
		WorkflowID: wfID,
		TaskID:     uuid.New(),
		Timestamp:  time.Now(),
		Output:     map[string]any{"a/out": "x"},
	}}, nil
}

type fakeTasks struct {
	queued []*domain.Task
}

func (f *fakeTasks) Enqueue(ctx context.Context, tasks []*domain.Task) error {
	f.queued = append(f.queued, tasks...)
	return nil
}

func (f *fakeTasks) CancelWorkflow(ctx context.Context, wfID uuid.UUID) ([]domain.CancelResult, error) {
	var out []domain.CancelResult
	for _, t := range f.queued {
		out = append(out, domain.CancelResult{TaskID: t.ID, Name: t.Name, JobID: "-", State: domain.TaskCancelled})
	}
	return out, nil
}

func (f *fakeTasks) Stats(ctx context.Context) (queue.Stats, error) {
	return queue.Stats{Submit: len(f.queued), Job: 2, Update: 3}, nil
}

func newServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func errorCode(t *testing.T, body []byte) ErrorCode {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return er.Error.Code
}

const bundleYAML = `
workflow:
  name: wf
  inputs:
    - {id: infile, type: File, value: data.txt}
  outputs:
    - {id: result, type: File, source: a/out}
tasks:
  - name: A
    base_command: [echo, hi]
    inputs:
      - {id: in, type: File, source: infile}
    outputs:
      - {id: a/out, type: File, glob: out.txt}
`

func TestSubmitWorkflow(t *testing.T) {
	wfs := &fakeWorkflows{id: uuid.New()}
	srv := newServer(t, Config{Workflows: wfs})

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/workflows", bundleYAML)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}

	var dr struct {
		Data SubmitResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &dr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dr.Data.ID != wfs.id {
		t.Errorf("id = %s, want %s", dr.Data.ID, wfs.id)
	}
	if wfs.submitted == nil || wfs.submitted.Workflow.Name != "wf" || len(wfs.submitted.Tasks) != 1 {
		t.Fatalf("submitted bundle = %+v", wfs.submitted)
	}
	if got := wfs.submitted.Tasks[0].Outputs[0].Glob; got != "out.txt" {
		t.Errorf("glob = %q, want out.txt", got)
	}
}

func TestSubmitWorkflow_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		status   int
		wantCode ErrorCode
	}{
		{"empty body", "", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"malformed", "workflow: [", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"internal", bundleYAML, errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, Config{Workflows: &fakeWorkflows{id: uuid.New(), err: tt.err}})
			resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/workflows", tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.status, body)
			}
			if got := errorCode(t, body); got != tt.wantCode {
				t.Errorf("code = %s, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestWorkflowActions(t *testing.T) {
	wfs := &fakeWorkflows{id: uuid.New()}
	srv := newServer(t, Config{Workflows: wfs})
	base := srv.URL + "/api/v1/workflows/" + wfs.id.String()

	for _, action := range []string{"start", "pause", "resume"} {
		resp, body := do(t, http.MethodPost, base+"/"+action, "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d (%s)", action, resp.StatusCode, body)
		}
	}

	resp, body := do(t, http.MethodPost, base+"/cancel", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d (%s)", resp.StatusCode, body)
	}
	var cr struct {
		Data CancelResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &cr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cr.Data.Lines) != 1 || !strings.HasSuffix(cr.Data.Lines[0], "job-1 CANCELLED") {
		t.Errorf("lines = %v", cr.Data.Lines)
	}

	resp, _ = do(t, http.MethodPost, base+"/reexecute", "")
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("reexecute status = %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodDelete, base, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}

	want := []string{"start", "pause", "resume", "cancel", "reexecute", "delete"}
	if diff := cmp.Diff(want, wfs.actions); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkflowActions_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		err      error
		status   int
		wantCode ErrorCode
	}{
		{"bad id", "/api/v1/workflows/not-a-uuid/start", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"not found", "/api/v1/workflows/" + uuid.NewString() + "/start", nil, http.StatusNotFound, ErrCodeNotFound},
		{"invalid state", "", &orchestrator.StateError{Action: "start", State: "RUNNING"}, http.StatusUnprocessableEntity, ErrCodeInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wfs := &fakeWorkflows{id: uuid.New(), err: tt.err}
			srv := newServer(t, Config{Workflows: wfs})

			path := tt.path
			if path == "" {
				path = "/api/v1/workflows/" + wfs.id.String() + "/start"
			}
			resp, body := do(t, http.MethodPost, srv.URL+path, "")
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.status, body)
			}
			if got := errorCode(t, body); got != tt.wantCode {
				t.Errorf("code = %s, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestApplyUpdates(t *testing.T) {
	wfs := &fakeWorkflows{id: uuid.New()}
	srv := newServer(t, Config{Workflows: wfs})

	update := domain.TaskUpdate{WorkflowID: wfs.id, TaskID: uuid.New(), JobState: domain.TaskRunning}
	payload, _ := json.Marshal(UpdatesRequest{Updates: []domain.TaskUpdate{update}})

	resp, body := do(t, http.MethodPut, srv.URL+"/api/v1/updates", string(payload))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	if diff := cmp.Diff([]domain.TaskUpdate{update}, wfs.updates); diff != "" {
		t.Errorf("updates mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyUpdates_Invalid(t *testing.T) {
	wfs := &fakeWorkflows{id: uuid.New(), err: fmt.Errorf("%w: update 0: missing wf_id", orchestrator.ErrInvalidUpdate)}
	srv := newServer(t, Config{Workflows: wfs})

	resp, body := do(t, http.MethodPut, srv.URL+"/api/v1/updates", `{"updates":[{}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	if got := errorCode(t, body); got != ErrCodeBadRequest {
		t.Errorf("code = %s, want BAD_REQUEST", got)
	}
}

func TestListOutputs(t *testing.T) {
	wfs := &fakeWorkflows{id: uuid.New()}
	outs := &fakeOutputs{}
	srv := newServer(t, Config{Workflows: wfs, Outputs: outs})

	taskID := uuid.New()
	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/workflows/"+wfs.id.String()+"/outputs?task_id="+taskID.String(), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	if outs.taskID == nil || *outs.taskID != taskID {
		t.Errorf("task filter = %v, want %s", outs.taskID, taskID)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/workflows/"+wfs.id.String()+"/outputs?task_id=bad", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad task_id status = %d", resp.StatusCode)
	}
}

func TestTaskManagerRoutes(t *testing.T) {
	tasks := &fakeTasks{}
	srv := newServer(t, Config{Tasks: tasks})

	task := &domain.Task{ID: uuid.New(), WorkflowID: uuid.New(), Name: "A", State: domain.TaskReady}
	payload, _ := json.Marshal(SubmitTasksRequest{Tasks: []*domain.Task{task}})

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/tasks", string(payload))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d (%s)", resp.StatusCode, body)
	}
	if len(tasks.queued) != 1 || tasks.queued[0].ID != task.ID {
		t.Fatalf("queued = %v", tasks.queued)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/workflows/"+task.WorkflowID.String()+"/tasks/cancel", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d (%s)", resp.StatusCode, body)
	}
	var lr struct {
		Data []domain.CancelResult `json:"data"`
	}
	if err := json.Unmarshal(body, &lr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []domain.CancelResult{{TaskID: task.ID, Name: "A", JobID: "-", State: domain.TaskCancelled}}
	if diff := cmp.Diff(want, lr.Data); diff != "" {
		t.Errorf("cancel results mismatch (-want +got):\n%s", diff)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/queues", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("queues status = %d (%s)", resp.StatusCode, body)
	}
	var sr struct {
		Data QueueStatsResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(QueueStatsResponse{Submit: 1, Job: 2, Update: 3}, sr.Data); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	// Маршруты WFM не зарегистрированы
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/workflows", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("workflows on TM status = %d, want 404", resp.StatusCode)
	}
}

func TestSubmitTasks_Invalid(t *testing.T) {
	srv := newServer(t, Config{Tasks: &fakeTasks{}})

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/tasks", `{"tasks":[{"id":"`+uuid.NewString()+`"}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
