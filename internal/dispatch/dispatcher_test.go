package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/queue"
	"github.com/shaiso/beeflow/internal/worker"
)

// fakeWorker отвечает заранее заданными статусами.
type fakeWorker struct {
	mu        sync.Mutex
	seq       int
	submitErr error
	states    map[string]domain.TaskState
	queryErr  map[string]error
	cancelErr error
	cancels   map[string]int
	submitted []string
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{
		states:   make(map[string]domain.TaskState),
		queryErr: make(map[string]error),
		cancels:  make(map[string]int),
	}
}

func (w *fakeWorker) Submit(_ context.Context, task *domain.Task) (string, domain.TaskState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitErr != nil {
		return "", "", w.submitErr
	}
	w.seq++
	jobID := fmt.Sprintf("job-%d", w.seq)
	w.states[jobID] = domain.JobPending
	w.submitted = append(w.submitted, task.Name)
	return jobID, domain.JobPending, nil
}

func (w *fakeWorker) Query(_ context.Context, jobID string) (domain.TaskState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.queryErr[jobID]; err != nil {
		return "", err
	}
	state, ok := w.states[jobID]
	if !ok {
		return domain.JobUnknown, nil
	}
	return state, nil
}

func (w *fakeWorker) Cancel(_ context.Context, jobID string) (domain.TaskState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancels[jobID]++
	if w.cancelErr != nil {
		return "", w.cancelErr
	}
	w.states[jobID] = domain.TaskCancelled
	return domain.TaskCancelled, nil
}

func (w *fakeWorker) set(jobID string, state domain.TaskState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.states[jobID] = state
}

type fakeContainer struct {
	err error
}

func (c *fakeContainer) Resolve(context.Context, *domain.Task) error {
	return c.err
}

// fakeSink собирает доставленные пачки.
type fakeSink struct {
	mu      sync.Mutex
	err     error
	batches [][]domain.TaskUpdate
}

func (s *fakeSink) SendUpdates(_ context.Context, updates []domain.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, updates)
	return nil
}

func (s *fakeSink) states() []domain.TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TaskState
	for _, b := range s.batches {
		for _, u := range b {
			out = append(out, u.JobState)
		}
	}
	return out
}

func (s *fakeSink) last() domain.TaskUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.batches[len(s.batches)-1]
	return b[len(b)-1]
}

type fixture struct {
	d         *Dispatcher
	q         *queue.Store
	worker    *fakeWorker
	container *fakeContainer
	sink      *fakeSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	q, err := queue.Open(filepath.Join(t.TempDir(), "tm.db"))
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	f := &fixture{
		q:         q,
		worker:    newFakeWorker(),
		container: &fakeContainer{},
		sink:      &fakeSink{},
	}
	f.d = New(Config{
		Queue:     q,
		Worker:    f.worker,
		Container: f.container,
		Sink:      f.sink,
	})
	return f
}

func newTask(name string) *domain.Task {
	return &domain.Task{
		ID:          uuid.New(),
		WorkflowID:  uuid.New(),
		Name:        name,
		BaseCommand: []string{"true"},
		State:       domain.TaskReady,
	}
}

func (f *fixture) stats(t *testing.T) queue.Stats {
	t.Helper()
	st, err := f.q.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestCycle_SubmitAndComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := newTask("sim")

	if err := f.d.Enqueue(ctx, []*domain.Task{task}); err != nil {
		t.Fatal(err)
	}

	f.d.Cycle(ctx)

	if st := f.stats(t); st.Submit != 0 || st.Job != 1 || st.Update != 0 {
		t.Fatalf("unexpected queue stats after submit: %+v", st)
	}
	first := f.sink.last()
	if first.JobState != domain.JobPending || first.Metadata["job_id"] != "job-1" {
		t.Errorf("unexpected submit update: %+v", first)
	}

	f.worker.set("job-1", domain.TaskRunning)
	f.d.Cycle(ctx)
	f.worker.set("job-1", domain.TaskCompleted)
	f.d.Cycle(ctx)

	want := []domain.TaskState{domain.JobPending, domain.TaskRunning, domain.TaskCompleted}
	if diff := cmp.Diff(want, f.sink.states()); diff != "" {
		t.Errorf("delivered states mismatch (-want +got):\n%s", diff)
	}
	if st := f.stats(t); st.Job != 0 || st.Update != 0 {
		t.Errorf("queues should drain after completion: %+v", st)
	}
}

func TestCycle_UnchangedStateNotReported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.d.Enqueue(ctx, []*domain.Task{newTask("a")})

	f.d.Cycle(ctx)
	f.d.Cycle(ctx)
	f.d.Cycle(ctx)

	if got := len(f.sink.states()); got != 1 {
		t.Errorf("expected 1 update for unchanged job, got %d", got)
	}
}

func TestCycle_BuildFail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.container.err = errors.New("pull failed")
	task := newTask("containerized")
	_ = f.d.Enqueue(ctx, []*domain.Task{task})

	f.d.Cycle(ctx)

	got := f.sink.last()
	if got.JobState != domain.TaskBuildFail || got.TaskID != task.ID {
		t.Errorf("expected BUILD_FAIL for task, got %+v", got)
	}
	if len(f.worker.submitted) != 0 {
		t.Error("task must not be submitted after build failure")
	}
	if st := f.stats(t); st.Job != 0 {
		t.Errorf("no job row expected, got %+v", st)
	}
}

func TestCycle_SubmitFail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.worker.submitErr = errors.New("sbatch: error")
	_ = f.d.Enqueue(ctx, []*domain.Task{newTask("x")})

	f.d.Cycle(ctx)

	if got := f.sink.last().JobState; got != domain.TaskSubmitFail {
		t.Errorf("expected SUBMIT_FAIL, got %s", got)
	}
	if st := f.stats(t); st.Submit != 0 || st.Job != 0 {
		t.Errorf("task should leave queues: %+v", st)
	}
}

func TestCycle_NodeFailureResubmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.d.Enqueue(ctx, []*domain.Task{newTask("flaky")})
	f.d.Cycle(ctx)

	f.worker.set("job-1", domain.JobNodeFail)
	f.d.Cycle(ctx)

	rows, err := f.q.Jobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].JobID != "job-2" {
		t.Fatalf("expected a single resubmitted job-2, got %+v", rows)
	}

	got := f.sink.last()
	if got.JobState != domain.JobPending || got.Metadata["job_id"] != "job-2" {
		t.Errorf("expected PENDING update for new job, got %+v", got)
	}
	for _, s := range f.sink.states() {
		if s == domain.JobNodeFail {
			t.Error("node failure must not be reported")
		}
	}
}

func TestCycle_JobRowFailureCancelsJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tm.db")
	q, err := queue.Open(path)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	w := newFakeWorker()
	sink := &fakeSink{}
	d := New(Config{Queue: q, Worker: w, Sink: sink})
	ctx := context.Background()

	task := newTask("lost")
	if err := d.Enqueue(ctx, []*domain.Task{task}); err != nil {
		t.Fatal(err)
	}

	// Строку job записать не получится
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, `DROP TABLE job_queue`); err != nil {
		t.Fatal(err)
	}

	d.Cycle(ctx)

	if got := w.cancels["job-1"]; got != 1 {
		t.Errorf("cancel calls for job-1 = %d, want 1", got)
	}
	got := sink.last()
	if got.TaskID != task.ID || got.JobState != domain.TaskSubmitFail {
		t.Errorf("expected SUBMIT_FAIL for task, got %+v", got)
	}
}

// updatesFor возвращает статусы, доставленные для task.
func (s *fakeSink) updatesFor(taskID uuid.UUID) []domain.TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TaskState
	for _, b := range s.batches {
		for _, u := range b {
			if u.TaskID == taskID {
				out = append(out, u.JobState)
			}
		}
	}
	return out
}

func TestCycle_RestartedWorkerKeepsJobsApart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tm.db")
	ctx := context.Background()

	// Первый процесс TM отправляет task и умирает
	q1, err := queue.Open(path)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	old := newTask("old")
	old.BaseCommand = []string{"sleep", "2"}
	d1 := New(Config{Queue: q1, Worker: worker.NewLocal(t.TempDir(), nil), Sink: &fakeSink{}})
	if err := d1.Enqueue(ctx, []*domain.Task{old}); err != nil {
		t.Fatal(err)
	}
	d1.Cycle(ctx)
	if err := q1.Close(); err != nil {
		t.Fatal(err)
	}

	// Второй процесс над той же базой
	q2, err := queue.Open(path)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { _ = q2.Close() })
	sink := &fakeSink{}
	d2 := New(Config{Queue: q2, Worker: worker.NewLocal(t.TempDir(), nil), Sink: sink})

	fresh := newTask("fresh")
	if err := d2.Enqueue(ctx, []*domain.Task{fresh}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for !slices.Contains(sink.updatesFor(fresh.ID), domain.TaskCompleted) {
		if time.Now().After(deadline) {
			t.Fatalf("fresh task did not complete: %v", sink.updatesFor(fresh.ID))
		}
		d2.Cycle(ctx)
		time.Sleep(20 * time.Millisecond)
	}

	if diff := cmp.Diff([]domain.TaskState{domain.JobUnknown}, sink.updatesFor(old.ID)); diff != "" {
		t.Errorf("old task updates mismatch (-want +got):\n%s", diff)
	}
}

func TestCycle_QueryErrorKeepsRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.d.Enqueue(ctx, []*domain.Task{newTask("q")})
	f.d.Cycle(ctx)

	f.worker.queryErr["job-1"] = errors.New("slurmctld unreachable")
	f.d.Cycle(ctx)

	if st := f.stats(t); st.Job != 1 || st.Update != 0 {
		t.Errorf("row must stay without new updates: %+v", st)
	}
	if got := len(f.sink.states()); got != 1 {
		t.Errorf("expected only the submit update, got %d", got)
	}
}

func TestCycle_DeliveryFailureKeepsUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sink.err = errors.New("connection refused")
	_ = f.d.Enqueue(ctx, []*domain.Task{newTask("a"), newTask("b")})

	f.d.Cycle(ctx)
	if st := f.stats(t); st.Update != 2 {
		t.Fatalf("expected 2 pending updates, got %+v", st)
	}

	f.sink.err = nil
	f.d.Cycle(ctx)

	if st := f.stats(t); st.Update != 0 {
		t.Errorf("updates should be cleared after delivery: %+v", st)
	}
	if len(f.sink.batches) != 1 || len(f.sink.batches[0]) != 2 {
		t.Errorf("expected one batch of 2 updates, got %v", f.sink.batches)
	}
}

func TestCycle_NoSinkKeepsUpdates(t *testing.T) {
	f := newFixture(t)
	f.d.sink = nil
	ctx := context.Background()
	_ = f.d.Enqueue(ctx, []*domain.Task{newTask("a")})

	f.d.Cycle(ctx)

	if st := f.stats(t); st.Update != 1 {
		t.Errorf("expected update to stay queued, got %+v", st)
	}
}

func TestCycle_FailureWithCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	workdir := t.TempDir()
	cpDir := filepath.Join(workdir, "ckpt")
	if err := os.MkdirAll(cpDir, 0o755); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(cpDir, "state.1.chk")
	newest := filepath.Join(cpDir, "state.2.chk")
	for _, p := range []string{old, newest, filepath.Join(cpDir, "notes.txt")} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	task := newTask("clamr")
	task.WorkDir = workdir
	task.Hints = []domain.Requirement{{
		Class: domain.ClassCheckpoint,
		Params: []domain.Param{
			{Key: domain.ParamFilePath, Value: "ckpt"},
			{Key: domain.ParamFileRegex, Value: `^state\.\d+\.chk$`},
			{Key: domain.ParamNumTries, Value: 3},
		},
	}}
	_ = f.d.Enqueue(ctx, []*domain.Task{task})
	f.d.Cycle(ctx)

	f.worker.set("job-1", domain.TaskTimelimit)
	f.d.Cycle(ctx)

	got := f.sink.last()
	if got.JobState != domain.TaskTimelimit {
		t.Fatalf("expected TIMELIMIT update, got %s", got.JobState)
	}
	if got.TaskInfo == nil || !got.TaskInfo.Restart {
		t.Fatalf("expected restart task info, got %+v", got.TaskInfo)
	}
	if got.TaskInfo.CheckpointFile != newest {
		t.Errorf("expected newest checkpoint %s, got %s", newest, got.TaskInfo.CheckpointFile)
	}
}

func TestCycle_FailureWithoutCheckpointFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := newTask("nockpt")
	task.WorkDir = t.TempDir()
	task.Hints = []domain.Requirement{{
		Class:  domain.ClassCheckpoint,
		Params: []domain.Param{{Key: domain.ParamFilePath, Value: "missing"}},
	}}
	_ = f.d.Enqueue(ctx, []*domain.Task{task})
	f.d.Cycle(ctx)

	f.worker.set("job-1", domain.TaskFailed)
	f.d.Cycle(ctx)

	got := f.sink.last()
	if got.JobState != domain.TaskFailed || got.TaskInfo != nil {
		t.Errorf("expected plain FAILED update, got %+v", got)
	}
}

func TestCancelWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wfID := uuid.New()

	running := newTask("running")
	running.WorkflowID = wfID
	_ = f.d.Enqueue(ctx, []*domain.Task{running})
	f.d.Cycle(ctx)

	queued := newTask("queued")
	queued.WorkflowID = wfID
	other := newTask("other")
	_ = f.d.Enqueue(ctx, []*domain.Task{queued, other})

	results, err := f.d.CancelWorkflow(ctx, wfID)
	if err != nil {
		t.Fatalf("CancelWorkflow: %v", err)
	}

	want := []string{
		fmt.Sprintf("queued %s - CANCELLED", queued.ID),
		fmt.Sprintf("running %s job-1 CANCELLED", running.ID),
	}
	var got []string
	for _, r := range results {
		got = append(got, r.String())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cancel results mismatch (-want +got):\n%s", diff)
	}

	if st := f.stats(t); st.Submit != 1 || st.Job != 0 {
		t.Errorf("only the other workflow's task should remain: %+v", st)
	}
}

func TestCancelWorkflow_Zombie(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := newTask("stuck")
	_ = f.d.Enqueue(ctx, []*domain.Task{task})
	f.d.Cycle(ctx)

	f.worker.cancelErr = errors.New("scancel timeout")
	results, err := f.d.CancelWorkflow(ctx, task.WorkflowID)
	if err != nil {
		t.Fatal(err)
	}

	if len(results) != 1 || results[0].State != domain.TaskZombie {
		t.Fatalf("expected ZOMBIE, got %+v", results)
	}
	if got := f.worker.cancels["job-1"]; got != defaultMaxCancelAttempts {
		t.Errorf("expected %d cancel attempts, got %d", defaultMaxCancelAttempts, got)
	}
	if st := f.stats(t); st.Job != 0 {
		t.Errorf("zombie job row should be removed: %+v", st)
	}
}

func TestFindCheckpoint_Errors(t *testing.T) {
	task := &domain.Task{WorkDir: t.TempDir()}

	if _, err := FindCheckpoint(task, domain.CheckpointSpec{}); err == nil {
		t.Error("expected error without file_path")
	}
	if _, err := FindCheckpoint(task, domain.CheckpointSpec{FilePath: ".", FileRegex: "("}); err == nil {
		t.Error("expected error for invalid regex")
	}
	if _, err := FindCheckpoint(task, domain.CheckpointSpec{FilePath: "."}); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestParseSchedule(t *testing.T) {
	if _, err := ParseSchedule("@every 2s"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseSchedule("every two seconds"); err == nil {
		t.Error("expected parse error")
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	f.d.interval = 50 * time.Millisecond
	ctx := context.Background()
	_ = f.d.Enqueue(ctx, []*domain.Task{newTask("bg")})

	if err := f.d.Start(ctx); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && len(f.sink.states()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	f.d.Stop()

	if len(f.sink.states()) == 0 {
		t.Error("expected background cycle to deliver updates")
	}
}
