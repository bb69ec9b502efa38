package graph

import (
	"fmt"
	"maps"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
)

// restartSuffix выделяет базовое имя из "name(N)".
var restartSuffix = regexp.MustCompile(`^(.*)\((\d+)\)$`)

// Store — граф одного workflow в памяти.
type Store struct {
	workflow *domain.Workflow
	tasks    map[uuid.UUID]*domain.Task
	order    []uuid.UUID // порядок загрузки

	mu sync.Mutex
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// Initialize загружает workflow. Второй вызов возвращает ErrAlreadyInitialized.
func (s *Store) Initialize(wf *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflow != nil {
		return ErrAlreadyInitialized
	}
	s.workflow = wf.Clone()
	return nil
}

// LoadTask добавляет task в граф. Зависимости не вычисляются.
func (s *Store) LoadTask(task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflow == nil {
		return ErrNotInitialized
	}
	return s.insert(task.Clone())
}

func (s *Store) insert(task *domain.Task) error {
	if task.WorkflowID != s.workflow.ID {
		return fmt.Errorf("%w: task %s", ErrWrongWorkflow, task.ID)
	}
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, task.ID)
	}
	if task.State == "" {
		task.State = domain.TaskWaiting
	}
	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)
	return nil
}

// InitializeReadyTasks переносит значения входов workflow во входы tasks
// и переводит готовые WAITING tasks в READY. Идемпотентен.
func (s *Store) InitializeReadyTasks() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflow == nil {
		return ErrNotInitialized
	}

	for _, wfIn := range s.workflow.Inputs {
		value := wfIn.Value
		if value == nil {
			value = wfIn.Default
		}
		if value == nil {
			continue
		}
		for _, id := range s.order {
			task := s.tasks[id]
			for i := range task.Inputs {
				if task.Inputs[i].Source == wfIn.ID && task.Inputs[i].Value == nil {
					task.Inputs[i].Value = value
				}
			}
		}
	}

	s.promoteReady()
	return nil
}

// promoteReady переводит готовые tasks в READY и возвращает их.
func (s *Store) promoteReady() []*domain.Task {
	var ready []*domain.Task
	for _, id := range s.order {
		task := s.tasks[id]
		if task.IsReady() {
			task.State = domain.TaskReady
			ready = append(ready, task.Clone())
		}
	}
	return ready
}

// FinalizeTask помечает task COMPLETED, передаёт значения его выходов
// во входы зависимых tasks и в выходы workflow, пересчитывает готовность.
// Возвращает tasks, ставшие READY.
func (s *Store) FinalizeTask(id uuid.UUID) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(id)
	if err != nil {
		return nil, err
	}
	task.State = domain.TaskCompleted

	for _, out := range task.Outputs {
		if out.Value == nil {
			continue
		}
		for _, depID := range s.order {
			dep := s.tasks[depID]
			for i := range dep.Inputs {
				if dep.Inputs[i].Source == out.ID {
					dep.Inputs[i].Value = out.Value
				}
			}
		}
		for i := range s.workflow.Outputs {
			if s.workflow.Outputs[i].Source == out.ID {
				s.workflow.Outputs[i].Value = out.Value
			}
		}
	}

	return s.promoteReady(), nil
}

// RestartTask создаёт копию упавшего task для продолжения с checkpoint-файла.
//
// Новый task получает новый ID, имя "base(N)", в checkpoint-требование
// записываются checkpoint_file, restart=true и увеличенный restart_count.
// Старый task переходит в RESTARTED.
//
// Возвращает nil без ошибки, если checkpoint-требования нет
// или restart_count уже достиг num_tries. Повторный вызов для уже
// перезапущенного task возвращает существующую копию.
func (s *Store) RestartTask(id uuid.UUID, checkpointFile string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if old.State == domain.TaskRestarted {
		for _, tid := range s.order {
			if t := s.tasks[tid]; t.RestartedFrom != nil && *t.RestartedFrom == id {
				return t.Clone(), nil
			}
		}
	}

	req, ok := old.Requirement(domain.ClassCheckpoint)
	if !ok {
		return nil, nil
	}
	cp := req.Checkpoint()
	if cp.RestartCount >= cp.NumTries {
		return nil, nil
	}
	count := cp.RestartCount + 1

	task := old.Clone()
	task.ID = uuid.New()
	task.Name = fmt.Sprintf("%s(%d)", baseName(old.Name), count)
	task.State = domain.TaskReady
	task.Metadata = nil
	oldID := old.ID
	task.RestartedFrom = &oldID
	for i := range task.Outputs {
		task.Outputs[i].Value = nil
	}

	newReq, _ := task.Requirement(domain.ClassCheckpoint)
	newReq.Set(domain.ParamCheckpointFile, checkpointFile)
	newReq.Set(domain.ParamRestart, true)
	newReq.Set(domain.ParamRestartCount, count)

	old.State = domain.TaskRestarted
	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)

	return task.Clone(), nil
}

func baseName(name string) string {
	if m := restartSuffix.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}

// DependentTasks возвращает tasks, у которых есть вход с Source,
// равным одному из выходов task.
func (s *Store) DependentTasks(id uuid.UUID) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(id)
	if err != nil {
		return nil, err
	}

	deps := s.dependents(task)
	out := make([]*domain.Task, 0, len(deps))
	for _, d := range deps {
		out = append(out, d.Clone())
	}
	return out, nil
}

func (s *Store) dependents(task *domain.Task) []*domain.Task {
	if len(task.Outputs) == 0 {
		return nil
	}
	outputs := make(map[string]struct{}, len(task.Outputs))
	for _, out := range task.Outputs {
		outputs[out.ID] = struct{}{}
	}

	var deps []*domain.Task
	for _, id := range s.order {
		other := s.tasks[id]
		if other.ID == task.ID {
			continue
		}
		for _, in := range other.Inputs {
			if _, ok := outputs[in.Source]; ok {
				deps = append(deps, other)
				break
			}
		}
	}
	return deps
}

// ReadyTasks возвращает tasks в статусе READY в порядке загрузки.
func (s *Store) ReadyTasks() []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []*domain.Task
	for _, id := range s.order {
		if task := s.tasks[id]; task.State == domain.TaskReady {
			ready = append(ready, task.Clone())
		}
	}
	return ready
}

// TaskState возвращает статус task.
func (s *Store) TaskState(id uuid.UUID) (domain.TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(id)
	if err != nil {
		return "", err
	}
	return task.State, nil
}

// SetTaskState устанавливает статус task.
func (s *Store) SetTaskState(id uuid.UUID, state domain.TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(id)
	if err != nil {
		return err
	}
	task.State = state
	return nil
}

// TaskMetadata возвращает копию метаданных task.
func (s *Store) TaskMetadata(id uuid.UUID) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return maps.Clone(task.Metadata), nil
}

// SetTaskMetadata заменяет метаданные task.
func (s *Store) SetTaskMetadata(id uuid.UUID, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(id)
	if err != nil {
		return err
	}
	task.Metadata = maps.Clone(metadata)
	return nil
}

// TaskInput возвращает вход task.
func (s *Store) TaskInput(id uuid.UUID, inputID string) (domain.TaskInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(id)
	if err != nil {
		return domain.TaskInput{}, err
	}
	in, ok := task.Input(inputID)
	if !ok {
		return domain.TaskInput{}, fmt.Errorf("%w: %s", ErrInputNotFound, inputID)
	}
	return *in, nil
}

// SetTaskInput устанавливает значение входа task.
func (s *Store) SetTaskInput(id uuid.UUID, inputID string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(id)
	if err != nil {
		return err
	}
	in, ok := task.Input(inputID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInputNotFound, inputID)
	}
	in.Value = value
	return nil
}

// TaskOutput возвращает выход task.
func (s *Store) TaskOutput(id uuid.UUID, outputID string) (domain.TaskOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(id)
	if err != nil {
		return domain.TaskOutput{}, err
	}
	out, ok := task.Output(outputID)
	if !ok {
		return domain.TaskOutput{}, fmt.Errorf("%w: %s", ErrOutputNotFound, outputID)
	}
	return *out, nil
}

// SetTaskOutput устанавливает значение выхода task.
func (s *Store) SetTaskOutput(id uuid.UUID, outputID string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(id)
	if err != nil {
		return err
	}
	out, ok := task.Output(outputID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOutputNotFound, outputID)
	}
	out.Value = value
	return nil
}

// WorkflowCompleted возвращает true, если все терминальные tasks COMPLETED.
//
// Терминальный task — тот, у которого нет зависимых и который не был
// заменён перезапущенной копией.
func (s *Store) WorkflowCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	terminal := s.terminalTasks()
	if len(terminal) == 0 {
		return false
	}
	for _, task := range terminal {
		if task.State != domain.TaskCompleted {
			return false
		}
	}
	return true
}

func (s *Store) terminalTasks() []*domain.Task {
	restarted := make(map[uuid.UUID]struct{})
	for _, task := range s.tasks {
		if task.RestartedFrom != nil {
			restarted[*task.RestartedFrom] = struct{}{}
		}
	}

	var terminal []*domain.Task
	for _, id := range s.order {
		task := s.tasks[id]
		if _, ok := restarted[id]; ok {
			continue
		}
		if len(s.dependents(task)) == 0 {
			terminal = append(terminal, task)
		}
	}
	return terminal
}

// WorkflowFinished возвращает true, если ни один task больше не изменит статус:
// все tasks в финальных статусах.
func (s *Store) WorkflowFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		return false
	}
	for _, task := range s.tasks {
		if !task.State.IsFinal() {
			return false
		}
	}
	return true
}

// Reset переназначает ID workflow и всех его tasks.
func (s *Store) Reset(newID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflow == nil {
		return ErrNotInitialized
	}
	s.workflow.ID = newID
	for _, task := range s.tasks {
		task.WorkflowID = newID
	}
	return nil
}

// Rewind возвращает граф к состоянию до запуска: перезапущенные копии
// удаляются, tasks снова WAITING, значения, полученные от других tasks, сброшены.
func (s *Store) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflow == nil {
		return ErrNotInitialized
	}

	wfInputs := make(map[string]struct{}, len(s.workflow.Inputs))
	for _, in := range s.workflow.Inputs {
		wfInputs[in.ID] = struct{}{}
	}

	order := s.order[:0]
	for _, id := range s.order {
		task := s.tasks[id]
		if task.RestartedFrom != nil {
			delete(s.tasks, id)
			continue
		}
		task.State = domain.TaskWaiting
		task.Metadata = nil
		for i := range task.Inputs {
			if _, ok := wfInputs[task.Inputs[i].Source]; !ok && task.Inputs[i].Source != "" {
				task.Inputs[i].Value = nil
			}
		}
		for i := range task.Outputs {
			task.Outputs[i].Value = nil
		}
		order = append(order, id)
	}
	s.order = order

	for i := range s.workflow.Outputs {
		s.workflow.Outputs[i].Value = nil
	}
	s.workflow.State = domain.WorkflowSubmitted
	return nil
}

// Workflow возвращает копию workflow.
func (s *Store) Workflow() (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflow == nil {
		return nil, ErrNotInitialized
	}
	return s.workflow.Clone(), nil
}

// WorkflowState возвращает статус workflow.
func (s *Store) WorkflowState() domain.WorkflowState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflow == nil {
		return ""
	}
	return s.workflow.State
}

// SetWorkflowState устанавливает статус workflow.
func (s *Store) SetWorkflowState(state domain.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflow == nil {
		return ErrNotInitialized
	}
	s.workflow.State = state
	return nil
}

// Task возвращает копию task.
func (s *Store) Task(id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// Tasks возвращает копии всех tasks в порядке загрузки.
func (s *Store) Tasks() []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Clone())
	}
	return out
}

// Snapshot возвращает полную копию графа.
func (s *Store) Snapshot() (*domain.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflow == nil {
		return nil, ErrNotInitialized
	}
	b := &domain.Bundle{
		Workflow: *s.workflow.Clone(),
		Tasks:    make([]domain.Task, 0, len(s.order)),
	}
	for _, id := range s.order {
		b.Tasks = append(b.Tasks, *s.tasks[id].Clone())
	}
	return b, nil
}

// Restore загружает граф из снимка в пустое хранилище.
func (s *Store) Restore(b *domain.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflow != nil {
		return ErrAlreadyInitialized
	}
	s.workflow = b.Workflow.Clone()
	for i := range b.Tasks {
		if err := s.insert(b.Tasks[i].Clone()); err != nil {
			s.workflow = nil
			s.tasks = make(map[uuid.UUID]*domain.Task)
			s.order = nil
			return err
		}
	}
	return nil
}

func (s *Store) get(id uuid.UUID) (*domain.Task, error) {
	if s.workflow == nil {
		return nil, ErrNotInitialized
	}
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task, nil
}
