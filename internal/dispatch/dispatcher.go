package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/queue"
	"github.com/shaiso/beeflow/internal/worker"
)

// Default configuration values.
const (
	defaultInterval          = 5 * time.Second
	defaultWorkerTimeout     = 30 * time.Second
	defaultBuildTimeout      = 10 * time.Minute
	defaultDeliveryTimeout   = 30 * time.Second
	defaultMaxCancelAttempts = 3
)

// ContainerResolver готовит окружение контейнера перед отправкой task.
type ContainerResolver interface {
	Resolve(ctx context.Context, task *domain.Task) error
}

// UpdateSink принимает пачку updates целиком или возвращает ошибку.
// Реализации: client.WFM (HTTP) и mq.Publisher (AMQP).
type UpdateSink interface {
	SendUpdates(ctx context.Context, updates []domain.TaskUpdate) error
}

// Dispatcher перемещает tasks через submit/job/update очереди.
type Dispatcher struct {
	queue     *queue.Store
	worker    worker.Worker
	container ContainerResolver
	sink      UpdateSink

	// Configuration
	interval          time.Duration
	workerTimeout     time.Duration
	buildTimeout      time.Duration
	deliveryTimeout   time.Duration
	maxCancelAttempts int

	// Один писатель: цикл и CancelWorkflow не пересекаются
	mu sync.Mutex

	// Lifecycle
	logger *slog.Logger
	cron   *cron.Cron
	wg     sync.WaitGroup
}

// Config — конфигурация Dispatcher.
type Config struct {
	Queue     *queue.Store
	Worker    worker.Worker
	Container ContainerResolver // опционально
	Sink      UpdateSink

	Interval          time.Duration // период цикла (default: 5s)
	WorkerTimeout     time.Duration // таймаут submit/query/cancel (default: 30s)
	BuildTimeout      time.Duration // таймаут подготовки контейнера (default: 10m)
	DeliveryTimeout   time.Duration // таймаут отправки пачки updates (default: 30s)
	MaxCancelAttempts int           // попыток отмены до ZOMBIE (default: 3)

	Logger *slog.Logger
}

// New создаёт новый Dispatcher.
func New(cfg Config) *Dispatcher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	workerTimeout := cfg.WorkerTimeout
	if workerTimeout <= 0 {
		workerTimeout = defaultWorkerTimeout
	}

	buildTimeout := cfg.BuildTimeout
	if buildTimeout <= 0 {
		buildTimeout = defaultBuildTimeout
	}

	deliveryTimeout := cfg.DeliveryTimeout
	if deliveryTimeout <= 0 {
		deliveryTimeout = defaultDeliveryTimeout
	}

	maxCancel := cfg.MaxCancelAttempts
	if maxCancel <= 0 {
		maxCancel = defaultMaxCancelAttempts
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		queue:             cfg.Queue,
		worker:            cfg.Worker,
		container:         cfg.Container,
		sink:              cfg.Sink,
		interval:          interval,
		workerTimeout:     workerTimeout,
		buildTimeout:      buildTimeout,
		deliveryTimeout:   deliveryTimeout,
		maxCancelAttempts: maxCancel,
		logger:            logger.With("component", "dispatch"),
	}
}

// Enqueue кладёт tasks в submit-очередь. Они уйдут в Worker на следующем цикле.
func (d *Dispatcher) Enqueue(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := d.queue.PushSubmit(ctx, tasks...); err != nil {
		return fmt.Errorf("enqueue tasks: %w", err)
	}
	d.logger.Info("tasks enqueued", "count", len(tasks))
	return nil
}

// Stats возвращает длины очередей.
func (d *Dispatcher) Stats(ctx context.Context) (queue.Stats, error) {
	return d.queue.Stats(ctx)
}

// Start запускает периодический цикл.
//
// Цикл обёрнут в SkipIfStillRunning: если предыдущий цикл (включая
// доставку updates) ещё идёт, очередной тик пропускается.
func (d *Dispatcher) Start(ctx context.Context) error {
	schedule, err := ParseSchedule(fmt.Sprintf("@every %s", d.interval))
	if err != nil {
		return err
	}

	logger := cronLogger{d.logger}
	job := cron.NewChain(cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
		d.Cycle(ctx)
	}))

	d.cron = cron.New(cron.WithLogger(logger))
	d.cron.Schedule(schedule, job)

	d.logger.Info("starting dispatcher",
		"interval", d.interval,
		"worker_timeout", d.workerTimeout,
	)

	// Первый цикл сразу при старте (подхватываем очереди после рестарта)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		job.Run()
	}()

	d.cron.Start()
	return nil
}

// Stop останавливает расписание и ждёт текущий цикл.
func (d *Dispatcher) Stop() {
	d.logger.Info("stopping dispatcher...")

	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
	d.wg.Wait()

	d.logger.Info("dispatcher stopped")
}

// Cycle выполняет один проход: submit → опрос → доставка updates.
// Ошибки backend'ов логируются и превращаются в состояние очередей.
func (d *Dispatcher) Cycle(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch cycle panic", "panic", r)
		}
		observeCycle(time.Since(start))
	}()

	d.submitJobs(ctx)
	d.updateJobs(ctx)
	d.flushUpdates(ctx)
	d.recordQueueLengths(ctx)
}

// cronLogger адаптирует slog к cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
