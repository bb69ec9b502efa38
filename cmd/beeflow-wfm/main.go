// Beeflow Workflow Manager — хранит графы workflows и реагирует на updates.
//
// WFM:
//   - Принимает bundles через HTTP API и строит граф
//   - Распределяет готовые tasks по ресурсам и отправляет их в TM
//   - Применяет updates от TM (HTTP или RabbitMQ)
//   - Архивирует завершённые workflows
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/beeflow/internal/api"
	"github.com/shaiso/beeflow/internal/client"
	"github.com/shaiso/beeflow/internal/config"
	"github.com/shaiso/beeflow/internal/mq"
	"github.com/shaiso/beeflow/internal/orchestrator"
	"github.com/shaiso/beeflow/internal/repo"
	"github.com/shaiso/beeflow/internal/scheduler"
	"github.com/shaiso/beeflow/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("beeflow-wfm")
	logger.Info("starting beeflow-wfm")

	cfg, err := config.LoadDefault()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.WFM.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to prepare schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// Создаём репозитории
	workflowRepo := repo.NewWorkflowRepo(pool)
	outputRepo := repo.NewOutputRepo(pool)
	archiveRepo := repo.NewArchiveRepo(pool)

	// Создаём orchestrator
	orch := orchestrator.New(orchestrator.Config{
		Snapshots:  workflowRepo,
		Outputs:    outputRepo,
		Dispatcher: client.NewTM(cfg.TM.URL, cfg.WFM.RequestTimeout),
		Allocator: scheduler.NewAllocator(scheduler.Config{
			Resources: cfg.Scheduler.Resources,
			Logger:    logger,
		}),
		Archiver: orchestrator.NewFileArchiver(orchestrator.FileArchiverConfig{
			Dir:    cfg.WFM.ArchiveDir,
			Store:  archiveRepo,
			Logger: logger,
		}),
		WorkDirRoot: cfg.WFM.WorkDirRoot,
		Logger:      logger,
	})

	restored, err := orch.Restore(ctx)
	if err != nil {
		logger.Error("failed to restore workflows", "error", err)
		os.Exit(1)
	}
	logger.Info("workflows restored", "count", restored)

	// RabbitMQ: updates от TM с update_sink=amqp
	if cfg.AMQP.URL != "" {
		conn, consumer, err := startUpdateConsumer(telemetry.WithLogger(ctx, logger), cfg.AMQP.URL, orch)
		if err != nil {
			logger.Warn("RabbitMQ not available, accepting updates over HTTP only", "error", err)
		} else {
			defer conn.Close()
			defer consumer.Stop()
		}
	}

	// HTTP mux: API + /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	api.NewHandler(api.Config{
		Workflows: orch,
		Outputs:   outputRepo,
		Logger:    logger,
	}).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.WFM.Listen,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", cfg.WFM.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("beeflow-wfm stopped")
}

// startUpdateConsumer подписывает orchestrator на очередь updates.
// Невалидные пачки уходят в DLQ, остальные ошибки повторяются.
func startUpdateConsumer(ctx context.Context, url string, orch *orchestrator.Orchestrator) (*mq.Connection, *mq.Consumer, error) {
	logger := telemetry.FromContext(ctx)

	conn, err := mq.NewConnection(url, "beeflow-wfm", logger)
	if err != nil {
		return nil, nil, err
	}

	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("setup topology: %w", err)
	}
	logger.Info("RabbitMQ connected", "topology", mq.TopologyInfo())

	consumer := mq.NewConsumer(conn, mq.ConsumerConfig{
		Queue: mq.QueueTaskUpdates,
		Handler: mq.UpdateHandler(orch.ApplyUpdates, func(err error) bool {
			return errors.Is(err, orchestrator.ErrInvalidUpdate)
		}),
		Logger: logger,
	})
	consumer.Start(ctx)
	return conn, consumer, nil
}
