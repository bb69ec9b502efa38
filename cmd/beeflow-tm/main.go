// Beeflow Task Manager — отправляет tasks в batch-планировщик.
//
// TM:
//   - Принимает tasks от WFM в персистентную submit очередь
//   - Готовит контейнеры и отправляет jobs через worker backend
//   - Опрашивает jobs и перезапускает checkpoint-задачи
//   - Доставляет пачки updates в WFM (HTTP или RabbitMQ)
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
	"github.com/shaiso/beeflow/internal/container"
	"github.com/shaiso/beeflow/internal/dispatch"
	"github.com/shaiso/beeflow/internal/mq"
	"github.com/shaiso/beeflow/internal/queue"
	"github.com/shaiso/beeflow/internal/telemetry"
	"github.com/shaiso/beeflow/internal/worker"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("beeflow-tm")
	logger.Info("starting beeflow-tm")

	cfg, err := config.LoadDefault()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Очереди
	store, err := queue.Open(cfg.TM.QueuePath)
	if err != nil {
		logger.Error("failed to open queues", "path", cfg.TM.QueuePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Worker backend
	backend, err := worker.New(worker.Config{
		Backend: cfg.TM.Worker.Backend,
		LogDir:  cfg.TM.Worker.LogDir,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}

	// Доставка updates
	var sink dispatch.UpdateSink
	switch cfg.TM.UpdateSink {
	case config.SinkAMQP:
		conn, err := mq.NewConnection(cfg.AMQP.URL, "beeflow-tm", logger)
		if err != nil {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		if err := mq.SetupTopology(ctx, conn); err != nil {
			logger.Error("failed to setup topology", "error", err)
			os.Exit(1)
		}
		logger.Info("RabbitMQ connected", "topology", mq.TopologyInfo())
		sink = mq.NewPublisher(conn, logger)
	default:
		sink = client.NewWFM(cfg.WFM.URL, cfg.TM.DeliveryTimeout)
	}

	// Создаём dispatcher
	dispatcher := dispatch.New(dispatch.Config{
		Queue:  store,
		Worker: backend,
		Container: container.NewResolver(container.Config{
			ArchiveDir:   cfg.TM.Container.ArchiveDir,
			PullCommand:  cfg.TM.Container.PullCommand,
			BuildCommand: cfg.TM.Container.BuildCommand,
			Logger:       logger,
		}),
		Sink:              sink,
		Interval:          cfg.TM.Interval,
		WorkerTimeout:     cfg.TM.WorkerTimeout,
		BuildTimeout:      cfg.TM.BuildTimeout,
		DeliveryTimeout:   cfg.TM.DeliveryTimeout,
		MaxCancelAttempts: cfg.TM.MaxCancelAttempts,
		Logger:            logger,
	})

	if err := dispatcher.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}

	// HTTP mux: API + /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	api.NewHandler(api.Config{
		Tasks:  dispatcher,
		Logger: logger,
	}).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.TM.Listen,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", cfg.TM.Listen)
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

	// Останавливаем dispatcher после HTTP, чтобы не терять входящие tasks
	dispatcher.Stop()
	logger.Info("beeflow-tm stopped")
}
