// Poller — сервис пакетной обработки events с ограничением параллелизма.
//
// Poller:
//   - По расписанию забирает столько events, сколько позволяет свободная ёмкость
//   - Раскрывает каждый event в sub-tasks (asset × rule)
//   - Выполняет sub-tasks не больше MAX_CONCURRENT_TASKS одновременно
//   - Сводит результаты event в вердикт и публикует его
//
// Источник events задаётся EVENT_SOURCE: postgres, amqp или sim.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Poller/internal/api"
	"github.com/shaiso/Poller/internal/batcher"
	"github.com/shaiso/Poller/internal/config"
	"github.com/shaiso/Poller/internal/mq"
	"github.com/shaiso/Poller/internal/reaper"
	"github.com/shaiso/Poller/internal/repo"
	"github.com/shaiso/Poller/internal/service"
	"github.com/shaiso/Poller/internal/sim"
	"github.com/shaiso/Poller/internal/status"
	"github.com/shaiso/Poller/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting poller")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		source  batcher.Source
		sinks   []status.Sink
		store   api.ReportStore
		enqueue api.EventPublisher
		pool    *pgxpool.Pool
		rp      *reaper.Reaper
	)

	// Postgres: журнал events и статусы
	if cfg.EventSource == config.SourcePostgres {
		pool, err = repo.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("database connected")

		if err := repo.Migrate(ctx, pool); err != nil {
			logger.Error("failed to migrate schema", "error", err)
			os.Exit(1)
		}

		eventRepo := repo.NewEventRepo(pool)
		statusRepo := repo.NewStatusRepo(pool)
		source = eventRepo
		sinks = append(sinks, statusRepo)
		store = statusRepo
		enqueue = api.PublishFunc(eventRepo.Append)

		if cfg.ReapInterval > 0 {
			rp = reaper.New(reaper.Config{
				Events:     eventRepo,
				Lock:       repo.NewAdvisoryLock(pool, repo.ReaperLockKey),
				StaleAfter: cfg.StaleAfter,
				Interval:   cfg.ReapInterval,
				Logger:     logger,
			})
		}
	}

	// RabbitMQ: очередь events и публикация статусов
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	switch {
	case err != nil && cfg.EventSource == config.SourceAMQP:
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	case err != nil:
		logger.Warn("RabbitMQ not available, status events will not be published", "error", err)
	default:
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		logger.Debug("topology", "info", mq.TopologyInfo())

		publisher := mq.NewPublisher(mqConn, logger)
		sinks = append(sinks, publisher)

		if cfg.EventSource == config.SourceAMQP {
			enqueue = publisher
			mqSource := mq.NewSource(mqConn, mq.Queue(cfg.EventsQueue), logger)
			source = mqSource
			// Подтверждение сообщения — после отчёта по event.
			sinks = append(sinks, mqSource)
		}
	}

	if cfg.EventSource == config.SourceSim {
		source = sim.NewSource(cfg.SimAssets, 0)
		logger.Info("using simulated event source", "assets", cfg.SimAssets)
	}

	svc, err := service.New(service.Config{
		App:        cfg,
		Source:     source,
		Sinks:      sinks,
		Registerer: prometheus.DefaultRegisterer,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to build service", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(api.Config{
		Runner:    svc.Runner,
		Recorder:  svc.Recorder,
		Store:     store,
		Publisher: enqueue,
		Logger:    logger,
	})

	// HTTP mux: API + /healthz + /metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}
	if rp != nil {
		rp.Start(ctx)
	}

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if rp != nil {
		rp.Stop()
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	logger.Info("poller stopped")
}
