// Command worker runs scan, copy and sweep tasks from the asynq queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/DataBridge/internal/app"
	"github.com/dharsanguruparan/DataBridge/internal/audit"
	"github.com/dharsanguruparan/DataBridge/internal/config"
	"github.com/dharsanguruparan/DataBridge/internal/database"
	"github.com/dharsanguruparan/DataBridge/internal/identity"
	"github.com/dharsanguruparan/DataBridge/internal/logging"
	"github.com/dharsanguruparan/DataBridge/internal/notify"
	"github.com/dharsanguruparan/DataBridge/internal/pipeline"
	"github.com/dharsanguruparan/DataBridge/internal/queue"
	"github.com/dharsanguruparan/DataBridge/internal/repository"
	"github.com/dharsanguruparan/DataBridge/internal/stage"
	"github.com/dharsanguruparan/DataBridge/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	files, _, err := app.OpenFiles(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	dir := identity.NewPostgresDirectory(pool)
	emitter := audit.NewEmitter(notify.Fanout{notify.NewPostgresInbox(pool), notify.NewLogNotifier(logger)}, dir, logger)
	engine := pipeline.NewEngine(repository.NewTransferRepository(pool), emitter, logger)

	redis := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	queueClient := asynq.NewClient(redis)
	defer queueClient.Close()

	ctrl := stage.NewController(engine, app.Scanner(cfg, files, logger), files, app.StagePolicy(cfg.Stage), logger)
	ctrl.SetScheduler(queue.NewScheduler(queueClient))

	periodic := asynq.NewScheduler(redis, nil)
	if _, err := queue.RegisterSweep(periodic, cfg.Stage.SweepInterval); err != nil {
		return err
	}
	if err := periodic.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer periodic.Shutdown()

	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{queue.StageQueue: 1},
	})
	processor := worker.NewProcessor(ctrl, ctrl, logger)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("worker starting", "concurrency", cfg.WorkerConcurrency, "sweep_interval", cfg.Stage.SweepInterval)
	if err := server.Run(processor.Handler()); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	return nil
}
