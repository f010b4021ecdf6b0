// Command api serves the HTTP API against Postgres and hands scan and copy
// jobs to the asynq workers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/DataBridge/internal/api"
	"github.com/dharsanguruparan/DataBridge/internal/app"
	"github.com/dharsanguruparan/DataBridge/internal/approval"
	"github.com/dharsanguruparan/DataBridge/internal/audit"
	"github.com/dharsanguruparan/DataBridge/internal/config"
	"github.com/dharsanguruparan/DataBridge/internal/database"
	"github.com/dharsanguruparan/DataBridge/internal/identity"
	"github.com/dharsanguruparan/DataBridge/internal/logging"
	"github.com/dharsanguruparan/DataBridge/internal/notify"
	"github.com/dharsanguruparan/DataBridge/internal/pipeline"
	"github.com/dharsanguruparan/DataBridge/internal/queue"
	"github.com/dharsanguruparan/DataBridge/internal/repository"
	"github.com/dharsanguruparan/DataBridge/internal/signing"
	"github.com/dharsanguruparan/DataBridge/internal/stage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
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

	dir := identity.NewPostgresDirectory(pool)
	seed, err := identity.ParseSeed(cfg.SeedUsers)
	if err != nil {
		return err
	}
	for _, a := range seed {
		if err := dir.Upsert(ctx, a); err != nil {
			return fmt.Errorf("seed user %d: %w", a.ID, err)
		}
	}
	policy, err := app.ApprovalPolicy(cfg.Approval)
	if err != nil {
		return err
	}
	files, presigner, err := app.OpenFiles(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	inbox := notify.NewPostgresInbox(pool)
	emitter := audit.NewEmitter(notify.Fanout{inbox, notify.NewLogNotifier(logger)}, dir, logger)
	engine := pipeline.NewEngine(repository.NewTransferRepository(pool), emitter, logger)
	svc := pipeline.NewService(engine, approval.NewManager(policy), dir, logger)

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	// Scanning and copying happen in the worker; this controller only
	// schedules jobs and records callback results.
	ctrl := stage.NewController(engine, nil, nil, app.StagePolicy(cfg.Stage), logger)
	ctrl.SetScheduler(queue.NewScheduler(queueClient))
	engine.Subscribe(ctrl.OnTransition)

	srv := api.New(api.Options{
		Address:     cfg.Address,
		MaxFileSize: cfg.MaxFileSize,
		CallbackTTL: cfg.CallbackTTL,
		DownloadTTL: cfg.DownloadTTL,
	}, svc, dir, ctrl, inbox, files, signing.NewSigner(cfg.SigningSecret), logger)
	if presigner != nil {
		srv.SetPresigner(presigner)
	}
	return srv.Run(ctx)
}
