// Command server runs the whole pipeline in one process: in-memory
// persistence, the HTTP API and a goroutine pool for scan and copy jobs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/DataBridge/internal/api"
	"github.com/dharsanguruparan/DataBridge/internal/app"
	"github.com/dharsanguruparan/DataBridge/internal/approval"
	"github.com/dharsanguruparan/DataBridge/internal/audit"
	"github.com/dharsanguruparan/DataBridge/internal/config"
	"github.com/dharsanguruparan/DataBridge/internal/identity"
	"github.com/dharsanguruparan/DataBridge/internal/logging"
	"github.com/dharsanguruparan/DataBridge/internal/notify"
	"github.com/dharsanguruparan/DataBridge/internal/pipeline"
	"github.com/dharsanguruparan/DataBridge/internal/processing"
	"github.com/dharsanguruparan/DataBridge/internal/signing"
	"github.com/dharsanguruparan/DataBridge/internal/stage"
	"github.com/dharsanguruparan/DataBridge/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
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

	seed, err := identity.ParseSeed(cfg.SeedUsers)
	if err != nil {
		return err
	}
	dir := identity.NewMemoryDirectory(seed...)
	policy, err := app.ApprovalPolicy(cfg.Approval)
	if err != nil {
		return err
	}
	files, presigner, err := app.OpenFiles(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	inbox := notify.NewMemoryInbox()
	emitter := audit.NewEmitter(notify.Fanout{inbox, notify.NewLogNotifier(logger)}, dir, logger)
	engine := pipeline.NewEngine(storage.NewMemoryStore(), emitter, logger)
	svc := pipeline.NewService(engine, approval.NewManager(policy), dir, logger)

	ctrl := stage.NewController(engine, app.Scanner(cfg, files, logger), files, app.StagePolicy(cfg.Stage), logger)
	pool := processing.New(ctrl, cfg.ProcessingPool, logger)
	ctrl.SetScheduler(pool)
	engine.Subscribe(ctrl.OnTransition)
	pool.Start(ctx)
	go ctrl.RunSweeper(ctx, cfg.Stage.SweepInterval)

	srv := api.New(api.Options{
		Address:     cfg.Address,
		MaxFileSize: cfg.MaxFileSize,
		CallbackTTL: cfg.CallbackTTL,
		DownloadTTL: cfg.DownloadTTL,
	}, svc, dir, ctrl, inbox, files, signing.NewSigner(cfg.SigningSecret), logger)
	if presigner != nil {
		srv.SetPresigner(presigner)
	}

	logger.Info("databridge server starting", "storage", cfg.Storage, "workers", cfg.ProcessingPool, "users", len(seed))
	err = srv.Run(ctx)
	stop()
	pool.Wait()
	return err
}
