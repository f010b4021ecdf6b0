// Package worker plugs the stage controller into the asynq server loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/DataBridge/internal/queue"
	"github.com/dharsanguruparan/DataBridge/internal/stage"
)

// Runner is the part of the stage controller the worker drives.
type Runner interface {
	RunScanJob(ctx context.Context, job stage.ScanJob) error
	RunCopyJob(ctx context.Context, job stage.CopyJob) error
}

// Sweeper flags stalled transfers.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	runner  Runner
	sweeper Sweeper
	logger  *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(runner Runner, sweeper Sweeper, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{runner: runner, sweeper: sweeper, logger: logger}
}

// Handler registers the stage task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ScanFileTask, p.handleScan)
	mux.HandleFunc(queue.CopyFileTask, p.handleCopy)
	mux.HandleFunc(queue.SweepTask, p.handleSweep)
	return mux
}

func (p *Processor) handleScan(ctx context.Context, task *asynq.Task) error {
	var job stage.ScanJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	if err := p.runner.RunScanJob(ctx, job); err != nil {
		p.logger.Error("scan job failed", "transfer", job.TransferID, "file", job.FileID, "attempt", job.Attempt, "error", err)
		return err
	}
	return nil
}

func (p *Processor) handleCopy(ctx context.Context, task *asynq.Task) error {
	var job stage.CopyJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	if err := p.runner.RunCopyJob(ctx, job); err != nil {
		p.logger.Error("copy job failed", "transfer", job.TransferID, "file", job.FileID, "attempt", job.Attempt, "error", err)
		return err
	}
	return nil
}

func (p *Processor) handleSweep(ctx context.Context, _ *asynq.Task) error {
	if p.sweeper == nil {
		return nil
	}
	n, err := p.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Info("stall sweep flagged transfers", "count", n)
	}
	return nil
}
