// Package processing runs scan and copy jobs on an in-process goroutine pool.
// It backs the single-binary server; the asynq worker covers multi-process
// deployments.
package processing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dharsanguruparan/DataBridge/internal/stage"
)

// ErrQueueFull is returned when an immediate job finds the buffer full.
var ErrQueueFull = errors.New("processing queue full")

// Runner executes jobs. The stage controller satisfies it.
type Runner interface {
	RunScanJob(ctx context.Context, job stage.ScanJob) error
	RunCopyJob(ctx context.Context, job stage.CopyJob) error
}

// Job is one unit of work. Exactly one of Scan or Copy is set.
type Job struct {
	Scan *stage.ScanJob
	Copy *stage.CopyJob
}

// Processor consumes Jobs with a fixed number of workers.
type Processor struct {
	runner  Runner
	queue   chan Job
	workers int
	logger  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	timers  map[*time.Timer]struct{}
	running sync.WaitGroup
}

// New builds a Processor with queue capacity tied to worker count.
func New(runner Runner, workers int, logger *slog.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		runner:  runner,
		queue:   make(chan Job, workers*16),
		workers: workers,
		logger:  logger,
		ctx:     context.Background(),
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Start launches worker goroutines that stop when ctx is done.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()
	for i := 0; i < p.workers; i++ {
		p.running.Add(1)
		go p.worker(ctx)
	}
}

// Wait blocks until every worker has exited and stops pending timers.
func (p *Processor) Wait() {
	p.running.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	for t := range p.timers {
		t.Stop()
	}
	p.timers = map[*time.Timer]struct{}{}
}

// ScheduleScan implements stage.Scheduler.
func (p *Processor) ScheduleScan(_ context.Context, job stage.ScanJob, delay time.Duration) error {
	return p.submit(Job{Scan: &job}, delay)
}

// ScheduleCopy implements stage.Scheduler.
func (p *Processor) ScheduleCopy(_ context.Context, job stage.CopyJob, delay time.Duration) error {
	return p.submit(Job{Copy: &job}, delay)
}

// submit never blocks the caller. Immediate jobs fail fast when the buffer
// is full; delayed jobs wait for room on their own timer goroutine.
func (p *Processor) submit(job Job, delay time.Duration) error {
	if delay <= 0 {
		select {
		case p.queue <- job:
			return nil
		default:
			return ErrQueueFull
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx := p.ctx
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		p.mu.Lock()
		delete(p.timers, timer)
		p.mu.Unlock()
		select {
		case p.queue <- job:
		case <-ctx.Done():
		}
	})
	p.timers[timer] = struct{}{}
	return nil
}

func (p *Processor) worker(ctx context.Context) {
	defer p.running.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.process(ctx, job)
		}
	}
}

func (p *Processor) process(ctx context.Context, job Job) {
	switch {
	case job.Scan != nil:
		if err := p.runner.RunScanJob(ctx, *job.Scan); err != nil {
			p.logger.Error("scan job failed", "transfer", job.Scan.TransferID, "file", job.Scan.FileID, "attempt", job.Scan.Attempt, "error", err)
		}
	case job.Copy != nil:
		if err := p.runner.RunCopyJob(ctx, *job.Copy); err != nil {
			p.logger.Error("copy job failed", "transfer", job.Copy.TransferID, "file", job.Copy.FileID, "attempt", job.Copy.Attempt, "error", err)
		}
	}
}
