// Package queue schedules stage jobs on Redis through asynq.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/DataBridge/internal/stage"
)

const (
	// ScanFileTask scans one staged file.
	ScanFileTask = "stage:scan"
	// CopyFileTask copies one scanned file to production.
	CopyFileTask = "stage:copy"
	// SweepTask flags and resumes stalled transfers.
	SweepTask = "stage:sweep"

	// StageQueue carries every stage task.
	StageQueue = "stage"
)

// Scheduler implements stage.Scheduler on an asynq client. Task ids are
// derived from transfer, file and attempt so re-enqueueing the same attempt
// is a no-op.
type Scheduler struct {
	client *asynq.Client
	// MaxRetry bounds asynq-level redelivery, used only when recording a
	// result fails. Scan and copy retries are counted by the controller.
	MaxRetry int
}

// NewScheduler constructs a Scheduler.
func NewScheduler(client *asynq.Client) *Scheduler {
	return &Scheduler{client: client, MaxRetry: 3}
}

// ScanTaskID names the task for one scan attempt.
func ScanTaskID(job stage.ScanJob) string {
	return fmt.Sprintf("scan-%d-%d-%d", job.TransferID, job.FileID, job.Attempt)
}

// CopyTaskID names the task for one copy attempt.
func CopyTaskID(job stage.CopyJob) string {
	return fmt.Sprintf("copy-%d-%d-%d", job.TransferID, job.FileID, job.Attempt)
}

// NewScanTask builds the asynq task for job.
func NewScanTask(job stage.ScanJob) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ScanFileTask, data), nil
}

// NewCopyTask builds the asynq task for job.
func NewCopyTask(job stage.CopyJob) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(CopyFileTask, data), nil
}

// ScheduleScan implements stage.Scheduler.
func (s *Scheduler) ScheduleScan(ctx context.Context, job stage.ScanJob, delay time.Duration) error {
	task, err := NewScanTask(job)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, task, ScanTaskID(job), delay)
}

// ScheduleCopy implements stage.Scheduler.
func (s *Scheduler) ScheduleCopy(ctx context.Context, job stage.CopyJob, delay time.Duration) error {
	task, err := NewCopyTask(job)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, task, CopyTaskID(job), delay)
}

func (s *Scheduler) enqueue(ctx context.Context, task *asynq.Task, id string, delay time.Duration) error {
	opts := []asynq.Option{
		asynq.Queue(StageQueue),
		asynq.TaskID(id),
		asynq.MaxRetry(s.MaxRetry),
		asynq.Retention(24 * time.Hour),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	_, err := s.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// RegisterSweep adds the periodic stall sweep to an asynq scheduler.
func RegisterSweep(scheduler *asynq.Scheduler, every time.Duration) (string, error) {
	if every <= 0 {
		return "", nil
	}
	id, err := scheduler.Register(fmt.Sprintf("@every %s", every), asynq.NewTask(SweepTask, nil),
		asynq.Queue(StageQueue), asynq.Unique(every))
	if err != nil {
		return "", fmt.Errorf("register sweep: %w", err)
	}
	return id, nil
}
