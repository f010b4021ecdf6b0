// Package stage drives the automated part of the pipeline: scanning every
// file, copying clean transfers to production and verifying the copies.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dharsanguruparan/DataBridge/internal/lock"
	"github.com/dharsanguruparan/DataBridge/internal/model"
	"github.com/dharsanguruparan/DataBridge/internal/pipeline"
)

// Controller runs the scan and transfer stages as retryable jobs. It acts as
// the system actor: history entries it writes carry no actor id.
type Controller struct {
	engine    *pipeline.Engine
	scanner   Scanner
	mover     Mover
	scheduler Scheduler
	policy    Policy
	locks     *lock.IDLocker
	logger    *slog.Logger
}

// NewController constructs a Controller. The scheduler is attached with
// SetScheduler because in-process pools need the controller to run jobs.
func NewController(engine *pipeline.Engine, scanner Scanner, mover Mover, policy Policy, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Controller{
		engine:  engine,
		scanner: scanner,
		mover:   mover,
		policy:  policy,
		locks:   lock.NewIDLocker(),
		logger:  logger,
	}
}

// SetScheduler attaches the job scheduler.
func (c *Controller) SetScheduler(s Scheduler) { c.scheduler = s }

// Policy returns the active stage policy.
func (c *Controller) Policy() Policy { return c.policy }

// OnTransition is registered with the engine. Entering approved starts the
// scan stage.
func (c *Controller) OnTransition(ctx context.Context, ch pipeline.Change) {
	if ch.To != model.StatusApproved {
		return
	}
	if err := c.BeginScan(ctx, ch.Transfer.ID); err != nil {
		c.logger.Error("begin scan failed", "transfer", ch.Transfer.ID, "reference", ch.Transfer.Reference, "error", err)
	}
}

// mutate serializes in-process work per transfer and retries version
// conflicts with fresh state. fn may run more than once.
func (c *Controller) mutate(ctx context.Context, id int64, fn func(tx *pipeline.Txn) error) (*model.Transfer, error) {
	c.locks.AcquireLock(id)
	defer c.locks.ReleaseLock(id)

	var out *model.Transfer
	backoff := retry.WithMaxRetries(5, retry.NewExponential(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, err := c.engine.Mutate(ctx, id, fn)
		if errors.Is(err, model.ErrConcurrentModification) {
			c.logger.Debug("retrying after concurrent modification", "transfer", id)
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

func (c *Controller) discard(t *model.Transfer, fileID int64, attempt int, kind string) {
	c.logger.Info("discarding stale "+kind+" result",
		"transfer", t.ID,
		"reference", t.Reference,
		"status", t.Status,
		"file", fileID,
		"attempt", attempt,
	)
}

// BeginScan moves an approved transfer to scanning and schedules one scan
// job per file. Calling it for a transfer in any other status is a no-op.
func (c *Controller) BeginScan(ctx context.Context, id int64) error {
	var jobs []ScanJob
	_, err := c.mutate(ctx, id, func(tx *pipeline.Txn) error {
		jobs = nil
		t := tx.Transfer
		if t.Status != model.StatusApproved {
			return nil
		}
		now := tx.Now()
		t.ScanStartedAt = &now
		for i := range t.Files {
			f := &t.Files[i]
			if f.ScanVerdict != model.VerdictPending {
				continue
			}
			f.ScanAttempts++
			jobs = append(jobs, ScanJob{TransferID: t.ID, FileID: f.ID, Attempt: f.ScanAttempts})
		}
		return tx.Transition(model.StatusScanning, nil, "scan_started",
			fmt.Sprintf("Security scan started for %d file(s)", len(jobs)),
			map[string]any{"files": len(jobs)})
	})
	if err != nil {
		return fmt.Errorf("begin scan of transfer %d: %w", id, err)
	}
	for _, job := range jobs {
		c.dispatchScan(ctx, job, 0)
	}
	return nil
}

func (c *Controller) dispatchScan(ctx context.Context, job ScanJob, delay time.Duration) {
	err := errors.New("no scheduler attached")
	if c.scheduler != nil {
		err = c.scheduler.ScheduleScan(ctx, job, delay)
	}
	if err == nil {
		return
	}
	c.logger.Warn("schedule scan failed", "transfer", job.TransferID, "file", job.FileID, "attempt", job.Attempt, "error", err)
	report := ScanReport{TransferID: job.TransferID, FileID: job.FileID, Attempt: job.Attempt, Err: "schedule scan: " + err.Error()}
	if err := c.ReportScan(ctx, report); err != nil {
		c.logger.Error("record scan scheduling failure", "transfer", job.TransferID, "file", job.FileID, "error", err)
	}
}

// RunScanJob executes one scan job and reports its outcome. Jobs that no
// longer apply are dropped.
func (c *Controller) RunScanJob(ctx context.Context, job ScanJob) error {
	t, err := c.engine.Store().Load(ctx, job.TransferID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.logger.Warn("scan job for unknown transfer", "transfer", job.TransferID)
			return nil
		}
		return err
	}
	f, ok := t.File(job.FileID)
	if !ok {
		c.logger.Warn("scan job for unknown file", "transfer", t.ID, "file", job.FileID)
		return nil
	}
	if t.Status != model.StatusScanning || f.ScanVerdict != model.VerdictPending || f.ScanAttempts != job.Attempt {
		c.discard(t, f.ID, job.Attempt, "scan")
		return nil
	}
	if c.scanner == nil {
		return c.ReportScan(ctx, ScanReport{TransferID: t.ID, FileID: f.ID, Attempt: job.Attempt, Err: "no scanner configured"})
	}
	report := ScanReport{TransferID: t.ID, FileID: f.ID, Attempt: job.Attempt}
	res, err := c.scanner.Scan(ctx, *f)
	if err != nil {
		report.Err = err.Error()
	} else {
		report.Verdict = res.Verdict
		report.Detail = res.Detail
	}
	return c.ReportScan(ctx, report)
}

// ReportScan records one scan outcome. Infrastructure errors are retried
// until the attempt budget runs out, which counts as an error verdict. Once
// every file has a verdict the transfer moves to scan_passed or scan_failed.
func (c *Controller) ReportScan(ctx context.Context, r ScanReport) error {
	if r.Err == "" && !r.Verdict.Valid() {
		return model.Validationf("unknown scan verdict %q", r.Verdict)
	}
	var (
		retryJob *ScanJob
		delay    time.Duration
	)
	t, err := c.mutate(ctx, r.TransferID, func(tx *pipeline.Txn) error {
		retryJob = nil
		t := tx.Transfer
		f, ok := t.File(r.FileID)
		if !ok {
			return model.NotFoundf("file %d is not part of %s", r.FileID, t.Reference)
		}
		if t.Status != model.StatusScanning || f.ScanVerdict != model.VerdictPending || r.Attempt != f.ScanAttempts {
			c.discard(t, f.ID, r.Attempt, "scan")
			return nil
		}
		if r.Err != "" && f.ScanAttempts < c.policy.MaxAttempts {
			delay = c.policy.Backoff(f.ScanAttempts)
			f.ScanAttempts++
			retryJob = &ScanJob{TransferID: t.ID, FileID: f.ID, Attempt: f.ScanAttempts}
			tx.Note(nil, "scan_retry",
				fmt.Sprintf("Scan of %s failed on attempt %d of %d, retrying in %s: %s", f.Filename, r.Attempt, c.policy.MaxAttempts, delay, r.Err),
				map[string]any{"file": f.Filename, "attempt": r.Attempt, "error": r.Err})
			return nil
		}
		if r.Err != "" {
			f.ScanVerdict = model.VerdictError
			f.ScanDetail = fmt.Sprintf("scan failed after %d attempt(s): %s", f.ScanAttempts, r.Err)
		} else {
			f.ScanVerdict = r.Verdict
			f.ScanDetail = r.Detail
		}
		now := tx.Now()
		f.ScannedAt = &now
		tx.Note(nil, "file_scanned", fmt.Sprintf("%s: %s", f.Filename, f.ScanVerdict),
			map[string]any{"file": f.Filename, "verdict": string(f.ScanVerdict), "detail": f.ScanDetail, "attempt": r.Attempt})
		return settleScan(tx)
	})
	if err != nil {
		return fmt.Errorf("record scan of transfer %d: %w", r.TransferID, err)
	}
	if retryJob != nil {
		c.dispatchScan(ctx, *retryJob, delay)
	}
	if t.Status == model.StatusScanPassed {
		return c.BeginTransfer(ctx, t.ID)
	}
	return nil
}

// settleScan aggregates verdicts once every file has one.
func settleScan(tx *pipeline.Txn) error {
	t := tx.Transfer
	var failed, details []string
	for _, f := range t.Files {
		if f.ScanVerdict == model.VerdictPending {
			return nil
		}
		if f.ScanVerdict.Failed() {
			failed = append(failed, f.Filename)
			details = append(details, fmt.Sprintf("%s: %s %s", f.Filename, f.ScanVerdict, f.ScanDetail))
		}
	}
	now := tx.Now()
	t.ScanCompletedAt = &now
	if len(failed) > 0 {
		t.FailedFiles = failed
		t.FailureDetail = strings.Join(details, "; ")
		return tx.Transition(model.StatusScanFailed, nil, "scan_failed",
			fmt.Sprintf("Security scan failed for %d of %d file(s)", len(failed), len(t.Files)),
			map[string]any{"failed_files": failed})
	}
	return tx.Transition(model.StatusScanPassed, nil, "scan_passed",
		fmt.Sprintf("All %d file(s) passed the security scan", len(t.Files)), nil)
}

// BeginTransfer stages a scanned transfer for delivery and schedules one copy
// job per file. It resumes from scan_passed or ready_for_transfer and is a
// no-op otherwise.
func (c *Controller) BeginTransfer(ctx context.Context, id int64) error {
	var jobs []CopyJob
	_, err := c.mutate(ctx, id, func(tx *pipeline.Txn) error {
		jobs = nil
		t := tx.Transfer
		if t.Status != model.StatusScanPassed && t.Status != model.StatusReadyForTransfer {
			return nil
		}
		if t.Status == model.StatusScanPassed {
			t.ProductionPath = ProductionPath(c.policy.ProductionRoot, t)
			for i := range t.Files {
				t.Files[i].DestinationKey = path.Join(t.ProductionPath, path.Base(t.Files[i].Filename))
			}
			if err := tx.Transition(model.StatusReadyForTransfer, nil, "transfer_staged",
				fmt.Sprintf("Production path set to %s", t.ProductionPath),
				map[string]any{"production_path": t.ProductionPath}); err != nil {
				return err
			}
		}
		now := tx.Now()
		t.TransferStartedAt = &now
		for i := range t.Files {
			f := &t.Files[i]
			if f.Copied() {
				continue
			}
			f.CopyAttempts++
			jobs = append(jobs, CopyJob{TransferID: t.ID, FileID: f.ID, Attempt: f.CopyAttempts})
		}
		return tx.Transition(model.StatusTransferring, nil, "transfer_started",
			fmt.Sprintf("Copying %d file(s) to %s", len(jobs), t.ProductionPath),
			map[string]any{"files": len(jobs), "production_path": t.ProductionPath})
	})
	if err != nil {
		return fmt.Errorf("begin transfer of %d: %w", id, err)
	}
	for _, job := range jobs {
		c.dispatchCopy(ctx, job, 0)
	}
	return nil
}

func (c *Controller) dispatchCopy(ctx context.Context, job CopyJob, delay time.Duration) {
	err := errors.New("no scheduler attached")
	if c.scheduler != nil {
		err = c.scheduler.ScheduleCopy(ctx, job, delay)
	}
	if err == nil {
		return
	}
	c.logger.Warn("schedule copy failed", "transfer", job.TransferID, "file", job.FileID, "attempt", job.Attempt, "error", err)
	report := CopyReport{TransferID: job.TransferID, FileID: job.FileID, Attempt: job.Attempt, Err: "schedule copy: " + err.Error()}
	if err := c.ReportCopy(ctx, report); err != nil {
		c.logger.Error("record copy scheduling failure", "transfer", job.TransferID, "file", job.FileID, "error", err)
	}
}

// RunCopyJob executes one copy job and reports its outcome.
func (c *Controller) RunCopyJob(ctx context.Context, job CopyJob) error {
	t, err := c.engine.Store().Load(ctx, job.TransferID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.logger.Warn("copy job for unknown transfer", "transfer", job.TransferID)
			return nil
		}
		return err
	}
	f, ok := t.File(job.FileID)
	if !ok {
		c.logger.Warn("copy job for unknown file", "transfer", t.ID, "file", job.FileID)
		return nil
	}
	if t.Status != model.StatusTransferring || f.Copied() || f.CopyAttempts != job.Attempt {
		c.discard(t, f.ID, job.Attempt, "copy")
		return nil
	}
	report := CopyReport{TransferID: t.ID, FileID: f.ID, Attempt: job.Attempt}
	if c.mover == nil {
		report.Err = "no mover configured"
		return c.ReportCopy(ctx, report)
	}
	sum, err := c.mover.Copy(ctx, f.StagingKey, f.DestinationKey)
	if err != nil {
		report.Err = err.Error()
	} else {
		report.Checksum = sum
	}
	return c.ReportCopy(ctx, report)
}

// ReportCopy records one copy outcome. When every file is settled the
// transfer moves to verifying.
func (c *Controller) ReportCopy(ctx context.Context, r CopyReport) error {
	if r.Err == "" && r.Checksum == "" {
		return model.Validationf("copy report needs a checksum or an error")
	}
	var (
		retryJob *CopyJob
		delay    time.Duration
	)
	t, err := c.mutate(ctx, r.TransferID, func(tx *pipeline.Txn) error {
		retryJob = nil
		t := tx.Transfer
		f, ok := t.File(r.FileID)
		if !ok {
			return model.NotFoundf("file %d is not part of %s", r.FileID, t.Reference)
		}
		if t.Status != model.StatusTransferring || f.Copied() || r.Attempt != f.CopyAttempts {
			c.discard(t, f.ID, r.Attempt, "copy")
			return nil
		}
		if r.Err != "" && f.CopyAttempts < c.policy.MaxAttempts {
			delay = c.policy.Backoff(f.CopyAttempts)
			f.CopyAttempts++
			retryJob = &CopyJob{TransferID: t.ID, FileID: f.ID, Attempt: f.CopyAttempts}
			tx.Note(nil, "copy_retry",
				fmt.Sprintf("Copy of %s failed on attempt %d of %d, retrying in %s: %s", f.Filename, r.Attempt, c.policy.MaxAttempts, delay, r.Err),
				map[string]any{"file": f.Filename, "attempt": r.Attempt, "error": r.Err})
			return nil
		}
		now := tx.Now()
		f.CopiedAt = &now
		if r.Err != "" {
			f.CopyError = fmt.Sprintf("copy failed after %d attempt(s): %s", f.CopyAttempts, r.Err)
			tx.Note(nil, "file_copy_failed", fmt.Sprintf("%s: %s", f.Filename, f.CopyError),
				map[string]any{"file": f.Filename, "attempt": r.Attempt, "error": r.Err})
		} else {
			f.DestinationChecksum = strings.ToLower(r.Checksum)
			tx.Note(nil, "file_copied", fmt.Sprintf("%s copied to %s", f.Filename, f.DestinationKey),
				map[string]any{"file": f.Filename, "destination": f.DestinationKey, "checksum": f.DestinationChecksum})
		}
		for _, other := range t.Files {
			if !other.Copied() {
				return nil
			}
		}
		return tx.Transition(model.StatusVerifying, nil, "verifying",
			fmt.Sprintf("Verifying checksums of %d file(s)", len(t.Files)), nil)
	})
	if err != nil {
		return fmt.Errorf("record copy of transfer %d: %w", r.TransferID, err)
	}
	if retryJob != nil {
		c.dispatchCopy(ctx, *retryJob, delay)
	}
	if t.Status == model.StatusVerifying {
		return c.Verify(ctx, t.ID)
	}
	return nil
}

// Verify compares every destination checksum with its source checksum and
// finishes the transfer. Every mismatching file is listed on failure.
func (c *Controller) Verify(ctx context.Context, id int64) error {
	_, err := c.mutate(ctx, id, func(tx *pipeline.Txn) error {
		t := tx.Transfer
		if t.Status != model.StatusVerifying {
			return nil
		}
		var failed, details []string
		for i := range t.Files {
			f := &t.Files[i]
			ok := f.CopyError == "" && f.DestinationChecksum == f.Checksum
			f.Verified = &ok
			switch {
			case f.CopyError != "":
				failed = append(failed, f.Filename)
				details = append(details, fmt.Sprintf("%s: %s", f.Filename, f.CopyError))
			case !ok:
				failed = append(failed, f.Filename)
				details = append(details, fmt.Sprintf("%s: checksum mismatch (source %s, destination %s)", f.Filename, f.Checksum, f.DestinationChecksum))
			}
		}
		now := tx.Now()
		t.TransferCompletedAt = &now
		if len(failed) > 0 {
			t.FailedFiles = failed
			t.FailureDetail = strings.Join(details, "; ")
			return tx.Transition(model.StatusTransferFailed, nil, "transfer_failed",
				fmt.Sprintf("Verification failed for %d of %d file(s)", len(failed), len(t.Files)),
				map[string]any{"failed_files": failed})
		}
		return tx.Transition(model.StatusTransferred, nil, "transferred",
			fmt.Sprintf("All %d file(s) delivered to %s and verified", len(t.Files), t.ProductionPath),
			map[string]any{"production_path": t.ProductionPath})
	})
	if err != nil {
		return fmt.Errorf("verify transfer %d: %w", id, err)
	}
	return nil
}
