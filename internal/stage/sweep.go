package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// stalledStatuses are the automated statuses a transfer should never sit in
// for long.
var stalledStatuses = []model.Status{
	model.StatusApproved,
	model.StatusScanning,
	model.StatusScanPassed,
	model.StatusReadyForTransfer,
	model.StatusTransferring,
	model.StatusVerifying,
}

// Sweep flags transfers that have not moved within the stall threshold and
// resumes the ones stuck between jobs. A transfer is flagged once per stall:
// while its latest history entry is still the stall flag it is only resumed.
// It returns how many transfers it newly flagged.
func (c *Controller) Sweep(ctx context.Context) (int, error) {
	if c.policy.StallAfter <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-c.policy.StallAfter)
	stalled, _, err := c.engine.Store().List(ctx, model.Filter{
		Statuses:      stalledStatuses,
		UpdatedBefore: &cutoff,
		Limit:         500,
	})
	if err != nil {
		return 0, fmt.Errorf("list stalled transfers: %w", err)
	}
	flagged := 0
	for _, t := range stalled {
		already, err := c.alreadyFlagged(ctx, t.ID)
		if err != nil {
			c.logger.Error("read history of stalled transfer", "transfer", t.ID, "error", err)
			continue
		}
		if !already {
			age := time.Since(t.UpdatedAt).Round(time.Minute)
			desc := fmt.Sprintf("%s has been %s for %s", t.Reference, t.Status, age)
			if err := c.engine.Annotate(ctx, t, nil, stalledAction, desc, map[string]any{
				"status":     string(t.Status),
				"updated_at": t.UpdatedAt,
			}); err != nil {
				c.logger.Error("flag stalled transfer", "transfer", t.ID, "error", err)
				continue
			}
			flagged++
			c.logger.Warn("transfer stalled", "transfer", t.ID, "reference", t.Reference, "status", t.Status, "age", age)
		}

		var resume error
		switch t.Status {
		case model.StatusApproved:
			resume = c.BeginScan(ctx, t.ID)
		case model.StatusScanPassed, model.StatusReadyForTransfer:
			resume = c.BeginTransfer(ctx, t.ID)
		case model.StatusVerifying:
			resume = c.Verify(ctx, t.ID)
		}
		if resume != nil {
			c.logger.Error("resume stalled transfer", "transfer", t.ID, "error", resume)
		}
	}
	return flagged, nil
}

const stalledAction = "stage_stalled"

// alreadyFlagged reports whether nothing has been recorded for the transfer
// since its last stall flag.
func (c *Controller) alreadyFlagged(ctx context.Context, id int64) (bool, error) {
	history, err := c.engine.Store().History(ctx, id)
	if err != nil {
		return false, err
	}
	return len(history) > 0 && history[len(history)-1].Action == stalledAction, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *Controller) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := c.Sweep(ctx); err != nil {
				c.logger.Error("stall sweep failed", "error", err)
			} else if n > 0 {
				c.logger.Info("stall sweep flagged transfers", "count", n)
			}
		}
	}
}
