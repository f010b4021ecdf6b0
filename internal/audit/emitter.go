// Package audit builds history entries and turns committed entries into
// notifications for the people who need to act on them.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// Notifier delivers one notification. Delivery is best effort.
type Notifier interface {
	Dispatch(ctx context.Context, n model.Notification) error
}

// Roster lists the users holding a role.
type Roster interface {
	ListByRole(ctx context.Context, role model.Role) ([]model.Actor, error)
}

// Emitter implements pipeline.Emitter.
type Emitter struct {
	notifier Notifier
	roster   Roster
	logger   *slog.Logger
	now      func() time.Time
}

// NewEmitter constructs an Emitter. A nil notifier disables notifications.
func NewEmitter(notifier Notifier, roster Roster, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		notifier: notifier,
		roster:   roster,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record builds a history entry. A nil actor records a system entry.
func (e *Emitter) Record(transferID int64, actor *model.Actor, action, description string, metadata map[string]any) model.HistoryEntry {
	entry := model.HistoryEntry{
		TransferID:  transferID,
		Action:      action,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   e.now(),
	}
	if actor != nil {
		id := actor.ID
		entry.ActorID = &id
	}
	return entry
}

// Publish dispatches the notifications implied by committed entries.
// Failures are logged and never propagate.
func (e *Emitter) Publish(ctx context.Context, t *model.Transfer, entries []model.HistoryEntry) {
	if e.notifier == nil || t == nil {
		return
	}
	for _, entry := range entries {
		for _, n := range e.audience(ctx, t, entry) {
			if err := e.notifier.Dispatch(ctx, n); err != nil {
				e.logger.Warn("notification dispatch failed",
					"transfer", t.ID,
					"user", n.UserID,
					"type", n.Type,
					"error", err,
				)
			}
		}
	}
}

type message struct {
	kind  model.NotificationType
	title string
	body  string
}

// audience applies the per-action policy and returns one notification per
// distinct recipient.
func (e *Emitter) audience(ctx context.Context, t *model.Transfer, entry model.HistoryEntry) []model.Notification {
	var (
		users []int64
		msg   message
	)
	to, _ := entry.Metadata["to"].(string)

	switch entry.Action {
	case "submitted", "approved", "skipped":
		if role, ok := model.Status(to).PendingRole(); ok {
			users = e.holders(ctx, role)
			msg = message{model.NotifyApprovalRequired, "Approval required",
				fmt.Sprintf("%s %q is waiting for %s approval", t.Reference, t.Title, role)}
		} else if model.Status(to) == model.StatusApproved {
			users = []int64{t.SubmitterID}
			msg = message{model.NotifyApproved, "Transfer approved",
				fmt.Sprintf("%s %q has been fully approved and queued for scanning", t.Reference, t.Title)}
		}
	case "rejected":
		users = append(users, t.SubmitterID)
		for _, item := range t.ApprovalChain {
			if item.Status == model.ApprovalApproved && item.DeciderID != nil {
				users = append(users, *item.DeciderID)
			}
		}
		msg = message{model.NotifyRejected, "Transfer rejected",
			fmt.Sprintf("%s %q was rejected: %s", t.Reference, t.Title, t.RejectionReason)}
	case "scan_passed":
		users = []int64{t.SubmitterID}
		msg = message{model.NotifyScanComplete, "Scan passed",
			fmt.Sprintf("All %d file(s) of %s passed the security scan", len(t.Files), t.Reference)}
	case "scan_failed":
		users = append([]int64{t.SubmitterID}, e.holders(ctx, model.RoleAdmin)...)
		msg = message{model.NotifyScanFailed, "Scan failed",
			fmt.Sprintf("%s failed the security scan: %s", t.Reference, t.FailureDetail)}
	case "transfer_started":
		users = e.holders(ctx, model.RoleITTeam)
		msg = message{model.NotifyTransferStarted, "Transfer started",
			fmt.Sprintf("%s is copying %d file(s) to %s", t.Reference, len(t.Files), t.ProductionPath)}
	case "transferred":
		users = []int64{t.SubmitterID}
		msg = message{model.NotifyTransferComplete, "Transfer complete",
			fmt.Sprintf("%s was delivered to %s", t.Reference, t.ProductionPath)}
	case "transfer_failed":
		users = append([]int64{t.SubmitterID}, e.holders(ctx, model.RoleAdmin)...)
		msg = message{model.NotifyTransferFailed, "Transfer failed",
			fmt.Sprintf("%s failed during transfer: %s", t.Reference, t.FailureDetail)}
	case "cancelled":
		if entry.ActorID != nil && *entry.ActorID == t.SubmitterID {
			return nil
		}
		users = []int64{t.SubmitterID}
		msg = message{model.NotifySystem, "Transfer cancelled", entry.Description}
	case "stage_stalled":
		users = e.holders(ctx, model.RoleAdmin)
		msg = message{model.NotifySystem, "Transfer stalled", entry.Description}
	default:
		return nil
	}

	out := make([]model.Notification, 0, len(users))
	seen := make(map[int64]bool, len(users))
	for _, uid := range users {
		if seen[uid] || (entry.ActorID != nil && *entry.ActorID == uid) {
			continue
		}
		seen[uid] = true
		out = append(out, model.Notification{
			ID:         uuid.NewString(),
			UserID:     uid,
			TransferID: t.ID,
			Type:       msg.kind,
			Title:      msg.title,
			Body:       msg.body,
			Link:       fmt.Sprintf("/transfers/%d", t.ID),
			CreatedAt:  entry.CreatedAt,
		})
	}
	return out
}

func (e *Emitter) holders(ctx context.Context, role model.Role) []int64 {
	if e.roster == nil {
		return nil
	}
	actors, err := e.roster.ListByRole(ctx, role)
	if err != nil {
		e.logger.Warn("list users by role failed", "role", role, "error", err)
		return nil
	}
	ids := make([]int64, 0, len(actors))
	for _, a := range actors {
		ids = append(ids, a.ID)
	}
	return ids
}
