// Package notify holds the notification transports and the per-user inbox.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// Inbox stores notifications for later reading.
type Inbox interface {
	Dispatch(ctx context.Context, n model.Notification) error
	List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID int64, id string) error
	MarkAllRead(ctx context.Context, userID int64) (int, error)
	Delete(ctx context.Context, userID int64, id string) error
}

// Dispatcher is the single-method delivery contract.
type Dispatcher interface {
	Dispatch(ctx context.Context, n model.Notification) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Dispatch logs n.
func (l *LogNotifier) Dispatch(_ context.Context, n model.Notification) error {
	l.logger.Info("notification",
		"user", n.UserID,
		"transfer", n.TransferID,
		"type", n.Type,
		"title", n.Title,
	)
	return nil
}

// Fanout delivers to every dispatcher and joins their errors.
type Fanout []Dispatcher

// Dispatch implements Dispatcher.
func (f Fanout) Dispatch(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, d := range f {
		if err := d.Dispatch(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryInbox keeps notifications per user in memory.
type MemoryInbox struct {
	mu     sync.RWMutex
	byUser map[int64][]model.Notification
}

// NewMemoryInbox constructs a MemoryInbox.
func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{byUser: make(map[int64][]model.Notification)}
}

// Dispatch stores n.
func (m *MemoryInbox) Dispatch(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUser[n.UserID] = append(m.byUser[n.UserID], n)
	return nil
}

// List returns the user's notifications, newest first.
func (m *MemoryInbox) List(_ context.Context, userID int64, unreadOnly bool, limit int) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Notification
	for _, n := range m.byUser[userID] {
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkRead flags one notification as read.
func (m *MemoryInbox) MarkRead(_ context.Context, userID int64, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.byUser[userID] {
		if m.byUser[userID][i].ID == id {
			m.byUser[userID][i].Read = true
			return nil
		}
	}
	return model.NotFoundf("notification %s not found", id)
}

// MarkAllRead flags every notification of the user and returns how many
// changed.
func (m *MemoryInbox) MarkAllRead(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.byUser[userID] {
		if !m.byUser[userID][i].Read {
			m.byUser[userID][i].Read = true
			n++
		}
	}
	return n, nil
}

// Delete removes one notification.
func (m *MemoryInbox) Delete(_ context.Context, userID int64, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byUser[userID]
	for i := range list {
		if list[i].ID == id {
			m.byUser[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return model.NotFoundf("notification %s not found", id)
}
