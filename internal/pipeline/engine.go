package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// Store is the persistence boundary. SaveAtomic must apply the transfer and
// its history entries together, and only when the stored version still equals
// expectedVersion; otherwise it fails with model.ErrConcurrentModification.
type Store interface {
	Create(ctx context.Context, t *model.Transfer, history []model.HistoryEntry) (*model.Transfer, error)
	Load(ctx context.Context, id int64) (*model.Transfer, error)
	SaveAtomic(ctx context.Context, t *model.Transfer, expectedVersion int64, history []model.HistoryEntry) (*model.Transfer, error)
	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
	History(ctx context.Context, transferID int64) ([]model.HistoryEntry, error)
	List(ctx context.Context, f model.Filter) ([]*model.Transfer, int, error)
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
}

// Emitter builds audit entries and publishes notifications for them once
// they are committed.
type Emitter interface {
	Record(transferID int64, actor *model.Actor, action, description string, metadata map[string]any) model.HistoryEntry
	Publish(ctx context.Context, t *model.Transfer, entries []model.HistoryEntry)
}

// Change describes one committed transition.
type Change struct {
	Transfer *model.Transfer
	From     model.Status
	To       model.Status
	Actor    *model.Actor
	Entry    model.HistoryEntry
}

// Listener observes committed transitions. Listeners run after the commit,
// in registration order, and cannot undo it.
type Listener func(ctx context.Context, change Change)

// Engine commits mutations of a single transfer atomically.
type Engine struct {
	store   Store
	emitter Emitter
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

// NewEngine constructs an Engine.
func NewEngine(store Store, emitter Emitter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		emitter: emitter,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes the underlying persistence.
func (e *Engine) Store() Store { return e.store }

// Emitter exposes the audit emitter.
func (e *Engine) Emitter() Emitter { return e.emitter }

// Subscribe registers a listener for committed transitions.
func (e *Engine) Subscribe(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Txn collects the transitions and notes made against one loaded transfer.
type Txn struct {
	Transfer *model.Transfer

	engine  *Engine
	entries []model.HistoryEntry
	changes []Change
}

// Transition moves the transfer to status to, recording one history entry.
func (tx *Txn) Transition(to model.Status, actor *model.Actor, action, description string, metadata map[string]any) error {
	from := tx.Transfer.Status
	if err := checkTransition(from, to); err != nil {
		return err
	}
	meta := map[string]any{"from": string(from), "to": string(to)}
	for k, v := range metadata {
		meta[k] = v
	}
	tx.Transfer.Status = to
	tx.Transfer.UpdatedAt = tx.engine.now()
	entry := tx.engine.emitter.Record(tx.Transfer.ID, actor, action, description, meta)
	tx.entries = append(tx.entries, entry)
	tx.changes = append(tx.changes, Change{From: from, To: to, Actor: actor, Entry: entry})
	return nil
}

// Note records a history entry that does not change the status.
func (tx *Txn) Note(actor *model.Actor, action, description string, metadata map[string]any) {
	entry := tx.engine.emitter.Record(tx.Transfer.ID, actor, action, description, metadata)
	tx.entries = append(tx.entries, entry)
}

// Now returns the engine clock.
func (tx *Txn) Now() time.Time { return tx.engine.now() }

// Changed reports whether anything was recorded.
func (tx *Txn) Changed() bool { return len(tx.entries) > 0 }

// Create persists a new transfer built by fn.
func (e *Engine) Create(ctx context.Context, t *model.Transfer, fn func(tx *Txn) error) (*model.Transfer, error) {
	now := e.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	tx := &Txn{Transfer: t, engine: e}
	if err := fn(tx); err != nil {
		return nil, err
	}
	saved, err := e.store.Create(ctx, tx.Transfer, tx.entries)
	if err != nil {
		return nil, err
	}
	for i := range tx.entries {
		tx.entries[i].TransferID = saved.ID
	}
	e.afterCommit(ctx, saved, tx)
	return saved, nil
}

// Mutate loads the transfer, lets fn change it, and saves it against the
// loaded version. A no-op fn saves nothing. fn errors abort without writes.
func (e *Engine) Mutate(ctx context.Context, id int64, fn func(tx *Txn) error) (*model.Transfer, error) {
	current, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := current.Version
	tx := &Txn{Transfer: current, engine: e}
	if err := fn(tx); err != nil {
		return nil, err
	}
	if !tx.Changed() {
		return current, nil
	}
	saved, err := e.store.SaveAtomic(ctx, tx.Transfer, expected, tx.entries)
	if err != nil {
		return nil, fmt.Errorf("save transfer %d: %w", id, err)
	}
	e.afterCommit(ctx, saved, tx)
	return saved, nil
}

// Annotate appends a history entry without touching the aggregate.
func (e *Engine) Annotate(ctx context.Context, t *model.Transfer, actor *model.Actor, action, description string, metadata map[string]any) error {
	entry := e.emitter.Record(t.ID, actor, action, description, metadata)
	if err := e.store.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("append history for %s: %w", t.Reference, err)
	}
	e.emitter.Publish(ctx, t, []model.HistoryEntry{entry})
	return nil
}

func (e *Engine) afterCommit(ctx context.Context, saved *model.Transfer, tx *Txn) {
	e.emitter.Publish(ctx, saved, tx.entries)
	for _, ch := range tx.changes {
		e.logger.Info("transfer transition",
			"transfer", saved.ID,
			"reference", saved.Reference,
			"from", ch.From,
			"to", ch.To,
			"action", ch.Entry.Action,
		)
	}
	e.mu.RLock()
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.RUnlock()
	for _, ch := range tx.changes {
		ch.Transfer = saved.Clone()
		ch.Entry.TransferID = saved.ID
		for _, l := range listeners {
			l(ctx, ch)
		}
	}
}
