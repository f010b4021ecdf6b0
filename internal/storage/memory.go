// Package storage contains the in-memory transfer repository used by the
// single-binary server and by tests.
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// MemoryStore keeps transfers and their history in maps guarded by an
// RWMutex. Every read returns a deep copy.
type MemoryStore struct {
	mu        sync.RWMutex
	transfers map[int64]*model.Transfer
	history   map[int64][]model.HistoryEntry
	nextID    int64
	nextFile  int64
	nextEntry int64
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transfers: make(map[int64]*model.Transfer),
		history:   make(map[int64][]model.HistoryEntry),
	}
}

// Create assigns ids, the reference code and version 1, then stores the
// transfer with its initial history.
func (m *MemoryStore) Create(_ context.Context, t *model.Transfer, history []model.HistoryEntry) (*model.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec := t.Clone()
	rec.ID = m.nextID
	rec.Reference = model.ReferenceFor(rec.ID)
	rec.Version = 1
	for i := range rec.Files {
		m.nextFile++
		rec.Files[i].ID = m.nextFile
	}
	m.transfers[rec.ID] = rec
	m.appendLocked(rec.ID, history)
	return rec.Clone(), nil
}

// Load returns a copy of the transfer.
func (m *MemoryStore) Load(_ context.Context, id int64) (*model.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.transfers[id]
	if !ok {
		return nil, model.NotFoundf("transfer %d not found", id)
	}
	return rec.Clone(), nil
}

// SaveAtomic replaces the transfer and appends history when the stored
// version still equals expectedVersion.
func (m *MemoryStore) SaveAtomic(_ context.Context, t *model.Transfer, expectedVersion int64, history []model.HistoryEntry) (*model.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.transfers[t.ID]
	if !ok {
		return nil, model.NotFoundf("transfer %d not found", t.ID)
	}
	if rec.Version != expectedVersion {
		return nil, model.ConcurrentModificationf("%s changed (version %d, expected %d)", rec.Reference, rec.Version, expectedVersion)
	}
	next := t.Clone()
	next.Reference = rec.Reference
	next.CreatedAt = rec.CreatedAt
	next.Version = expectedVersion + 1
	m.transfers[t.ID] = next
	m.appendLocked(t.ID, history)
	return next.Clone(), nil
}

// AppendHistory adds one entry outside a transition.
func (m *MemoryStore) AppendHistory(_ context.Context, entry model.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transfers[entry.TransferID]; !ok {
		return model.NotFoundf("transfer %d not found", entry.TransferID)
	}
	m.appendLocked(entry.TransferID, []model.HistoryEntry{entry})
	return nil
}

func (m *MemoryStore) appendLocked(transferID int64, entries []model.HistoryEntry) {
	for _, e := range entries {
		m.nextEntry++
		e.ID = m.nextEntry
		e.TransferID = transferID
		m.history[transferID] = append(m.history[transferID], e)
	}
}

// History returns the entries of one transfer in insertion order.
func (m *MemoryStore) History(_ context.Context, transferID int64) ([]model.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.history[transferID]
	out := make([]model.HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// List returns matching transfers, newest first, and the total match count.
func (m *MemoryStore) List(_ context.Context, f model.Filter) ([]*model.Transfer, int, error) {
	m.mu.RLock()
	matched := make([]*model.Transfer, 0, len(m.transfers))
	for _, t := range m.transfers {
		if Matches(f, t) {
			matched = append(matched, t.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	if f.Offset >= total {
		return []*model.Transfer{}, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

// CountByStatus counts transfers per status.
func (m *MemoryStore) CountByStatus(_ context.Context) (map[model.Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.Status]int)
	for _, t := range m.transfers {
		out[t.Status]++
	}
	return out, nil
}

// Matches reports whether t satisfies every set field of f. An admin
// AwaitingRole matches every transfer that is waiting on any approver.
func Matches(f model.Filter, t *model.Transfer) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SubmitterID != nil && t.SubmitterID != *f.SubmitterID {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.AwaitingRole != "" {
		role, ok := t.Status.PendingRole()
		if !ok || (f.AwaitingRole != model.RoleAdmin && role != f.AwaitingRole) {
			return false
		}
	}
	if f.UpdatedBefore != nil && !t.UpdatedAt.Before(*f.UpdatedBefore) {
		return false
	}
	return true
}
