// Package identity resolves actor ids to names and roles.
package identity

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// MemoryDirectory is a fixed roster, seeded from configuration.
type MemoryDirectory struct {
	mu     sync.RWMutex
	actors map[int64]model.Actor
}

// NewMemoryDirectory constructs a directory holding actors.
func NewMemoryDirectory(actors ...model.Actor) *MemoryDirectory {
	d := &MemoryDirectory{actors: make(map[int64]model.Actor, len(actors))}
	for _, a := range actors {
		d.actors[a.ID] = a
	}
	return d
}

// Put adds or replaces an actor.
func (d *MemoryDirectory) Put(a model.Actor) error {
	if !a.Role.Valid() {
		return model.Validationf("unknown role %q", a.Role)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actors[a.ID] = a
	return nil
}

// Lookup returns the actor with id.
func (d *MemoryDirectory) Lookup(_ context.Context, id int64) (model.Actor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.actors[id]
	if !ok {
		return model.Actor{}, model.NotFoundf("user %d not found", id)
	}
	return a, nil
}

// ListByRole returns the actors holding role, ordered by id.
func (d *MemoryDirectory) ListByRole(_ context.Context, role model.Role) ([]model.Actor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []model.Actor
	for _, a := range d.actors {
		if a.Role == role {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ParseSeed parses "id:name:role" entries, as used in configuration.
func ParseSeed(entries []string) ([]model.Actor, error) {
	out := make([]model.Actor, 0, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("seed user %q: want id:name:role", raw)
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("seed user %q: %w", raw, err)
		}
		role, err := model.ParseRole(parts[2])
		if err != nil {
			return nil, fmt.Errorf("seed user %q: %w", raw, err)
		}
		out = append(out, model.Actor{ID: id, Name: parts[1], Role: role})
	}
	return out, nil
}
