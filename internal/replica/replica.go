// Package replica holds the in-memory mirror of the remote unit and event
// collections. It is the single source of truth for the rendering layer and
// is mutated only by the initial bulk load and by applied change
// notifications.
package replica

import (
	"sort"
	"sync"

	"tribunalsync/client/internal/store"
)

// ErrLastUnit is the store-side invariant, enforced here too for the
// local-only variant so callers match one sentinel.
var ErrLastUnit = store.ErrLastUnit

// Replica is keyed by id, so applying the same notification twice, or
// applying notifications out of order, can never produce duplicates:
// INSERT and UPDATE replace, DELETE removes, and the last applied change
// wins. That is the whole concurrency story; the transport provides no
// ordering token to do better.
type Replica struct {
	mu     sync.RWMutex
	events map[string]store.Event
	units  map[string]store.Unit
	loaded bool
}

func New() *Replica {
	return &Replica{
		events: make(map[string]store.Event),
		units:  make(map[string]store.Unit),
	}
}

// LoadInitial replaces both collections wholesale. Runs once per authorized
// session; later calls are ignored so a re-check cannot clobber live state.
func (r *Replica) LoadInitial(units []store.Unit, events []store.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return
	}
	r.loaded = true
	r.units = make(map[string]store.Unit, len(units))
	for _, u := range units {
		r.units[u.ID] = u
	}
	r.events = make(map[string]store.Event, len(events))
	for _, e := range events {
		r.events[e.ID] = e
	}
}

func (r *Replica) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Reset drops all state. Called on sign-out so nothing leaks across
// identities; the next session rebuilds from scratch.
func (r *Replica) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.events = make(map[string]store.Event)
	r.units = make(map[string]store.Unit)
}

// ApplyEventChange folds a row-level notification into the event mirror.
func (r *Replica) ApplyEventChange(kind string, e store.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch kind {
	case store.ChangeInsert:
		r.events[e.ID] = e
	case store.ChangeUpdate:
		// No-op when a delete raced ahead of the update.
		if _, ok := r.events[e.ID]; ok {
			r.events[e.ID] = e
		}
	case store.ChangeDelete:
		delete(r.events, e.ID)
	}
}

// ApplyUnitChange folds a row-level notification into the unit mirror.
func (r *Replica) ApplyUnitChange(kind string, u store.Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch kind {
	case store.ChangeInsert:
		r.units[u.ID] = u
	case store.ChangeUpdate:
		if _, ok := r.units[u.ID]; ok {
			r.units[u.ID] = u
		}
	case store.ChangeDelete:
		delete(r.units, u.ID)
	}
}

// UpsertEvent is the local-only mutation path (no realtime echo).
func (r *Replica) UpsertEvent(e store.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.ID] = e
}

// RemoveEvent is the local-only deletion path.
func (r *Replica) RemoveEvent(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, id)
}

// UpsertUnit is the local-only mutation path for units.
func (r *Replica) UpsertUnit(u store.Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[u.ID] = u
}

// RemoveUnit deletes a unit locally, rejecting removal of the last one.
func (r *Replica) RemoveUnit(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[id]; !ok {
		return nil
	}
	if len(r.units) <= 1 {
		return ErrLastUnit
	}
	delete(r.units, id)
	return nil
}

func (r *Replica) Event(id string) (store.Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	return e, ok
}

func (r *Replica) Unit(id string) (store.Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[id]
	return u, ok
}

// UnitName resolves a unit label for display, degrading gracefully when the
// reference dangles.
func (r *Replica) UnitName(id string) string {
	if u, ok := r.Unit(id); ok {
		return u.Name
	}
	return "Desconocida"
}

func (r *Replica) Units() []store.Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	units := make([]store.Unit, 0, len(r.units))
	for _, u := range r.units {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units
}

func (r *Replica) UnitCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}

// Events returns all events matching the given filters. Empty unitID or
// eventType means no filtering on that axis. The result is sorted by start
// time for stable rendering.
func (r *Replica) Events(unitID, eventType string) []store.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := make([]store.Event, 0, len(r.events))
	for _, e := range r.events {
		if unitID != "" && e.UnitID != unitID {
			continue
		}
		if eventType != "" && e.Type != eventType {
			continue
		}
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].StartTime.Equal(events[j].StartTime) {
			return events[i].ID < events[j].ID
		}
		return events[i].StartTime.Before(events[j].StartTime)
	})
	return events
}

// Snapshot returns a copy of both collections for export and share links.
func (r *Replica) Snapshot() ([]store.Unit, []store.Event) {
	return r.Units(), r.Events("", "")
}
