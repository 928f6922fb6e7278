package replica

import (
	"errors"
	"testing"
	"time"

	"tribunalsync/client/internal/store"
)

func event(id, title string) store.Event {
	return store.Event{
		ID:        id,
		Title:     title,
		StartTime: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		UnitID:    "unit_civil",
		Type:      store.EventTypeHearing,
		Status:    store.StatusPending,
	}
}

func TestLoadInitialRunsOnce(t *testing.T) {
	r := New()
	r.LoadInitial([]store.Unit{{ID: "u1", Name: "Civil"}}, []store.Event{event("e1", "Audiencia")})
	if !r.Loaded() {
		t.Fatal("replica should report loaded")
	}

	// A second bulk load must not clobber live state.
	r.LoadInitial(nil, nil)
	if len(r.Events("", "")) != 1 || r.UnitCount() != 1 {
		t.Error("second LoadInitial must be a no-op")
	}
}

func TestApplyInsertIsIdempotent(t *testing.T) {
	r := New()
	r.LoadInitial(nil, nil)

	e := event("e1", "Audiencia")
	r.ApplyEventChange(store.ChangeInsert, e)
	r.ApplyEventChange(store.ChangeInsert, e)

	events := r.Events("", "")
	if len(events) != 1 {
		t.Fatalf("duplicate INSERT produced %d events, want 1", len(events))
	}
}

func TestApplyInsertReplacesOptimisticCopy(t *testing.T) {
	r := New()
	r.LoadInitial(nil, nil)

	r.UpsertEvent(event("e1", "Borrador"))
	confirmed := event("e1", "Audiencia confirmada")
	r.ApplyEventChange(store.ChangeInsert, confirmed)

	events := r.Events("", "")
	if len(events) != 1 {
		t.Fatalf("echo after optimistic add produced %d events, want 1", len(events))
	}
	if events[0].Title != "Audiencia confirmada" {
		t.Errorf("authoritative echo should replace the optimistic copy, got %q", events[0].Title)
	}
}

func TestApplyUpdateAfterDeleteIsNoOp(t *testing.T) {
	r := New()
	r.LoadInitial(nil, []store.Event{event("e1", "Audiencia")})

	r.ApplyEventChange(store.ChangeDelete, store.Event{ID: "e1"})
	r.ApplyEventChange(store.ChangeUpdate, event("e1", "Reprogramada"))

	if _, ok := r.Event("e1"); ok {
		t.Error("UPDATE arriving after DELETE must not resurrect the event")
	}
}

func TestLastAppliedWins(t *testing.T) {
	// The transport has no ordering token, so a duplicated older UPDATE
	// re-applied last is the final state. Intended behavior, not a bug.
	r := New()
	r.LoadInitial(nil, []store.Event{event("e1", "v0")})

	versionA := event("e1", "version A")
	versionB := event("e1", "version B")
	r.ApplyEventChange(store.ChangeUpdate, versionA)
	r.ApplyEventChange(store.ChangeUpdate, versionB)
	r.ApplyEventChange(store.ChangeUpdate, versionA)

	got, _ := r.Event("e1")
	if got.Title != "version A" {
		t.Errorf("last applied change should win, got %q", got.Title)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	r := New()
	r.LoadInitial(nil, []store.Event{event("e1", "Audiencia")})

	r.ApplyEventChange(store.ChangeDelete, store.Event{ID: "e1"})
	r.ApplyEventChange(store.ChangeDelete, store.Event{ID: "e1"})
	if len(r.Events("", "")) != 0 {
		t.Error("repeated DELETE should be a no-op")
	}
}

func TestRemoveUnitRejectsLastUnit(t *testing.T) {
	r := New()
	r.LoadInitial([]store.Unit{{ID: "u1", Name: "Civil"}}, nil)

	if err := r.RemoveUnit("u1"); !errors.Is(err, ErrLastUnit) {
		t.Fatalf("expected ErrLastUnit, got %v", err)
	}
	if r.UnitCount() != 1 {
		t.Error("unit collection must be unchanged after a rejected delete")
	}
}

func TestRemoveUnitAllowsNonLast(t *testing.T) {
	r := New()
	r.LoadInitial([]store.Unit{{ID: "u1", Name: "Civil"}, {ID: "u2", Name: "Penal"}}, nil)

	if err := r.RemoveUnit("u1"); err != nil {
		t.Fatalf("RemoveUnit() error = %v", err)
	}
	if r.UnitCount() != 1 {
		t.Errorf("expected 1 unit left, got %d", r.UnitCount())
	}
}

func TestEventFilters(t *testing.T) {
	r := New()
	e1 := event("e1", "Audiencia Civil")
	e2 := event("e2", "Tarea Penal")
	e2.UnitID = "unit_penal"
	e2.Type = store.EventTypeTask
	r.LoadInitial(nil, []store.Event{e1, e2})

	if got := r.Events("unit_penal", ""); len(got) != 1 || got[0].ID != "e2" {
		t.Errorf("unit filter: got %+v", got)
	}
	if got := r.Events("", store.EventTypeTask); len(got) != 1 || got[0].ID != "e2" {
		t.Errorf("type filter: got %+v", got)
	}
	if got := r.Events("unit_civil", store.EventTypeTask); len(got) != 0 {
		t.Errorf("combined filter: got %+v", got)
	}
	if got := r.Events("", ""); len(got) != 2 {
		t.Errorf("no filter: got %d events", len(got))
	}
}

func TestUnitNameFallback(t *testing.T) {
	r := New()
	r.LoadInitial([]store.Unit{{ID: "u1", Name: "Civil"}}, nil)

	if name := r.UnitName("u1"); name != "Civil" {
		t.Errorf("UnitName(u1) = %q", name)
	}
	if name := r.UnitName("dangling"); name != "Desconocida" {
		t.Errorf("dangling unit reference should fall back, got %q", name)
	}
}

func TestResetClearsEverything(t *testing.T) {
	r := New()
	r.LoadInitial([]store.Unit{{ID: "u1"}}, []store.Event{event("e1", "Audiencia")})
	r.Reset()

	if r.Loaded() || r.UnitCount() != 0 || len(r.Events("", "")) != 0 {
		t.Error("Reset must drop all state")
	}
	// A new session can load again.
	r.LoadInitial([]store.Unit{{ID: "u2"}}, nil)
	if r.UnitCount() != 1 {
		t.Error("replica must be loadable after Reset")
	}
}
