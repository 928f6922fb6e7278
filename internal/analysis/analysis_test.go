package analysis

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"tribunalsync/client/internal/store"
)

var unitNames = map[string]string{
	"unit_civil": "Civil",
	"unit_penal": "Penal",
}

func lookupUnit(id string) string {
	if name, ok := unitNames[id]; ok {
		return name
	}
	return "Desconocida"
}

func event(id, title, unitID string, start time.Time, d time.Duration, status string) store.Event {
	return store.Event{
		ID:        id,
		Title:     title,
		UnitID:    unitID,
		StartTime: start,
		EndTime:   start.Add(d),
		Type:      store.EventTypeHearing,
		Status:    status,
	}
}

func TestAnalyzeDetectsOverlap(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	nine := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	r := Analyze(day, []store.Event{
		event("e1", "Audiencia preliminar", "unit_civil", nine, time.Hour, store.StatusPending),
		event("e2", "Reunión de equipo", "unit_civil", nine.Add(30*time.Minute), time.Hour, store.StatusPending),
		event("e3", "Tarea", "unit_penal", nine.Add(3*time.Hour), time.Hour, store.StatusPending),
	}, lookupUnit)

	if r.TotalEvents != 3 {
		t.Fatalf("TotalEvents = %d, want 3", r.TotalEvents)
	}
	if len(r.Conflicts) != 1 {
		t.Fatalf("Conflicts = %+v, want exactly one", r.Conflicts)
	}
	c := r.Conflicts[0]
	if c.FirstID != "e1" || c.SecondID != "e2" || c.UnitName != "Civil" {
		t.Fatalf("unexpected conflict %+v", c)
	}
	if !strings.Contains(r.Summary, "Conflicto de horario") {
		t.Fatalf("summary should mention the conflict: %s", r.Summary)
	}
	if !strings.Contains(r.Summary, "Reunión de equipo") {
		t.Fatalf("recommendation should name the overlapping event: %s", r.Summary)
	}
}

func TestAnalyzeIgnoresCancelledAndOtherDays(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	nine := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	r := Analyze(day, []store.Event{
		event("e1", "Audiencia", "unit_civil", nine, time.Hour, store.StatusPending),
		event("e2", "Cancelada", "unit_civil", nine, time.Hour, store.StatusCancelled),
		event("e3", "Mañana", "unit_civil", nine.Add(24*time.Hour), time.Hour, store.StatusPending),
	}, lookupUnit)

	if r.TotalEvents != 1 {
		t.Fatalf("TotalEvents = %d, want 1", r.TotalEvents)
	}
	if len(r.Conflicts) != 0 {
		t.Fatalf("a cancelled event must not conflict, got %+v", r.Conflicts)
	}
	if !strings.Contains(r.Summary, "Sin conflictos de horario") {
		t.Fatalf("summary = %s", r.Summary)
	}
}

func TestAnalyzeBusiestUnitAndLoadRecommendation(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	var events []store.Event
	for i := 0; i < 4; i++ {
		events = append(events, event(
			fmt.Sprintf("c%d", i), "Audiencia", "unit_civil",
			base.Add(time.Duration(i)*2*time.Hour), time.Hour, store.StatusPending))
	}
	events = append(events, event("p1", "Reunión", "unit_penal", base.Add(time.Hour), 30*time.Minute, store.StatusPending))

	r := Analyze(day, events, lookupUnit)
	if r.BusiestUnit != "Civil" || r.BusiestLoad != 4 {
		t.Fatalf("busiest = %s/%d, want Civil/4", r.BusiestUnit, r.BusiestLoad)
	}
	if !strings.Contains(r.Summary, "distribuir parte de la carga de Civil") {
		t.Fatalf("summary should recommend spreading the load: %s", r.Summary)
	}
}

func TestAnalyzeZeroDurationTakesAnHourSlot(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	nine := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	reminder := event("e1", "Recordatorio", "unit_civil", nine, 0, store.StatusPending)
	reminder.EndTime = reminder.StartTime
	r := Analyze(day, []store.Event{
		reminder,
		event("e2", "Audiencia", "unit_civil", nine.Add(30*time.Minute), time.Hour, store.StatusPending),
	}, lookupUnit)

	if len(r.Conflicts) != 1 {
		t.Fatalf("an event without an end time should block an hour, got %+v", r.Conflicts)
	}
}

func TestAnalyzeEmptyDay(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	r := Analyze(day, nil, nil)
	if r.TotalEvents != 0 || len(r.Conflicts) != 0 {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Summary != "Agenda del 01/03/2024: sin actividades programadas." {
		t.Fatalf("summary = %s", r.Summary)
	}
}
