// Package analysis builds an executive summary of one day's agenda. The
// report is computed locally over the replicated events; no external service
// is involved.
package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tribunalsync/client/internal/store"
)

// Conflict is a pair of events whose time slots overlap on the same day.
type Conflict struct {
	FirstID     string
	FirstTitle  string
	SecondID    string
	SecondTitle string
	UnitName    string
}

// Report summarizes one day's agenda. Summary carries the rendered text the
// UI shows verbatim.
type Report struct {
	Date        time.Time
	TotalEvents int
	Conflicts   []Conflict
	BusiestUnit string
	BusiestLoad int
	Summary     string
}

// heavyLoadThreshold is the per-unit event count past which the summary
// recommends spreading the load.
const heavyLoadThreshold = 4

// Analyze computes the report for the calendar day of `day`. Cancelled events
// occupy no slot and are ignored. unitName maps a unit id to a display label.
func Analyze(day time.Time, events []store.Event, unitName func(string) string) Report {
	if unitName == nil {
		unitName = func(string) string { return "" }
	}

	dayKey := day.Format("2006-01-02")
	var agenda []store.Event
	for _, e := range events {
		if e.Status == store.StatusCancelled {
			continue
		}
		if e.StartTime.Format("2006-01-02") != dayKey {
			continue
		}
		agenda = append(agenda, e)
	}
	sort.Slice(agenda, func(i, j int) bool {
		if !agenda[i].StartTime.Equal(agenda[j].StartTime) {
			return agenda[i].StartTime.Before(agenda[j].StartTime)
		}
		return agenda[i].ID < agenda[j].ID
	})

	r := Report{Date: day, TotalEvents: len(agenda)}
	r.Conflicts = findConflicts(agenda, unitName)
	r.BusiestUnit, r.BusiestLoad = busiestUnit(agenda, unitName)
	r.Summary = render(r)
	return r
}

func findConflicts(agenda []store.Event, unitName func(string) string) []Conflict {
	var conflicts []Conflict
	for i := 0; i < len(agenda); i++ {
		a := agenda[i]
		end := a.EndTime
		if !end.After(a.StartTime) {
			end = a.StartTime.Add(time.Hour)
		}
		for j := i + 1; j < len(agenda); j++ {
			b := agenda[j]
			if !b.StartTime.Before(end) {
				break // agenda is sorted, nothing later can overlap a
			}
			conflicts = append(conflicts, Conflict{
				FirstID:     a.ID,
				FirstTitle:  a.Title,
				SecondID:    b.ID,
				SecondTitle: b.Title,
				UnitName:    unitName(a.UnitID),
			})
		}
	}
	return conflicts
}

func busiestUnit(agenda []store.Event, unitName func(string) string) (string, int) {
	counts := make(map[string]int)
	for _, e := range agenda {
		counts[e.UnitID]++
	}
	var busiestID string
	var busiest int
	for id, n := range counts {
		if n > busiest || (n == busiest && unitName(id) < unitName(busiestID)) {
			busiestID, busiest = id, n
		}
	}
	if busiestID == "" {
		return "", 0
	}
	return unitName(busiestID), busiest
}

func render(r Report) string {
	if r.TotalEvents == 0 {
		return fmt.Sprintf("Agenda del %s: sin actividades programadas.", r.Date.Format("02/01/2006"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Agenda del %s: %d %s.",
		r.Date.Format("02/01/2006"), r.TotalEvents, plural(r.TotalEvents, "actividad programada", "actividades programadas"))

	if len(r.Conflicts) == 0 {
		b.WriteString(" Sin conflictos de horario.")
	} else {
		for _, c := range r.Conflicts {
			fmt.Fprintf(&b, " Conflicto de horario: %q se solapa con %q", c.FirstTitle, c.SecondTitle)
			if c.UnitName != "" {
				fmt.Fprintf(&b, " (%s)", c.UnitName)
			}
			b.WriteString(".")
		}
	}

	if r.BusiestUnit != "" {
		fmt.Fprintf(&b, " La unidad con más carga es %s con %d %s.",
			r.BusiestUnit, r.BusiestLoad, plural(r.BusiestLoad, "actividad", "actividades"))
	}

	switch {
	case len(r.Conflicts) > 0:
		fmt.Fprintf(&b, " Recomendación: reprogramar %q para eliminar el solape.", r.Conflicts[0].SecondTitle)
	case r.BusiestLoad >= heavyLoadThreshold:
		fmt.Fprintf(&b, " Recomendación: distribuir parte de la carga de %s en otros días.", r.BusiestUnit)
	default:
		b.WriteString(" La carga del día está equilibrada.")
	}
	return b.String()
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
