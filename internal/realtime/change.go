// Package realtime carries row-level change notifications between clients
// over Redis pub/sub: one logical channel per watched collection.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"tribunalsync/client/internal/store"
)

const (
	channelEvents = "tribunal.changes.events"
	channelUnits  = "tribunal.changes.units"
)

// Change is the wire format of one notification. Row is the serialized new
// row (or just the id for deletes).
type Change struct {
	Table string          `json:"table"`
	Kind  string          `json:"kind"`
	Row   json.RawMessage `json:"row"`
}

// EventRow is an event as it travels over the wire. Timestamps are RFC3339
// strings and must be rehydrated before the row enters the replica.
type EventRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	UnitID      string `json:"unit_id"`
	CreatedBy   string `json:"created_by"`
	Type        string `json:"type"`
	Status      string `json:"status"`
}

// Rehydrate converts the wire row into a native event. Blank timestamps are
// allowed on deletes, where only the id matters.
func (r EventRow) Rehydrate() (store.Event, error) {
	e := store.Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		UnitID:      r.UnitID,
		CreatedBy:   r.CreatedBy,
		Type:        r.Type,
		Status:      r.Status,
	}
	var err error
	if r.StartTime != "" {
		if e.StartTime, err = time.Parse(time.RFC3339Nano, r.StartTime); err != nil {
			return store.Event{}, fmt.Errorf("parse start_time: %w", err)
		}
	}
	if r.EndTime != "" {
		if e.EndTime, err = time.Parse(time.RFC3339Nano, r.EndTime); err != nil {
			return store.Event{}, fmt.Errorf("parse end_time: %w", err)
		}
	}
	return e, nil
}

func eventToRow(e store.Event) EventRow {
	row := EventRow{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		UnitID:      e.UnitID,
		CreatedBy:   e.CreatedBy,
		Type:        e.Type,
		Status:      e.Status,
	}
	if !e.StartTime.IsZero() {
		row.StartTime = e.StartTime.Format(time.RFC3339Nano)
	}
	if !e.EndTime.IsZero() {
		row.EndTime = e.EndTime.Format(time.RFC3339Nano)
	}
	return row
}

// UnitRow is a unit as it travels over the wire.
type UnitRow struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (r UnitRow) Rehydrate() store.Unit {
	return store.Unit{ID: r.ID, Name: r.Name, Color: r.Color}
}

func unitToRow(u store.Unit) UnitRow {
	return UnitRow{ID: u.ID, Name: u.Name, Color: u.Color}
}

// DecodeChange parses a raw pub/sub payload.
func DecodeChange(payload []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	if c.Table == "" || c.Kind == "" {
		return Change{}, fmt.Errorf("decode change: missing table or kind")
	}
	return c, nil
}
