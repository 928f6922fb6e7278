// Package search provides full-text search over events: Meilisearch when
// configured and healthy, a SQL ILIKE fallback otherwise.
package search

import (
	"context"
	"time"

	"tribunalsync/client/internal/store"
)

// Query is a search request over the event collection.
type Query struct {
	Text         string
	FilterUnitID string
	FilterType   string
	Limit        int
}

// Result is one search hit.
type Result struct {
	ID        string
	Title     string
	Snippet   string
	UnitID    string
	Type      string
	Status    string
	StartTime time.Time
}

// EventRecord is the indexable shape of an event.
type EventRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	UnitID      string `json:"unitId"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	StartTime   string `json:"startTime"`
}

// RecordFromEvent converts a store event into its indexable shape.
func RecordFromEvent(e store.Event) EventRecord {
	return EventRecord{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		UnitID:      e.UnitID,
		Type:        e.Type,
		Status:      e.Status,
		StartTime:   e.StartTime.Format(time.RFC3339),
	}
}

// Fallback is the store-backed searcher used when Meilisearch is absent.
type Fallback interface {
	SearchEvents(ctx context.Context, query string, limit int) ([]store.Event, error)
}
