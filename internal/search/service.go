package search

import (
	"context"
	"log"
)

// Service tries Meilisearch first and falls back to the row store.
type Service struct {
	meili    *Meili
	fallback Fallback
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, fallback Fallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search queries Meilisearch when healthy, the row store otherwise.
func (s *Service) Search(ctx context.Context, q Query) []Result {
	if s.meili != nil && s.meili.Healthy() {
		results, err := s.meili.Search(q)
		if err == nil {
			return nonNil(results)
		}
		log.Printf("search: meilisearch error, falling back to store: %v", err)
	}

	if s.fallback == nil {
		return []Result{}
	}

	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	events, err := s.fallback.SearchEvents(ctx, q.Text, limit)
	if err != nil {
		log.Printf("search: store fallback error: %v", err)
		return []Result{}
	}

	results := make([]Result, 0, len(events))
	for _, e := range events {
		if q.FilterUnitID != "" && e.UnitID != q.FilterUnitID {
			continue
		}
		if q.FilterType != "" && e.Type != q.FilterType {
			continue
		}
		results = append(results, Result{
			ID:        e.ID,
			Title:     e.Title,
			Snippet:   e.Description,
			UnitID:    e.UnitID,
			Type:      e.Type,
			Status:    e.Status,
			StartTime: e.StartTime,
		})
	}
	return results
}

// IndexEvent pushes an event to Meilisearch, fire-and-forget.
func (s *Service) IndexEvent(record EventRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexEvent(record); err != nil {
			log.Printf("search: index event %s: %v", record.ID, err)
		}
	}()
}

// DeleteEvent removes an event from Meilisearch, fire-and-forget.
func (s *Service) DeleteEvent(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteEvent(id); err != nil {
			log.Printf("search: delete event %s: %v", id, err)
		}
	}()
}

// ReindexAll bulk-pushes the full event set to Meilisearch. Called after the
// initial load when Meilisearch is healthy.
func (s *Service) ReindexAll(records []EventRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexEvents(records); err != nil {
		log.Printf("search: reindex events: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
