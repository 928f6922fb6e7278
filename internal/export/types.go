// Package export turns a materialized schedule snapshot into downloadable
// documents. All transforms are pure over the snapshot; nothing here touches
// the replica or the backend.
package export

import (
	"errors"
	"time"

	"tribunalsync/client/internal/store"
)

type Format string

const (
	FormatPDF Format = "pdf"
	FormatCSV Format = "csv"
)

// Row is one exported event with its unit reference resolved to a label.
type Row struct {
	Title       string
	Unit        string
	StartTime   time.Time
	EndTime     time.Time
	Type        string
	Status      string
	Description string
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")

// Rows materializes the snapshot, resolving unit labels through unitName
// (which degrades dangling references to a fallback label).
func Rows(events []store.Event, unitName func(unitID string) string) []Row {
	rows := make([]Row, 0, len(events))
	for _, e := range events {
		rows = append(rows, Row{
			Title:       e.Title,
			Unit:        unitName(e.UnitID),
			StartTime:   e.StartTime,
			EndTime:     e.EndTime,
			Type:        e.Type,
			Status:      e.Status,
			Description: e.Description,
		})
	}
	return rows
}
