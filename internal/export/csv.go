package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"
)

// CSV produces the spreadsheet-shaped export: the tabular columns plus the
// event description.
func CSV(rows []Row) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Título", "Unidad", "Inicio", "Fin", "Tipo", "Estado", "Descripción"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Title,
			row.Unit,
			row.StartTime.Format(time.RFC3339),
			row.EndTime.Format(time.RFC3339),
			strings.ToUpper(row.Type),
			strings.ToUpper(row.Status),
			row.Description,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: fmt.Sprintf("Agenda_Tribunal_%d.csv", time.Now().Unix()),
		MimeType: "text/csv; charset=utf-8",
	}, nil
}
