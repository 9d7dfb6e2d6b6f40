package models

import (
	"fmt"
	"time"
)

// RowHeader is the column layout shared by latest files and history logs.
var RowHeader = []string{"period_key", "captured_at", "metric", "value"}

// Row is a single metric reading in tabular form.
type Row struct {
	PeriodKey  string
	CapturedAt time.Time
	Metric     string
	Value      Value
}

// Record renders the row as CSV fields in RowHeader order.
func (r Row) Record() []string {
	return []string{
		r.PeriodKey,
		r.CapturedAt.UTC().Format(time.RFC3339),
		r.Metric,
		r.Value.String(),
	}
}

// ParseRow reads a CSV record written by Record.
func ParseRow(rec []string) (Row, error) {
	if len(rec) != len(RowHeader) {
		return Row{}, fmt.Errorf("expected %d columns, got %d", len(RowHeader), len(rec))
	}
	ts, err := time.Parse(time.RFC3339, rec[1])
	if err != nil {
		return Row{}, fmt.Errorf("parse captured_at: %w", err)
	}
	v, err := ParseValue(rec[3])
	if err != nil {
		return Row{}, err
	}
	return Row{PeriodKey: rec[0], CapturedAt: ts, Metric: rec[2], Value: v}, nil
}
