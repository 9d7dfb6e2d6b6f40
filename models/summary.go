package models

import "time"

// SummaryReport is the output of one summary generation run.
type SummaryReport struct {
	RunID       string                   `json:"run_id"`
	GeneratedAt time.Time                `json:"generated"`
	Sources     map[string]SourceSummary `json:"sources"`
	DataCounts  map[string]int           `json:"data_counts"`
}

// SourceSummary holds coverage statistics for one source.
type SourceSummary struct {
	SnapshotCount   int              `json:"snapshot_count"`
	HasLatest       bool             `json:"has_latest"`
	HistoryRows     int              `json:"history_rows"`
	DistinctPeriods int              `json:"distinct_periods"`
	Periods         []string         `json:"periods,omitempty"`
	EarliestPeriod  string           `json:"earliest_period,omitempty"`
	LatestPeriod    string           `json:"latest_period,omitempty"`
	KeyValues       map[string]Value `json:"key_values,omitempty"`
	Trends          map[string]Trend `json:"trends,omitempty"`
}

// Trend compares a metric between the earliest and latest period it appears in.
type Trend struct {
	FirstPeriod  string `json:"first_period"`
	First        Value  `json:"first"`
	LatestPeriod string `json:"latest_period"`
	Latest       Value  `json:"latest"`
	Change       Value  `json:"change"`
	ChangePct    Value  `json:"change_pct"`
}
