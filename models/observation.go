package models

import (
	"encoding/json"
	"sort"
	"time"
)

// Granularity is the period unit a source publishes at.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityMonthly Granularity = "monthly"
)

// Layout returns the time layout period keys of this granularity follow.
func (g Granularity) Layout() string {
	switch g {
	case GranularityDaily:
		return "2006-01-02"
	case GranularityMonthly:
		return "2006-01"
	default:
		return ""
	}
}

// Observation is one fetched set of readings for a source and period.
type Observation struct {
	SourceID   string
	PeriodKey  string
	CapturedAt time.Time
	Fields     map[string]Value
	Units      map[string]string
	// Categories maps a metric name to the group it is rendered under.
	Categories map[string]string
	Meta       map[string]string
}

// Measurement is the value and unit of one metric inside a snapshot file.
type Measurement struct {
	Value Value  `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

type snapshotDocument struct {
	SourceID   string                            `json:"source_id"`
	PeriodKey  string                            `json:"period_key"`
	CapturedAt time.Time                         `json:"captured_at"`
	Meta       map[string]string                 `json:"meta,omitempty"`
	Metrics    map[string]Measurement            `json:"metrics,omitempty"`
	Groups     map[string]map[string]Measurement `json:"groups,omitempty"`
}

// Metrics returns the metric names sorted ascending.
func (o *Observation) Metrics() []string {
	names := make([]string, 0, len(o.Fields))
	for name := range o.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rows projects the observation to one row per present metric, sorted by metric.
func (o *Observation) Rows() []Row {
	rows := make([]Row, 0, len(o.Fields))
	for _, name := range o.Metrics() {
		v := o.Fields[name]
		if !v.IsPresent() {
			continue
		}
		rows = append(rows, Row{
			PeriodKey:  o.PeriodKey,
			CapturedAt: o.CapturedAt,
			Metric:     name,
			Value:      v,
		})
	}
	return rows
}

func (o Observation) MarshalJSON() ([]byte, error) {
	doc := snapshotDocument{
		SourceID:   o.SourceID,
		PeriodKey:  o.PeriodKey,
		CapturedAt: o.CapturedAt.UTC(),
		Meta:       o.Meta,
	}
	for name, v := range o.Fields {
		m := Measurement{Value: v, Unit: o.Units[name]}
		if cat := o.Categories[name]; cat != "" {
			if doc.Groups == nil {
				doc.Groups = make(map[string]map[string]Measurement)
			}
			if doc.Groups[cat] == nil {
				doc.Groups[cat] = make(map[string]Measurement)
			}
			doc.Groups[cat][name] = m
			continue
		}
		if doc.Metrics == nil {
			doc.Metrics = make(map[string]Measurement)
		}
		doc.Metrics[name] = m
	}
	return json.Marshal(doc)
}

func (o *Observation) UnmarshalJSON(b []byte) error {
	var doc snapshotDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	*o = Observation{
		SourceID:   doc.SourceID,
		PeriodKey:  doc.PeriodKey,
		CapturedAt: doc.CapturedAt,
		Meta:       doc.Meta,
		Fields:     make(map[string]Value),
	}
	add := func(name, category string, m Measurement) {
		o.Fields[name] = m.Value
		if m.Unit != "" {
			if o.Units == nil {
				o.Units = make(map[string]string)
			}
			o.Units[name] = m.Unit
		}
		if category != "" {
			if o.Categories == nil {
				o.Categories = make(map[string]string)
			}
			o.Categories[name] = category
		}
	}
	for name, m := range doc.Metrics {
		add(name, "", m)
	}
	for cat, metrics := range doc.Groups {
		for name, m := range metrics {
			add(name, cat, m)
		}
	}
	return nil
}
