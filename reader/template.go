package reader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"econwatch/models"
)

// templateMetric is one reading a template source tracks even while its
// value is unknown.
type templateMetric struct {
	name     string
	category string
	unit     string
}

// placeholder marks a cell that still waits for a manual update.
const placeholder = "UPDATE_ME"

func newTemplateObservation(sourceID, period string, metrics []templateMetric) *models.Observation {
	obs := &models.Observation{
		SourceID:   sourceID,
		PeriodKey:  period,
		Fields:     make(map[string]models.Value, len(metrics)),
		Units:      make(map[string]string, len(metrics)),
		Categories: make(map[string]string, len(metrics)),
		Meta:       make(map[string]string),
	}
	for _, m := range metrics {
		obs.Fields[m.name] = models.Absent()
		if m.unit != "" {
			obs.Units[m.name] = m.unit
		}
		if m.category != "" {
			obs.Categories[m.name] = m.category
		}
	}
	return obs
}

// loadManualValues reads a hand-maintained CSV of readings. The header must
// name a metric column ("metric", "commodity" or "index") and a value
// column ("value" or "price"); an optional "date" or "period" column limits
// rows to one period. Empty and UPDATE_ME cells are skipped. A missing file
// yields no values.
func loadManualValues(path, period string) (map[string]models.Value, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	metricCol, valueCol, periodCol := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "metric", "commodity", "index":
			metricCol = i
		case "value", "price":
			valueCol = i
		case "date", "period", "period_key":
			periodCol = i
		}
	}
	if metricCol < 0 || valueCol < 0 {
		return nil, fmt.Errorf("%s: header needs a metric and a value column", path)
	}

	values := make(map[string]models.Value)
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if metricCol >= len(rec) || valueCol >= len(rec) {
			continue
		}
		if periodCol >= 0 && periodCol < len(rec) && rec[periodCol] != "" && rec[periodCol] != period {
			continue
		}
		raw := strings.TrimSpace(rec[valueCol])
		if raw == "" || strings.EqualFold(raw, placeholder) {
			continue
		}
		v, err := models.ParseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		values[strings.TrimSpace(rec[metricCol])] = v
	}
	return values, nil
}

// manualColumns names the metric and value columns of a source's manual
// file, e.g. Commodity/Price for commodity prices.
type manualColumns struct {
	metric string
	value  string
}

func (c manualColumns) header() []string {
	return []string{"Date", "Category", c.metric, "Unit", c.value, "Source"}
}

// ensureManualTemplate makes sure the manual file at path lists every metric
// for period, so an operator only has to replace the UPDATE_ME cells. A
// missing file is created with a header; an existing file gets placeholder
// rows appended when it has a date column but no row for period. It reports
// how many rows were written.
func ensureManualTemplate(path, period, sourceTitle string, cols manualColumns, metrics []templateMetric) (int, error) {
	if path == "" {
		return 0, nil
	}
	existing, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		existing = nil
	case err != nil:
		return 0, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(existing) == 0 {
		if err := w.Write(cols.header()); err != nil {
			return 0, err
		}
	} else {
		covered, err := manualFileCovers(existing, period)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", path, err)
		}
		if covered {
			return 0, nil
		}
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	for _, m := range metrics {
		if err := w.Write([]string{period, m.category, m.name, m.unit, placeholder, sourceTitle}); err != nil {
			return 0, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return len(metrics), nil
}

// manualFileCovers reports whether a manual file needs no new rows for
// period: either it has no date column or some row already names period.
func manualFileCovers(data []byte, period string) (bool, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return false, err
	}
	periodCol := -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date", "period", "period_key":
			periodCol = i
		}
	}
	if periodCol < 0 {
		return true, nil
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if periodCol < len(rec) && strings.TrimSpace(rec[periodCol]) == period {
			return true, nil
		}
	}
}

// applyManualValues copies known metrics from values into obs and returns
// how many were filled.
func applyManualValues(obs *models.Observation, values map[string]models.Value) (filled int, unknown []string) {
	for name, v := range values {
		if _, ok := obs.Fields[name]; !ok {
			unknown = append(unknown, name)
			continue
		}
		obs.Fields[name] = v
		filled++
	}
	return filled, unknown
}
