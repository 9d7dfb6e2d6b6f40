package writer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"econwatch/models"
)

// HistoryLog is the append-only CSV record of every archived reading for a
// source. It never rewrites earlier rows and does not deduplicate: appending
// the same period twice produces two sets of rows.
type HistoryLog struct {
	path string
}

func NewHistoryLog(path string) *HistoryLog {
	return &HistoryLog{path: path}
}

func (h *HistoryLog) Path() string { return h.path }

// Append writes one row per present metric, sorted by metric name, and
// returns how many rows were written. The header is written when the log is
// new or empty.
func (h *HistoryLog) Append(periodKey string, capturedAt time.Time, fields map[string]models.Value) (int, error) {
	obs := models.Observation{PeriodKey: periodKey, CapturedAt: capturedAt, Fields: fields}
	rows := obs.Rows()

	needHeader := false
	info, err := os.Stat(h.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		needHeader = true
	case err != nil:
		return 0, fmt.Errorf("%w: stat %s: %w", ErrStorageUnavailable, h.path, err)
	default:
		needHeader = info.Size() == 0
	}

	if !needHeader && len(rows) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", ErrStorageUnavailable, filepath.Dir(h.path), err)
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrStorageUnavailable, h.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(models.RowHeader); err != nil {
			return 0, fmt.Errorf("%w: write header: %w", ErrStorageUnavailable, err)
		}
	}
	for _, r := range rows {
		if err := w.Write(r.Record()); err != nil {
			return 0, fmt.Errorf("%w: write row: %w", ErrStorageUnavailable, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("%w: flush %s: %w", ErrStorageUnavailable, h.path, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("%w: close %s: %w", ErrStorageUnavailable, h.path, err)
	}
	return len(rows), nil
}

// Exists reports whether the log file has been created.
func (h *HistoryLog) Exists() bool {
	_, err := os.Stat(h.path)
	return err == nil
}

// Read returns every row in file order. A missing log returns an error
// matching fs.ErrNotExist.
func (h *HistoryLog) Read() ([]models.Row, error) {
	return readRows(h.path)
}

// HasPeriod reports whether any row of periodKey is already in the log.
// Callers that need strict deduplication check this before Append.
func (h *HistoryLog) HasPeriod(periodKey string) (bool, error) {
	rows, err := h.Read()
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.PeriodKey == periodKey {
			return true, nil
		}
	}
	return false, nil
}
