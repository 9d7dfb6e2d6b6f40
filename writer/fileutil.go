package writer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"econwatch/models"
)

// writeFileAtomic replaces path with data through a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrStorageUnavailable, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file in %s: %w", ErrStorageUnavailable, dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrStorageUnavailable, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrStorageUnavailable, path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ErrStorageUnavailable, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: rename into %s: %w", ErrStorageUnavailable, path, err)
	}
	return nil
}

func encodeRows(rows []models.Row, header bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if header {
		if err := w.Write(models.RowHeader); err != nil {
			return nil, err
		}
	}
	for _, r := range rows {
		if err := w.Write(r.Record()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readRows parses a CSV file written with models.RowHeader.
func readRows(path string) ([]models.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(models.RowHeader)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	rows := make([]models.Row, 0, len(records))
	for i, rec := range records {
		if i == 0 && rec[0] == models.RowHeader[0] {
			continue
		}
		row, err := models.ParseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
