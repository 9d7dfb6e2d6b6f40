package writer

import (
	"fmt"
	"os"
	"path/filepath"

	"econwatch/models"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type historyRecord struct {
	Source     string  `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	PeriodKey  string  `parquet:"name=period_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	CapturedAt int64   `parquet:"name=captured_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Metric     string  `parquet:"name=metric, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value      float64 `parquet:"name=value, type=DOUBLE"`
	ValueText  string  `parquet:"name=value_text, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes rows to a Snappy-compressed Parquet file at path and
// returns the number of records written. Rows without a value are skipped.
func ExportParquet(sourceID string, rows []models.Row, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", ErrStorageUnavailable, filepath.Dir(path), err)
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrStorageUnavailable, path, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(historyRecord), 1)
	if err != nil {
		return 0, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	n := 0
	for _, r := range rows {
		d, ok := r.Value.Decimal()
		if !ok {
			continue
		}
		rec := historyRecord{
			Source:     sourceID,
			PeriodKey:  r.PeriodKey,
			CapturedAt: r.CapturedAt.UTC().UnixMilli(),
			Metric:     r.Metric,
			Value:      d.InexactFloat64(),
			ValueText:  d.String(),
		}
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return n, fmt.Errorf("write parquet record: %w", err)
		}
		n++
	}

	if err := pw.WriteStop(); err != nil {
		return n, fmt.Errorf("finish parquet file: %w", err)
	}
	return n, nil
}
