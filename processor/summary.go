package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"econwatch/logger"
	"econwatch/models"
	"econwatch/writer"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Summarizer reads the archives of every tracked source and builds a
// coverage report. It only reads source files; it writes the report.
type Summarizer struct {
	layouts    map[string]writer.Layout
	summaryDir string
	now        func() time.Time
	log        *logger.Log
}

func NewSummarizer(layouts map[string]writer.Layout, summaryDir string) *Summarizer {
	return &Summarizer{
		layouts:    layouts,
		summaryDir: summaryDir,
		now:        time.Now,
		log:        logger.GetLogger(),
	}
}

// Summarize builds the report for all sources in sorted id order.
func (s *Summarizer) Summarize() (models.SummaryReport, error) {
	report := models.SummaryReport{
		RunID:       uuid.NewString(),
		GeneratedAt: s.now().UTC(),
		Sources:     make(map[string]models.SourceSummary, len(s.layouts)),
		DataCounts:  make(map[string]int, len(s.layouts)),
	}

	ids := make([]string, 0, len(s.layouts))
	for id := range s.layouts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		sum, err := s.summarizeSource(s.layouts[id])
		if err != nil {
			return report, fmt.Errorf("summarize %s: %w", id, err)
		}
		report.Sources[id] = sum
		report.DataCounts[id] = sum.SnapshotCount
	}

	s.log.WithComponent("summarizer").WithFields(logger.Fields{
		"run_id":  report.RunID,
		"sources": len(ids),
	}).Info("summary built")
	return report, nil
}

func (s *Summarizer) summarizeSource(layout writer.Layout) (models.SourceSummary, error) {
	var sum models.SourceSummary

	count, err := writer.NewSnapshotStore(layout.SnapshotDir).Count()
	if err != nil {
		return sum, err
	}
	sum.SnapshotCount = count

	if _, err := os.Stat(layout.LatestPath); err == nil {
		sum.HasLatest = true
	}

	rows, err := writer.NewHistoryLog(layout.LogPath).Read()
	if errors.Is(err, fs.ErrNotExist) {
		s.log.WithComponent("summarizer").WithSource(layout.SourceID).Debug("no history log yet")
		return sum, nil
	}
	if err != nil {
		return sum, err
	}
	sum.HistoryRows = len(rows)

	// period -> metric -> value; a later row of the same period wins
	byPeriod := make(map[string]map[string]models.Value)
	for _, r := range rows {
		m, ok := byPeriod[r.PeriodKey]
		if !ok {
			m = make(map[string]models.Value)
			byPeriod[r.PeriodKey] = m
		}
		m[r.Metric] = r.Value
	}
	periods := make([]string, 0, len(byPeriod))
	for p := range byPeriod {
		periods = append(periods, p)
	}
	sort.Strings(periods)

	sum.Periods = periods
	sum.DistinctPeriods = len(periods)
	if len(periods) == 0 {
		return sum, nil
	}
	sum.EarliestPeriod = periods[0]
	sum.LatestPeriod = periods[len(periods)-1]

	if len(layout.KeyMetrics) == 0 {
		return sum, nil
	}
	sum.KeyValues = make(map[string]models.Value, len(layout.KeyMetrics))
	sum.Trends = make(map[string]models.Trend)
	latest := byPeriod[sum.LatestPeriod]
	for _, metric := range layout.KeyMetrics {
		v, ok := latest[metric]
		if !ok {
			v = models.Absent()
		}
		sum.KeyValues[metric] = v

		if tr, ok := trendFor(metric, periods, byPeriod); ok {
			sum.Trends[metric] = tr
		}
	}
	return sum, nil
}

// trendFor compares the first and last present reading of metric.
func trendFor(metric string, periods []string, byPeriod map[string]map[string]models.Value) (models.Trend, bool) {
	var tr models.Trend
	found := false
	for _, p := range periods {
		v, ok := byPeriod[p][metric]
		if !ok || !v.IsPresent() {
			continue
		}
		if !found {
			tr.FirstPeriod, tr.First = p, v
			found = true
		}
		tr.LatestPeriod, tr.Latest = p, v
	}
	if !found {
		return tr, false
	}

	first, _ := tr.First.Decimal()
	last, _ := tr.Latest.Decimal()
	change := last.Sub(first)
	tr.Change = models.Present(change)
	if first.IsZero() {
		tr.ChangePct = models.Absent()
	} else {
		tr.ChangePct = models.Present(change.Div(first).Mul(decimal.NewFromInt(100)).Round(4))
	}
	return tr, true
}

// Write stores report as summary_<date>.json in the summary directory. An
// existing file for the same date is kept and the new report gets a
// numbered suffix.
func (s *Summarizer) Write(report models.SummaryReport) (string, error) {
	if err := os.MkdirAll(s.summaryDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", writer.ErrStorageUnavailable, s.summaryDir, err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	data = append(data, '\n')

	date := report.GeneratedAt.UTC().Format("2006-01-02")
	for n := 1; ; n++ {
		name := fmt.Sprintf("summary_%s.json", date)
		if n > 1 {
			name = fmt.Sprintf("summary_%s_%d.json", date, n)
		}
		path := filepath.Join(s.summaryDir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: create %s: %w", writer.ErrStorageUnavailable, path, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("%w: write %s: %w", writer.ErrStorageUnavailable, path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("%w: close %s: %w", writer.ErrStorageUnavailable, path, err)
		}
		s.log.WithComponent("summarizer").WithFields(logger.Fields{"path": path}).Info("summary saved")
		return path, nil
	}
}
