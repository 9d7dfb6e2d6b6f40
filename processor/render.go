package processor

import (
	"fmt"
	"io"
	"sort"

	"econwatch/models"
)

// WriteText prints a plain-text view of report for the console.
func WriteText(w io.Writer, report models.SummaryReport) error {
	ids := make([]string, 0, len(report.Sources))
	for id := range report.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if _, err := fmt.Fprintf(w, "Summary generated %s (run %s)\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"), report.RunID); err != nil {
		return err
	}
	for _, id := range ids {
		s := report.Sources[id]
		fmt.Fprintf(w, "\n%s\n", id)
		fmt.Fprintf(w, "  snapshots: %d  latest file: %t\n", s.SnapshotCount, s.HasLatest)
		if s.DistinctPeriods == 0 {
			fmt.Fprintln(w, "  no history yet")
			continue
		}
		fmt.Fprintf(w, "  history: %d rows over %d periods (%s to %s)\n", s.HistoryRows, s.DistinctPeriods, s.EarliestPeriod, s.LatestPeriod)

		metrics := make([]string, 0, len(s.KeyValues))
		for m := range s.KeyValues {
			metrics = append(metrics, m)
		}
		sort.Strings(metrics)
		for _, m := range metrics {
			v := s.KeyValues[m].String()
			if v == "" {
				v = "n/a"
			}
			line := fmt.Sprintf("    %-18s %s", m, v)
			if tr, ok := s.Trends[m]; ok && tr.ChangePct.IsPresent() && tr.FirstPeriod != tr.LatestPeriod {
				line += fmt.Sprintf("  (%s%% since %s)", tr.ChangePct.String(), tr.FirstPeriod)
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}
