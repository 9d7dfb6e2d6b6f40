package writer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"econwatch/models"

	"github.com/shopspring/decimal"
)

func testLayout(root, id string, g models.Granularity) Layout {
	dir := filepath.Join(root, id)
	return Layout{
		SourceID:    id,
		SnapshotDir: dir,
		LatestPath:  filepath.Join(dir, "latest.csv"),
		LogPath:     filepath.Join(dir, "history.csv"),
		Granularity: g,
	}
}

func newObs(source, period string, fields map[string]string) *models.Observation {
	obs := &models.Observation{
		SourceID:   source,
		PeriodKey:  period,
		CapturedAt: time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
		Fields:     make(map[string]models.Value),
	}
	for k, v := range fields {
		if v == "" {
			obs.Fields[k] = models.Absent()
			continue
		}
		obs.Fields[k] = models.Present(decimal.RequireFromString(v))
	}
	return obs
}

func TestSnapshotOverwriteIsIdempotent(t *testing.T) {
	store := NewSnapshotStore(filepath.Join(t.TempDir(), "rates"))
	obs := newObs("rates", "2024-03-15", map[string]string{"EUR": "0.92", "JPY": "149.5"})

	first, err := store.Write(obs)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	firstData, _ := os.ReadFile(first)

	second, err := store.Write(obs)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	secondData, _ := os.ReadFile(second)

	if first != second {
		t.Fatalf("paths differ: %s vs %s", first, second)
	}
	if string(firstData) != string(secondData) {
		t.Fatalf("snapshot contents differ between identical writes")
	}
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 file, got %d", len(entries))
	}
}

func TestSnapshotLastWriteWins(t *testing.T) {
	store := NewSnapshotStore(filepath.Join(t.TempDir(), "rates"))
	if _, err := store.Write(newObs("rates", "2024-03-15", map[string]string{"EUR": "0.92", "JPY": "149.5"})); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Write(newObs("rates", "2024-03-15", map[string]string{"EUR": "0.93"})); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := store.Load("2024-03-15")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Fields) != 1 {
		t.Fatalf("expected the second snapshot to replace the first, got fields %v", got.Metrics())
	}
	if got.Fields["EUR"].String() != "0.93" {
		t.Fatalf("expected EUR 0.93, got %s", got.Fields["EUR"].String())
	}
}

func TestSnapshotRejectsEmptyPeriod(t *testing.T) {
	store := NewSnapshotStore(t.TempDir())
	_, err := store.Write(newObs("rates", "", nil))
	if !errors.Is(err, ErrMalformedPeriodKey) {
		t.Fatalf("expected ErrMalformedPeriodKey, got %v", err)
	}
	if _, err := store.Write(nil); !errors.Is(err, ErrMissingObservation) {
		t.Fatalf("expected ErrMissingObservation, got %v", err)
	}
}

func TestSnapshotPeriodsIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewSnapshotStore(dir)
	for _, p := range []string{"2024-02", "2024-01"} {
		if _, err := store.Write(newObs("food", p, map[string]string{"ffpi": "120.1"})); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	os.WriteFile(filepath.Join(dir, "latest.csv"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o644)

	periods, err := store.Periods()
	if err != nil {
		t.Fatalf("periods: %v", err)
	}
	if len(periods) != 2 || periods[0] != "2024-01" || periods[1] != "2024-02" {
		t.Fatalf("unexpected periods %v", periods)
	}
	if n, _ := NewSnapshotStore(filepath.Join(dir, "missing")).Count(); n != 0 {
		t.Fatalf("expected 0 snapshots in missing dir, got %d", n)
	}
}

func TestLatestPointerIgnoresBackfill(t *testing.T) {
	root := t.TempDir()
	layout := testLayout(root, "commodities", models.GranularityMonthly)
	a := NewArchiver(map[string]Layout{"commodities": layout})
	ctx := context.Background()

	if _, err := a.Archive(ctx, newObs("commodities", "2024-03", map[string]string{"gold": "2150"})); err != nil {
		t.Fatalf("archive march: %v", err)
	}
	res, err := a.Archive(ctx, newObs("commodities", "2024-01", map[string]string{"gold": "2050"}))
	if err != nil {
		t.Fatalf("archive january: %v", err)
	}
	if res.LatestPeriod != "2024-03" {
		t.Fatalf("expected latest to stay 2024-03, got %s", res.LatestPeriod)
	}

	rows, err := NewLatestPointer(NewSnapshotStore(layout.SnapshotDir), "commodities", layout.LatestPath).Read()
	if err != nil {
		t.Fatalf("read latest: %v", err)
	}
	if len(rows) != 1 || rows[0].PeriodKey != "2024-03" || rows[0].Value.String() != "2150" {
		t.Fatalf("latest file does not reflect 2024-03: %+v", rows)
	}
}

func TestLatestPointerAdvances(t *testing.T) {
	root := t.TempDir()
	layout := testLayout(root, "commodities", models.GranularityMonthly)
	a := NewArchiver(map[string]Layout{"commodities": layout})
	ctx := context.Background()

	for _, p := range []string{"2024-01", "2024-03"} {
		if _, err := a.Archive(ctx, newObs("commodities", p, map[string]string{"gold": "2000"})); err != nil {
			t.Fatalf("archive %s: %v", p, err)
		}
	}
	rows, err := readRows(layout.LatestPath)
	if err != nil {
		t.Fatalf("read latest: %v", err)
	}
	if len(rows) == 0 || rows[0].PeriodKey != "2024-03" {
		t.Fatalf("expected latest 2024-03, got %+v", rows)
	}
}

func TestLatestPointerRejectsForeignSnapshot(t *testing.T) {
	root := t.TempDir()
	shared := filepath.Join(root, "shared")
	store := NewSnapshotStore(shared)
	if _, err := store.Write(newObs("food", "2024-03", map[string]string{"cereals": "110"})); err != nil {
		t.Fatalf("write: %v", err)
	}

	latestPath := filepath.Join(root, "commodities_latest.csv")
	_, err := NewLatestPointer(store, "commodities", latestPath).Refresh()
	if !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
	if _, statErr := os.Stat(latestPath); !os.IsNotExist(statErr) {
		t.Fatalf("latest file should not be written for a foreign snapshot")
	}
}

func TestLatestPointerEmptyStore(t *testing.T) {
	dir := t.TempDir()
	p := NewLatestPointer(NewSnapshotStore(dir), "", filepath.Join(dir, "latest.csv"))
	got, err := p.Refresh()
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got != "" {
		t.Fatalf("expected no latest period, got %q", got)
	}
}

func TestHistoryAppendCountsAndHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	h := NewHistoryLog(path)
	ts := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	n, err := h.Append("2024-03-15", ts, map[string]models.Value{
		"JPY": models.FromFloat(149.5),
		"EUR": models.FromFloat(0.92),
		"XAU": models.Absent(),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows for 2 present metrics, got %d", n)
	}
	if _, err := h.Append("2024-03-16", ts, map[string]models.Value{"EUR": models.FromFloat(0.91)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "period_key,captured_at,metric,value\n" +
		"2024-03-15,2024-03-15T00:00:00Z,EUR,0.92\n" +
		"2024-03-15,2024-03-15T00:00:00Z,JPY,149.5\n" +
		"2024-03-16,2024-03-15T00:00:00Z,EUR,0.91\n"
	if string(data) != want {
		t.Fatalf("unexpected log contents:\n%s", data)
	}
}

func TestHistoryKeepsDuplicateRows(t *testing.T) {
	h := NewHistoryLog(filepath.Join(t.TempDir(), "history.csv"))
	fields := map[string]models.Value{"EUR": models.FromFloat(0.92)}
	ts := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := h.Append("2024-03-15", ts, fields); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	rows, err := h.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected duplicate rows to be kept, got %d rows", len(rows))
	}
	seen, err := h.HasPeriod("2024-03-15")
	if err != nil || !seen {
		t.Fatalf("expected HasPeriod true, got %v (%v)", seen, err)
	}
}

func TestArchiveSkipExistingPeriods(t *testing.T) {
	layout := testLayout(t.TempDir(), "rates", models.GranularityDaily)
	a := NewArchiver(map[string]Layout{"rates": layout}, WithSkipExistingPeriods(true))
	ctx := context.Background()
	obs := newObs("rates", "2024-03-15", map[string]string{"EUR": "0.92"})

	if _, err := a.Archive(ctx, obs); err != nil {
		t.Fatalf("archive: %v", err)
	}
	res, err := a.Archive(ctx, obs)
	if err != nil {
		t.Fatalf("archive again: %v", err)
	}
	if !res.HistorySkipped || res.RowsAppended != 0 {
		t.Fatalf("expected history to be skipped, got %+v", res)
	}
	rows, _ := NewHistoryLog(layout.LogPath).Read()
	if len(rows) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(rows))
	}
}

func TestArchiveErrors(t *testing.T) {
	root := t.TempDir()
	layouts := map[string]Layout{
		"rates": testLayout(root, "rates", models.GranularityDaily),
		"food":  testLayout(root, "food", models.GranularityMonthly),
	}
	a := NewArchiver(layouts)
	ctx := context.Background()

	tests := []struct {
		name string
		obs  *models.Observation
		want error
	}{
		{"nil observation", nil, ErrMissingObservation},
		{"unknown source", newObs("weather", "2024-03-15", nil), ErrUnknownSource},
		{"slashes", newObs("rates", "2024/03/15", nil), ErrMalformedPeriodKey},
		{"unpadded", newObs("rates", "2024-3-5", nil), ErrMalformedPeriodKey},
		{"month for daily source", newObs("rates", "2024-03", nil), ErrMalformedPeriodKey},
		{"day for monthly source", newObs("food", "2024-03-01", nil), ErrMalformedPeriodKey},
		{"impossible date", newObs("rates", "2024-02-30", nil), ErrMalformedPeriodKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Archive(ctx, tt.obs)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(root, "rates")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("rejected observations must not create files")
	}
}

func TestArchiveRejectsMixedPeriodShapes(t *testing.T) {
	layout := testLayout(t.TempDir(), "misc", "")
	a := NewArchiver(map[string]Layout{"misc": layout})
	ctx := context.Background()
	if _, err := a.Archive(ctx, newObs("misc", "2024-03", map[string]string{"x": "1"})); err != nil {
		t.Fatalf("archive: %v", err)
	}
	_, err := a.Archive(ctx, newObs("misc", "2024-03-01", map[string]string{"x": "1"}))
	if !errors.Is(err, ErrMalformedPeriodKey) {
		t.Fatalf("expected ErrMalformedPeriodKey, got %v", err)
	}
}

func TestArchiveStorageUnavailableLeavesLatest(t *testing.T) {
	root := t.TempDir()
	layout := testLayout(root, "rates", models.GranularityDaily)
	layout.LatestPath = filepath.Join(root, "views", "rates_latest.csv")
	if err := os.MkdirAll(filepath.Dir(layout.LatestPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.LatestPath, []byte("previous\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// a plain file where the snapshot directory should be
	if err := os.WriteFile(layout.SnapshotDir, []byte("blocked"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := NewArchiver(map[string]Layout{"rates": layout})
	_, err := a.Archive(context.Background(), newObs("rates", "2024-03-15", map[string]string{"EUR": "0.92"}))
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	data, _ := os.ReadFile(layout.LatestPath)
	if string(data) != "previous\n" {
		t.Fatalf("latest file changed after failed snapshot write: %q", data)
	}
}

func TestArchiveAllAbsentStillWritesSnapshot(t *testing.T) {
	layout := testLayout(t.TempDir(), "food", models.GranularityMonthly)
	a := NewArchiver(map[string]Layout{"food": layout})
	res, err := a.Archive(context.Background(), newObs("food", "2024-03", map[string]string{"ffpi": "", "cereals": ""}))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if res.RowsAppended != 0 {
		t.Fatalf("expected no history rows, got %d", res.RowsAppended)
	}
	if _, err := os.Stat(res.SnapshotPath); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	rows, err := NewHistoryLog(layout.LogPath).Read()
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected header-only history, got %d rows", len(rows))
	}
}
