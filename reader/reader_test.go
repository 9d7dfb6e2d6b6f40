package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	appconfig "econwatch/config"
)

func fixedNow() time.Time { return time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC) }

func TestFrankfurterFetch(t *testing.T) {
	var gotQuery, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"amount":1.0,"base":"USD","date":"2024-03-14","rates":{"EUR":0.91894,"INR":82.87,"JPY":148.12}}`))
	}))
	defer srv.Close()

	client := NewClient(appconfig.ReaderConfig{
		Timeout:   5 * time.Second,
		UserAgent: "econwatch-test",
		RateLimit: appconfig.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 1},
	})
	f := NewFrankfurter("currency_rates", appconfig.SourceConfig{
		URL:     srv.URL,
		Base:    "usd",
		Symbols: []string{"USD", "EUR", "INR", "JPY"},
		Title:   "Frankfurter",
	}, client)
	f.now = fixedNow

	obs, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotAgent != "econwatch-test" {
		t.Errorf("unexpected user agent %q", gotAgent)
	}
	if gotQuery != "base=USD&symbols=EUR%2CINR%2CJPY" {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if obs.PeriodKey != "2024-03-14" {
		t.Errorf("expected period from response date, got %s", obs.PeriodKey)
	}
	if !obs.CapturedAt.Equal(fixedNow()) {
		t.Errorf("unexpected captured_at %v", obs.CapturedAt)
	}
	if got := obs.Fields["EUR"].String(); got != "0.91894" {
		t.Errorf("expected exact EUR rate, got %s", got)
	}
	if obs.Meta["base_currency"] != "USD" {
		t.Errorf("unexpected meta %v", obs.Meta)
	}
	if obs.Units["INR"] != "INR per USD" {
		t.Errorf("unexpected unit %q", obs.Units["INR"])
	}
}

func TestFrankfurterFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		rate   bool
	}{
		{"server error", http.StatusInternalServerError, `oops`, false},
		{"rate limited", http.StatusTooManyRequests, `{}`, true},
		{"no rates", http.StatusOK, `{"base":"USD","date":"2024-03-14","rates":{}}`, false},
		{"bad json", http.StatusOK, `not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			f := NewFrankfurter("rates", appconfig.SourceConfig{URL: srv.URL}, NewClientWith(srv.Client(), nil))
			obs, err := f.Fetch(context.Background())
			if err == nil {
				t.Fatalf("expected error, got observation %+v", obs)
			}
			if tt.rate && !errors.Is(err, ErrRateLimited) {
				t.Fatalf("expected ErrRateLimited, got %v", err)
			}
		})
	}
}

func TestWorldBankTemplate(t *testing.T) {
	w := NewWorldBank("commodity_prices", appconfig.SourceConfig{Title: "World Bank"})
	w.now = fixedNow

	obs, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.PeriodKey != "2024-03" {
		t.Fatalf("expected monthly period, got %s", obs.PeriodKey)
	}
	if len(obs.Fields) != len(commodityMetrics) {
		t.Fatalf("expected %d metrics, got %d", len(commodityMetrics), len(obs.Fields))
	}
	for name, v := range obs.Fields {
		if v.IsPresent() {
			t.Errorf("expected %s to be absent", name)
		}
	}
	if obs.Categories["gold"] != "metals" || obs.Units["gold"] != "$/toz" {
		t.Errorf("unexpected gold metadata: %q %q", obs.Categories["gold"], obs.Units["gold"])
	}
}

func TestWorldBankManualValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.csv")
	content := "Date,Category,Commodity,Unit,Price,Source\n" +
		"2024-03,energy,crude_oil_brent,$/bbl,82.5,World Bank Pink Sheet\n" +
		"2024-03,metals,gold,$/toz,UPDATE_ME,World Bank Pink Sheet\n" +
		"2024-02,agriculture,maize,$/mt,190,World Bank Pink Sheet\n" +
		"2024-03,metals,platinum,$/toz,900,World Bank Pink Sheet\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWorldBank("commodity_prices", appconfig.SourceConfig{ManualPath: path})
	w.now = fixedNow
	obs, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := obs.Fields["crude_oil_brent"].String(); got != "82.5" {
		t.Errorf("expected brent 82.5, got %q", got)
	}
	if obs.Fields["gold"].IsPresent() {
		t.Errorf("placeholder should stay absent")
	}
	if obs.Fields["maize"].IsPresent() {
		t.Errorf("row from another period should be ignored")
	}
	if _, ok := obs.Fields["platinum"]; ok {
		t.Errorf("unknown commodity should not be added")
	}
}

func readManualFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open manual file: %v", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("parse manual file: %v", err)
	}
	return records
}

func TestWorldBankWritesManualTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commodity_prices", "manual.csv")
	w := NewWorldBank("commodity_prices", appconfig.SourceConfig{Title: "World Bank", ManualPath: path})
	w.now = fixedNow

	obs, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.Meta["manual_file"] != path {
		t.Errorf("manual file not recorded: %q", obs.Meta["manual_file"])
	}

	records := readManualFile(t, path)
	if got := strings.Join(records[0], ","); got != "Date,Category,Commodity,Unit,Price,Source" {
		t.Fatalf("unexpected header %q", got)
	}
	if len(records) != len(commodityMetrics)+1 {
		t.Fatalf("expected %d rows, got %d", len(commodityMetrics), len(records)-1)
	}
	for _, rec := range records[1:] {
		if rec[0] != "2024-03" || rec[4] != "UPDATE_ME" || rec[5] != "World Bank" {
			t.Fatalf("unexpected template row %v", rec)
		}
	}
	if records[1][2] != "crude_oil_brent" || records[1][1] != "energy" || records[1][3] != "$/bbl" {
		t.Errorf("unexpected first row %v", records[1])
	}

	values, err := loadManualValues(path, "2024-03")
	if err != nil || len(values) != 0 {
		t.Fatalf("placeholders should yield no values, got %v %v", values, err)
	}

	// an operator fills one price in; the next run picks it up and keeps the file
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	filled := strings.Replace(string(data), "crude_oil_brent,$/bbl,UPDATE_ME", "crude_oil_brent,$/bbl,84.1", 1)
	if err := os.WriteFile(path, []byte(filled), 0o644); err != nil {
		t.Fatal(err)
	}
	obs, err = w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if got := obs.Fields["crude_oil_brent"].String(); got != "84.1" {
		t.Errorf("expected filled brent price, got %q", got)
	}
	if n := len(readManualFile(t, path)); n != len(commodityMetrics)+1 {
		t.Errorf("manual file grew to %d records within the same period", n)
	}
}

func TestFAOManualTemplateAppendsNewPeriod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manual.csv")
	// hand-edited file without a trailing newline
	if err := os.WriteFile(path, []byte("Date,Category,Index,Unit,Value,Source\n2024-02,indices,cereals,points,112.4,FAO"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewFAO("food_prices", appconfig.SourceConfig{Title: "FAO", ManualPath: path}, nil)
	f.now = fixedNow

	if _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	records := readManualFile(t, path)
	if len(records) != 2+len(foodIndexMetrics) {
		t.Fatalf("expected %d records, got %d", 2+len(foodIndexMetrics), len(records))
	}
	if records[1][4] != "112.4" {
		t.Errorf("existing row changed: %v", records[1])
	}
	last := records[len(records)-1]
	if last[0] != "2024-03" || last[2] != "sugar" || last[4] != "UPDATE_ME" {
		t.Errorf("unexpected appended row %v", last)
	}

	values, err := loadManualValues(path, "2024-02")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if values["cereals"].String() != "112.4" {
		t.Errorf("february value lost: %v", values)
	}
}

func TestFAOFetchSurvivesUnreachablePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewFAO("food_prices", appconfig.SourceConfig{URL: srv.URL}, NewClientWith(srv.Client(), nil))
	f.now = fixedNow
	obs, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.Meta["page_status"] != "unreachable" {
		t.Errorf("expected unreachable page, got %q", obs.Meta["page_status"])
	}
	if len(obs.Fields) != 6 || obs.Units["overall_index"] != "points (2014-2016=100)" {
		t.Errorf("unexpected template %v", obs.Units)
	}
}

func TestFAOFetchReachablePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f := NewFAO("food_prices", appconfig.SourceConfig{URL: srv.URL}, NewClientWith(srv.Client(), nil))
	obs, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.Meta["page_status"] != "reachable" {
		t.Errorf("expected reachable page, got %q", obs.Meta["page_status"])
	}
}

func TestLoadManualValuesBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manual.csv")
	os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644)
	if _, err := loadManualValues(path, "2024-03"); err == nil {
		t.Fatal("expected header error")
	}
	values, err := loadManualValues(filepath.Join(t.TempDir(), "missing.csv"), "2024-03")
	if err != nil || values != nil {
		t.Fatalf("missing file should yield nothing, got %v %v", values, err)
	}
}

func TestNewFetcher(t *testing.T) {
	client := NewClientWith(http.DefaultClient, nil)
	for _, kind := range []string{appconfig.KindFrankfurter, appconfig.KindWorldBank, appconfig.KindFAO} {
		f, err := NewFetcher("src", appconfig.SourceConfig{Kind: kind}, client)
		if err != nil {
			t.Fatalf("kind %s: %v", kind, err)
		}
		if f.SourceID() != "src" {
			t.Errorf("unexpected id %s", f.SourceID())
		}
	}
	if _, err := NewFetcher("src", appconfig.SourceConfig{Kind: "ftp"}, client); err == nil {
		t.Fatal("expected unsupported kind error")
	}
}
