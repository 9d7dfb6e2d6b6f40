package reader

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	appconfig "econwatch/config"
	"econwatch/logger"
	"econwatch/models"

	"github.com/shopspring/decimal"
)

const defaultFrankfurterURL = "https://api.frankfurter.dev/v1/latest"

// Frankfurter fetches daily ECB reference rates for a base currency.
type Frankfurter struct {
	id      string
	url     string
	base    string
	symbols []string
	title   string
	client  *Client
	now     func() time.Time
	log     *logger.Log
}

type frankfurterResponse struct {
	Amount float64                    `json:"amount"`
	Base   string                     `json:"base"`
	Date   string                     `json:"date"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

func NewFrankfurter(id string, src appconfig.SourceConfig, client *Client) *Frankfurter {
	u := src.URL
	if u == "" {
		u = defaultFrankfurterURL
	}
	base := strings.ToUpper(strings.TrimSpace(src.Base))
	if base == "" {
		base = "USD"
	}
	// the API rejects the base currency as a quote symbol
	symbols := make([]string, 0, len(src.Symbols))
	for _, s := range src.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" && s != base {
			symbols = append(symbols, s)
		}
	}
	return &Frankfurter{
		id:      id,
		url:     u,
		base:    base,
		symbols: symbols,
		title:   src.Title,
		client:  client,
		now:     time.Now,
		log:     logger.GetLogger(),
	}
}

func (f *Frankfurter) SourceID() string { return f.id }

func (f *Frankfurter) Fetch(ctx context.Context) (*models.Observation, error) {
	log := f.log.WithComponent("frankfurter").WithSource(f.id)

	q := url.Values{}
	q.Set("base", f.base)
	if len(f.symbols) > 0 {
		q.Set("symbols", strings.Join(f.symbols, ","))
	}

	var resp frankfurterResponse
	if err := f.client.getJSON(ctx, f.url, q, &resp); err != nil {
		return nil, fmt.Errorf("fetch currency rates: %w", err)
	}
	if resp.Date == "" {
		return nil, fmt.Errorf("fetch currency rates: response has no date")
	}
	if len(resp.Rates) == 0 {
		return nil, fmt.Errorf("fetch currency rates: response has no rates")
	}

	base := resp.Base
	if base == "" {
		base = f.base
	}
	obs := &models.Observation{
		SourceID:   f.id,
		PeriodKey:  resp.Date,
		CapturedAt: f.now().UTC(),
		Fields:     make(map[string]models.Value, len(resp.Rates)),
		Units:      make(map[string]string, len(resp.Rates)),
		Meta: map[string]string{
			"source":        f.title,
			"base_currency": base,
			"url":           f.url,
		},
	}
	for code, rate := range resp.Rates {
		obs.Fields[code] = models.Present(rate)
		obs.Units[code] = code + " per " + base
	}

	log.WithFields(logger.Fields{
		"date":  resp.Date,
		"base":  base,
		"rates": len(resp.Rates),
	}).Info("fetched currency rates")
	return obs, nil
}
