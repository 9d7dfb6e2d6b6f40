package reader

import (
	"context"
	"time"

	appconfig "econwatch/config"
	"econwatch/logger"
	"econwatch/models"
)

const worldBankURL = "https://www.worldbank.org/en/research/commodity-markets"

var commodityMetrics = []templateMetric{
	{"crude_oil_brent", "energy", "$/bbl"},
	{"crude_oil_wti", "energy", "$/bbl"},
	{"crude_oil_dubai", "energy", "$/bbl"},
	{"natural_gas_us", "energy", "$/mmbtu"},
	{"natural_gas_europe", "energy", "$/mmbtu"},
	{"coal_australia", "energy", "$/mt"},
	{"wheat_us", "agriculture", "$/mt"},
	{"rice_thailand", "agriculture", "$/mt"},
	{"maize", "agriculture", "$/mt"},
	{"soybeans", "agriculture", "$/mt"},
	{"sugar", "agriculture", "¢/kg"},
	{"coffee_arabica", "agriculture", "$/kg"},
	{"coffee_robusta", "agriculture", "$/kg"},
	{"tea_mombasa", "agriculture", "$/kg"},
	{"cocoa", "agriculture", "$/kg"},
	{"dap", "fertilizers", "$/mt"},
	{"tsp", "fertilizers", "$/mt"},
	{"urea", "fertilizers", "$/mt"},
	{"aluminum", "metals", "$/mt"},
	{"copper", "metals", "$/mt"},
	{"iron_ore", "metals", "$/dmt"},
	{"gold", "metals", "$/toz"},
}

// WorldBank produces the monthly Pink Sheet commodity observation. The
// Pink Sheet is only published as PDF and Excel, so prices come from the
// manual file and stay absent until someone fills them in.
type WorldBank struct {
	id         string
	url        string
	title      string
	manualPath string
	now        func() time.Time
	log        *logger.Log
}

func NewWorldBank(id string, src appconfig.SourceConfig) *WorldBank {
	u := src.URL
	if u == "" {
		u = worldBankURL
	}
	return &WorldBank{
		id:         id,
		url:        u,
		title:      src.Title,
		manualPath: src.ManualPath,
		now:        time.Now,
		log:        logger.GetLogger(),
	}
}

func (w *WorldBank) SourceID() string { return w.id }

func (w *WorldBank) Fetch(ctx context.Context) (*models.Observation, error) {
	log := w.log.WithComponent("worldbank").WithSource(w.id)

	now := w.now().UTC()
	obs := newTemplateObservation(w.id, monthKey(now), commodityMetrics)
	obs.CapturedAt = now
	obs.Meta["source"] = w.title
	obs.Meta["url"] = w.url
	obs.Meta["update_schedule"] = "Monthly, first business day"
	obs.Meta["note"] = "Monthly data, filled from the manual price file"

	written, err := ensureManualTemplate(w.manualPath, obs.PeriodKey, w.title, manualColumns{metric: "Commodity", value: "Price"}, commodityMetrics)
	if err != nil {
		log.WithError(err).Warn("could not prepare manual file")
	} else if written > 0 {
		log.WithFields(logger.Fields{"path": w.manualPath, "rows": written}).Info("manual file awaits values for this period")
	}
	if w.manualPath != "" {
		obs.Meta["manual_file"] = w.manualPath
	}

	values, err := loadManualValues(w.manualPath, obs.PeriodKey)
	if err != nil {
		return nil, err
	}
	filled, unknown := applyManualValues(obs, values)
	if len(unknown) > 0 {
		log.WithFields(logger.Fields{"metrics": unknown}).Warn("ignoring unknown commodities in manual file")
	}

	log.WithFields(logger.Fields{
		"period":  obs.PeriodKey,
		"filled":  filled,
		"tracked": len(commodityMetrics),
	}).Info("prepared commodity observation")
	return obs, nil
}
