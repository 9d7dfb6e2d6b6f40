package reader

import (
	"context"
	"time"

	appconfig "econwatch/config"
	"econwatch/logger"
	"econwatch/models"
)

const faoURL = "https://www.fao.org/worldfoodsituation/foodpricesindex/en/"

var foodIndexMetrics = []templateMetric{
	{"overall_index", "indices", "points (2014-2016=100)"},
	{"cereals", "indices", "points"},
	{"vegetable_oils", "indices", "points"},
	{"dairy", "indices", "points"},
	{"meat", "indices", "points"},
	{"sugar", "indices", "points"},
}

// FAO produces the monthly FAO Food Price Index observation. The index page
// is requested to record whether it was reachable; its HTML is not parsed,
// values come from the manual file.
type FAO struct {
	id         string
	url        string
	title      string
	manualPath string
	client     *Client
	now        func() time.Time
	log        *logger.Log
}

func NewFAO(id string, src appconfig.SourceConfig, client *Client) *FAO {
	u := src.URL
	if u == "" {
		u = faoURL
	}
	return &FAO{
		id:         id,
		url:        u,
		title:      src.Title,
		manualPath: src.ManualPath,
		client:     client,
		now:        time.Now,
		log:        logger.GetLogger(),
	}
}

func (f *FAO) SourceID() string { return f.id }

func (f *FAO) Fetch(ctx context.Context) (*models.Observation, error) {
	log := f.log.WithComponent("fao").WithSource(f.id)

	page := "unchecked"
	if f.client != nil {
		page = "reachable"
		if _, err := f.client.get(ctx, f.url, nil); err != nil {
			// the template is still archived when the page is down
			log.WithError(err).Warn("could not fetch FAO page")
			page = "unreachable"
		}
	}

	now := f.now().UTC()
	obs := newTemplateObservation(f.id, monthKey(now), foodIndexMetrics)
	obs.CapturedAt = now
	obs.Meta["source"] = f.title
	obs.Meta["url"] = f.url
	obs.Meta["update_schedule"] = "First Thursday of each month"
	obs.Meta["page_status"] = page
	obs.Meta["note"] = "Values are filled from the manual index file"

	written, err := ensureManualTemplate(f.manualPath, obs.PeriodKey, f.title, manualColumns{metric: "Index", value: "Value"}, foodIndexMetrics)
	if err != nil {
		log.WithError(err).Warn("could not prepare manual file")
	} else if written > 0 {
		log.WithFields(logger.Fields{"path": f.manualPath, "rows": written}).Info("manual file awaits values for this period")
	}
	if f.manualPath != "" {
		obs.Meta["manual_file"] = f.manualPath
	}

	values, err := loadManualValues(f.manualPath, obs.PeriodKey)
	if err != nil {
		return nil, err
	}
	filled, unknown := applyManualValues(obs, values)
	if len(unknown) > 0 {
		log.WithFields(logger.Fields{"metrics": unknown}).Warn("ignoring unknown indices in manual file")
	}

	log.WithFields(logger.Fields{
		"period": obs.PeriodKey,
		"filled": filled,
		"page":   page,
	}).Info("prepared food price observation")
	return obs, nil
}
