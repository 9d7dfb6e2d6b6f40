package reader

import (
	"context"
	"fmt"
	"time"

	appconfig "econwatch/config"
	"econwatch/models"
)

// Fetcher retrieves one observation for a source. A nil observation with a
// nil error means the source had nothing to report.
type Fetcher interface {
	SourceID() string
	Fetch(ctx context.Context) (*models.Observation, error)
}

// NewFetcher builds the fetcher for a configured source.
func NewFetcher(id string, src appconfig.SourceConfig, client *Client) (Fetcher, error) {
	switch src.Kind {
	case appconfig.KindFrankfurter:
		return NewFrankfurter(id, src, client), nil
	case appconfig.KindWorldBank:
		return NewWorldBank(id, src), nil
	case appconfig.KindFAO:
		return NewFAO(id, src, client), nil
	default:
		return nil, fmt.Errorf("source %s: unsupported kind %q", id, src.Kind)
	}
}

// monthKey is the period key of monthly template sources.
func monthKey(now time.Time) string {
	return now.UTC().Format(models.GranularityMonthly.Layout())
}
