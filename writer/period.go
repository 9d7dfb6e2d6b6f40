package writer

import (
	"errors"
	"fmt"
	"time"

	"econwatch/models"
)

var (
	// ErrMissingObservation means the fetch produced nothing to archive.
	ErrMissingObservation = errors.New("missing observation")
	// ErrStorageUnavailable means a namespace directory or file could not be written.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrMalformedPeriodKey means a period key would break chronological ordering.
	ErrMalformedPeriodKey = errors.New("malformed period key")
	// ErrUnknownSource means no file layout is configured for the source.
	ErrUnknownSource = errors.New("unknown source")
)

var periodLayouts = []string{
	models.GranularityDaily.Layout(),
	models.GranularityMonthly.Layout(),
}

// ValidatePeriodKey checks that key is a zero-padded ISO date or month. When
// g is set the key must use that granularity's layout.
func ValidatePeriodKey(key string, g models.Granularity) error {
	if key == "" {
		return fmt.Errorf("%w: empty period key", ErrMalformedPeriodKey)
	}
	layouts := periodLayouts
	if l := g.Layout(); l != "" {
		layouts = []string{l}
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, key)
		if err == nil && t.Format(layout) == key {
			return nil
		}
	}
	if g != "" {
		return fmt.Errorf("%w: %q is not a %s period", ErrMalformedPeriodKey, key, g)
	}
	return fmt.Errorf("%w: %q", ErrMalformedPeriodKey, key)
}

// checkPeriodShape rejects a key whose layout differs from keys already stored,
// since mixed layouts do not sort chronologically as strings.
func checkPeriodShape(key string, existing []string) error {
	for _, other := range existing {
		if len(other) != len(key) {
			return fmt.Errorf("%w: %q does not match stored period %q", ErrMalformedPeriodKey, key, other)
		}
	}
	return nil
}
