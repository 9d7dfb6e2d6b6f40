package writer

import (
	"context"
	"fmt"

	"econwatch/logger"
	"econwatch/models"
)

// Mirror receives every successfully archived result, e.g. to copy the
// files to object storage.
type Mirror interface {
	Mirror(ctx context.Context, res Result) error
}

// Result describes what one Archive call wrote.
type Result struct {
	SourceID     string
	PeriodKey    string
	SnapshotPath string
	LatestPath   string
	LatestPeriod string
	LogPath      string
	RowsAppended int
	// HistorySkipped is set when the period was already logged and
	// skip-existing mode is on.
	HistorySkipped bool
}

// Archiver applies the snapshot, latest pointer and history log steps for
// observations of any configured source.
type Archiver struct {
	layouts      map[string]Layout
	skipExisting bool
	mirror       Mirror
	log          *logger.Log
}

type Option func(*Archiver)

// WithSkipExistingPeriods makes Archive leave the history log untouched when
// the period already has rows in it.
func WithSkipExistingPeriods(skip bool) Option {
	return func(a *Archiver) { a.skipExisting = skip }
}

func WithMirror(m Mirror) Option {
	return func(a *Archiver) { a.mirror = m }
}

func WithLogger(l *logger.Log) Option {
	return func(a *Archiver) { a.log = l }
}

func NewArchiver(layouts map[string]Layout, opts ...Option) *Archiver {
	a := &Archiver{layouts: layouts, log: logger.GetLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Layout returns the configured layout of a source.
func (a *Archiver) Layout(sourceID string) (Layout, bool) {
	l, ok := a.layouts[sourceID]
	return l, ok
}

// Archive persists obs: snapshot first, then the latest pointer, then the
// history rows. A failed step stops the later ones.
func (a *Archiver) Archive(ctx context.Context, obs *models.Observation) (Result, error) {
	if obs == nil {
		return Result{}, ErrMissingObservation
	}
	layout, ok := a.layouts[obs.SourceID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownSource, obs.SourceID)
	}

	log := a.log.WithComponent("archiver").WithSource(obs.SourceID).WithFields(logger.Fields{
		"period_key": obs.PeriodKey,
	})

	if err := ValidatePeriodKey(obs.PeriodKey, layout.Granularity); err != nil {
		return Result{}, err
	}

	store := NewSnapshotStore(layout.SnapshotDir)
	existing, err := store.Periods()
	if err != nil {
		return Result{}, err
	}
	if err := checkPeriodShape(obs.PeriodKey, existing); err != nil {
		return Result{}, err
	}

	snapshotPath, err := store.Write(obs)
	if err != nil {
		return Result{}, fmt.Errorf("write snapshot: %w", err)
	}
	res := Result{
		SourceID:     obs.SourceID,
		PeriodKey:    obs.PeriodKey,
		SnapshotPath: snapshotPath,
		LatestPath:   layout.LatestPath,
		LogPath:      layout.LogPath,
	}
	log.WithFields(logger.Fields{"path": snapshotPath}).Debug("snapshot written")

	latest, err := NewLatestPointer(store, obs.SourceID, layout.LatestPath).Refresh()
	if err != nil {
		return res, fmt.Errorf("refresh latest: %w", err)
	}
	res.LatestPeriod = latest
	if latest != obs.PeriodKey {
		log.WithFields(logger.Fields{"latest_period": latest}).Info("backfilled older period; latest pointer unchanged")
	}

	history := NewHistoryLog(layout.LogPath)
	if a.skipExisting {
		seen, err := history.HasPeriod(obs.PeriodKey)
		if err != nil {
			return res, fmt.Errorf("check history: %w", err)
		}
		if seen {
			res.HistorySkipped = true
			log.Info("period already in history log; rows not appended")
		}
	}
	if !res.HistorySkipped {
		n, err := history.Append(obs.PeriodKey, obs.CapturedAt, obs.Fields)
		if err != nil {
			return res, fmt.Errorf("append history: %w", err)
		}
		res.RowsAppended = n
		logger.LogDataFlowEntry(log, "snapshot", "history_log", n, "rows")
	}

	logger.RecordArchive(obs.SourceID, res.RowsAppended)

	if a.mirror != nil {
		if err := a.mirror.Mirror(ctx, res); err != nil {
			log.WithError(err).Warn("failed to mirror archived files")
		}
	}

	log.WithFields(logger.Fields{
		"latest_period": res.LatestPeriod,
		"rows":          res.RowsAppended,
	}).Info("observation archived")
	return res, nil
}
