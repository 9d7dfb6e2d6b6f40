package pipeline

import (
	"context"
	"fmt"
	"time"

	"econwatch/logger"
	"econwatch/models"
	"econwatch/reader"
	"econwatch/writer"

	"github.com/google/uuid"
)

// Status is how a single source ended within a run.
type Status string

const (
	StatusArchived      Status = "archived"
	StatusFetchFailed   Status = "fetch_failed"
	StatusNoData        Status = "no_data"
	StatusArchiveFailed Status = "archive_failed"
	StatusCanceled      Status = "canceled"
)

// Archiver persists one observation.
type Archiver interface {
	Archive(ctx context.Context, obs *models.Observation) (writer.Result, error)
}

// Outcome is the result of processing one source.
type Outcome struct {
	SourceID    string
	Status      Status
	Observation *models.Observation
	Result      writer.Result
	Err         error
	Duration    time.Duration
}

type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []Outcome
}

// Failed returns the outcomes of sources that were not archived.
func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status != StatusArchived {
			out = append(out, o)
		}
	}
	return out
}

func (r Report) OK() bool { return len(r.Failed()) == 0 }

// Run fetches and archives each source in order. A failing source is
// recorded and the run moves on to the next one.
func Run(ctx context.Context, fetchers []reader.Fetcher, archiver Archiver) Report {
	report := Report{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	log := logger.GetLogger().WithComponent("pipeline").WithFields(logger.Fields{"run_id": report.RunID})
	log.WithFields(logger.Fields{"sources": len(fetchers)}).Info("starting archive run")

	for _, f := range fetchers {
		outcome := runOne(ctx, f, archiver)
		report.Outcomes = append(report.Outcomes, outcome)

		entry := log.WithSource(outcome.SourceID).WithFields(logger.Fields{
			"status":   outcome.Status,
			"duration": outcome.Duration.String(),
		})
		switch outcome.Status {
		case StatusArchived:
			entry.Info("source archived")
		case StatusNoData:
			logger.RecordSkip(outcome.SourceID)
			entry.Warn("source returned no observation")
		default:
			logger.RecordFailure(outcome.SourceID)
			entry.WithError(outcome.Err).Error("source failed")
		}
	}

	report.FinishedAt = time.Now().UTC()
	log.WithFields(logger.Fields{
		"failed":   len(report.Failed()),
		"duration": report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("archive run finished")
	return report
}

func runOne(ctx context.Context, f reader.Fetcher, archiver Archiver) (out Outcome) {
	out.SourceID = f.SourceID()
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		out.Status, out.Err = StatusCanceled, err
		return out
	}

	obs, err := f.Fetch(ctx)
	if err != nil {
		out.Status, out.Err = StatusFetchFailed, err
		return out
	}
	if obs == nil {
		out.Status, out.Err = StatusNoData, writer.ErrMissingObservation
		return out
	}
	if obs.SourceID == "" {
		obs.SourceID = out.SourceID
	}
	if obs.SourceID != out.SourceID {
		out.Status = StatusArchiveFailed
		out.Err = fmt.Errorf("%w: fetcher %s returned observation for %s", writer.ErrUnknownSource, out.SourceID, obs.SourceID)
		return out
	}
	out.Observation = obs

	res, err := archiver.Archive(ctx, obs)
	out.Result = res
	if err != nil {
		out.Status, out.Err = StatusArchiveFailed, err
		return out
	}
	out.Status = StatusArchived
	return out
}
