package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"syscall"

	"econwatch/config"
	"econwatch/internal/pipeline"
	"econwatch/logger"
	"econwatch/reader"
	"econwatch/writer"

	"github.com/spf13/cobra"
)

var (
	flagSources      []string
	flagSkipExisting bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Fetch and archive the configured sources",
	Long: `Fetch every enabled source once and archive the result: the dated snapshot,
the latest file and the history log. Sources are processed one after another;
a failing source does not stop the others, but the command exits 1.`,
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().StringSliceVar(&flagSources, "sources", nil, "only archive these source ids (comma separated)")
	archiveCmd.Flags().BoolVar(&flagSkipExisting, "skip-existing", false, "do not append history rows for periods already in the log")
}

func runArchive(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ids, err := selectSources(cfg, flagSources)
	if err != nil {
		return err
	}

	client := reader.NewClient(cfg.Reader)
	fetchers := make([]reader.Fetcher, 0, len(ids))
	for _, id := range ids {
		f, err := reader.NewFetcher(id, cfg.Sources[id], client)
		if err != nil {
			return err
		}
		fetchers = append(fetchers, f)
	}

	skip := cfg.Archive.SkipExistingPeriods
	if cmd.Flags().Changed("skip-existing") {
		skip = flagSkipExisting
	}
	layouts := writer.LayoutsFromConfig(cfg)
	opts := []writer.Option{writer.WithSkipExistingPeriods(skip), writer.WithLogger(log)}
	if cfg.Storage.S3.Enabled {
		mirror, err := writer.NewS3Mirror(ctx, cfg)
		if err != nil {
			return fmt.Errorf("creating s3 mirror: %w", err)
		}
		opts = append(opts, writer.WithMirror(mirror))
	}
	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}

	logger.ResetReport()
	report := pipeline.Run(ctx, fetchers, writer.NewArchiver(layouts, opts...))
	logger.LogRunReport(context.WithoutCancel(ctx), log, report.RunID)

	printRunSummary(cmd.OutOrStdout(), report, layouts)

	if !report.OK() {
		return errSourcesFailed
	}
	return nil
}

// selectSources returns the enabled source ids, or the requested ones.
// Requested ids must exist but may be disabled in the config.
func selectSources(cfg *config.Config, requested []string) ([]string, error) {
	if len(requested) == 0 {
		ids := cfg.EnabledSourceIDs()
		if len(ids) == 0 {
			return nil, fmt.Errorf("no sources are enabled")
		}
		return ids, nil
	}
	seen := make(map[string]bool, len(requested))
	var ids []string
	for _, id := range requested {
		if _, ok := cfg.Sources[id]; !ok {
			return nil, fmt.Errorf("%w: %q", writer.ErrUnknownSource, id)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// printRunSummary prints one line per source and the key metrics of every
// archived observation.
func printRunSummary(w io.Writer, report pipeline.Report, layouts map[string]writer.Layout) {
	for _, o := range report.Outcomes {
		switch o.Status {
		case pipeline.StatusArchived:
			fmt.Fprintf(w, "%s: archived %s (%d rows, latest %s)\n", o.SourceID, o.Result.PeriodKey, o.Result.RowsAppended, o.Result.LatestPeriod)
		default:
			fmt.Fprintf(w, "%s: %s: %v\n", o.SourceID, o.Status, o.Err)
			continue
		}

		keys := layouts[o.SourceID].KeyMetrics
		if len(keys) == 0 || o.Observation == nil {
			continue
		}
		if base := o.Observation.Meta["base_currency"]; base != "" {
			fmt.Fprintf(w, "  Key rates for %s (1 %s =):\n", o.Observation.PeriodKey, base)
		} else {
			fmt.Fprintf(w, "  Key values for %s:\n", o.Observation.PeriodKey)
		}
		for _, k := range keys {
			v, ok := o.Observation.Fields[k]
			if !ok {
				continue
			}
			d, present := v.Decimal()
			if !present {
				fmt.Fprintf(w, "    %s: n/a\n", k)
				continue
			}
			fmt.Fprintf(w, "    %s: %s\n", k, d.StringFixed(4))
		}
	}
}
