package cmd

import (
	"fmt"

	"econwatch/processor"
	"econwatch/writer"

	"github.com/spf13/cobra"
)

var flagQuiet bool

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Build a coverage summary of the archive",
	Long: `Read the snapshots and history logs of every configured source and write a
summary_<date>.json report to the summary directory. Earlier summaries are
never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		s := processor.NewSummarizer(writer.LayoutsFromConfig(cfg), cfg.Archive.SummaryDir)
		report, err := s.Summarize()
		if err != nil {
			return fmt.Errorf("building summary: %w", err)
		}
		path, err := s.Write(report)
		if err != nil {
			return fmt.Errorf("saving summary: %w", err)
		}

		if cfg.Storage.S3.Enabled {
			mirror, err := writer.NewS3Mirror(cmd.Context(), cfg)
			if err != nil {
				log.WithComponent("summarize").WithError(err).Warn("s3 mirror unavailable")
			} else if err := mirror.MirrorSummary(cmd.Context(), path); err != nil {
				log.WithComponent("summarize").WithError(err).Warn("failed to mirror summary")
			}
		}

		if !flagQuiet {
			if err := processor.WriteText(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nSummary saved: %s\n", path)
		return nil
	},
}

func init() {
	summarizeCmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "only print the summary path")
}
