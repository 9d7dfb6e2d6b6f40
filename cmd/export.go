package cmd

import (
	"fmt"
	"path/filepath"

	"econwatch/writer"

	"github.com/spf13/cobra"
)

var (
	flagExportSource string
	flagExportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a source's history log to Parquet",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		layout, ok := writer.LayoutsFromConfig(cfg)[flagExportSource]
		if !ok {
			return fmt.Errorf("%w: %q", writer.ErrUnknownSource, flagExportSource)
		}

		rows, err := writer.NewHistoryLog(layout.LogPath).Read()
		if err != nil {
			return fmt.Errorf("reading history log: %w", err)
		}

		out := flagExportOut
		if out == "" {
			out = filepath.Join(layout.SnapshotDir, "history.parquet")
		}
		n, err := writer.ExportParquet(layout.SourceID, rows, out)
		if err != nil {
			return fmt.Errorf("exporting: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d row(s) to %s\n", n, out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&flagExportSource, "source", "", "source id to export")
	exportCmd.Flags().StringVarP(&flagExportOut, "out", "o", "", "output file (default <snapshot_dir>/history.parquet)")
	exportCmd.MarkFlagRequired("source")
}
