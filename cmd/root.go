package cmd

import (
	"errors"
	"fmt"
	"os"

	"econwatch/config"
	"econwatch/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var flagConfig string

// errSourcesFailed makes the process exit non-zero without printing usage.
var errSourcesFailed = errors.New("one or more sources failed")

var rootCmd = &cobra.Command{
	Use:   "econwatch",
	Short: "Archive economic indicator snapshots",
	Long: `econwatch fetches currency rates, commodity prices and food price indices,
keeps one dated snapshot per period, a latest file and an append-only history
log per source, and builds coverage summaries from the archive.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default config/config.yml, or config/config.<APP_ENV>.yml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(exportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "econwatch %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

// loadConfig reads .env, the config file and configures the logger.
func loadConfig() (*config.Config, *logger.Log, error) {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("error loading .env file")
	}

	path := config.ResolveConfigPath(flagConfig)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return nil, nil, fmt.Errorf("configuring logger: %w", err)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": config.AppEnvironment(),
		"config":      path,
	}).Debug("configuration loaded")
	return cfg, log, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSourcesFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
