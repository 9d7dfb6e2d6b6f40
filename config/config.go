package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ReservedSummaryID names the summary area of the archive and mirror; no
// source may use it.
const ReservedSummaryID = "summaries"

const (
	KindFrankfurter = "frankfurter"
	KindWorldBank   = "worldbank"
	KindFAO         = "fao"
)

type Config struct {
	App     AppConfig               `yaml:"app"`
	Archive ArchiveConfig           `yaml:"archive"`
	Sources map[string]SourceConfig `yaml:"sources" validate:"min=1,dive"`
	Reader  ReaderConfig            `yaml:"reader"`
	Storage StorageConfig           `yaml:"storage"`
	Metrics MetricsConfig           `yaml:"metrics"`
	Logging LoggingConfig           `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version" validate:"required"`
}

type ArchiveConfig struct {
	Root       string `yaml:"root"`
	SummaryDir string `yaml:"summary_dir"`
	// SkipExistingPeriods stops a re-run from appending history rows for a
	// period that is already in the log. Off by default.
	SkipExistingPeriods bool `yaml:"skip_existing_periods"`
}

// SourceConfig describes one tracked indicator source and where its files live.
type SourceConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Kind        string   `yaml:"kind" validate:"oneof=frankfurter worldbank fao"`
	Title       string   `yaml:"title"`
	Granularity string   `yaml:"granularity" validate:"oneof=daily monthly"`
	SnapshotDir string   `yaml:"snapshot_dir"`
	LatestPath  string   `yaml:"latest_path"`
	LogPath     string   `yaml:"log_path"`
	URL         string   `yaml:"url" validate:"omitempty,url"`
	Base        string   `yaml:"base"`
	Symbols     []string `yaml:"symbols"`
	KeyMetrics  []string `yaml:"key_metrics"`
	// ManualPath points at a hand-maintained metric,value CSV used to fill
	// template sources whose upstream has no machine-readable feed.
	ManualPath string `yaml:"manual_path"`
}

type ReaderConfig struct {
	Timeout   time.Duration   `yaml:"timeout" validate:"gt=0"`
	UserAgent string          `yaml:"user_agent"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
	BurstSize         int     `yaml:"burst_size" validate:"gte=0"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket" validate:"required_if=Enabled true"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region" validate:"required_if=Enabled true"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Reader: ReaderConfig{
			Timeout:   10 * time.Second,
			RateLimit: RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1},
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("ECONWATCH_DATA_DIR"); v != "" {
		config.Archive.Root = strings.TrimSpace(v)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	config.applyDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills in the file layout of every source relative to the archive root.
func (c *Config) applyDefaults() {
	if c.Archive.Root == "" {
		c.Archive.Root = filepath.Join(xdg.DataHome, "econwatch")
	}
	c.Archive.Root = filepath.Clean(c.Archive.Root)
	if c.Archive.SummaryDir == "" {
		c.Archive.SummaryDir = filepath.Join(c.Archive.Root, "summaries")
	}

	for id, src := range c.Sources {
		if src.SnapshotDir == "" {
			src.SnapshotDir = filepath.Join(c.Archive.Root, id)
		}
		if src.LatestPath == "" {
			src.LatestPath = filepath.Join(src.SnapshotDir, "latest.csv")
		}
		if src.LogPath == "" {
			src.LogPath = filepath.Join(src.SnapshotDir, "history.csv")
		}
		if src.ManualPath == "" && src.Kind != KindFrankfurter {
			src.ManualPath = filepath.Join(src.SnapshotDir, "manual.csv")
		}
		if src.Title == "" {
			src.Title = id
		}
		src.Granularity = strings.ToLower(strings.TrimSpace(src.Granularity))
		c.Sources[id] = src
	}

	if c.Metrics.CloudWatch.Namespace == "" {
		c.Metrics.CloudWatch.Namespace = "Econwatch"
	}
}

// SourceIDs returns the configured source ids in sorted order.
func (c *Config) SourceIDs() []string {
	ids := make([]string, 0, len(c.Sources))
	for id := range c.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EnabledSourceIDs returns the sorted ids of sources that are switched on.
func (c *Config) EnabledSourceIDs() []string {
	var ids []string
	for _, id := range c.SourceIDs() {
		if c.Sources[id].Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				return fmt.Errorf("%s failed '%s=%s' (value %v)", field, fe.Tag(), fe.Param(), fe.Value())
			}
			return fmt.Errorf("%s failed '%s'", field, fe.Tag())
		}
		return err
	}

	// every source owns its snapshot directory and its files
	dirs := map[string]string{filepath.Clean(cfg.Archive.SummaryDir): "archive.summary_dir"}
	files := make(map[string]string, 2*len(cfg.Sources))
	for _, id := range cfg.SourceIDs() {
		if !isValidSourceID(id) {
			return fmt.Errorf("source id '%s' is invalid", id)
		}
		if id == ReservedSummaryID {
			return fmt.Errorf("source id '%s' is reserved", id)
		}
		src := cfg.Sources[id]
		dir := filepath.Clean(src.SnapshotDir)
		if other, ok := dirs[dir]; ok {
			return fmt.Errorf("sources.%s.snapshot_dir is already used by %s", id, other)
		}
		dirs[dir] = id
		for _, f := range []struct{ key, path string }{
			{"latest_path", src.LatestPath},
			{"log_path", src.LogPath},
		} {
			p := filepath.Clean(f.path)
			if other, ok := files[p]; ok {
				return fmt.Errorf("sources.%s.%s is already used by %s", id, f.key, other)
			}
			files[p] = id
		}
	}

	if cfg.Storage.S3.Enabled && !isValidS3Bucket(cfg.Storage.S3.Bucket) {
		return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
	}

	return nil
}

var sourceIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func isValidSourceID(id string) bool {
	return sourceIDRegexp.MatchString(id)
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
