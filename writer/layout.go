package writer

import (
	appconfig "econwatch/config"
	"econwatch/models"
)

// Layout is where one source's snapshots, latest file and history log live.
type Layout struct {
	SourceID    string
	SnapshotDir string
	LatestPath  string
	LogPath     string
	Granularity models.Granularity
	KeyMetrics  []string
}

// LayoutsFromConfig builds the per-source file layout from configuration.
func LayoutsFromConfig(cfg *appconfig.Config) map[string]Layout {
	out := make(map[string]Layout, len(cfg.Sources))
	for id, src := range cfg.Sources {
		out[id] = Layout{
			SourceID:    id,
			SnapshotDir: src.SnapshotDir,
			LatestPath:  src.LatestPath,
			LogPath:     src.LogPath,
			Granularity: models.Granularity(src.Granularity),
			KeyMetrics:  append([]string(nil), src.KeyMetrics...),
		}
	}
	return out
}
