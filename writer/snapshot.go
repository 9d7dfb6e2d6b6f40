package writer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"econwatch/models"
)

const snapshotExt = ".json"

// SnapshotStore keeps one JSON file per period for a single source.
type SnapshotStore struct {
	dir string
}

func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir}
}

func (s *SnapshotStore) Dir() string { return s.dir }

// Path returns the file a period's snapshot is stored in.
func (s *SnapshotStore) Path(periodKey string) string {
	return filepath.Join(s.dir, periodKey+snapshotExt)
}

// Write serializes obs to its period file, replacing any earlier snapshot
// of the same period in full.
func (s *SnapshotStore) Write(obs *models.Observation) (string, error) {
	if obs == nil {
		return "", ErrMissingObservation
	}
	if obs.PeriodKey == "" {
		return "", fmt.Errorf("%w: empty period key", ErrMalformedPeriodKey)
	}

	data, err := json.MarshalIndent(obs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot %s/%s: %w", obs.SourceID, obs.PeriodKey, err)
	}
	data = append(data, '\n')

	path := s.Path(obs.PeriodKey)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Periods lists the stored period keys in ascending order. A missing
// directory yields no periods.
func (s *SnapshotStore) Periods() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list %s: %w", ErrStorageUnavailable, s.dir, err)
	}

	var periods []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		key := strings.TrimSuffix(name, snapshotExt)
		if ValidatePeriodKey(key, "") != nil {
			continue
		}
		periods = append(periods, key)
	}
	sort.Strings(periods)
	return periods, nil
}

// Count returns the number of stored snapshots.
func (s *SnapshotStore) Count() (int, error) {
	periods, err := s.Periods()
	return len(periods), err
}

// Load reads a stored snapshot back.
func (s *SnapshotStore) Load(periodKey string) (*models.Observation, error) {
	data, err := os.ReadFile(s.Path(periodKey))
	if err != nil {
		return nil, err
	}
	var obs models.Observation
	if err := json.Unmarshal(data, &obs); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.Path(periodKey), err)
	}
	return &obs, nil
}
