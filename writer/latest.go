package writer

import (
	"fmt"

	"econwatch/models"
)

// LatestPointer maintains the fixed-path CSV view of a source's newest period.
type LatestPointer struct {
	store    *SnapshotStore
	sourceID string
	path     string
}

// NewLatestPointer binds the latest file at path to store. When sourceID is
// set, Refresh refuses snapshots written by any other source.
func NewLatestPointer(store *SnapshotStore, sourceID, path string) *LatestPointer {
	return &LatestPointer{store: store, sourceID: sourceID, path: path}
}

func (p *LatestPointer) Path() string { return p.path }

// Refresh recomputes the pointer from every stored snapshot and rewrites the
// latest file from the greatest period key. It returns that period, or ""
// when the store is empty.
func (p *LatestPointer) Refresh() (string, error) {
	periods, err := p.store.Periods()
	if err != nil {
		return "", err
	}
	if len(periods) == 0 {
		return "", nil
	}
	newest := periods[len(periods)-1]

	obs, err := p.store.Load(newest)
	if err != nil {
		return "", fmt.Errorf("%w: load snapshot %s: %w", ErrStorageUnavailable, newest, err)
	}
	if p.sourceID != "" && obs.SourceID != p.sourceID {
		return "", fmt.Errorf("%w: snapshot %s in %s belongs to %q, not %q",
			ErrUnknownSource, newest, p.store.Dir(), obs.SourceID, p.sourceID)
	}
	data, err := encodeRows(obs.Rows(), true)
	if err != nil {
		return "", fmt.Errorf("encode latest rows: %w", err)
	}
	if err := writeFileAtomic(p.path, data); err != nil {
		return "", err
	}
	return newest, nil
}

// Read returns the rows currently in the latest file.
func (p *LatestPointer) Read() ([]models.Row, error) {
	return readRows(p.path)
}
