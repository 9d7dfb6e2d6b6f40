package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ObjectFile describes a single archive file copied to object storage.
type ObjectFile struct {
	Path        string            `json:"path"`
	FileSize    int64             `json:"file_size_in_bytes"`
	RecordCount int64             `json:"record_count"`
	Partition   map[string]string `json:"partition"`
	UploadedAt  time.Time         `json:"uploaded_at"`
}

type manifestDocument struct {
	ManifestID string       `json:"manifest-id"`
	Location   string       `json:"location"`
	UpdatedAt  time.Time    `json:"updated_at"`
	Files      []ObjectFile `json:"files"`
}

// Manifest keeps the list of mirrored objects in a JSON file next to the
// local archive. Adding an object that is already listed replaces its entry.
type Manifest struct {
	mu       sync.Mutex
	path     string
	location string
	doc      manifestDocument
}

// NewManifest opens the manifest at path, starting an empty one when the
// file does not exist yet.
func NewManifest(path, location string) (*Manifest, error) {
	m := &Manifest{path: path, location: location}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) load() error {
	b, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		m.doc = manifestDocument{ManifestID: uuid.NewString(), Location: m.location}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(b, &m.doc); err != nil {
		return fmt.Errorf("decode manifest %s: %w", m.path, err)
	}
	if m.doc.ManifestID == "" {
		m.doc.ManifestID = uuid.NewString()
	}
	m.doc.Location = m.location
	return nil
}

func (m *Manifest) Path() string { return m.path }

// Add records f and rewrites the manifest file.
func (m *Manifest) Add(f ObjectFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	replaced := false
	for i := range m.doc.Files {
		if m.doc.Files[i].Path == f.Path {
			m.doc.Files[i] = f
			replaced = true
			break
		}
	}
	if !replaced {
		m.doc.Files = append(m.doc.Files, f)
	}
	sort.Slice(m.doc.Files, func(i, j int) bool { return m.doc.Files[i].Path < m.doc.Files[j].Path })
	if f.UploadedAt.After(m.doc.UpdatedAt) {
		m.doc.UpdatedAt = f.UploadedAt
	}
	return m.write()
}

// Files returns a copy of the recorded objects, ordered by path.
func (m *Manifest) Files() []ObjectFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ObjectFile, len(m.doc.Files))
	copy(out, m.doc.Files)
	return out
}

func (m *Manifest) write() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m.doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, b, 0o644)
}
