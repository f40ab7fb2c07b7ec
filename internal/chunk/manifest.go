package chunk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wordrealms/catalog/internal/catalog"
)

// ManifestFilename is the index document at the root of a bundle.
const ManifestFilename = "manifest.json"

// Manifest describes a local bundle: an ordered list of chunk files
// covering the level ID space.
type Manifest struct {
	Version     string          `json:"version"`
	TotalLevels int             `json:"totalLevels"`
	Chunks      []ManifestChunk `json:"chunks"`
}

// ManifestChunk is one chunk entry in a bundle manifest.
type ManifestChunk struct {
	File    string `json:"file"`
	StartID int    `json:"startId"`
	EndID   int    `json:"endId"`
	Count   int    `json:"count"`
}

// ReadManifest loads and decodes the manifest from a bundle directory.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", path, ErrMalformed, err)
	}
	return m, nil
}

// Descriptors converts manifest chunk entries into index descriptors.
func (m *Manifest) Descriptors() []catalog.ChunkDescriptor {
	descs := make([]catalog.ChunkDescriptor, 0, len(m.Chunks))
	for _, c := range m.Chunks {
		descs = append(descs, catalog.ChunkDescriptor{
			Locator: c.File,
			FirstID: c.StartID,
			LastID:  c.EndID,
			Count:   c.Count,
		})
	}
	return descs
}

// WriteManifest writes a manifest to a bundle directory. Used by the
// pack tool.
func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFilename), data, 0644)
}
