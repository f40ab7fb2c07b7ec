package chunk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/wordrealms/catalog/internal/level"
)

// LocalStore reads chunks from a bundled asset directory. Chunk files
// are JSON arrays of raw records, stored either plain (".json") or
// zstd-compressed (".json.zst").
type LocalStore struct {
	dir     string
	decoder *zstd.Decoder
}

// NewLocalStore opens a bundle directory.
func NewLocalStore(dir string) (*LocalStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("bundle %s: %w", dir, ErrNotFound)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("bundle %s: not a directory", dir)
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}

	return &LocalStore{dir: dir, decoder: decoder}, nil
}

// Dir returns the bundle directory.
func (s *LocalStore) Dir() string { return s.dir }

// Load resolves locator to a chunk file under the bundle directory and
// decodes it.
func (s *LocalStore) Load(_ context.Context, locator string) ([]level.RawRecord, error) {
	path, data, err := s.readChunk(locator)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, ".zst") {
		data, err = s.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %s", path, ErrMalformed, err)
		}
	}

	var records []level.RawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", path, ErrMalformed, err)
	}
	return records, nil
}

// readChunk tries the locator as-is, then with the known chunk file
// extensions. Manifests usually name files exactly, but older bundles
// listed bare chunk names.
func (s *LocalStore) readChunk(locator string) (string, []byte, error) {
	candidates := []string{locator}
	if filepath.Ext(locator) == "" {
		candidates = append(candidates, locator+".json.zst", locator+".json")
	}

	for _, name := range candidates {
		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			return path, data, nil
		}
		if !os.IsNotExist(err) {
			return "", nil, fmt.Errorf("read chunk %s: %w", path, err)
		}
	}
	return "", nil, fmt.Errorf("chunk %q in %s: %w", locator, s.dir, ErrNotFound)
}
