package chunk

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// WriteChunkFile encodes records as a JSON array and writes them to
// path, zstd-compressing when the path carries the ".zst" extension.
// The encoder may be shared across calls; pass nil to write plain JSON
// regardless of extension.
func WriteChunkFile(path string, records interface{}, encoder *zstd.Encoder) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}

	if encoder != nil && strings.HasSuffix(path, ".zst") {
		data = encoder.EncodeAll(data, nil)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write chunk %s: %w", path, err)
	}
	return nil
}
