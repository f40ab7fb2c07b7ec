// Package chunk loads raw level records from named storage locators.
// Stores do I/O and decode only; caching and normalization live with
// the callers.
package chunk

import (
	"context"
	"errors"

	"github.com/wordrealms/catalog/internal/level"
)

// ErrNotFound means the locator has no backing data. A not-found chunk
// is a candidate for trying the other catalog source.
var ErrNotFound = errors.New("chunk not found")

// ErrMalformed means data was present but undecodable. This is always
// a content or packaging bug, never silently ignored.
var ErrMalformed = errors.New("chunk malformed")

// Store loads one chunk's worth of raw level records from a locator.
type Store interface {
	Load(ctx context.Context, locator string) ([]level.RawRecord, error)
}

// MemoryStore serves chunks from batches already held in memory. The
// source resolver builds one from a full remote fetch so that chunk
// loads go through the same path for both sources.
type MemoryStore struct {
	batches map[string][]level.RawRecord
}

// NewMemoryStore wraps pre-fetched batches keyed by locator.
func NewMemoryStore(batches map[string][]level.RawRecord) *MemoryStore {
	return &MemoryStore{batches: batches}
}

// Load returns the batch for locator. The returned slice is shared and
// must not be mutated.
func (s *MemoryStore) Load(_ context.Context, locator string) ([]level.RawRecord, error) {
	batch, ok := s.batches[locator]
	if !ok {
		return nil, ErrNotFound
	}
	return batch, nil
}
