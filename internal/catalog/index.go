// Package catalog holds the chunk index over the level ID space and
// the difficulty-tier progression ordering.
package catalog

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/btree"
)

// ErrNotFound is returned when an ID falls outside every chunk range.
var ErrNotFound = errors.New("not in catalog")

// ErrEmpty is returned by queries against an index with no chunks.
var ErrEmpty = errors.New("empty catalog")

// ChunkDescriptor maps a contiguous ID range onto a storage locator.
// Count is authoritative for allocation sizing; IDs inside the range
// are not guaranteed dense.
type ChunkDescriptor struct {
	Locator string
	FirstID int
	LastID  int
	Count   int
}

func (d ChunkDescriptor) span() int { return d.LastID - d.FirstID + 1 }

// Index is an immutable ordered set of non-overlapping chunk
// descriptors. It is built once per load and replaced wholesale on
// reload; readers holding an old index keep a consistent view.
type Index struct {
	tree *btree.BTreeG[ChunkDescriptor]

	// Construction-time views for O(1) bounds and weighted random
	// selection. ordered is sorted by FirstID; cumSpans[i] is the total
	// ID-range span of ordered[:i+1].
	ordered  []ChunkDescriptor
	cumSpans []int
	total    int
}

func descriptorLess(a, b ChunkDescriptor) bool { return a.FirstID < b.FirstID }

// NewIndex builds an index from descriptors in any order. An empty
// descriptor set is legal and yields an index reporting ErrEmpty on
// every query. Overlapping or inverted ranges are construction errors.
func NewIndex(descriptors []ChunkDescriptor) (*Index, error) {
	ordered := make([]ChunkDescriptor, len(descriptors))
	copy(ordered, descriptors)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].FirstID < ordered[j].FirstID })

	tree := btree.NewG(16, descriptorLess)
	cumSpans := make([]int, len(ordered))
	total := 0
	span := 0

	for i, d := range ordered {
		if d.FirstID > d.LastID {
			return nil, fmt.Errorf("chunk %q: inverted range [%d,%d]", d.Locator, d.FirstID, d.LastID)
		}
		if i > 0 && d.FirstID <= ordered[i-1].LastID {
			return nil, fmt.Errorf("chunk %q overlaps %q", d.Locator, ordered[i-1].Locator)
		}
		tree.ReplaceOrInsert(d)
		span += d.span()
		cumSpans[i] = span
		total += d.Count
	}

	return &Index{tree: tree, ordered: ordered, cumSpans: cumSpans, total: total}, nil
}

// Len returns the number of chunks.
func (ix *Index) Len() int { return len(ix.ordered) }

// TotalCount returns the sum of chunk counts.
func (ix *Index) TotalCount() int { return ix.total }

// MinID returns the smallest catalog ID.
func (ix *Index) MinID() (int, error) {
	if len(ix.ordered) == 0 {
		return 0, ErrEmpty
	}
	return ix.ordered[0].FirstID, nil
}

// MaxID returns the largest catalog ID.
func (ix *Index) MaxID() (int, error) {
	if len(ix.ordered) == 0 {
		return 0, ErrEmpty
	}
	return ix.ordered[len(ix.ordered)-1].LastID, nil
}

// EntryContaining returns the unique descriptor whose range contains
// id. Ranges are disjoint and sorted, so the candidate is the greatest
// descriptor with FirstID <= id.
func (ix *Index) EntryContaining(id int) (ChunkDescriptor, error) {
	if len(ix.ordered) == 0 {
		return ChunkDescriptor{}, ErrEmpty
	}

	var found ChunkDescriptor
	ok := false
	ix.tree.DescendLessOrEqual(ChunkDescriptor{FirstID: id}, func(d ChunkDescriptor) bool {
		found = d
		ok = true
		return false
	})
	if !ok || id > found.LastID {
		return ChunkDescriptor{}, fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	return found, nil
}

// Neighbors returns the descriptors immediately before and after d in
// index order. Either may be absent at the catalog edges.
func (ix *Index) Neighbors(d ChunkDescriptor) (prev, next ChunkDescriptor, hasPrev, hasNext bool) {
	ix.tree.DescendLessOrEqual(ChunkDescriptor{FirstID: d.FirstID - 1}, func(c ChunkDescriptor) bool {
		prev = c
		hasPrev = true
		return false
	})
	ix.tree.AscendGreaterOrEqual(ChunkDescriptor{FirstID: d.FirstID + 1}, func(c ChunkDescriptor) bool {
		next = c
		hasNext = true
		return false
	})
	return
}

// NextExistingID returns the smallest catalog ID greater than id.
func (ix *Index) NextExistingID(id int) (int, error) {
	if len(ix.ordered) == 0 {
		return 0, ErrEmpty
	}
	if d, err := ix.EntryContaining(id); err == nil && id < d.LastID {
		return id + 1, nil
	}

	next := 0
	ok := false
	ix.tree.AscendGreaterOrEqual(ChunkDescriptor{FirstID: id + 1}, func(d ChunkDescriptor) bool {
		next = d.FirstID
		ok = true
		return false
	})
	if !ok {
		return 0, fmt.Errorf("after %d: %w", id, ErrNotFound)
	}
	return next, nil
}

// PreviousExistingID returns the largest catalog ID smaller than id.
func (ix *Index) PreviousExistingID(id int) (int, error) {
	if len(ix.ordered) == 0 {
		return 0, ErrEmpty
	}
	if d, err := ix.EntryContaining(id); err == nil && id > d.FirstID {
		return id - 1, nil
	}

	prev := 0
	ok := false
	ix.tree.DescendLessOrEqual(ChunkDescriptor{FirstID: id - 1}, func(d ChunkDescriptor) bool {
		prev = d.LastID
		ok = true
		return false
	})
	if !ok {
		return 0, fmt.Errorf("before %d: %w", id, ErrNotFound)
	}
	return prev, nil
}

// RandomID picks an ID uniformly over the union of chunk ranges.
// Selection is weighted by range span so small chunks are not
// over-represented.
func (ix *Index) RandomID(rng *rand.Rand) (int, error) {
	if len(ix.ordered) == 0 {
		return 0, ErrEmpty
	}

	totalSpan := ix.cumSpans[len(ix.cumSpans)-1]
	pick := rng.Intn(totalSpan)
	i := sort.SearchInts(ix.cumSpans, pick+1)

	d := ix.ordered[i]
	offset := pick
	if i > 0 {
		offset -= ix.cumSpans[i-1]
	}
	return d.FirstID + offset, nil
}

// Descriptors returns the descriptors in FirstID order. The returned
// slice is shared; callers must not mutate it.
func (ix *Index) Descriptors() []ChunkDescriptor { return ix.ordered }
