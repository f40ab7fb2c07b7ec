package catalog

import "sort"

// Assignment places a level into the progression: a difficulty tier
// (0..3) and whether the level has a preferred full-wheel isogram.
// The assignment map is generated offline; the catalog only consumes it.
type Assignment struct {
	DifficultyRank int
	HasIsogram     bool
}

// DefaultAssignment is used for IDs missing from the table so that
// progression navigation stays total over the catalog. Unassigned
// levels sort last.
var DefaultAssignment = Assignment{DifficultyRank: 3, HasIsogram: false}

type progressionKey struct {
	rank int
	iso  bool
	id   int
}

// less orders by difficulty rank ascending, isogram preference
// descending (isogram-capable levels surface earlier within a tier),
// then ID ascending for determinism.
func (a progressionKey) less(b progressionKey) bool {
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	if a.iso != b.iso {
		return a.iso
	}
	return a.id < b.id
}

// Progression is the precomputed total order levels are presented in
// during normal play. Immutable after construction; rebuilt wholesale
// when the catalog reloads.
type Progression struct {
	keys []progressionKey
}

// NewProgression orders ids by their assignments. IDs absent from the
// table get DefaultAssignment.
func NewProgression(ids []int, table map[int]Assignment) *Progression {
	keys := make([]progressionKey, 0, len(ids))
	for _, id := range ids {
		a, ok := table[id]
		if !ok {
			a = DefaultAssignment
		}
		keys = append(keys, progressionKey{rank: a.DifficultyRank, iso: a.HasIsogram, id: id})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return &Progression{keys: keys}
}

// Len returns the number of levels in the progression.
func (p *Progression) Len() int { return len(p.keys) }

// First returns the opening level of the progression.
func (p *Progression) First() (int, error) {
	if len(p.keys) == 0 {
		return 0, ErrEmpty
	}
	return p.keys[0].id, nil
}

// Last returns the final level of the progression.
func (p *Progression) Last() (int, error) {
	if len(p.keys) == 0 {
		return 0, ErrEmpty
	}
	return p.keys[len(p.keys)-1].id, nil
}

// keyOf rebuilds the sort key for an arbitrary id, whether or not it
// is part of the progression.
func (p *Progression) keyOf(id int, table map[int]Assignment) progressionKey {
	a, ok := table[id]
	if !ok {
		a = DefaultAssignment
	}
	return progressionKey{rank: a.DifficultyRank, iso: a.HasIsogram, id: id}
}

// NextAfter returns the level that follows id in progression order.
// Binary search over the precomputed order; id itself need not be
// present.
func (p *Progression) NextAfter(id int, table map[int]Assignment) (int, error) {
	if len(p.keys) == 0 {
		return 0, ErrEmpty
	}
	pivot := p.keyOf(id, table)
	i := sort.Search(len(p.keys), func(i int) bool { return pivot.less(p.keys[i]) })
	if i == len(p.keys) {
		return 0, ErrNotFound
	}
	return p.keys[i].id, nil
}

// PreviousBefore returns the level that precedes id in progression
// order.
func (p *Progression) PreviousBefore(id int, table map[int]Assignment) (int, error) {
	if len(p.keys) == 0 {
		return 0, ErrEmpty
	}
	pivot := p.keyOf(id, table)
	i := sort.Search(len(p.keys), func(i int) bool { return !p.keys[i].less(pivot) })
	if i == 0 {
		return 0, ErrNotFound
	}
	return p.keys[i-1].id, nil
}
