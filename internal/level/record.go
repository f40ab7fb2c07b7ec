// Package level defines the puzzle level data model and the
// normalization pipeline that turns raw content-store documents into
// canonical, invariant-checked records.
package level

import "sort"

// BaseLetterCount is the size of the letter wheel. Every level has
// exactly this many base letters.
const BaseLetterCount = 6

// Word length bounds. Words shorter than MinWordLen are discarded,
// 3-letter words are bonus-only, and solutions are 4..6 letters.
const (
	MinWordLen     = 3
	MaxWordLen     = 6
	MinSolutionLen = 4
)

// RawMetadata is the optional per-level metadata block as it appears in
// content-store documents.
type RawMetadata struct {
	Difficulty string `json:"difficulty,omitempty"`
	HasIso6    bool   `json:"hasIso6,omitempty"`
}

// RawRecord is a level document exactly as decoded from a chunk file or
// a remote collection, before any normalization.
type RawRecord struct {
	ID          int              `json:"id"`
	Realm       string           `json:"realm,omitempty"`
	BaseLetters string           `json:"baseLetters"`
	Solutions   map[string][]int `json:"solutions"`
	BonusWords  []string         `json:"bonusWords,omitempty"`
	Metadata    *RawMetadata     `json:"metadata,omitempty"`
}

// Validation flags attached to records that decode fine but violate a
// content invariant. Flagged records are still playable; the gameplay
// layer decides whether to substitute the bootstrap level.
const (
	// FlagNoIso6 marks a level with no derivable 6-letter isogram.
	FlagNoIso6 = "no-six-letter-isogram"
	// FlagIso6Assumed marks a level whose full-wheel answer was assumed
	// from the base letters being an isogram, not proven from solutions.
	FlagIso6Assumed = "iso6-assumed"
)

// Record is a normalized level. BaseLetters is exactly six uppercase
// letters, every solution's index list reproduces the word from
// BaseLetters, solutions are 4..6 letters, bonus words 3..6, and the
// two sets are disjoint.
type Record struct {
	ID          int
	Realm       string
	BaseLetters string
	Solutions   map[string][]int
	BonusWords  map[string]struct{}
	Difficulty  string
	HasIso6     bool
	Flags       []string
}

// Flagged reports whether the record carries the given validation flag.
func (r *Record) Flagged(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Raw converts a normalized record back into document form, for
// re-serialization by the pack tool and the content server.
func (r *Record) Raw() RawRecord {
	raw := RawRecord{
		ID:          r.ID,
		Realm:       r.Realm,
		BaseLetters: r.BaseLetters,
		Solutions:   make(map[string][]int, len(r.Solutions)),
	}
	for w, idx := range r.Solutions {
		out := make([]int, len(idx))
		copy(out, idx)
		raw.Solutions[w] = out
	}
	for w := range r.BonusWords {
		raw.BonusWords = append(raw.BonusWords, w)
	}
	sort.Strings(raw.BonusWords)
	if r.Difficulty != "" || r.HasIso6 {
		raw.Metadata = &RawMetadata{Difficulty: r.Difficulty, HasIso6: r.HasIso6}
	}
	return raw
}

// IsIsogram reports whether w has no repeated letters.
func IsIsogram(w string) bool {
	var seen [26]bool
	for i := 0; i < len(w); i++ {
		c := w[i]
		if c < 'A' || c > 'Z' {
			return false
		}
		if seen[c-'A'] {
			return false
		}
		seen[c-'A'] = true
	}
	return len(w) > 0
}
