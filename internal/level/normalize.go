package level

import (
	"sort"
	"strings"
)

// Rejection reasons reported by Normalize.
const (
	ReasonBadBaseLetters = "bad base letters"
	ReasonBadLength      = "word length out of range"
	ReasonDuplicate      = "duplicate word after uppercasing"
	ReasonNoAssignment   = "no valid index assignment"
	ReasonNoSolutions    = "no playable solutions"
)

// Rejection records a word (or a whole level, when Word is empty) that
// was dropped during normalization.
type Rejection struct {
	LevelID int
	Word    string
	Reason  string
}

// Report aggregates normalization diagnostics for one batch.
type Report struct {
	Rejections []Rejection
	// RepairedOneBased counts word index sets that were shifted down
	// from the 1-based convention. The [1,6] heuristic is lossy for
	// ambiguous sets, so the repair is counted rather than trusted
	// silently.
	RepairedOneBased int
	// RecomputedIndexes counts words whose stored indices failed to
	// reproduce the word and were rebuilt from the base letters.
	RecomputedIndexes int
	// DroppedLevels counts levels rejected wholesale.
	DroppedLevels int
}

func (rep *Report) reject(levelID int, word, reason string) {
	rep.Rejections = append(rep.Rejections, Rejection{LevelID: levelID, Word: word, Reason: reason})
}

// Normalize converts raw level documents into canonical records. It is
// pure and idempotent: re-normalizing its own output is a no-op.
// Records are returned in input order; levels that end up with zero
// 4..6 letter solutions are dropped and reported.
func Normalize(raw []RawRecord) ([]Record, *Report) {
	report := &Report{}
	records := make([]Record, 0, len(raw))

	for i := range raw {
		rec, ok := normalizeOne(&raw[i], report)
		if !ok {
			report.DroppedLevels++
			continue
		}
		records = append(records, rec)
	}

	return records, report
}

func normalizeOne(raw *RawRecord, report *Report) (Record, bool) {
	base := strings.ToUpper(strings.TrimSpace(raw.BaseLetters))
	if !validBaseLetters(base) {
		report.reject(raw.ID, "", ReasonBadBaseLetters)
		return Record{}, false
	}

	rec := Record{
		ID:          raw.ID,
		Realm:       raw.Realm,
		BaseLetters: base,
		Solutions:   map[string][]int{},
		BonusWords:  map[string]struct{}{},
	}
	if raw.Metadata != nil {
		rec.Difficulty = raw.Metadata.Difficulty
	}

	// Deterministic processing order so rejection reports are stable.
	words := make([]string, 0, len(raw.Solutions))
	for w := range raw.Solutions {
		words = append(words, w)
	}
	sort.Strings(words)

	for _, w := range words {
		word := strings.ToUpper(strings.TrimSpace(w))
		if len(word) < MinWordLen || len(word) > MaxWordLen {
			report.reject(raw.ID, word, ReasonBadLength)
			continue
		}
		if _, dup := rec.Solutions[word]; dup {
			report.reject(raw.ID, word, ReasonDuplicate)
			continue
		}
		if _, dup := rec.BonusWords[word]; dup {
			report.reject(raw.ID, word, ReasonDuplicate)
			continue
		}

		// 3-letter words are bonus-only and carry no indices.
		if len(word) == MinWordLen {
			rec.BonusWords[word] = struct{}{}
			continue
		}

		indices, ok := repairIndices(base, word, raw.Solutions[w], report)
		if !ok {
			report.reject(raw.ID, word, ReasonNoAssignment)
			continue
		}
		rec.Solutions[word] = indices
	}

	for _, w := range raw.BonusWords {
		word := strings.ToUpper(strings.TrimSpace(w))
		if len(word) < MinWordLen || len(word) > MaxWordLen {
			report.reject(raw.ID, word, ReasonBadLength)
			continue
		}
		if _, exists := rec.Solutions[word]; exists {
			// Solutions win; keeps the two sets disjoint.
			continue
		}
		rec.BonusWords[word] = struct{}{}
	}

	if len(rec.Solutions) == 0 {
		report.reject(raw.ID, "", ReasonNoSolutions)
		return Record{}, false
	}

	rec.HasIso6, rec.Flags = checkIso6(&rec, raw)

	return rec, true
}

func validBaseLetters(base string) bool {
	if len(base) != BaseLetterCount {
		return false
	}
	for i := 0; i < len(base); i++ {
		if base[i] < 'A' || base[i] > 'Z' {
			return false
		}
	}
	return true
}

// repairIndices returns an index list that reproduces word from base,
// preferring the stored indices, then the 1-based repair, then a full
// recomputation. Returns false when no assignment exists (typically a
// word using letters the wheel does not have).
func repairIndices(base, word string, stored []int, report *Report) ([]int, bool) {
	// Content has been observed to mix 1-based and 0-based index
	// conventions across files, so the repair is per word set: if every
	// stored index is in [1,6] the whole set is treated as 1-based.
	if len(stored) > 0 && allInOneBasedRange(stored) {
		shifted := make([]int, len(stored))
		for i, v := range stored {
			shifted[i] = v - 1
		}
		if reproduces(base, word, shifted) {
			report.RepairedOneBased++
			return shifted, true
		}
	}

	if reproduces(base, word, stored) {
		out := make([]int, len(stored))
		copy(out, stored)
		return out, true
	}

	recomputed, ok := computeIndices(base, word)
	if !ok {
		return nil, false
	}
	report.RecomputedIndexes++
	return recomputed, true
}

func allInOneBasedRange(indices []int) bool {
	for _, v := range indices {
		if v < 1 || v > BaseLetterCount {
			return false
		}
	}
	return true
}

// reproduces checks that indexing base by indices spells word, using
// each wheel position at most once.
func reproduces(base, word string, indices []int) bool {
	if len(indices) != len(word) {
		return false
	}
	var used [BaseLetterCount]bool
	for i, idx := range indices {
		if idx < 0 || idx >= len(base) {
			return false
		}
		if used[idx] {
			return false
		}
		if base[idx] != word[i] {
			return false
		}
		used[idx] = true
	}
	return true
}

// computeIndices rebuilds an index assignment by multiset consumption:
// each letter of the word takes the leftmost unused wheel position
// holding that letter.
func computeIndices(base, word string) ([]int, bool) {
	var used [BaseLetterCount]bool
	indices := make([]int, 0, len(word))

	for i := 0; i < len(word); i++ {
		found := -1
		for p := 0; p < len(base); p++ {
			if !used[p] && base[p] == word[i] {
				found = p
				break
			}
		}
		if found < 0 {
			return nil, false
		}
		used[found] = true
		indices = append(indices, found)
	}
	return indices, true
}

// checkIso6 enforces the full-wheel invariant: every level should admit
// a 6-letter isogram answer. A proven answer comes from the solutions;
// when none exists the base letters being an isogram is accepted as an
// approximation and flagged as such, so the gap stays measurable.
func checkIso6(rec *Record, raw *RawRecord) (bool, []string) {
	for w := range rec.Solutions {
		if len(w) == BaseLetterCount && IsIsogram(w) {
			return true, nil
		}
	}
	if IsIsogram(rec.BaseLetters) {
		return true, []string{FlagIso6Assumed}
	}
	if raw.Metadata != nil && raw.Metadata.HasIso6 {
		// The authoring side claims an isogram we cannot verify.
		return true, []string{FlagIso6Assumed}
	}
	return false, []string{FlagNoIso6}
}
