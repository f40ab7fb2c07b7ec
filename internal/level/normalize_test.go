package level_test

import (
	"reflect"
	"testing"

	"github.com/wordrealms/catalog/internal/level"
)

func TestNormalizeOneBasedRepair(t *testing.T) {
	raw := []level.RawRecord{{
		ID:          7,
		BaseLetters: "retain",
		Solutions: map[string][]int{
			"train":  {3, 1, 4, 5, 6},
			"retain": {0, 1, 2, 3, 4, 5},
		},
	}}

	records, report := level.Normalize(raw)
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1", len(records))
	}

	rec := records[0]
	if rec.BaseLetters != "RETAIN" {
		t.Errorf("baseLetters: got %q, want RETAIN", rec.BaseLetters)
	}
	want := []int{2, 0, 3, 4, 5}
	if got := rec.Solutions["TRAIN"]; !reflect.DeepEqual(got, want) {
		t.Errorf("TRAIN indices: got %v, want %v", got, want)
	}
	if report.RepairedOneBased != 1 {
		t.Errorf("RepairedOneBased: got %d, want 1", report.RepairedOneBased)
	}
	// RETAIN used 0, so its set must be left as-is.
	if got := rec.Solutions["RETAIN"]; !reflect.DeepEqual(got, []int{0, 1, 2, 3, 4, 5}) {
		t.Errorf("RETAIN indices: got %v", got)
	}
}

func TestNormalizeThreeLetterRelocation(t *testing.T) {
	raw := []level.RawRecord{{
		ID:          3,
		BaseLetters: "CATNIP",
		Solutions: map[string][]int{
			"cat":  {0, 1, 2},
			"tanc": nil, // not spellable as a word? still letters C,A,T,N
		},
	}}

	records, _ := level.Normalize(raw)
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1", len(records))
	}

	rec := records[0]
	if _, ok := rec.BonusWords["CAT"]; !ok {
		t.Error("CAT should be relocated to bonusWords")
	}
	if _, ok := rec.Solutions["CAT"]; ok {
		t.Error("CAT must not remain in solutions")
	}
}

func TestNormalizeRecomputesBrokenIndices(t *testing.T) {
	raw := []level.RawRecord{{
		ID:          9,
		BaseLetters: "GARNET",
		Solutions: map[string][]int{
			"RANGE": {5, 5, 5, 5, 5}, // garbage indices
			"GRANT": nil,             // missing entirely
		},
	}}

	records, report := level.Normalize(raw)
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1", len(records))
	}

	rec := records[0]
	for word, indices := range rec.Solutions {
		for i, idx := range indices {
			if rec.BaseLetters[idx] != word[i] {
				t.Errorf("%s: index %d points at %c, want %c", word, idx, rec.BaseLetters[idx], word[i])
			}
		}
	}
	if report.RecomputedIndexes != 2 {
		t.Errorf("RecomputedIndexes: got %d, want 2", report.RecomputedIndexes)
	}
}

func TestNormalizeDropsUnspellableWord(t *testing.T) {
	raw := []level.RawRecord{{
		ID:          4,
		BaseLetters: "GARNET",
		Solutions: map[string][]int{
			"GRANT": {0, 2, 1, 3, 5},
			"ZEBRA": nil, // Z and B are not on the wheel
		},
	}}

	records, report := level.Normalize(raw)
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1", len(records))
	}
	if _, ok := records[0].Solutions["ZEBRA"]; ok {
		t.Error("ZEBRA should have been dropped")
	}

	found := false
	for _, rej := range report.Rejections {
		if rej.Word == "ZEBRA" && rej.Reason == level.ReasonNoAssignment {
			found = true
		}
	}
	if !found {
		t.Errorf("missing rejection for ZEBRA, got %+v", report.Rejections)
	}
}

func TestNormalizeDropsLevelWithNoSolutions(t *testing.T) {
	raw := []level.RawRecord{{
		ID:          5,
		BaseLetters: "GARNET",
		Solutions: map[string][]int{
			"ant": nil, // relocated to bonus
			"ZZ":  nil, // too short
		},
	}}

	records, report := level.Normalize(raw)
	if len(records) != 0 {
		t.Fatalf("records: got %d, want 0", len(records))
	}
	if report.DroppedLevels != 1 {
		t.Errorf("DroppedLevels: got %d, want 1", report.DroppedLevels)
	}
}

func TestNormalizeCrossCaseDuplicates(t *testing.T) {
	raw := []level.RawRecord{{
		ID:          6,
		BaseLetters: "GARNET",
		Solutions: map[string][]int{
			"Rate": nil,
			"RATE": nil,
		},
	}}

	records, report := level.Normalize(raw)
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1", len(records))
	}
	if len(records[0].Solutions) != 1 {
		t.Errorf("solutions: got %d, want 1", len(records[0].Solutions))
	}

	dup := 0
	for _, rej := range report.Rejections {
		if rej.Reason == level.ReasonDuplicate {
			dup++
		}
	}
	if dup != 1 {
		t.Errorf("duplicate rejections: got %d, want 1", dup)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := []level.RawRecord{
		{
			ID:          1,
			BaseLetters: "retain",
			Solutions: map[string][]int{
				"train":  {3, 1, 4, 5, 6},
				"retina": nil,
				"rat":    nil,
			},
			BonusWords: []string{"tie", "net"},
		},
		{
			ID:          2,
			BaseLetters: "GARNET",
			Solutions: map[string][]int{
				"GRANT": {0, 2, 1, 3, 5},
				"RANGE": {9, 9, 9, 9, 9},
			},
		},
	}

	once, _ := level.Normalize(raw)

	again := make([]level.RawRecord, len(once))
	for i := range once {
		again[i] = once[i].Raw()
	}
	twice, report := level.Normalize(again)

	if report.RepairedOneBased != 0 || report.RecomputedIndexes != 0 {
		t.Errorf("re-normalization repaired data: %+v", report)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("normalize not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestNormalizeRoundTripLaw(t *testing.T) {
	raw := []level.RawRecord{
		{ID: 1, BaseLetters: "retain", Solutions: map[string][]int{
			"train": {3, 1, 4, 5, 6}, "inert": nil, "retina": {1, 2, 3, 4, 5, 6},
		}},
		{ID: 2, BaseLetters: "oranges"[:6], Solutions: map[string][]int{
			"groan": nil, "organ": nil, "snore": nil,
		}},
	}

	records, _ := level.Normalize(raw)
	for _, rec := range records {
		for word, indices := range rec.Solutions {
			if len(indices) != len(word) {
				t.Fatalf("level %d %s: %d indices for %d letters", rec.ID, word, len(indices), len(word))
			}
			rebuilt := make([]byte, len(word))
			seen := map[int]bool{}
			for i, idx := range indices {
				if seen[idx] {
					t.Errorf("level %d %s: index %d reused", rec.ID, word, idx)
				}
				seen[idx] = true
				rebuilt[i] = rec.BaseLetters[idx]
			}
			if string(rebuilt) != word {
				t.Errorf("level %d: indices %v rebuild %q, want %q", rec.ID, indices, rebuilt, word)
			}
		}
	}
}

func TestIso6Validation(t *testing.T) {
	tests := []struct {
		name     string
		raw      level.RawRecord
		hasIso6  bool
		wantFlag string
	}{
		{
			name: "proven by solution",
			raw: level.RawRecord{ID: 1, BaseLetters: "GARNET",
				Solutions: map[string][]int{"ARGENT": nil, "GRANT": nil}},
			hasIso6: true,
		},
		{
			name: "assumed from isogram base",
			raw: level.RawRecord{ID: 2, BaseLetters: "GARNET",
				Solutions: map[string][]int{"GRANT": nil}},
			hasIso6:  true,
			wantFlag: level.FlagIso6Assumed,
		},
		{
			name: "no isogram derivable",
			raw: level.RawRecord{ID: 3, BaseLetters: "BANANA",
				Solutions: map[string][]int{"NAAN": nil}},
			hasIso6:  false,
			wantFlag: level.FlagNoIso6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, _ := level.Normalize([]level.RawRecord{tt.raw})
			if len(records) != 1 {
				t.Fatalf("records: got %d, want 1", len(records))
			}
			rec := records[0]
			if rec.HasIso6 != tt.hasIso6 {
				t.Errorf("HasIso6: got %v, want %v", rec.HasIso6, tt.hasIso6)
			}
			if tt.wantFlag != "" && !rec.Flagged(tt.wantFlag) {
				t.Errorf("missing flag %q, got %v", tt.wantFlag, rec.Flags)
			}
			if tt.wantFlag == "" && len(rec.Flags) != 0 {
				t.Errorf("unexpected flags %v", rec.Flags)
			}
		})
	}
}

func TestBootstrapIsValid(t *testing.T) {
	boot := level.Bootstrap()

	records, report := level.Normalize([]level.RawRecord{boot.Raw()})
	if len(records) != 1 {
		t.Fatalf("bootstrap did not survive normalization: %+v", report.Rejections)
	}
	if len(report.Rejections) != 0 {
		t.Errorf("bootstrap rejections: %+v", report.Rejections)
	}
	if report.RecomputedIndexes != 0 || report.RepairedOneBased != 0 {
		t.Errorf("bootstrap needed repair: %+v", report)
	}
	if !records[0].HasIso6 || records[0].Flagged(level.FlagIso6Assumed) {
		t.Error("bootstrap must have a proven six-letter isogram")
	}
	if !reflect.DeepEqual(records[0], boot) {
		t.Errorf("bootstrap not canonical:\ngot:  %+v\nwant: %+v", records[0], boot)
	}
}
