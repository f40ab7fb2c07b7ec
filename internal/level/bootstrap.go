package level

// Bootstrap returns the hardcoded fallback level. It is pre-validated
// and never subject to network or file I/O, so gameplay always has at
// least one playable level even when both catalog sources fail.
//
// Wheel: G A R N E T (positions 0..5).
func Bootstrap() Record {
	return Record{
		ID:          1,
		Realm:       "meadow",
		BaseLetters: "GARNET",
		Solutions: map[string][]int{
			"GARNET": {0, 1, 2, 3, 4, 5},
			"ARGENT": {1, 2, 0, 4, 3, 5},
			"GRANT":  {0, 2, 1, 3, 5},
			"RANGE":  {2, 1, 3, 0, 4},
			"AGENT":  {1, 0, 4, 3, 5},
			"ANGER":  {1, 3, 0, 4, 2},
			"GREAT":  {0, 2, 4, 1, 5},
			"EARN":   {4, 1, 2, 3},
			"NEAR":   {3, 4, 1, 2},
			"RATE":   {2, 1, 5, 4},
			"GEAR":   {0, 4, 1, 2},
			"GATE":   {0, 1, 5, 4},
			"RANG":   {2, 1, 3, 0},
			"TEAR":   {5, 4, 1, 2},
		},
		BonusWords: map[string]struct{}{
			"ANT": {}, "ART": {}, "EAR": {}, "EAT": {}, "ERA": {},
			"GET": {}, "NET": {}, "RAG": {}, "RAT": {}, "TAG": {},
			"TAN": {}, "TAR": {}, "TEN": {},
		},
		Difficulty: "easy",
		HasIso6:    true,
	}
}
