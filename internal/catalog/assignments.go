package catalog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadAssignments reads a realm/difficulty assignment table from a
// packaged TSV file with lines of the form:
//
//	id <TAB> difficultyRank <TAB> iso
//
// where iso is 0 or 1. A leading "id\t" header line is skipped.
// Unparseable lines are skipped; the table is advisory, not content.
func LoadAssignments(path string) (map[int]Assignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open assignments: %w", err)
	}
	defer f.Close()

	table := map[int]Assignment{}
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if lineNum == 1 && strings.HasPrefix(line, "id\t") {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}
		rank, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || rank < 0 || rank > 3 {
			continue
		}
		iso := strings.TrimSpace(parts[2]) == "1"

		table[id] = Assignment{DifficultyRank: rank, HasIsogram: iso}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read assignments: %w", err)
	}

	return table, nil
}
