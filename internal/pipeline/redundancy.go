package pipeline

import (
	"slices"
	"strings"
	"unicode"
)

// overlapWindow is how many characters at each chunk boundary are compared.
const overlapWindow = 200

// JoinLines puts a multi-line chunk on one line with single spaces.
func JoinLines(text string) string {
	if !strings.Contains(text, "\n") {
		return text
	}
	return strings.Join(strings.Fields(text), " ")
}

// boundaryOverlap counts the words that end prev and also start next,
// looking only at the last and first overlapWindow characters.
func boundaryOverlap(prev, next string) int {
	pr, nr := []rune(prev), []rune(next)
	tail := strings.Fields(string(pr[max(0, len(pr)-overlapWindow):]))
	head := strings.Fields(string(nr[:min(len(nr), overlapWindow)]))

	overlap := 0
	for j := 1; j <= min(len(tail), len(head)); j++ {
		if slices.Equal(tail[len(tail)-j:], head[:j]) {
			overlap = j
		}
	}
	return overlap
}

// trimOverlap drops the first n words of next, whatever whitespace
// separates them.
func trimOverlap(next string, n int) string {
	seen, inWord := 0, false
	for i, r := range next {
		if !unicode.IsSpace(r) {
			inWord = true
			continue
		}
		if inWord {
			seen++
			inWord = false
			if seen == n {
				return strings.TrimLeftFunc(next[i:], unicode.IsSpace)
			}
		}
	}
	return ""
}

type RedundancyStats struct {
	Chunks  int `json:"chunks"`
	Trimmed int `json:"trimmed"`
}

// RemoveRedundancy rewrites a chunk file in place, dropping text repeated
// across consecutive chunk boundaries. Chunks are compared in file order, so
// a trimmed chunk is the one compared with its successor. Fields other than
// text are kept, and a malformed line aborts the pass with the file untouched.
func RemoveRedundancy(path string, joinLines bool) (RedundancyStats, error) {
	records, err := readRecords(path)
	if err != nil {
		return RedundancyStats{}, err
	}
	stats := RedundancyStats{Chunks: len(records)}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.text()
		if joinLines {
			texts[i] = JoinLines(texts[i])
		}
	}
	for i := 0; i+1 < len(texts); i++ {
		cur, next := texts[i], texts[i+1]
		if cur == "" || next == "" {
			continue
		}
		if n := boundaryOverlap(cur, next); n > 0 {
			texts[i+1] = trimOverlap(next, n)
			stats.Trimmed++
		}
	}
	for i, rec := range records {
		if texts[i] == rec.text() {
			continue
		}
		if err := rec.setString("text", texts[i]); err != nil {
			return RedundancyStats{}, err
		}
	}
	return stats, writeLines(path, records)
}
