package billing

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatNumber renders PREFIX-YYYY-NNNN.
func FormatNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}

// NumberPattern is the prefix shared by every number of prefix in year.
func NumberPattern(prefix string, year int) string {
	return fmt.Sprintf("%s-%d-", prefix, year)
}

// ParseSequence extracts the trailing sequence of number when it belongs to
// prefix and year.
func ParseSequence(number, prefix string, year int) (int, bool) {
	rest, ok := strings.CutPrefix(number, NumberPattern(prefix, year))
	if !ok || rest == "" {
		return 0, false
	}
	seq, err := strconv.Atoi(rest)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// HighestSequence is the largest sequence among numbers for prefix and year, 0 if none.
func HighestSequence(numbers []string, prefix string, year int) int {
	highest := 0
	for _, n := range numbers {
		if seq, ok := ParseSequence(n, prefix, year); ok && seq > highest {
			highest = seq
		}
	}
	return highest
}
