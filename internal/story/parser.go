package story

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NumChoices is how many continuations every menu offers. The prompt
// asks for this many and the parser guarantees exactly this many.
const NumChoices = 3

// choiceLine matches a numbered list entry: optional leading whitespace,
// an integer, a period, optional whitespace, then non-empty content.
var choiceLine = regexp.MustCompile(`^\s*(\d+)\.\s*(\S.*)$`)

// ParseChoices extracts exactly NumChoices continuation strings from the
// model's raw reply. The reply format is not contractually guaranteed,
// so missing positions are filled with fallback placeholders rather than
// failing the turn. Numbered entries above NumChoices are ignored; the
// first occurrence of each number wins. Pure function: never returns an
// error, never returns fewer or more than NumChoices entries.
func ParseChoices(raw string) []string {
	found := make(map[int]string, NumChoices)

	for _, line := range strings.Split(raw, "\n") {
		m := choiceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > NumChoices {
			continue
		}
		if _, ok := found[n]; !ok {
			found[n] = strings.TrimSpace(m[2])
		}
	}

	choices := make([]string, NumChoices)
	for i := 1; i <= NumChoices; i++ {
		if c, ok := found[i]; ok {
			choices[i-1] = c
		} else {
			choices[i-1] = fallbackChoice(i)
		}
	}
	return choices
}

// fallbackChoice synthesizes a placeholder for a missing menu position.
// The "(fallback N)" marker makes it unmistakable as synthesized text.
func fallbackChoice(position int) string {
	return fmt.Sprintf("A mysterious path unfolds (fallback %d).", position)
}

// IsFallback reports whether a choice string is a synthesized
// placeholder rather than model output.
func IsFallback(choice string) bool {
	return strings.Contains(choice, "(fallback ")
}

// countFallbacks returns how many entries are synthesized placeholders.
func countFallbacks(choices []string) int {
	n := 0
	for _, c := range choices {
		if IsFallback(c) {
			n++
		}
	}
	return n
}
