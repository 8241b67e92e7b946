package store

import (
	"strings"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
)

// minTermLen keeps one and two letter terms from matching inside every
// longer entity name.
const minTermLen = 3

// MatchesName reports whether a search term and an entity name refer to the
// same thing: either the term occurs inside the name, or the whole name
// occurs inside the term on word boundaries. Both sides are compared
// normalized.
func MatchesName(term, name string) bool {
	t := common.NormalizeName(term)
	n := common.NormalizeName(name)
	if t == "" || n == "" {
		return false
	}
	if t == n {
		return true
	}
	if len(t) >= minTermLen && strings.Contains(n, t) {
		return true
	}
	return len(n) >= minTermLen && containsWord(t, n)
}

// containsWord reports whether needle occurs in haystack bounded by spaces
// or the string ends.
func containsWord(haystack, needle string) bool {
	for start := 0; ; {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(needle)
		leftOK := idx == 0 || haystack[idx-1] == ' '
		rightOK := end == len(haystack) || haystack[end] == ' '
		if leftOK && rightOK {
			return true
		}
		start = idx + 1
	}
}
