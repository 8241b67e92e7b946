package util

import (
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoidLength = 21

// NewID returns a fresh 21 character nanoid.
func NewID() (string, error) {
	return gonanoid.New()
}

// MustNewID is NewID for call sites that cannot recover from a broken
// random source.
func MustNewID() string {
	return gonanoid.Must()
}

func isNanoidChar(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_' || c == '-'
}

// IsNanoid reports whether s has the shape of an ID produced by NewID.
func IsNanoid(s string) bool {
	if len(s) != nanoidLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNanoidChar(s[i]) {
			return false
		}
	}
	return true
}

// ExtractNanoid pulls the trailing ID out of strings like object keys
// ("documents/<id>.pdf") or prefixed references ("DOC:<id>"). It returns ""
// when no valid ID is found.
func ExtractNanoid(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "."); idx > 0 && len(s)-idx <= 6 {
		s = s[:idx]
	}
	if IsNanoid(s) {
		return s
	}
	cut := strings.LastIndexAny(s, ",;|: ")
	if cut < 0 {
		return ""
	}
	candidate := s[cut+1:]
	if IsNanoid(candidate) {
		return candidate
	}
	return ""
}
