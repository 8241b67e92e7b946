package pgx

import (
	"slices"
	"testing"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"50%", `50\%`},
		{"snake_case", `snake\_case`},
		{`back\slash`, `back\\slash`},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := escapeLike(tc.in); got != tc.want {
				t.Fatalf("escapeLike(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFilterTraversedEdges(t *testing.T) {
	depths := map[string]int{"a": 0, "b": 1, "c": 1, "d": 2}
	edges := []common.Relationship{
		{ID: "ab", SourceID: "a", TargetID: "b"},
		{ID: "bc", SourceID: "b", TargetID: "c"},
		{ID: "cd", SourceID: "c", TargetID: "d"},
		{ID: "dx", SourceID: "d", TargetID: "x"},
	}

	tests := []struct {
		name     string
		maxDepth int
		want     []string
	}{
		{"OneHop", 1, []string{"ab"}},
		{"TwoHops", 2, []string{"ab", "bc", "cd"}},
		{"ZeroHops", 0, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := []string{}
			for _, r := range filterTraversedEdges(edges, depths, tc.maxDepth) {
				got = append(got, r.ID)
			}
			if !slices.Equal(got, tc.want) {
				t.Fatalf("edges = %v, want %v", got, tc.want)
			}
		})
	}
}
