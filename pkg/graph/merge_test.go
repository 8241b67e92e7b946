package graph

import (
	"reflect"
	"testing"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
)

func TestDocumentGraphMerge(t *testing.T) {
	g := newDocumentGraph()

	g.add(0, extraction{
		entities: []common.Entity{
			{ID: "a1", Name: "GraphRAG", Type: common.EntityTypeConcept},
			{ID: "b1", Name: "Neo4j", Type: common.EntityTypeTechnology},
		},
		relationships: []common.Relationship{
			{ID: "r1", SourceID: "a1", TargetID: "b1", Label: "uses"},
		},
	})
	g.add(1, extraction{
		entities: []common.Entity{
			{ID: "a2", Name: "graphrag", Type: common.EntityTypeConcept},
			{ID: "b2", Name: "Neo4j", Type: common.EntityTypeTechnology},
			{ID: "c2", Name: "Neo4j", Type: common.EntityTypeOrganization},
		},
		relationships: []common.Relationship{
			{ID: "r2", SourceID: "a2", TargetID: "b2", Label: "uses"},
			{ID: "r3", SourceID: "a2", TargetID: "b2", Label: "stores_in"},
			{ID: "r4", SourceID: "c2", TargetID: "b2", Label: "develops"},
			{ID: "r5", SourceID: "a2", TargetID: "missing", Label: "uses"},
		},
	})

	ids := func(es []common.Entity) []string {
		out := make([]string, len(es))
		for i, e := range es {
			out[i] = e.ID
		}
		return out
	}
	if got := ids(g.entities); !reflect.DeepEqual(got, []string{"a1", "b1", "c2"}) {
		t.Fatalf("entities = %v", got)
	}
	if g.entities[0].Name != "GraphRAG" {
		t.Fatalf("first mention should name the entity, got %q", g.entities[0].Name)
	}

	var rels []string
	for _, r := range g.relationships {
		rels = append(rels, r.SourceID+" "+r.Label+" "+r.TargetID)
	}
	want := []string{"a1 uses b1", "a1 stores_in b1", "c2 develops b1"}
	if !reflect.DeepEqual(rels, want) {
		t.Fatalf("relationships = %v, want %v", rels, want)
	}

	if got := g.entityIDs(0); !reflect.DeepEqual(got, []string{"a1", "b1"}) {
		t.Fatalf("chunk 0 entities = %v", got)
	}
	if got := g.entityIDs(1); !reflect.DeepEqual(got, []string{"a1", "b1", "c2"}) {
		t.Fatalf("chunk 1 entities = %v", got)
	}
	if got := g.entityIDs(7); got != nil {
		t.Fatalf("unknown chunk should have no entities, got %v", got)
	}
}
