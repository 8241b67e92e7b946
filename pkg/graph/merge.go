package graph

import (
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"
)

// documentGraph accumulates the per-chunk extractions of one document.
// Entities merge by normalized name and type. Relationships merge by
// (source, label, target) after their endpoints have been merged.
type documentGraph struct {
	entities      []common.Entity
	byKey         map[string]string
	relationships []common.Relationship
	relKeys       map[string]struct{}
	chunkEntities map[int][]string
}

func newDocumentGraph() *documentGraph {
	return &documentGraph{
		byKey:         map[string]string{},
		relKeys:       map[string]struct{}{},
		chunkEntities: map[int][]string{},
	}
}

// add merges the extraction of the chunk at index. Callers add chunks in
// index order so the first mention of an entity names it.
func (g *documentGraph) add(index int, ex extraction) {
	local := make(map[string]string, len(ex.entities))
	for _, e := range ex.entities {
		key := e.Key()
		id, ok := g.byKey[key]
		if !ok {
			id = e.ID
			g.byKey[key] = id
			g.entities = append(g.entities, e)
		}
		local[e.ID] = id
		g.chunkEntities[index] = append(g.chunkEntities[index], id)
	}
	g.chunkEntities[index] = store.DedupeStrings(g.chunkEntities[index])

	for _, r := range ex.relationships {
		src, ok1 := local[r.SourceID]
		tgt, ok2 := local[r.TargetID]
		if !ok1 || !ok2 || src == tgt {
			continue
		}
		key := src + "\x00" + r.Label + "\x00" + tgt
		if _, dup := g.relKeys[key]; dup {
			continue
		}
		g.relKeys[key] = struct{}{}
		r.SourceID, r.TargetID = src, tgt
		g.relationships = append(g.relationships, r)
	}
}

func (g *documentGraph) entityIDs(index int) []string {
	return g.chunkEntities[index]
}
