package memory

import (
	"context"
	"fmt"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"
)

func (s *Store) Stats(ctx context.Context) (common.GraphStats, error) {
	if err := ctx.Err(); err != nil {
		return common.GraphStats{}, err
	}
	snap := s.load()
	return common.GraphStats{
		Entities:      len(snap.entities),
		Relationships: len(snap.relationships),
		Documents:     len(snap.documents),
		Chunks:        len(snap.chunks),
	}, nil
}

// GraphData returns the first limit entities in ingestion order and the
// relationships among them. limit <= 0 returns the whole graph.
func (s *Store) GraphData(ctx context.Context, limit int) (common.Subgraph, error) {
	if err := ctx.Err(); err != nil {
		return common.Subgraph{}, err
	}
	snap := s.load()

	ids := snap.entityOrder
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	included := make(map[string]struct{}, len(ids))
	out := common.Subgraph{Nodes: make([]common.Entity, 0, len(ids))}
	for _, id := range ids {
		included[id] = struct{}{}
		out.Nodes = append(out.Nodes, snap.entities[id])
	}
	for _, r := range snap.relationships {
		_, okS := included[r.SourceID]
		_, okT := included[r.TargetID]
		if okS && okT {
			out.Edges = append(out.Edges, r)
		}
	}
	return out, nil
}

func (s *Store) EntityTypeCounts(ctx context.Context) (map[common.EntityType]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := map[common.EntityType]int{}
	for _, e := range s.load().entities {
		counts[e.Type]++
	}
	return counts, nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	if err := ctx.Err(); err != nil {
		return common.Entity{}, err
	}
	e, ok := s.load().entities[id]
	if !ok {
		return common.Entity{}, fmt.Errorf("entity %s: %w", id, store.ErrNotFound)
	}
	return e, nil
}

func (s *Store) EntityDocuments(ctx context.Context, entityIDs []string) (map[string][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.load()
	out := make(map[string][]string, len(entityIDs))
	for _, id := range entityIDs {
		if docs, ok := snap.entityDocs[id]; ok {
			out[id] = append([]string(nil), docs...)
		}
	}
	return out, nil
}
