package memory

import (
	"context"
	"fmt"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"
)

// Neighbors walks both edge directions breadth first from entityID. Depth 0
// returns only the entity itself.
func (s *Store) Neighbors(ctx context.Context, entityID string, depth int) (common.Subgraph, error) {
	if err := ctx.Err(); err != nil {
		return common.Subgraph{}, err
	}
	snap := s.load()
	root, ok := snap.entities[entityID]
	if !ok {
		return common.Subgraph{}, fmt.Errorf("entity %s: %w", entityID, store.ErrNotFound)
	}

	visited := map[string]struct{}{entityID: {}}
	out := common.Subgraph{Nodes: []common.Entity{root}}
	usedEdges := map[int]struct{}{}

	frontier := []string{entityID}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, idx := range snap.edgesOf(id) {
				if _, seen := usedEdges[idx]; seen {
					continue
				}
				usedEdges[idx] = struct{}{}
				r := snap.relationships[idx]
				other := r.TargetID
				if other == id {
					other = r.SourceID
				}
				if _, seen := visited[other]; !seen {
					visited[other] = struct{}{}
					out.Nodes = append(out.Nodes, snap.entities[other])
					next = append(next, other)
				}
				out.Edges = append(out.Edges, r)
			}
		}
		frontier = next
	}
	return out, nil
}

// edgesOf lists relationship indexes touching id, outgoing first, each in
// insertion order.
func (snap *snapshot) edgesOf(id string) []int {
	out := snap.outgoing[id]
	in := snap.incoming[id]
	all := make([]int, 0, len(out)+len(in))
	all = append(all, out...)
	return append(all, in...)
}

// FindByName returns matching entity IDs in ingestion order.
func (s *Store) FindByName(ctx context.Context, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.load()
	var ids []string
	for _, id := range snap.entityOrder {
		if store.MatchesName(name, snap.entities[id].Name) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
