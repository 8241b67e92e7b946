package query

import (
	"context"
	"errors"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"
)

// walker runs breadth-first traversals over a GraphStore one hop at a time,
// so the visited set and the node cap are enforced here and not by the
// store.
type walker struct {
	graph      store.GraphStore
	maxVisited int
	tracer     Tracer
}

type walkResult struct {
	traversal *Traversal
	nodes     []common.Entity
	edges     []common.Relationship
}

func (w *walker) neighbors(ctx context.Context, id string, depth int) (common.Subgraph, error) {
	start := time.Now()
	sg, err := w.graph.Neighbors(ctx, id, depth)
	recordStoreCall(w.tracer, StoreGraph, "neighbors", time.Since(start).Milliseconds(), err)
	return sg, err
}

// walk expands seeds up to maxHops. Seeds the store does not know are
// skipped. Once maxVisited entities are collected further discoveries are
// dropped and the traversal is marked truncated. Only edges whose endpoints
// were both collected are returned.
func (w *walker) walk(ctx context.Context, seeds []string, maxHops int) (*walkResult, error) {
	t := &Traversal{
		Depth:  map[string]int{},
		Parent: map[string]common.Relationship{},
	}
	res := &walkResult{traversal: t}
	byID := map[string]common.Entity{}
	edgeSeen := map[string]struct{}{}
	var pending []common.Relationship

	visit := func(e common.Entity, depth int) bool {
		if _, ok := t.Depth[e.ID]; ok {
			return false
		}
		if len(t.Order) >= w.maxVisited {
			t.Truncated = true
			return false
		}
		t.Depth[e.ID] = depth
		t.Order = append(t.Order, e.ID)
		byID[e.ID] = e
		return true
	}

	var frontier []string
	for _, id := range seeds {
		if _, ok := t.Depth[id]; ok {
			continue
		}
		sg, err := w.neighbors(ctx, id, 0)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, n := range sg.Nodes {
			if n.ID == id && visit(n, 0) {
				t.Seeds = append(t.Seeds, id)
				frontier = append(frontier, id)
			}
		}
	}

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var nextFrontier []string
		for _, id := range frontier {
			sg, err := w.neighbors(ctx, id, 1)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			nodes := make(map[string]common.Entity, len(sg.Nodes))
			for _, n := range sg.Nodes {
				nodes[n.ID] = n
			}
			for _, r := range sg.Edges {
				if _, dup := edgeSeen[r.ID]; dup {
					continue
				}
				other := r.TargetID
				if other == id {
					other = r.SourceID
				}
				if other != id {
					if n, ok := nodes[other]; ok && visit(n, hop) {
						t.Parent[other] = r
						nextFrontier = append(nextFrontier, other)
					}
				}
				edgeSeen[r.ID] = struct{}{}
				pending = append(pending, r)
			}
		}
		frontier = nextFrontier
	}

	for _, id := range t.Order {
		res.nodes = append(res.nodes, byID[id])
	}
	for _, r := range pending {
		_, okS := t.Depth[r.SourceID]
		_, okT := t.Depth[r.TargetID]
		if okS && okT {
			res.edges = append(res.edges, r)
		}
	}
	return res, nil
}
