package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"
)

const (
	DefaultPathDepth = 4
	MaxPathDepth     = 6
)

// PathResult is the shortest undirected path between two entities.
type PathResult struct {
	Found         bool                  `json:"found"`
	Length        int                   `json:"path_length"`
	Nodes         []common.Entity       `json:"nodes"`
	Relationships []common.Relationship `json:"relationships"`
	Rendered      string                `json:"rendered"`
	Message       string                `json:"message,omitempty"`
}

// ShortestPath runs a breadth-first search from sourceID towards targetID,
// following edges in both directions, for at most maxDepth hops. A missing
// path is not an error.
func (e *Engine) ShortestPath(ctx context.Context, sourceID, targetID string, maxDepth int) (*PathResult, error) {
	if sourceID == "" || targetID == "" {
		return nil, invalidRequest("source and target are required")
	}
	if maxDepth < 1 || maxDepth > MaxPathDepth {
		return nil, invalidRequest("max_depth must be between 1 and %d, got %d", MaxPathDepth, maxDepth)
	}

	w := e.retriever.walker(e.opts.Tracer)
	entities := map[string]common.Entity{}
	parent := map[string]common.Relationship{}

	for _, id := range []string{sourceID, targetID} {
		sg, err := w.neighbors(ctx, id, 0)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("entity %s: %w", id, store.ErrNotFound)
		}
		if err != nil {
			return nil, storeError(StageRetrieve, StoreGraph, err)
		}
		for _, n := range sg.Nodes {
			entities[n.ID] = n
		}
	}

	found := sourceID == targetID
	visited := map[string]struct{}{sourceID: {}}
	frontier := []string{sourceID}
	for depth := 1; depth <= maxDepth && !found && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			sg, err := w.neighbors(ctx, id, 1)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, storeError(StageRetrieve, StoreGraph, err)
			}
			for _, n := range sg.Nodes {
				if _, ok := entities[n.ID]; !ok {
					entities[n.ID] = n
				}
			}
			for _, r := range sg.Edges {
				other := r.TargetID
				if other == id {
					other = r.SourceID
				}
				if _, seen := visited[other]; seen {
					continue
				}
				if len(visited) >= e.opts.MaxVisited {
					break
				}
				visited[other] = struct{}{}
				parent[other] = r
				next = append(next, other)
				if other == targetID {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		frontier = next
	}

	if !found {
		return &PathResult{
			Nodes:         []common.Entity{},
			Relationships: []common.Relationship{},
			Message:       "No path found between entities",
		}, nil
	}

	var edges []common.Relationship
	for cur := targetID; cur != sourceID; {
		r := parent[cur]
		edges = append(edges, r)
		if r.SourceID == cur {
			cur = r.TargetID
		} else {
			cur = r.SourceID
		}
	}
	slices.Reverse(edges)

	names := make(map[string]string, len(entities))
	for id, ent := range entities {
		names[id] = ent.Name
	}
	res := &PathResult{
		Found:         true,
		Length:        len(edges),
		Nodes:         []common.Entity{entities[sourceID]},
		Relationships: edges,
		Rendered:      RenderChain(sourceID, edges, names),
	}
	if res.Relationships == nil {
		res.Relationships = []common.Relationship{}
	}
	cur := sourceID
	for _, r := range edges {
		if r.SourceID == cur {
			cur = r.TargetID
		} else {
			cur = r.SourceID
		}
		res.Nodes = append(res.Nodes, entities[cur])
	}
	return res, nil
}

// EntityDetails is an entity together with its direct neighbourhood.
type EntityDetails struct {
	Entity        common.Entity         `json:"entity"`
	Neighbors     []common.Entity       `json:"neighbors"`
	Relationships []common.Relationship `json:"relationships"`
	NeighborCount int                   `json:"neighbor_count"`
	Documents     []string              `json:"documents"`
}

// EntityDetails returns the entity with the given ID and everything one hop
// away. Unknown IDs return an error wrapping store.ErrNotFound.
func (e *Engine) EntityDetails(ctx context.Context, id string) (*EntityDetails, error) {
	start := time.Now()
	sg, err := e.kb.Graph.Neighbors(ctx, id, 1)
	recordStoreCall(e.opts.Tracer, StoreGraph, "neighbors", time.Since(start).Milliseconds(), err)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("entity %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, storeError(StageRetrieve, StoreGraph, err)
	}

	d := &EntityDetails{
		Neighbors:     []common.Entity{},
		Relationships: sg.Edges,
		Documents:     []string{},
	}
	if d.Relationships == nil {
		d.Relationships = []common.Relationship{}
	}
	for _, n := range sg.Nodes {
		if n.ID == id {
			d.Entity = n
			continue
		}
		d.Neighbors = append(d.Neighbors, n)
	}
	d.NeighborCount = len(d.Neighbors)

	if e.opts.Files != nil {
		docs, err := e.opts.Files.EntityDocuments(ctx, []string{id})
		if err != nil {
			return nil, storeError(StageRetrieve, StoreGraph, err)
		}
		if ds := docs[id]; ds != nil {
			d.Documents = ds
		}
	}
	return d, nil
}
