package pgx

import (
	"context"
	"fmt"
	"strings"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const neighborsSQL = `
WITH RECURSIVE walk(id, depth) AS (
    SELECT $1::text, 0
    UNION
    SELECT CASE WHEN r.source_id = w.id THEN r.target_id ELSE r.source_id END, w.depth + 1
    FROM walk w
    JOIN relationships r ON r.source_id = w.id OR r.target_id = w.id
    WHERE w.depth < $2
)
SELECT e.id, e.name, e.type, e.source_doc, min(w.depth) AS depth
FROM walk w
JOIN entities e ON e.id = w.id
GROUP BY e.id, e.name, e.type, e.source_doc, e.seq
ORDER BY depth, e.seq
`

const edgesAmongSQL = `
SELECT id, source_id, target_id, label, source_doc
FROM relationships
WHERE source_id = ANY($1) AND target_id = ANY($1)
ORDER BY seq
`

func scanEntity(row pgxv5.CollectableRow) (common.Entity, error) {
	var e common.Entity
	var typ string
	if err := row.Scan(&e.ID, &e.Name, &typ, &e.SourceDoc); err != nil {
		return common.Entity{}, err
	}
	e.Type = common.EntityType(typ)
	return e, nil
}

// Neighbors returns every entity within depth hops of entityID in either
// direction, nearest first, plus the edges touching at least one entity
// closer than depth.
func (s *Store) Neighbors(ctx context.Context, entityID string, depth int) (common.Subgraph, error) {
	if depth < 0 {
		depth = 0
	}

	rows, err := s.conn.Query(ctx, neighborsSQL, entityID, depth)
	if err != nil {
		return common.Subgraph{}, err
	}
	var out common.Subgraph
	depths := map[string]int{}
	ids := []string{}
	for rows.Next() {
		var e common.Entity
		var typ string
		var d int
		if err := rows.Scan(&e.ID, &e.Name, &typ, &e.SourceDoc, &d); err != nil {
			rows.Close()
			return common.Subgraph{}, err
		}
		e.Type = common.EntityType(typ)
		out.Nodes = append(out.Nodes, e)
		depths[e.ID] = d
		ids = append(ids, e.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return common.Subgraph{}, err
	}
	if len(out.Nodes) == 0 {
		return common.Subgraph{}, fmt.Errorf("entity %s: %w", entityID, store.ErrNotFound)
	}
	if depth == 0 {
		return out, nil
	}

	edges, err := s.edgesAmong(ctx, ids)
	if err != nil {
		return common.Subgraph{}, err
	}
	out.Edges = filterTraversedEdges(edges, depths, depth)
	return out, nil
}

// filterTraversedEdges keeps edges whose endpoints are both known and at
// least one of which sits closer than maxDepth. Edges between two nodes on
// the outer ring were never walked.
func filterTraversedEdges(edges []common.Relationship, depths map[string]int, maxDepth int) []common.Relationship {
	out := make([]common.Relationship, 0, len(edges))
	for _, r := range edges {
		ds, okS := depths[r.SourceID]
		dt, okT := depths[r.TargetID]
		if !okS || !okT {
			continue
		}
		if min(ds, dt) < maxDepth {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) edgesAmong(ctx context.Context, ids []string) ([]common.Relationship, error) {
	rows, err := s.conn.Query(ctx, edgesAmongSQL, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []common.Relationship
	for rows.Next() {
		var r common.Relationship
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Label, &r.SourceDoc); err != nil {
			return nil, err
		}
		edges = append(edges, r)
	}
	return edges, rows.Err()
}

const findByNameSQL = `
SELECT id
FROM entities
WHERE name_key = $1
   OR (char_length($1) >= 3 AND name_key LIKE '%' || $2 || '%' ESCAPE '\')
   OR (char_length(name_key) >= 3 AND position(' ' || name_key || ' ' IN ' ' || $1 || ' ') > 0)
ORDER BY seq
`

// escapeLike escapes LIKE wildcards so user text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// FindByName mirrors store.MatchesName in SQL.
func (s *Store) FindByName(ctx context.Context, name string) ([]string, error) {
	term := common.NormalizeName(name)
	if term == "" {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, findByNameSQL, term, escapeLike(term))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
