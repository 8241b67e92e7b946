package pgx

import (
	"context"
	"fmt"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

func (s *Store) Stats(ctx context.Context) (common.GraphStats, error) {
	var st common.GraphStats
	err := s.conn.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM entities),
			(SELECT count(*) FROM relationships),
			(SELECT count(*) FROM documents WHERE committed),
			(SELECT count(*) FROM chunks)
	`).Scan(&st.Entities, &st.Relationships, &st.Documents, &st.Chunks)
	return st, err
}

const graphDataSQL = `
SELECT id, name, type, source_doc FROM entities
ORDER BY seq
LIMIT $1
`

// GraphData returns the first limit entities in ingestion order and the
// relationships among them. limit <= 0 returns the whole graph.
func (s *Store) GraphData(ctx context.Context, limit int) (common.Subgraph, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.conn.Query(ctx, graphDataSQL, lim)
	if err != nil {
		return common.Subgraph{}, err
	}
	nodes, err := pgxv5.CollectRows(rows, scanEntity)
	if err != nil {
		return common.Subgraph{}, err
	}

	out := common.Subgraph{Nodes: nodes}
	if len(nodes) == 0 {
		return out, nil
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	out.Edges, err = s.edgesAmong(ctx, ids)
	if err != nil {
		return common.Subgraph{}, err
	}
	return out, nil
}

func (s *Store) EntityTypeCounts(ctx context.Context) (map[common.EntityType]int, error) {
	rows, err := s.conn.Query(ctx, `SELECT type, count(*) FROM entities GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[common.EntityType]int{}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[common.EntityType(t)] = n
	}
	return counts, rows.Err()
}

func (s *Store) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	rows, err := s.conn.Query(ctx, `SELECT id, name, type, source_doc FROM entities WHERE id = $1`, id)
	if err != nil {
		return common.Entity{}, err
	}
	e, err := pgxv5.CollectExactlyOneRow(rows, scanEntity)
	if err == pgxv5.ErrNoRows {
		return common.Entity{}, fmt.Errorf("entity %s: %w", id, store.ErrNotFound)
	}
	return e, err
}

const entityDocumentsSQL = `
SELECT ce.entity_id, c.doc_id
FROM chunk_entities ce
JOIN chunks c ON c.id = ce.chunk_id
WHERE ce.entity_id = ANY($1)
GROUP BY ce.entity_id, c.doc_id
ORDER BY ce.entity_id, min(c.seq)
`

func (s *Store) EntityDocuments(ctx context.Context, entityIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(entityIDs))
	if len(entityIDs) == 0 {
		return out, nil
	}
	rows, err := s.conn.Query(ctx, entityDocumentsSQL, entityIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entityID, docID string
		if err := rows.Scan(&entityID, &docID); err != nil {
			return nil, err
		}
		out[entityID] = append(out[entityID], docID)
	}
	return out, rows.Err()
}
