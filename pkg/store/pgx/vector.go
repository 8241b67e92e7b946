package pgx

import (
	"context"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"

	"github.com/pgvector/pgvector-go"
)

const searchPrealloc = 64

const searchSQL = `
SELECT
    c.id,
    c.doc_id,
    d.filename,
    c.text,
    GREATEST(0, LEAST(1, 1 - (c.embedding <=> $1)))::float8 AS score,
    COALESCE(array_agg(e.id ORDER BY e.seq) FILTER (WHERE e.id IS NOT NULL), '{}') AS entity_ids,
    COALESCE(array_agg(e.name ORDER BY e.seq) FILTER (WHERE e.id IS NOT NULL), '{}') AS entity_names,
    COALESCE(array_agg(e.type ORDER BY e.seq) FILTER (WHERE e.id IS NOT NULL), '{}') AS entity_types
FROM chunks c
JOIN documents d ON d.id = c.doc_id
LEFT JOIN chunk_entities ce ON ce.chunk_id = c.id
LEFT JOIN entities e ON e.id = ce.entity_id
GROUP BY c.id, d.filename
ORDER BY score DESC, c.seq
LIMIT $2
`

// Search ranks chunks by cosine similarity. Ties fall back to insertion
// order through the seq column.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]store.ChunkHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, searchSQL, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// topK is caller-controlled and may exceed the table size by far.
	hits := make([]store.ChunkHit, 0, min(topK, searchPrealloc))
	for rows.Next() {
		var h store.ChunkHit
		if err := rows.Scan(&h.ChunkID, &h.DocID, &h.SourceDoc, &h.Text, &h.Score, &h.EntityIDs, &h.EntityNames, &h.EntityTypes); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
