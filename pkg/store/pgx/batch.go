package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const upsertDocumentSQL = `
INSERT INTO documents (id, filename, file_type, file_key, committed, created_at)
VALUES ($1, $2, $3, $4, TRUE, COALESCE($5, now()))
ON CONFLICT (id) DO UPDATE
SET committed = TRUE, updated_at = now()
`

// upsertEntitySQL inserts an entity unless its (name_key, type) exists and
// returns the stored ID either way.
const upsertEntitySQL = `
WITH ins AS (
    INSERT INTO entities (id, name, name_key, type, source_doc)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (name_key, type) DO NOTHING
    RETURNING id
)
SELECT id, TRUE FROM ins
UNION ALL
SELECT id, FALSE FROM entities
WHERE name_key = $3 AND type = $4 AND NOT EXISTS (SELECT 1 FROM ins)
`

const insertRelationshipSQL = `
INSERT INTO relationships (id, source_id, target_id, label, source_doc)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (source_id, label, target_id) DO NOTHING
RETURNING id
`

const insertChunkSQL = `
INSERT INTO chunks (id, doc_id, chunk_index, text, embedding)
VALUES ($1, $2, $3, $4, $5)
`

const insertChunkEntitySQL = `
INSERT INTO chunk_entities (chunk_id, entity_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

// SaveBatch commits one document in a single transaction under the
// knowledge base lock.
func (s *Store) SaveBatch(ctx context.Context, batch common.Batch) (common.Batch, error) {
	var out common.Batch
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.saveBatchTx(ctx, batch)
		return err
	})
	if err != nil {
		return common.Batch{}, err
	}
	logger.Debug("[Store] Committed document",
		"doc", out.Document.ID,
		"chunks", len(out.Chunks),
		"new_entities", len(out.Entities),
		"new_relationships", len(out.Relationships),
	)
	return out, nil
}

func (s *Store) saveBatchTx(ctx context.Context, batch common.Batch) (common.Batch, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return common.Batch{}, err
	}
	defer tx.Rollback(ctx)

	doc := batch.Document
	var createdAt any
	if !doc.CreatedAt.IsZero() {
		createdAt = doc.CreatedAt
	}
	if _, err := tx.Exec(ctx, upsertDocumentSQL,
		doc.ID, util.SanitizePostgresText(doc.Filename), doc.FileType, doc.FileKey, createdAt,
	); err != nil {
		return common.Batch{}, fmt.Errorf("failed to upsert document: %w", err)
	}

	out := common.Batch{Document: doc}
	remap := make(map[string]string, len(batch.Entities))
	for _, e := range batch.Entities {
		if e.SourceDoc == "" {
			e.SourceDoc = doc.Filename
		}
		e.Name = util.SanitizePostgresText(e.Name)
		var storedID string
		var inserted bool
		err := tx.QueryRow(ctx, upsertEntitySQL,
			e.ID, e.Name, common.NormalizeName(e.Name), string(e.Type), util.SanitizePostgresText(e.SourceDoc),
		).Scan(&storedID, &inserted)
		if err != nil {
			return common.Batch{}, fmt.Errorf("failed to upsert entity %q: %w", e.Name, err)
		}
		remap[e.ID] = storedID
		if inserted {
			out.Entities = append(out.Entities, e)
		}
	}

	for _, r := range batch.Relationships {
		src, ok1 := remap[r.SourceID]
		tgt, ok2 := remap[r.TargetID]
		if !ok1 || !ok2 {
			continue
		}
		r.SourceID, r.TargetID = src, tgt
		if r.SourceDoc == "" {
			r.SourceDoc = doc.Filename
		}
		var id string
		err := tx.QueryRow(ctx, insertRelationshipSQL,
			r.ID, r.SourceID, r.TargetID, r.Label, util.SanitizePostgresText(r.SourceDoc),
		).Scan(&id)
		if errors.Is(err, pgxv5.ErrNoRows) {
			continue
		}
		if err != nil {
			return common.Batch{}, fmt.Errorf("failed to insert relationship: %w", err)
		}
		out.Relationships = append(out.Relationships, r)
	}

	err = store.ChunkRange(len(batch.Chunks), 500, func(start, end int) error {
		b := &pgxv5.Batch{}
		for _, c := range batch.Chunks[start:end] {
			if c.DocID == "" {
				c.DocID = doc.ID
			}
			ids := make([]string, 0, len(c.EntityIDs))
			for _, id := range c.EntityIDs {
				if mapped, ok := remap[id]; ok {
					ids = append(ids, mapped)
				}
			}
			c.EntityIDs = store.DedupeStrings(ids)

			b.Queue(insertChunkSQL, c.ID, c.DocID, c.Index, util.SanitizePostgresText(c.Text), pgvector.NewVector(c.Embedding))
			for _, id := range c.EntityIDs {
				b.Queue(insertChunkEntitySQL, c.ID, id)
			}
			out.Chunks = append(out.Chunks, c)
		}
		return tx.SendBatch(ctx, b).Close()
	})
	if err != nil {
		return common.Batch{}, fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return common.Batch{}, err
	}
	return out, nil
}

// Clear truncates every knowledge base table.
func (s *Store) Clear(ctx context.Context) error {
	return s.withWriteLock(ctx, func(ctx context.Context) error {
		_, err := s.conn.Exec(ctx, `TRUNCATE chunk_entities, chunks, relationships, entities, documents`)
		return err
	})
}
