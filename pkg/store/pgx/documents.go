package pgx

import (
	"context"
	"fmt"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const saveStatusSQL = `
INSERT INTO documents (
    id, filename, file_type, file_key, stage, progress, message, error,
    chunk_count, entity_count, relationship_count, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, now()), now())
ON CONFLICT (id) DO UPDATE SET
    filename           = EXCLUDED.filename,
    file_type          = EXCLUDED.file_type,
    file_key           = EXCLUDED.file_key,
    stage              = EXCLUDED.stage,
    progress           = EXCLUDED.progress,
    message            = EXCLUDED.message,
    error              = EXCLUDED.error,
    chunk_count        = EXCLUDED.chunk_count,
    entity_count       = EXCLUDED.entity_count,
    relationship_count = EXCLUDED.relationship_count,
    updated_at         = now()
`

const statusColumns = `
id, filename, file_type, file_key, created_at, stage, progress, message, error,
chunk_count, entity_count, relationship_count, updated_at
`

func (s *Store) SaveStatus(ctx context.Context, status common.DocumentStatus) error {
	if status.ID == "" {
		return fmt.Errorf("document status without id")
	}
	var createdAt *time.Time
	if !status.CreatedAt.IsZero() {
		createdAt = &status.CreatedAt
	}
	_, err := s.conn.Exec(ctx, saveStatusSQL,
		status.ID, status.Filename, status.FileType, status.FileKey,
		status.Stage, status.Progress, status.Message, status.Error,
		status.ChunkCount, status.EntityCount, status.RelationshipCount,
		createdAt,
	)
	return err
}

func scanStatus(row pgxv5.CollectableRow) (common.DocumentStatus, error) {
	var st common.DocumentStatus
	err := row.Scan(
		&st.ID, &st.Filename, &st.FileType, &st.FileKey, &st.CreatedAt,
		&st.Stage, &st.Progress, &st.Message, &st.Error,
		&st.ChunkCount, &st.EntityCount, &st.RelationshipCount, &st.UpdatedAt,
	)
	return st, err
}

func (s *Store) GetStatus(ctx context.Context, id string) (common.DocumentStatus, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+statusColumns+` FROM documents WHERE id = $1`, id)
	if err != nil {
		return common.DocumentStatus{}, err
	}
	st, err := pgxv5.CollectExactlyOneRow(rows, scanStatus)
	if err == pgxv5.ErrNoRows {
		return common.DocumentStatus{}, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	return st, err
}

// ListDocuments returns statuses in upload order, optionally filtered by
// file type.
func (s *Store) ListDocuments(ctx context.Context, fileType string) ([]common.DocumentStatus, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+statusColumns+`
		FROM documents
		WHERE $1 = '' OR file_type = $1
		ORDER BY seq
	`, fileType)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, scanStatus)
}
