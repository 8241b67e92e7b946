package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"
)

// SaveStatus inserts or replaces the status of a document.
func (s *Store) SaveStatus(ctx context.Context, status common.DocumentStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if status.ID == "" {
		return fmt.Errorf("document status without id")
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	now := s.now()
	if status.CreatedAt.IsZero() {
		if prev, ok := s.statuses[status.ID]; ok {
			status.CreatedAt = prev.CreatedAt
		} else {
			status.CreatedAt = now
		}
	}
	status.UpdatedAt = now
	if _, ok := s.statusSeq[status.ID]; !ok {
		s.nextStatus++
		s.statusSeq[status.ID] = s.nextStatus
	}
	s.statuses[status.ID] = status
	return nil
}

func (s *Store) GetStatus(ctx context.Context, id string) (common.DocumentStatus, error) {
	if err := ctx.Err(); err != nil {
		return common.DocumentStatus{}, err
	}
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	st, ok := s.statuses[id]
	if !ok {
		return common.DocumentStatus{}, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	return st, nil
}

// ListDocuments returns statuses in upload order, optionally filtered by
// file type.
func (s *Store) ListDocuments(ctx context.Context, fileType string) ([]common.DocumentStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	out := make([]common.DocumentStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		if fileType != "" && st.FileType != fileType {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		return s.statusSeq[out[i].ID] < s.statusSeq[out[j].ID]
	})
	return out, nil
}
