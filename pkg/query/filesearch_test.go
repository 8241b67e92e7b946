package query

import (
	"context"
	"errors"
	"testing"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store/memory"
)

func fileFixture(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	batches := []common.Batch{
		{
			Document: common.Document{ID: "doc1", Filename: "graphrag.md", FileType: "md"},
			Entities: []common.Entity{
				{ID: "e1", Name: "GraphRAG", Type: common.EntityTypeConcept},
				{ID: "e2", Name: "Knowledge Graph", Type: common.EntityTypeConcept},
			},
			Relationships: []common.Relationship{{ID: "r1", SourceID: "e1", TargetID: "e2", Label: "uses"}},
			Chunks: []common.Chunk{
				{ID: "c1", Text: "GraphRAG uses a knowledge graph.", Embedding: []float32{1, 0, 0}, EntityIDs: []string{"e1", "e2"}},
			},
		},
		{
			Document: common.Document{ID: "doc2", Filename: "neo4j.pdf", FileType: "pdf"},
			Entities: []common.Entity{
				{ID: "x2", Name: "Knowledge Graph", Type: common.EntityTypeConcept},
				{ID: "e3", Name: "Neo4j", Type: common.EntityTypeTechnology},
			},
			Relationships: []common.Relationship{{ID: "r2", SourceID: "x2", TargetID: "e3", Label: "implemented_with"}},
			Chunks: []common.Chunk{
				{ID: "c2", Text: "The graph is stored in Neo4j.", Embedding: []float32{0, 1, 0}, EntityIDs: []string{"x2", "e3"}},
			},
		},
		{
			Document: common.Document{ID: "doc3", Filename: "recipes.txt", FileType: "txt"},
			Chunks: []common.Chunk{
				{ID: "c3", Text: "Pasta needs salt.", Embedding: []float32{0, 0, 1}},
			},
		},
	}
	for _, b := range batches {
		if _, err := s.SaveBatch(ctx, b); err != nil {
			t.Fatalf("SaveBatch: %v", err)
		}
		if err := s.SaveStatus(ctx, common.DocumentStatus{Document: b.Document, Stage: "complete"}); err != nil {
			t.Fatalf("SaveStatus: %v", err)
		}
	}
	return s
}

func TestSearchFiles(t *testing.T) {
	s := fileFixture(t)
	e, _ := newTestEngine(store.NewKnowledgeBase("test", s), WithFileIndex(s))
	ctx := context.Background()

	t.Run("RanksAndNormalizes", func(t *testing.T) {
		res, err := e.SearchFiles(ctx, FileSearchRequest{Query: "GraphRAG", TopK: 5})
		if err != nil {
			t.Fatalf("SearchFiles: %v", err)
		}
		if res.TotalMatches != 2 {
			t.Fatalf("expected 2 files, got %+v", res.Files)
		}
		if res.Files[0].FileID != "doc1" || res.Files[0].RelevanceScore != 1 {
			t.Fatalf("best file = %+v", res.Files[0])
		}
		if res.Files[1].FileID != "doc2" || res.Files[1].RelevanceScore != 0.3 {
			t.Fatalf("second file = %+v", res.Files[1])
		}
		if len(res.Files[0].MatchedChunks) != 1 {
			t.Fatalf("matched chunks = %+v", res.Files[0].MatchedChunks)
		}
	})

	t.Run("FileTypeFilter", func(t *testing.T) {
		res, err := e.SearchFiles(ctx, FileSearchRequest{Query: "GraphRAG", TopK: 5, FileType: "PDF"})
		if err != nil {
			t.Fatalf("SearchFiles: %v", err)
		}
		if res.TotalMatches != 1 || res.Files[0].Filename != "neo4j.pdf" {
			t.Fatalf("files = %+v", res.Files)
		}
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		_, err := e.SearchFiles(ctx, FileSearchRequest{Query: " "})
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest, got %v", err)
		}
	})
}
