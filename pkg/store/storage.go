package store

import (
	"context"
	"errors"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
)

// ErrNotFound is returned when an entity or document ID is unknown.
var ErrNotFound = errors.New("not found")

// ChunkHit is one vector search result. EntityIDs, EntityNames and
// EntityTypes come from the chunk → entity join written at ingestion time and
// are index-aligned.
type ChunkHit struct {
	ChunkID     string   `json:"chunk_id"`
	DocID       string   `json:"doc_id"`
	SourceDoc   string   `json:"source_doc"`
	Text        string   `json:"text"`
	Score       float64  `json:"score"`
	EntityIDs   []string `json:"entity_ids"`
	EntityNames []string `json:"entity_names"`
	EntityTypes []string `json:"entity_types"`
}

// TaggedEntities returns the entities the chunk is tagged with.
func (h ChunkHit) TaggedEntities() []common.Entity {
	out := make([]common.Entity, 0, len(h.EntityIDs))
	for i, id := range h.EntityIDs {
		e := common.Entity{ID: id}
		if i < len(h.EntityNames) {
			e.Name = h.EntityNames[i]
		}
		if i < len(h.EntityTypes) {
			e.Type = common.EntityType(h.EntityTypes[i])
		}
		out = append(out, e)
	}
	return out
}

// VectorIndex answers nearest-neighbour queries over chunk embeddings.
//
// Search returns at most topK hits ordered by descending cosine similarity
// clamped to [0,1]. Equal scores keep ingestion order.
type VectorIndex interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]ChunkHit, error)
	ExistsAnyData(ctx context.Context) (bool, error)
}

// GraphStore is the read side of the entity graph.
//
// Neighbors returns the entity with the given ID plus everything reachable
// within depth hops in either direction. Every returned edge has both
// endpoints in Nodes. FindByName returns the IDs of entities whose name
// matches name case-insensitively, in ingestion order.
type GraphStore interface {
	Neighbors(ctx context.Context, entityID string, depth int) (common.Subgraph, error)
	FindByName(ctx context.Context, name string) ([]string, error)
	ExistsAnyData(ctx context.Context) (bool, error)
}

// Writer commits ingestion output.
type Writer interface {
	// SaveBatch writes one document atomically. Entities that already exist
	// under the same normalized name and type are reused and every reference
	// in the batch is rewritten to the stored ID. The returned batch carries
	// the final IDs.
	SaveBatch(ctx context.Context, batch common.Batch) (common.Batch, error)
	// Clear removes all entities, relationships, chunks and documents.
	Clear(ctx context.Context) error
}

// DocumentStore tracks uploaded documents through the ingestion stages.
type DocumentStore interface {
	SaveStatus(ctx context.Context, status common.DocumentStatus) error
	GetStatus(ctx context.Context, id string) (common.DocumentStatus, error)
	ListDocuments(ctx context.Context, fileType string) ([]common.DocumentStatus, error)
}

// Inspector serves the graph exploration endpoints.
type Inspector interface {
	Stats(ctx context.Context) (common.GraphStats, error)
	GraphData(ctx context.Context, limit int) (common.Subgraph, error)
	EntityTypeCounts(ctx context.Context) (map[common.EntityType]int, error)
	GetEntity(ctx context.Context, id string) (common.Entity, error)
	// EntityDocuments maps each entity ID to the IDs of the documents whose
	// chunks mention it.
	EntityDocuments(ctx context.Context, entityIDs []string) (map[string][]string, error)
}

// Store is a complete knowledge base backend.
type Store interface {
	VectorIndex
	GraphStore
	Writer
	DocumentStore
	Inspector
}

// KnowledgeBase is the explicit handle the query engine reads through.
// Vectors and Graph may be backed by the same Store.
type KnowledgeBase struct {
	Name    string
	Vectors VectorIndex
	Graph   GraphStore
}

// NewKnowledgeBase builds a handle where both sides are served by s.
func NewKnowledgeBase(name string, s Store) KnowledgeBase {
	return KnowledgeBase{Name: name, Vectors: s, Graph: s}
}
