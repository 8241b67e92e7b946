package common

import (
	"strings"
	"time"
)

// EntityType is the closed set of categories an extracted entity can have.
type EntityType string

const (
	EntityTypePerson       EntityType = "Person"
	EntityTypeOrganization EntityType = "Organization"
	EntityTypeLocation     EntityType = "Location"
	EntityTypeConcept      EntityType = "Concept"
	EntityTypeEvent        EntityType = "Event"
	EntityTypeTechnology   EntityType = "Technology"
	EntityTypeProduct      EntityType = "Product"
	EntityTypeDocument     EntityType = "Document"
)

// EntityTypes lists every valid entity type in display order.
var EntityTypes = []EntityType{
	EntityTypePerson,
	EntityTypeOrganization,
	EntityTypeLocation,
	EntityTypeConcept,
	EntityTypeEvent,
	EntityTypeTechnology,
	EntityTypeProduct,
	EntityTypeDocument,
}

// ParseEntityType maps a free-form type label onto one of the known entity
// types. Matching is case-insensitive. Unknown labels fall back to Concept.
func ParseEntityType(value string) EntityType {
	v := strings.TrimSpace(value)
	for _, t := range EntityTypes {
		if strings.EqualFold(v, string(t)) {
			return t
		}
	}
	return EntityTypeConcept
}

// Entity represents a node in the knowledge graph. An entity is created once
// during ingestion and keeps its identity for the lifetime of the knowledge
// base. SourceDoc names the document the entity was first extracted from.
type Entity struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      EntityType `json:"type"`
	SourceDoc string     `json:"source_doc"`
}

// Key returns the normalized name+type pair used to merge entities that
// describe the same thing.
func (e Entity) Key() string {
	return NormalizeName(e.Name) + "|" + string(e.Type)
}

// Relationship represents a directed edge between two entities.
type Relationship struct {
	ID        string `json:"id"`
	SourceID  string `json:"source_entity_id"`
	TargetID  string `json:"target_entity_id"`
	Label     string `json:"relationship_label"`
	SourceDoc string `json:"source_doc"`
}

// Chunk is the unit of vector retrieval. EntityIDs is the chunk → entity join
// built at ingestion time.
type Chunk struct {
	ID        string    `json:"chunk_id"`
	DocID     string    `json:"doc_id"`
	Index     int       `json:"chunk_index"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	EntityIDs []string  `json:"entity_ids"`
}

// Document is the provenance record every chunk, entity and relationship
// points back to.
type Document struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	FileType  string    `json:"file_type"`
	FileKey   string    `json:"file_key,omitempty"`
	CreatedAt time.Time `json:"upload_date"`
}

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus struct {
	Document
	Stage             string    `json:"stage"`
	Progress          float64   `json:"progress"`
	Message           string    `json:"message"`
	Error             string    `json:"error,omitempty"`
	ChunkCount        int       `json:"chunk_count"`
	EntityCount       int       `json:"entity_count"`
	RelationshipCount int       `json:"relationship_count"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Batch is everything one document contributes to the knowledge base. It is
// committed atomically so readers never observe half a document.
type Batch struct {
	Document      Document
	Chunks        []Chunk
	Entities      []Entity
	Relationships []Relationship
}

// GraphStats summarizes the size of a knowledge base.
type GraphStats struct {
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
	Documents     int `json:"documents"`
	Chunks        int `json:"chunks"`
}

// Subgraph is a set of entities together with the relationships between them.
type Subgraph struct {
	Nodes []Entity       `json:"nodes"`
	Edges []Relationship `json:"edges"`
}

// NormalizeName lowercases a name and collapses inner whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
