package query

import (
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
)

// Mode selects which stores a query reads from.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeGraph  Mode = "graph"
	ModeHybrid Mode = "hybrid"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeVector, ModeGraph, ModeHybrid:
		return true
	}
	return false
}

func (m Mode) usesVectors() bool { return m == ModeVector || m == ModeHybrid }
func (m Mode) usesGraph() bool   { return m == ModeGraph || m == ModeHybrid }

const (
	DefaultTopK    = 5
	DefaultMaxHops = 2
)

// Request is one question against a knowledge base. TopK and MaxHops are
// pointers so that an explicit zero can be told apart from an omitted field.
type Request struct {
	Question string `json:"question" validate:"required"`
	Mode     Mode   `json:"mode,omitempty"`
	TopK     *int   `json:"top_k,omitempty"`
	MaxHops  *int   `json:"max_hops,omitempty"`
}

// NewRequest builds a fully specified request.
func NewRequest(question string, mode Mode, topK, maxHops int) Request {
	return Request{Question: question, Mode: mode, TopK: &topK, MaxHops: &maxHops}
}

type params struct {
	question string
	mode     Mode
	topK     int
	maxHops  int
}

// Evidence is one retrieved fact the answer can cite.
type Evidence struct {
	SourceDoc      string   `json:"source_doc"`
	ChunkText      string   `json:"chunk_text"`
	RelevanceScore float64  `json:"relevance_score"`
	EntityNames    []string `json:"entity_names"`
}

// ReasoningStep is one entry of the engine-generated reasoning trace.
type ReasoningStep struct {
	StepNumber        int      `json:"step_number"`
	Description       string   `json:"description"`
	EntitiesInvolved  []string `json:"entities_involved"`
	RelationshipsUsed []string `json:"relationships_used"`
	EvidenceRef       string   `json:"evidence_ref"`
}

type Node struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	SourceDoc string `json:"source_doc"`
}

type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	Relationship string `json:"relationship"`
	SourceDoc    string `json:"source_doc"`
}

type GraphStats struct {
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`
	SeedCount int `json:"seed_count"`
	MaxDepth  int `json:"max_depth"`
}

// GraphContext is the part of the knowledge graph a query touched. Every
// edge references two nodes in Nodes.
type GraphContext struct {
	Nodes []Node     `json:"nodes"`
	Edges []Edge     `json:"edges"`
	Stats GraphStats `json:"stats"`
}

// Result is the complete answer to a query.
type Result struct {
	Question         string          `json:"question"`
	Answer           string          `json:"answer"`
	ReasoningPath    []ReasoningStep `json:"reasoning_path"`
	Evidence         []Evidence      `json:"evidence"`
	GraphContext     GraphContext    `json:"graph_context"`
	ModeUsed         Mode            `json:"mode_used"`
	ProcessingTimeMs float64         `json:"processing_time_ms"`
	Degraded         bool            `json:"degraded"`
	DegradedStores   []string        `json:"degraded_stores"`
	Partial          bool            `json:"partial"`
}

// Traversal records how the graph side of a query was walked.
type Traversal struct {
	Seeds     []string
	Order     []string
	Depth     map[string]int
	Parent    map[string]common.Relationship
	Truncated bool
}

// Bundle is what retrieval hands to the reasoner.
type Bundle struct {
	Terms          []string
	Evidence       []Evidence
	Entities       []common.Entity
	Relationships  []common.Relationship
	Traversal      *Traversal
	VectorHits     int
	TopScore       float64
	Degraded       bool
	DegradedStores []string
}

func (b *Bundle) entityByID() map[string]common.Entity {
	m := make(map[string]common.Entity, len(b.Entities))
	for _, e := range b.Entities {
		m[e.ID] = e
	}
	return m
}

// GraphContext converts the bundle's graph side into the response shape.
func (b *Bundle) GraphContext() GraphContext {
	gc := GraphContext{
		Nodes: make([]Node, 0, len(b.Entities)),
		Edges: make([]Edge, 0, len(b.Relationships)),
	}
	for _, e := range b.Entities {
		gc.Nodes = append(gc.Nodes, Node{ID: e.ID, Name: e.Name, Type: string(e.Type), SourceDoc: e.SourceDoc})
	}
	for _, r := range b.Relationships {
		gc.Edges = append(gc.Edges, Edge{
			ID:           r.ID,
			Source:       r.SourceID,
			Target:       r.TargetID,
			Relationship: r.Label,
			SourceDoc:    r.SourceDoc,
		})
	}
	gc.Stats = GraphStats{NodeCount: len(gc.Nodes), EdgeCount: len(gc.Edges)}
	if t := b.Traversal; t != nil {
		gc.Stats.SeedCount = len(t.Seeds)
		for _, d := range t.Depth {
			gc.Stats.MaxDepth = max(gc.Stats.MaxDepth, d)
		}
	}
	return gc
}
