package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
)

const (
	semanticWeight = 0.5
	entityWeight   = 0.3
	graphWeight    = 0.2

	// fileScoreThreshold drops files scoring below this share of the best
	// file.
	fileScoreThreshold = 0.2
	fileSearchHops     = 2
	chunkPreviewLimit  = 200
)

// FileIndex is the document side of a knowledge base that file search and
// entity details need.
type FileIndex interface {
	EntityDocuments(ctx context.Context, entityIDs []string) (map[string][]string, error)
	ListDocuments(ctx context.Context, fileType string) ([]common.DocumentStatus, error)
}

type FileSearchRequest struct {
	Query    string `json:"query" validate:"required"`
	TopK     int    `json:"top_k" validate:"omitempty,min=1,max=50"`
	FileType string `json:"file_type,omitempty"`
}

type ChunkPreview struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type FileMatch struct {
	FileID               string         `json:"file_id"`
	Filename             string         `json:"filename"`
	FileType             string         `json:"file_type"`
	UploadDate           string         `json:"upload_date"`
	RelevanceScore       float64        `json:"relevance_score"`
	MatchedEntities      []string       `json:"matched_entities"`
	MatchedRelationships []string       `json:"matched_relationships"`
	MatchedChunks        []ChunkPreview `json:"matched_chunks"`
	Explanation          string         `json:"explanation"`
}

type FileSearchResult struct {
	Query        string      `json:"query"`
	TotalMatches int         `json:"total_matches"`
	Files        []FileMatch `json:"files"`
}

type fileScore struct {
	semantic      float64
	entity        float64
	graph         float64
	chunks        []ChunkPreview
	entities      []string
	relationships []string
}

func (s *fileScore) addEntity(name string) {
	if name != "" && !slices.Contains(s.entities, name) {
		s.entities = append(s.entities, name)
	}
}

func (s *fileScore) total() float64 {
	return s.semantic*semanticWeight + s.entity*entityWeight + s.graph*graphWeight
}

func (s *fileScore) explanation() string {
	var parts []string
	if s.semantic > 0 {
		parts = append(parts, fmt.Sprintf("%d semantically similar passages", len(s.chunks)))
	}
	if len(s.entities) > 0 {
		parts = append(parts, "mentions "+strings.Join(s.entities[:min(len(s.entities), 3)], ", "))
	}
	if len(s.relationships) > 0 {
		parts = append(parts, "related through "+strings.Join(s.relationships[:min(len(s.relationships), 3)], ", "))
	}
	if len(parts) == 0 {
		return "Related to the query"
	}
	return "Matched by " + strings.Join(parts, "; ")
}

// SearchFiles ranks documents against a free-text query. Each document
// scores the similarity of its best chunks (weight 0.5), the number of
// entities it mentions whose names match the query (0.3) and the entities
// near those matches, weighted by 1/distance (0.2). Scores are normalized
// to the best document and documents below 0.2 are dropped.
func (e *Engine) SearchFiles(ctx context.Context, req FileSearchRequest) (*FileSearchResult, error) {
	files := e.opts.Files
	if files == nil {
		return nil, errors.New("file search is not configured")
	}
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, invalidRequest("query must not be empty")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	docs, err := files.ListDocuments(ctx, strings.ToLower(req.FileType))
	if err != nil {
		return nil, storeError(StageRetrieve, "documents", err)
	}
	byID := make(map[string]common.DocumentStatus, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	scores := map[string]*fileScore{}
	scoreOf := func(docID string) *fileScore {
		s, ok := scores[docID]
		if !ok {
			s = &fileScore{}
			scores[docID] = s
		}
		return s
	}

	vs, qerr := e.retriever.searchVectors(ctx, q, topK*3, e.opts.Tracer)
	if qerr != nil {
		return nil, qerr
	}
	for _, h := range vs.hits {
		s := scoreOf(h.DocID)
		s.semantic += clamp01(h.Score)
		s.chunks = append(s.chunks, ChunkPreview{Text: util.TruncateRunes(h.Text, chunkPreviewLimit), Score: h.Score})
	}

	seeds, qerr := e.retriever.seedsByName(ctx, q, e.opts.Tracer)
	if qerr != nil {
		return nil, qerr
	}
	if len(seeds) > 0 {
		res, err := e.retriever.walker(e.opts.Tracer).walk(ctx, seeds, fileSearchHops)
		if err != nil {
			return nil, storeError(StageRetrieve, StoreGraph, err)
		}
		entityDocs, err := files.EntityDocuments(ctx, res.traversal.Order)
		if err != nil {
			return nil, storeError(StageRetrieve, "documents", err)
		}
		names := make(map[string]string, len(res.nodes))
		for _, n := range res.nodes {
			names[n.ID] = n.Name
		}
		for _, id := range res.traversal.Order {
			depth := res.traversal.Depth[id]
			for _, docID := range entityDocs[id] {
				s := scoreOf(docID)
				if depth == 0 {
					s.entity++
				} else {
					s.graph += 1 / float64(depth)
				}
				s.addEntity(names[id])
			}
		}
		for _, r := range res.edges {
			for _, docID := range edgeDocuments(entityDocs, r.SourceID, r.TargetID) {
				s := scoreOf(docID)
				label := strings.ReplaceAll(r.Label, "_", " ")
				if len(s.relationships) < 5 && !slices.Contains(s.relationships, label) {
					s.relationships = append(s.relationships, label)
				}
			}
		}
	}

	best := 0.0
	for _, s := range scores {
		best = math.Max(best, s.total())
	}

	out := &FileSearchResult{Query: q, Files: []FileMatch{}}
	if best == 0 {
		return out, nil
	}
	for docID, s := range scores {
		doc, ok := byID[docID]
		if !ok {
			continue
		}
		norm := s.total() / best
		if norm < fileScoreThreshold {
			continue
		}
		m := FileMatch{
			FileID:               docID,
			Filename:             doc.Filename,
			FileType:             doc.FileType,
			UploadDate:           doc.CreatedAt.Format(time.RFC3339),
			RelevanceScore:       math.Round(norm*10000) / 10000,
			MatchedEntities:      s.entities[:min(len(s.entities), 10)],
			MatchedRelationships: s.relationships,
			MatchedChunks:        s.chunks[:min(len(s.chunks), 3)],
			Explanation:          s.explanation(),
		}
		if m.MatchedEntities == nil {
			m.MatchedEntities = []string{}
		}
		if m.MatchedRelationships == nil {
			m.MatchedRelationships = []string{}
		}
		if m.MatchedChunks == nil {
			m.MatchedChunks = []ChunkPreview{}
		}
		out.Files = append(out.Files, m)
	}

	slices.SortFunc(out.Files, func(a, b FileMatch) int {
		if c := cmp.Compare(b.RelevanceScore, a.RelevanceScore); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Filename, b.Filename); c != 0 {
			return c
		}
		return cmp.Compare(a.FileID, b.FileID)
	})
	if len(out.Files) > topK {
		out.Files = out.Files[:topK]
	}
	out.TotalMatches = len(out.Files)
	return out, nil
}

// edgeDocuments returns the documents mentioning either endpoint of an edge.
func edgeDocuments(entityDocs map[string][]string, a, b string) []string {
	out := append([]string(nil), entityDocs[a]...)
	for _, d := range entityDocs[b] {
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}
