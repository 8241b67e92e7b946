package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"

	"golang.org/x/sync/semaphore"
)

// AIClient is what ingestion needs from a model provider: chunk embeddings
// and structured extraction.
type AIClient interface {
	ai.Embedder
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...ai.GenerateOption,
	) error
}

// Pipeline turns loaded documents into chunks, embeddings, entities and
// relationships and commits them to a knowledge base.
//
// A Pipeline should be created using NewPipeline. It is safe for concurrent
// use; the AI request limit is shared by every document in flight.
type Pipeline struct {
	ai        AIClient
	writer    store.Writer
	documents store.DocumentStore
	chunker   *chunker

	sem            *semaphore.Weighted
	embedBatchSize int
	maxRetries     int
	backoff        util.Backoff
	onStage        func(Stage)
	now            func() time.Time
}

// PipelineParams configures a Pipeline.
//
// Encoding names the tiktoken encoding used to count chunk tokens.
// ParallelAIRequests caps concurrent extraction calls across all documents.
// OnStage, when set, is called after every persisted stage change.
type PipelineParams struct {
	AI        AIClient
	Writer    store.Writer
	Documents store.DocumentStore

	Encoding           string
	ChunkMaxTokens     int
	OverlapSentences   int
	ParallelAIRequests int
	EmbedBatchSize     int
	MaxRetries         int
	Backoff            util.Backoff
	OnStage            func(Stage)
}

// NewPipeline creates a Pipeline. Zero values fall back to defaults, except
// OverlapSentences where 0 disables overlap and a negative value selects the
// default.
//
// Example:
//
//	p, err := graph.NewPipeline(graph.PipelineParams{
//		AI:                 client,
//		Writer:             kb,
//		Documents:          kb,
//		ChunkMaxTokens:     400,
//		OverlapSentences:   1,
//		ParallelAIRequests: 10,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewPipeline(params PipelineParams) (*Pipeline, error) {
	if params.AI == nil {
		return nil, fmt.Errorf("ai client is required")
	}
	if params.Writer == nil || params.Documents == nil {
		return nil, fmt.Errorf("writer and document store are required")
	}

	overlap := params.OverlapSentences
	if overlap < 0 {
		overlap = DefaultOverlapSentences
	}
	c, err := newChunker(params.Encoding, params.ChunkMaxTokens, overlap)
	if err != nil {
		return nil, err
	}

	parallel := params.ParallelAIRequests
	if parallel <= 0 {
		parallel = 10
	}
	batch := params.EmbedBatchSize
	if batch <= 0 {
		batch = 64
	}
	retries := params.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := params.Backoff
	if backoff == nil {
		backoff = util.ExponentialBackoff(500*time.Millisecond, 8*time.Second)
	}

	return &Pipeline{
		ai:             params.AI,
		writer:         params.Writer,
		documents:      params.Documents,
		chunker:        c,
		sem:            semaphore.NewWeighted(int64(parallel)),
		embedBatchSize: batch,
		maxRetries:     retries,
		backoff:        backoff,
		onStage:        params.OnStage,
		now:            time.Now,
	}, nil
}
