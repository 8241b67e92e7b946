package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoText is returned when a document yields no usable text.
	ErrNoText = errors.New("document contains no extractable text")
	// ErrAlreadyIngested is returned when a completed document is ingested
	// again.
	ErrAlreadyIngested = errors.New("document already ingested")
)

// progress persists one document's way through the stages.
type progress struct {
	p      *Pipeline
	status common.DocumentStatus
}

func (t *progress) stage() Stage {
	return Stage(t.status.Stage)
}

func (t *progress) save(ctx context.Context, to Stage, message string) error {
	t.status.Stage = string(to)
	t.status.Progress = to.Progress()
	t.status.Message = message
	t.status.UpdatedAt = t.p.now()
	if err := t.p.documents.SaveStatus(ctx, t.status); err != nil {
		return fmt.Errorf("failed to save document status: %w", err)
	}
	if t.p.onStage != nil {
		t.p.onStage(to)
	}
	return nil
}

func (t *progress) advance(ctx context.Context, to Stage) error {
	if err := Transition(t.stage(), to); err != nil {
		return err
	}
	logger.Debug("[Ingest] Stage changed", "doc_id", t.status.ID, "from", t.stage(), "to", to)
	return t.save(ctx, to, stageMessages[to])
}

// fail records err on the document. The status is written even when ctx is
// already cancelled.
func (t *progress) fail(ctx context.Context, err error) {
	if Transition(t.stage(), StageError) != nil {
		return
	}
	t.status.Error = err.Error()
	if saveErr := t.save(context.WithoutCancel(ctx), StageError, "Processing failed: "+err.Error()); saveErr != nil {
		logger.Error("[Ingest] Failed to record error status", "doc_id", t.status.ID, "err", saveErr)
	}
}

// Register records a freshly uploaded document so its status can be polled
// before ingestion starts.
func (p *Pipeline) Register(ctx context.Context, doc common.Document) (common.DocumentStatus, error) {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = p.now()
	}
	t := &progress{p: p, status: common.DocumentStatus{Document: doc}}
	if err := t.save(ctx, StageUploaded, stageMessages[StageUploaded]); err != nil {
		return common.DocumentStatus{}, err
	}
	return t.status, nil
}

// start loads the stored status of doc. A document that failed before starts
// over from StageUploaded; a completed one is rejected.
func (p *Pipeline) start(ctx context.Context, doc common.Document) (*progress, error) {
	status, err := p.documents.GetStatus(ctx, doc.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s, err := p.Register(ctx, doc)
		if err != nil {
			return nil, err
		}
		return &progress{p: p, status: s}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load document status: %w", err)
	}

	switch Stage(status.Stage) {
	case StageComplete:
		return nil, ErrAlreadyIngested
	case StageUploaded:
	default:
		logger.Info("[Ingest] Restarting document", "doc_id", doc.ID, "previous_stage", status.Stage)
		status.Error = ""
		status.ChunkCount, status.EntityCount, status.RelationshipCount = 0, 0, 0
		status.Stage = string(StageUploaded)
	}
	if status.Filename == "" {
		status.Document = doc
	}
	return &progress{p: p, status: status}, nil
}

// Ingest runs file through every stage and commits the result as one batch.
// Errors that a retry cannot fix are marked with util.Permanent.
func (p *Pipeline) Ingest(ctx context.Context, file loader.GraphFile, doc common.Document) (common.DocumentStatus, error) {
	t, err := p.start(ctx, doc)
	if err != nil {
		if errors.Is(err, ErrAlreadyIngested) {
			return common.DocumentStatus{}, util.Permanent(err)
		}
		return common.DocumentStatus{}, err
	}

	if err := p.run(ctx, t, file); err != nil {
		t.fail(ctx, err)
		logger.Error("[Ingest] Document failed", "doc_id", t.status.ID, "filename", t.status.Filename, "err", err)
		if errors.Is(err, ErrNoText) || errors.Is(err, loader.ErrUnsupportedFileType) || errors.Is(err, ErrInvalidTransition) {
			err = util.Permanent(err)
		}
		return t.status, err
	}

	logger.Info("[Ingest] Document processed",
		"doc_id", t.status.ID,
		"filename", t.status.Filename,
		"chunks", t.status.ChunkCount,
		"entities", t.status.EntityCount,
		"relationships", t.status.RelationshipCount,
	)
	return t.status, nil
}

func (p *Pipeline) run(ctx context.Context, t *progress, file loader.GraphFile) error {
	if err := t.advance(ctx, StageExtracting); err != nil {
		return err
	}
	raw, err := file.GetText(ctx)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", t.status.Filename, err)
	}
	text := util.SanitizePostgresText(string(raw))

	if err := t.advance(ctx, StageChunking); err != nil {
		return err
	}
	units := p.chunker.split(text, file.MaxTokens)
	if len(units) == 0 {
		return ErrNoText
	}
	t.status.ChunkCount = len(units)

	if err := t.advance(ctx, StageEmbedding); err != nil {
		return err
	}
	inputs := make([][]byte, len(units))
	for i, u := range units {
		inputs[i] = []byte(u.text)
	}
	embeddings, err := store.GenerateEmbeddings(ctx, p.ai, inputs, p.embedBatchSize)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	if err := t.advance(ctx, StageGraphing); err != nil {
		return err
	}
	g, err := p.extractAll(ctx, units, t.status.Filename)
	if err != nil {
		return err
	}

	batch := common.Batch{
		Document:      t.status.Document,
		Entities:      g.entities,
		Relationships: g.relationships,
		Chunks:        make([]common.Chunk, len(units)),
	}
	for i, u := range units {
		id, err := util.NewID()
		if err != nil {
			return fmt.Errorf("failed to generate chunk ID: %w", err)
		}
		batch.Chunks[i] = common.Chunk{
			ID:        id,
			DocID:     t.status.ID,
			Index:     u.index,
			Text:      u.text,
			Embedding: embeddings[i],
			EntityIDs: g.entityIDs(u.index),
		}
	}

	if _, err := p.writer.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}

	t.status.EntityCount = len(g.entities)
	t.status.RelationshipCount = len(g.relationships)
	return t.advance(ctx, StageComplete)
}

// extractAll extracts every unit concurrently and merges the results in unit
// order. A unit whose extraction keeps failing is skipped; the document
// fails only when no unit could be extracted.
func (p *Pipeline) extractAll(ctx context.Context, units []textUnit, sourceDoc string) (*documentGraph, error) {
	results := make([]extraction, len(units))
	errs := make([]error, len(units))

	eg, gCtx := errgroup.WithContext(ctx)
	for i, u := range units {
		eg.Go(func() error {
			ex, err := p.extractUnit(gCtx, u, sourceDoc)
			if err != nil {
				if ctxErr := gCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("[Ingest] Skipping chunk after failed extraction", "doc", sourceDoc, "chunk", u.index, "err", err)
				errs[i] = err
				return nil
			}
			results[i] = ex
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("failed to extract entities: %w", err)
	}

	failed := 0
	var last error
	for _, err := range errs {
		if err != nil {
			failed++
			last = err
		}
	}
	if failed == len(units) {
		return nil, fmt.Errorf("failed to extract entities from any chunk: %w", last)
	}

	g := newDocumentGraph()
	for i := range results {
		g.add(units[i].index, results[i])
	}
	return g, nil
}
