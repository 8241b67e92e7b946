// Package query answers natural-language questions over a knowledge base by
// combining vector search with bounded graph traversal. The reasoning path
// of every answer is built by the engine from what was retrieved; the LLM
// only writes the answer text.
package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"
)

// Engine is safe for concurrent use. It holds no per-query state.
type Engine struct {
	kb        store.KnowledgeBase
	retriever *Retriever
	reasoner  *Reasoner
	opts      options
	now       func() time.Time
}

// NewEngine creates an engine reading from kb.
//
// Example:
//
//	kb := store.NewKnowledgeBase("default", memory.New())
//	engine := query.NewEngine(kb, aiClient, aiClient, query.WithLLMTimeout(time.Minute))
func NewEngine(kb store.KnowledgeBase, embedder ai.Embedder, llm ai.Completer, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}
	return &Engine{
		kb:        kb,
		retriever: newRetriever(kb, embedder, o),
		reasoner:  newReasoner(llm, o),
		opts:      o,
		now:       time.Now,
	}
}

func (e *Engine) KnowledgeBase() store.KnowledgeBase {
	return e.kb
}

func (e *Engine) tracer(extra Tracer) Tracer {
	switch {
	case e.opts.Tracer == nil:
		return extra
	case extra == nil:
		return e.opts.Tracer
	}
	return MultiTracer{e.opts.Tracer, extra}
}

// validate applies defaults and checks the request bounds.
func validate(req Request) (params, *Error) {
	p := params{
		question: strings.TrimSpace(req.Question),
		mode:     req.Mode,
		topK:     DefaultTopK,
		maxHops:  DefaultMaxHops,
	}
	if p.question == "" {
		return p, invalidRequest("question must not be empty")
	}
	if p.mode == "" {
		p.mode = ModeHybrid
	}
	if !p.mode.Valid() {
		return p, invalidRequest("unknown mode %q", req.Mode)
	}
	if req.TopK != nil {
		p.topK = *req.TopK
	}
	if p.topK < 1 {
		return p, invalidRequest("top_k must be at least 1, got %d", p.topK)
	}
	if req.MaxHops != nil {
		p.maxHops = *req.MaxHops
	}
	if p.maxHops < 0 {
		return p, invalidRequest("max_hops must not be negative, got %d", p.maxHops)
	}
	return p, nil
}

// checkData fails with EmptyKnowledgeBase when none of the stores the mode
// reads from holds data. In hybrid mode one reachable store is enough to
// decide.
func (e *Engine) checkData(ctx context.Context, mode Mode, tracer Tracer) *Error {
	type probe struct {
		name string
		fn   func(context.Context) (bool, error)
	}
	var probes []probe
	if mode.usesVectors() {
		probes = append(probes, probe{StoreVector, e.kb.Vectors.ExistsAnyData})
	}
	if mode.usesGraph() {
		probes = append(probes, probe{StoreGraph, e.kb.Graph.ExistsAnyData})
	}

	var failures []*Error
	for _, pr := range probes {
		start := time.Now()
		ok, err := pr.fn(ctx)
		recordStoreCall(tracer, pr.name, "exists_any_data", time.Since(start).Milliseconds(), err)
		if err != nil {
			qe := storeError(StageCheck, pr.name, err)
			if qe.Kind == KindTimeout || mode != ModeHybrid {
				return qe
			}
			failures = append(failures, qe)
			continue
		}
		if ok {
			return nil
		}
	}
	if len(failures) > 0 {
		return failures[0]
	}
	return &Error{Kind: KindEmptyKnowledgeBase, Stage: StageCheck, Err: errors.New("no documents have been ingested")}
}

// Query answers one question.
func (e *Engine) Query(ctx context.Context, req Request) (*Result, error) {
	return e.QueryWithTracer(ctx, req, nil)
}

// QueryWithTracer answers one question and reports every store lookup to
// tracer in addition to the engine-wide tracer.
func (e *Engine) QueryWithTracer(ctx context.Context, req Request, tracer Tracer) (*Result, error) {
	start := e.now()
	tr := newTracker(util.MustNewID())
	tracer = e.tracer(tracer)

	p, qerr := validate(req)
	if qerr != nil {
		return nil, tr.fail(qerr)
	}
	tr.advance(StateValidated)

	if qerr := e.checkData(ctx, p.mode, tracer); qerr != nil {
		return nil, tr.fail(qerr)
	}

	tr.advance(StateRetrieving)
	bundle, err := e.retriever.Retrieve(ctx, p, tracer)
	if err != nil {
		var qe *Error
		if !errors.As(err, &qe) {
			qe = storeError(StageRetrieve, "", err)
		}
		return nil, tr.fail(qe)
	}

	tr.advance(StateReasoning)
	answer, path, err := e.reasoner.Reason(ctx, p, bundle)
	if err != nil {
		var qe *Error
		if !errors.As(err, &qe) {
			qe = synthesisError(e.opts.Provider, err)
		}
		return nil, tr.fail(qe)
	}

	res := &Result{
		Question:       p.question,
		Answer:         answer,
		ReasoningPath:  path,
		Evidence:       bundle.Evidence,
		GraphContext:   bundle.GraphContext(),
		ModeUsed:       p.mode,
		Degraded:       bundle.Degraded,
		DegradedStores: bundle.DegradedStores,
		Partial:        bundle.Traversal != nil && bundle.Traversal.Truncated,
	}
	if res.Evidence == nil {
		res.Evidence = []Evidence{}
	}
	if res.DegradedStores == nil {
		res.DegradedStores = []string{}
	}
	res.ProcessingTimeMs = float64(e.now().Sub(start).Microseconds()) / 1000
	tr.advance(StateAssembled)

	logger.Info("[Query] Answered question",
		"query", tr.id,
		"mode", p.mode,
		"evidence", len(res.Evidence),
		"nodes", res.GraphContext.Stats.NodeCount,
		"edges", res.GraphContext.Stats.EdgeCount,
		"degraded", res.Degraded,
		"partial", res.Partial,
		"ms", res.ProcessingTimeMs,
	)
	return res, nil
}

// HealthStatus reports whether the stores behind the engine respond.
type HealthStatus struct {
	Status      string `json:"status"`
	VectorIndex string `json:"vector_index"`
	GraphStore  string `json:"graph_store"`
	HasData     bool   `json:"has_data"`
}

func (e *Engine) Health(ctx context.Context) HealthStatus {
	h := HealthStatus{Status: "healthy", VectorIndex: "ok", GraphStore: "ok"}
	vok, verr := e.kb.Vectors.ExistsAnyData(ctx)
	if verr != nil {
		h.VectorIndex = verr.Error()
		h.Status = "unhealthy"
	}
	gok, gerr := e.kb.Graph.ExistsAnyData(ctx)
	if gerr != nil {
		h.GraphStore = gerr.Error()
		h.Status = "unhealthy"
	}
	h.HasData = vok || gok
	return h
}
