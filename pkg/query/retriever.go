package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"
)

// Retriever collects evidence and graph context for a question from the
// vector index and the graph store of one knowledge base.
type Retriever struct {
	kb       store.KnowledgeBase
	embedder ai.Embedder
	opts     options
}

func newRetriever(kb store.KnowledgeBase, embedder ai.Embedder, opts options) *Retriever {
	return &Retriever{kb: kb, embedder: embedder, opts: opts}
}

func (r *Retriever) walker(tracer Tracer) *walker {
	return &walker{graph: r.kb.Graph, maxVisited: r.opts.MaxVisited, tracer: tracer}
}

// embed runs the embedding call under its own deadline. A provider error
// caused by that deadline is reported as context.DeadlineExceeded.
func (r *Retriever) embed(ctx context.Context, text string) ([]float32, *Error) {
	ectx, cancel := context.WithTimeout(ctx, r.opts.EmbedTimeout)
	defer cancel()

	emb, err := r.embedder.GenerateEmbedding(ectx, []byte(text))
	if err != nil {
		if cerr := ectx.Err(); cerr != nil && !errors.Is(err, cerr) {
			err = fmt.Errorf("%w: %w", cerr, err)
		}
		return nil, embedError(r.opts.Provider, err)
	}
	if len(emb) == 0 {
		return nil, embedError(r.opts.Provider, errors.New("empty embedding"))
	}
	return emb, nil
}

type vectorSide struct {
	hits     []store.ChunkHit
	evidence []Evidence
}

func (r *Retriever) searchVectors(ctx context.Context, question string, topK int, tracer Tracer) (*vectorSide, *Error) {
	emb, qerr := r.embed(ctx, question)
	if qerr != nil {
		return nil, qerr
	}

	start := time.Now()
	hits, err := r.kb.Vectors.Search(ctx, emb, topK)
	recordStoreCall(tracer, StoreVector, "search", time.Since(start).Milliseconds(), err)
	if err != nil {
		return nil, storeError(StageRetrieve, StoreVector, err)
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	side := &vectorSide{hits: hits, evidence: make([]Evidence, 0, len(hits))}
	docs := make([]string, 0, len(hits))
	for _, h := range hits {
		side.evidence = append(side.evidence, r.chunkEvidence(h))
		docs = append(docs, h.DocID)
	}
	recordIDs(tracer, TraceEventConsideredDocuments, docs)
	return side, nil
}

func (r *Retriever) chunkEvidence(h store.ChunkHit) Evidence {
	source := h.SourceDoc
	if source == "" {
		source = h.DocID
	}
	names := make([]string, 0, len(h.EntityNames))
	names = append(names, h.EntityNames...)
	return Evidence{
		SourceDoc:      source,
		ChunkText:      util.TruncateRunes(h.Text, r.opts.EvidenceTextLimit),
		RelevanceScore: clamp01(h.Score),
		EntityNames:    names,
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// seedsByName looks every match term up in the graph store and returns the
// matching entity IDs in term order, without duplicates.
func (r *Retriever) seedsByName(ctx context.Context, question string, tracer Tracer) ([]string, *Error) {
	var seeds []string
	seen := map[string]struct{}{}
	for _, term := range matchTerms(question) {
		start := time.Now()
		ids, err := r.kb.Graph.FindByName(ctx, term)
		recordStoreCall(tracer, StoreGraph, "find_by_name", time.Since(start).Milliseconds(), err)
		if err != nil {
			return nil, storeError(StageRetrieve, StoreGraph, err)
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			seeds = append(seeds, id)
			if len(seeds) >= r.opts.MaxSeeds {
				return seeds, nil
			}
		}
	}
	return seeds, nil
}

// seedsFromHits returns the entity tags of the vector hits in rank order,
// capped at MaxSeeds, and every tagged entity deduplicated in the same order.
func (r *Retriever) seedsFromHits(hits []store.ChunkHit) ([]string, []common.Entity) {
	var seeds []string
	var tagged []common.Entity
	seen := map[string]struct{}{}
	for _, h := range hits {
		for _, e := range h.TaggedEntities() {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			tagged = append(tagged, e)
			if len(seeds) < r.opts.MaxSeeds {
				seeds = append(seeds, e.ID)
			}
		}
	}
	return seeds, tagged
}

type graphSide struct {
	walk     *walkResult
	evidence []Evidence
}

func (r *Retriever) traverse(ctx context.Context, seeds []string, maxHops int, tracer Tracer) (*graphSide, *Error) {
	res, err := r.walker(tracer).walk(ctx, seeds, maxHops)
	if err != nil {
		return nil, storeError(StageRetrieve, StoreGraph, err)
	}
	recordIDs(tracer, TraceEventSeedEntityIDs, res.traversal.Seeds)
	recordIDs(tracer, TraceEventVisitedEntityIDs, res.traversal.Order)
	relIDs := make([]string, 0, len(res.edges))
	for _, e := range res.edges {
		relIDs = append(relIDs, e.ID)
	}
	recordIDs(tracer, TraceEventTraversedRelationships, relIDs)

	return &graphSide{walk: res, evidence: r.relationshipEvidence(res)}, nil
}

// RenderRelationship turns a relationship into a sentence-like string, for
// example "Knowledge Graph implemented with Neo4j".
func RenderRelationship(source, label, target string) string {
	return source + " " + strings.ReplaceAll(label, "_", " ") + " " + target
}

// relationshipEvidence turns traversed edges into evidence. An edge found
// on hop h scores 1/(1+h).
func (r *Retriever) relationshipEvidence(res *walkResult) []Evidence {
	byID := make(map[string]common.Entity, len(res.nodes))
	for _, n := range res.nodes {
		byID[n.ID] = n
	}

	type scored struct {
		ev  Evidence
		hop int
	}
	items := make([]scored, 0, len(res.edges))
	for _, e := range res.edges {
		src, tgt := byID[e.SourceID], byID[e.TargetID]
		hop := min(res.traversal.Depth[e.SourceID], res.traversal.Depth[e.TargetID]) + 1
		items = append(items, scored{
			hop: hop,
			ev: Evidence{
				SourceDoc:      e.SourceDoc,
				ChunkText:      util.TruncateRunes(RenderRelationship(src.Name, e.Label, tgt.Name), r.opts.EvidenceTextLimit),
				RelevanceScore: 1 / float64(1+hop),
				EntityNames:    []string{src.Name, tgt.Name},
			},
		})
	}
	slices.SortStableFunc(items, func(a, b scored) int {
		return cmp.Compare(a.hop, b.hop)
	})
	if len(items) > r.opts.MaxGraphEvidence {
		items = items[:r.opts.MaxGraphEvidence]
	}

	out := make([]Evidence, 0, len(items))
	for _, it := range items {
		out = append(out, it.ev)
	}
	return out
}

// Retrieve runs the retrieval half of a query. Only hybrid mode tolerates a
// failed store; it then returns what the other store produced and marks the
// bundle degraded. Deadlines are never tolerated.
func (r *Retriever) Retrieve(ctx context.Context, p params, tracer Tracer) (*Bundle, error) {
	b := &Bundle{Terms: KeyTerms(p.question)}

	switch p.mode {
	case ModeVector:
		vs, err := r.searchVectors(ctx, p.question, p.topK, tracer)
		if err != nil {
			return nil, err
		}
		r.addVectorSide(b, vs)

	case ModeGraph:
		seeds, err := r.seedsByName(ctx, p.question, tracer)
		if err != nil {
			return nil, err
		}
		gs, err := r.traverse(ctx, seeds, p.maxHops, tracer)
		if err != nil {
			return nil, err
		}
		r.addGraphSide(b, gs)

	case ModeHybrid:
		if err := r.retrieveHybrid(ctx, p, b, tracer); err != nil {
			return nil, err
		}

	default:
		return nil, invalidRequest("unknown mode %q", p.mode)
	}

	used := make([]string, 0, len(b.Evidence))
	for _, ev := range b.Evidence {
		used = append(used, ev.SourceDoc)
	}
	recordIDs(tracer, TraceEventUsedDocuments, store.DedupeStrings(used))
	return b, nil
}

func (r *Retriever) retrieveHybrid(ctx context.Context, p params, b *Bundle, tracer Tracer) error {
	var failures []*Error
	degrade := func(err *Error) error {
		if err.Kind == KindTimeout {
			return err
		}
		logger.Warn("[Retriever] Degraded retrieval", "store", err.Store, "stage", err.Stage, "err", err.Err)
		failures = append(failures, err)
		b.Degraded = true
		b.DegradedStores = append(b.DegradedStores, err.Store)
		return nil
	}

	vs, verr := r.searchVectors(ctx, p.question, p.topK, tracer)
	if verr != nil {
		if err := degrade(verr); err != nil {
			return err
		}
	}

	var seeds []string
	var tagged []common.Entity
	if vs != nil {
		seeds, tagged = r.seedsFromHits(vs.hits)
	}

	var gs *graphSide
	var gerr *Error
	if len(seeds) == 0 {
		seeds, gerr = r.seedsByName(ctx, p.question, tracer)
	}
	if gerr == nil {
		gs, gerr = r.traverse(ctx, seeds, p.maxHops, tracer)
	}
	if gerr != nil {
		if err := degrade(gerr); err != nil {
			return err
		}
	}

	if len(failures) == 2 {
		return &Error{
			Kind:  KindRetrievalUnavailable,
			Stage: StageRetrieve,
			Store: StoreVector + "," + StoreGraph,
			Err:   errors.Join(failures[0].Err, failures[1].Err),
		}
	}

	if vs != nil {
		r.addVectorSide(b, vs)
	}
	if gs != nil {
		r.addGraphSide(b, gs)
	}
	mergeTaggedEntities(b, tagged)
	return nil
}

func (r *Retriever) addVectorSide(b *Bundle, vs *vectorSide) {
	b.VectorHits = len(vs.hits)
	if len(vs.hits) > 0 {
		b.TopScore = clamp01(vs.hits[0].Score)
	}
	b.Evidence = appendUnique(b.Evidence, vs.evidence)
}

func (r *Retriever) addGraphSide(b *Bundle, gs *graphSide) {
	b.Entities = gs.walk.nodes
	b.Relationships = gs.walk.edges
	b.Traversal = gs.walk.traversal
	b.Evidence = appendUnique(b.Evidence, gs.evidence)
}

// appendUnique appends evidence whose (source_doc, chunk_text) pair is not
// already present.
func appendUnique(dst, src []Evidence) []Evidence {
	seen := make(map[[2]string]struct{}, len(dst)+len(src))
	for _, ev := range dst {
		seen[[2]string{ev.SourceDoc, ev.ChunkText}] = struct{}{}
	}
	for _, ev := range src {
		key := [2]string{ev.SourceDoc, ev.ChunkText}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, ev)
	}
	return dst
}

// mergeTaggedEntities adds the entities tagged on vector hits that the
// traversal did not return, so graph_context still lists them when the
// graph store is down or the tag is stale.
func mergeTaggedEntities(b *Bundle, tagged []common.Entity) {
	if len(tagged) == 0 {
		return
	}
	present := make(map[string]struct{}, len(b.Entities))
	for _, e := range b.Entities {
		present[e.ID] = struct{}{}
	}
	for _, e := range tagged {
		if _, dup := present[e.ID]; dup {
			continue
		}
		present[e.ID] = struct{}{}
		b.Entities = append(b.Entities, e)
	}
}
