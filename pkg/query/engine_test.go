package query

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store/memory"
)

const chainText = "GraphRAG —uses→ Knowledge Graph —implemented_with→ Neo4j"

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	block   bool
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[string(input)]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

type fakeLLM struct {
	mu      sync.Mutex
	answer  string
	err     error
	block   bool
	prompts []string
}

func (f *fakeLLM) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", errors.New("request canceled")
	}
	if f.err != nil {
		return "", f.err
	}
	if f.answer == "" {
		return "GraphRAG combines vector and graph retrieval [1].", nil
	}
	return f.answer, nil
}

func (f *fakeLLM) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

var errDown = errors.New("connection refused")

type downGraph struct{}

func (downGraph) Neighbors(context.Context, string, int) (common.Subgraph, error) {
	return common.Subgraph{}, errDown
}
func (downGraph) FindByName(context.Context, string) ([]string, error) { return nil, errDown }
func (downGraph) ExistsAnyData(context.Context) (bool, error)          { return false, errDown }

type downVectors struct{}

func (downVectors) Search(context.Context, []float32, int) ([]store.ChunkHit, error) {
	return nil, errDown
}
func (downVectors) ExistsAnyData(context.Context) (bool, error) { return false, errDown }

// fixture holds GraphRAG -uses-> Knowledge Graph -implemented_with-> Neo4j
// and three chunks. The first chunk has cosine similarity 0.92 with the
// question embedding [1,0,0].
func fixture(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	_, err := s.SaveBatch(context.Background(), common.Batch{
		Document: common.Document{ID: "doc1", Filename: "graphrag.md", FileType: "md"},
		Entities: []common.Entity{
			{ID: "e1", Name: "GraphRAG", Type: common.EntityTypeConcept},
			{ID: "e2", Name: "Knowledge Graph", Type: common.EntityTypeConcept},
			{ID: "e3", Name: "Neo4j", Type: common.EntityTypeTechnology},
		},
		Relationships: []common.Relationship{
			{ID: "r1", SourceID: "e1", TargetID: "e2", Label: "uses"},
			{ID: "r2", SourceID: "e2", TargetID: "e3", Label: "implemented_with"},
		},
		Chunks: []common.Chunk{
			{ID: "c1", Text: "GraphRAG combines vector and graph retrieval", Embedding: []float32{0.92, float32(math.Sqrt(1 - 0.92*0.92)), 0}, EntityIDs: []string{"e1"}},
			{ID: "c2", Text: "Neo4j stores the knowledge graph.", Embedding: []float32{0.1, 0.995, 0}, EntityIDs: []string{"e2", "e3"}},
			{ID: "c3", Text: "Unrelated cooking notes.", Embedding: []float32{0, 0, 1}},
		},
	})
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	return s
}

func newTestEngine(kb store.KnowledgeBase, opts ...Option) (*Engine, *fakeLLM) {
	llm := &fakeLLM{}
	return NewEngine(kb, &fakeEmbedder{}, llm, opts...), llm
}

func mustQuery(t *testing.T, e *Engine, req Request) *Result {
	t.Helper()
	res, err := e.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	return res
}

func checkGraphInvariants(t *testing.T, gc GraphContext) {
	t.Helper()
	ids := map[string]bool{}
	for _, n := range gc.Nodes {
		if ids[n.ID] {
			t.Fatalf("duplicate node %s", n.ID)
		}
		ids[n.ID] = true
	}
	for _, e := range gc.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			t.Fatalf("dangling edge %s: %s -> %s", e.ID, e.Source, e.Target)
		}
	}
	if gc.Stats.NodeCount != len(gc.Nodes) || gc.Stats.EdgeCount != len(gc.Edges) {
		t.Fatalf("stats %+v do not match %d nodes and %d edges", gc.Stats, len(gc.Nodes), len(gc.Edges))
	}
}

func checkSteps(t *testing.T, path []ReasoningStep) {
	t.Helper()
	if len(path) == 0 {
		t.Fatalf("empty reasoning path")
	}
	for i, s := range path {
		if s.StepNumber != i+1 {
			t.Fatalf("step %d numbered %d", i+1, s.StepNumber)
		}
	}
}

func TestQueryEmptyKnowledgeBase(t *testing.T) {
	e, llm := newTestEngine(store.NewKnowledgeBase("test", memory.New()))

	_, err := e.Query(context.Background(), NewRequest("What is X?", ModeHybrid, 5, 2))
	if !errors.Is(err, ErrEmptyKnowledgeBase) {
		t.Fatalf("expected ErrEmptyKnowledgeBase, got %v", err)
	}
	if kind, _ := KindOf(err); kind != KindEmptyKnowledgeBase {
		t.Fatalf("kind = %q", kind)
	}
	if llm.lastPrompt() != "" {
		t.Fatalf("LLM called for empty knowledge base")
	}
}

func TestQueryValidation(t *testing.T) {
	e, _ := newTestEngine(store.NewKnowledgeBase("test", fixture(t)))
	zero, negative := 0, -1

	tests := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"Defaults", Request{Question: "What is GraphRAG?"}, true},
		{"EmptyQuestion", Request{Question: "   "}, false},
		{"TopKZero", Request{Question: "q", TopK: &zero}, false},
		{"NegativeHops", Request{Question: "q", MaxHops: &negative}, false},
		{"ZeroHops", Request{Question: "What is GraphRAG?", MaxHops: &zero}, true},
		{"UnknownMode", Request{Question: "q", Mode: "keyword"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.Query(context.Background(), tc.req)
			if tc.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if res.ModeUsed != ModeHybrid {
					t.Fatalf("mode = %q, want hybrid", res.ModeUsed)
				}
				return
			}
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestVectorModeTopEvidence(t *testing.T) {
	e, _ := newTestEngine(store.NewKnowledgeBase("test", fixture(t)))

	res := mustQuery(t, e, NewRequest("What is GraphRAG?", ModeVector, 5, 2))
	if len(res.Evidence) != 3 {
		t.Fatalf("expected all 3 chunks, got %d", len(res.Evidence))
	}
	first := res.Evidence[0]
	if first.ChunkText != "GraphRAG combines vector and graph retrieval" {
		t.Fatalf("first evidence = %q", first.ChunkText)
	}
	if math.Abs(first.RelevanceScore-0.92) > 1e-4 {
		t.Fatalf("relevance = %v, want 0.92", first.RelevanceScore)
	}
	if first.SourceDoc != "graphrag.md" {
		t.Fatalf("source_doc = %q", first.SourceDoc)
	}
	if len(res.GraphContext.Nodes) != 0 {
		t.Fatalf("vector mode returned graph nodes")
	}
}

func TestVectorEvidenceBoundedByTopK(t *testing.T) {
	e, _ := newTestEngine(store.NewKnowledgeBase("test", fixture(t)))

	for topK := 1; topK <= 6; topK++ {
		res := mustQuery(t, e, NewRequest("What is GraphRAG?", ModeVector, topK, 2))
		if len(res.Evidence) > topK || len(res.Evidence) > 3 {
			t.Fatalf("top_k=%d returned %d evidence", topK, len(res.Evidence))
		}
	}
}

func TestGraphModeRendersTraversalChain(t *testing.T) {
	e, _ := newTestEngine(store.NewKnowledgeBase("test", fixture(t)))

	res := mustQuery(t, e, NewRequest("What is GraphRAG?", ModeGraph, 5, 2))
	checkGraphInvariants(t, res.GraphContext)
	checkSteps(t, res.ReasoningPath)

	names := map[string]bool{}
	for _, n := range res.GraphContext.Nodes {
		names[n.Name] = true
	}
	for _, want := range []string{"GraphRAG", "Knowledge Graph", "Neo4j"} {
		if !names[want] {
			t.Fatalf("missing node %q in %v", want, names)
		}
	}
	if len(res.ReasoningPath) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(res.ReasoningPath))
	}
	if !strings.Contains(res.ReasoningPath[2].Description, chainText) {
		t.Fatalf("traversal step = %q", res.ReasoningPath[2].Description)
	}
	if got := res.Evidence[0].ChunkText; got != "GraphRAG uses Knowledge Graph" {
		t.Fatalf("first graph evidence = %q", got)
	}
	if res.Evidence[0].RelevanceScore <= res.Evidence[1].RelevanceScore {
		t.Fatalf("nearer relationship should score higher: %+v", res.Evidence)
	}
}

func TestMaxHopsZeroReturnsSeedsOnly(t *testing.T) {
	e, _ := newTestEngine(store.NewKnowledgeBase("test", fixture(t)))

	for _, mode := range []Mode{ModeGraph, ModeHybrid} {
		t.Run(string(mode), func(t *testing.T) {
			res := mustQuery(t, e, NewRequest("What is GraphRAG?", mode, 5, 0))
			if len(res.GraphContext.Edges) != 0 {
				t.Fatalf("expected no edges, got %d", len(res.GraphContext.Edges))
			}
			if res.GraphContext.Stats.SeedCount != len(res.GraphContext.Nodes) {
				t.Fatalf("non-seed nodes returned: %+v", res.GraphContext)
			}
			checkSteps(t, res.ReasoningPath)
		})
	}
}

func TestReasoningPathNumbering(t *testing.T) {
	e, _ := newTestEngine(store.NewKnowledgeBase("test", fixture(t)))

	tests := []struct {
		mode  Mode
		steps int
	}{
		{ModeVector, 3},
		{ModeGraph, 4},
		{ModeHybrid, 4},
	}
	for _, tc := range tests {
		t.Run(string(tc.mode), func(t *testing.T) {
			res := mustQuery(t, e, NewRequest("What is GraphRAG?", tc.mode, 5, 2))
			checkSteps(t, res.ReasoningPath)
			if len(res.ReasoningPath) != tc.steps {
				t.Fatalf("expected %d steps, got %d", tc.steps, len(res.ReasoningPath))
			}
		})
	}
}

func TestHybridMergesEvidence(t *testing.T) {
	e, llm := newTestEngine(store.NewKnowledgeBase("test", fixture(t)))

	res := mustQuery(t, e, NewRequest("What is GraphRAG?", ModeHybrid, 5, 2))
	checkGraphInvariants(t, res.GraphContext)
	if res.Degraded {
		t.Fatalf("unexpected degraded result")
	}
	if res.Evidence[0].ChunkText != "GraphRAG combines vector and graph retrieval" {
		t.Fatalf("vector evidence should come first, got %q", res.Evidence[0].ChunkText)
	}
	if len(res.Evidence) != 5 {
		t.Fatalf("expected 3 chunks and 2 relationships, got %d evidence", len(res.Evidence))
	}
	seen := map[[2]string]bool{}
	for _, ev := range res.Evidence {
		key := [2]string{ev.SourceDoc, ev.ChunkText}
		if seen[key] {
			t.Fatalf("duplicate evidence %v", key)
		}
		seen[key] = true
	}
	if len(res.GraphContext.Edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(res.GraphContext.Edges))
	}
	if !strings.Contains(llm.lastPrompt(), "[1] (source: graphrag.md") {
		t.Fatalf("prompt missing numbered evidence:\n%s", llm.lastPrompt())
	}
}

func TestQueryIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(store.NewKnowledgeBase("test", fixture(t)))

	for _, mode := range []Mode{ModeVector, ModeGraph, ModeHybrid} {
		t.Run(string(mode), func(t *testing.T) {
			req := NewRequest("How does GraphRAG use Neo4j?", mode, 3, 2)
			a := mustQuery(t, e, req)
			b := mustQuery(t, e, req)
			if !reflect.DeepEqual(a.GraphContext, b.GraphContext) {
				t.Fatalf("graph context differs:\n%+v\n%+v", a.GraphContext, b.GraphContext)
			}
			if !reflect.DeepEqual(a.Evidence, b.Evidence) {
				t.Fatalf("evidence differs")
			}
			if !reflect.DeepEqual(a.ReasoningPath, b.ReasoningPath) {
				t.Fatalf("reasoning path differs")
			}
		})
	}
}

func TestGraphStoreDown(t *testing.T) {
	mem := fixture(t)
	kb := store.KnowledgeBase{Name: "test", Vectors: mem, Graph: downGraph{}}
	e, _ := newTestEngine(kb)

	t.Run("HybridDegrades", func(t *testing.T) {
		res := mustQuery(t, e, NewRequest("What is GraphRAG?", ModeHybrid, 5, 2))
		if !res.Degraded || !reflect.DeepEqual(res.DegradedStores, []string{StoreGraph}) {
			t.Fatalf("degraded = %v %v", res.Degraded, res.DegradedStores)
		}
		if len(res.Evidence) != 3 {
			t.Fatalf("expected vector evidence only, got %d", len(res.Evidence))
		}
		if len(res.GraphContext.Edges) != 0 {
			t.Fatalf("expected no edges")
		}
		checkGraphInvariants(t, res.GraphContext)
		checkSteps(t, res.ReasoningPath)
	})

	t.Run("GraphFails", func(t *testing.T) {
		_, err := e.Query(context.Background(), NewRequest("What is GraphRAG?", ModeGraph, 5, 2))
		if !errors.Is(err, ErrRetrievalUnavailable) || !errors.Is(err, errDown) {
			t.Fatalf("expected RetrievalUnavailable wrapping the cause, got %v", err)
		}
		var qe *Error
		if !errors.As(err, &qe) || qe.Store != StoreGraph {
			t.Fatalf("error does not name the graph store: %v", err)
		}
	})
}

func TestVectorIndexDown(t *testing.T) {
	mem := fixture(t)
	kb := store.KnowledgeBase{Name: "test", Vectors: downVectors{}, Graph: mem}
	e, _ := newTestEngine(kb)

	res := mustQuery(t, e, NewRequest("What is GraphRAG?", ModeHybrid, 5, 2))
	if !reflect.DeepEqual(res.DegradedStores, []string{StoreVector}) {
		t.Fatalf("degraded stores = %v", res.DegradedStores)
	}
	if len(res.GraphContext.Nodes) != 3 {
		t.Fatalf("expected name-matched traversal, got %d nodes", len(res.GraphContext.Nodes))
	}

	_, err := e.Query(context.Background(), NewRequest("What is GraphRAG?", ModeVector, 5, 2))
	var qe *Error
	if !errors.As(err, &qe) || qe.Kind != KindRetrievalUnavailable || qe.Store != StoreVector {
		t.Fatalf("expected vector RetrievalUnavailable, got %v", err)
	}
}

func TestBothStoresDown(t *testing.T) {
	kb := store.KnowledgeBase{Name: "test", Vectors: downVectors{}, Graph: downGraph{}}
	e, _ := newTestEngine(kb)

	_, err := e.Query(context.Background(), NewRequest("What is GraphRAG?", ModeHybrid, 5, 2))
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Fatalf("expected RetrievalUnavailable, got %v", err)
	}
}

func TestTimeouts(t *testing.T) {
	kb := store.NewKnowledgeBase("test", fixture(t))

	t.Run("Embedding", func(t *testing.T) {
		e := NewEngine(kb, &fakeEmbedder{block: true}, &fakeLLM{}, WithEmbedTimeout(10*time.Millisecond))
		for _, mode := range []Mode{ModeVector, ModeHybrid} {
			_, err := e.Query(context.Background(), NewRequest("What is GraphRAG?", mode, 5, 2))
			if !errors.Is(err, ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("%s: expected timeout, got %v", mode, err)
			}
		}
	})

	t.Run("Synthesis", func(t *testing.T) {
		e := NewEngine(kb, &fakeEmbedder{}, &fakeLLM{block: true}, WithLLMTimeout(10*time.Millisecond))
		_, err := e.Query(context.Background(), NewRequest("What is GraphRAG?", ModeHybrid, 5, 2))
		var qe *Error
		if !errors.As(err, &qe) || qe.Kind != KindTimeout || qe.Stage != StageReason {
			t.Fatalf("expected synthesis timeout, got %v", err)
		}
	})
}

func TestSynthesisFailed(t *testing.T) {
	kb := store.NewKnowledgeBase("test", fixture(t))
	e := NewEngine(kb, &fakeEmbedder{}, &fakeLLM{err: errors.New("quota exceeded")}, WithProvider("openai"))

	res, err := e.Query(context.Background(), NewRequest("What is GraphRAG?", ModeHybrid, 5, 2))
	if res != nil {
		t.Fatalf("expected no result")
	}
	var qe *Error
	if !errors.As(err, &qe) || qe.Kind != KindSynthesisFailed || qe.Provider != "openai" {
		t.Fatalf("expected SynthesisFailed from openai, got %v", err)
	}
}

func cycleStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	_, err := s.SaveBatch(context.Background(), common.Batch{
		Document: common.Document{ID: "doc", Filename: "cycle.md"},
		Entities: []common.Entity{
			{ID: "a", Name: "Alpha", Type: common.EntityTypeConcept},
			{ID: "b", Name: "Beta", Type: common.EntityTypeConcept},
			{ID: "c", Name: "Gamma", Type: common.EntityTypeConcept},
		},
		Relationships: []common.Relationship{
			{ID: "ab", SourceID: "a", TargetID: "b", Label: "feeds"},
			{ID: "bc", SourceID: "b", TargetID: "c", Label: "feeds"},
			{ID: "ca", SourceID: "c", TargetID: "a", Label: "feeds"},
			{ID: "aa", SourceID: "a", TargetID: "a", Label: "refines"},
		},
		Chunks: []common.Chunk{{ID: "c1", Text: "Alpha feeds Beta.", Embedding: []float32{1, 0, 0}, EntityIDs: []string{"a"}}},
	})
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	return s
}

func TestTraversalHandlesCycles(t *testing.T) {
	e, _ := newTestEngine(store.NewKnowledgeBase("test", cycleStore(t)))

	for hops := 0; hops <= 5; hops++ {
		res := mustQuery(t, e, NewRequest("Tell me about Alpha", ModeGraph, 5, hops))
		checkGraphInvariants(t, res.GraphContext)
		if hops > 0 && len(res.GraphContext.Nodes) != 3 {
			t.Fatalf("hops=%d: expected 3 nodes, got %d", hops, len(res.GraphContext.Nodes))
		}
	}
}

func TestVisitedCapMarksPartial(t *testing.T) {
	s := memory.New()
	batch := common.Batch{
		Document: common.Document{ID: "doc", Filename: "star.md"},
		Entities: []common.Entity{{ID: "hub", Name: "Hub", Type: common.EntityTypeConcept}},
	}
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		batch.Entities = append(batch.Entities, common.Entity{ID: id, Name: "Leaf " + id, Type: common.EntityTypeConcept})
		batch.Relationships = append(batch.Relationships, common.Relationship{ID: "r" + id, SourceID: "hub", TargetID: id, Label: "has"})
	}
	if _, err := s.SaveBatch(context.Background(), batch); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	e, _ := newTestEngine(store.NewKnowledgeBase("test", s), WithMaxVisited(5))
	res := mustQuery(t, e, NewRequest("What does the Hub have?", ModeGraph, 5, 2))
	if !res.Partial {
		t.Fatalf("expected partial result")
	}
	if len(res.GraphContext.Nodes) != 5 {
		t.Fatalf("expected 5 nodes, got %d", len(res.GraphContext.Nodes))
	}
	checkGraphInvariants(t, res.GraphContext)
}

func TestNoMatchesUsesNoDataPrompt(t *testing.T) {
	e, llm := newTestEngine(store.NewKnowledgeBase("test", fixture(t)))

	res := mustQuery(t, e, NewRequest("Where is Paris?", ModeGraph, 5, 2))
	if len(res.Evidence) != 0 || len(res.GraphContext.Nodes) != 0 {
		t.Fatalf("expected empty retrieval, got %+v", res)
	}
	if !strings.Contains(llm.lastPrompt(), "no relevant information was found") {
		t.Fatalf("expected no-data prompt, got:\n%s", llm.lastPrompt())
	}
	checkSteps(t, res.ReasoningPath)
}

func TestQueryTrace(t *testing.T) {
	e, _ := newTestEngine(store.NewKnowledgeBase("test", fixture(t)))
	trace := NewQueryTrace()

	if _, err := e.QueryWithTracer(context.Background(), NewRequest("What is GraphRAG?", ModeHybrid, 5, 2), trace); err != nil {
		t.Fatalf("Query: %v", err)
	}
	snap := trace.Snapshot()
	if !reflect.DeepEqual(snap.SeedEntityIDs, []string{"e1", "e2", "e3"}) {
		t.Fatalf("seeds = %v", snap.SeedEntityIDs)
	}
	if !reflect.DeepEqual(snap.ConsideredDocuments, []string{"doc1"}) {
		t.Fatalf("considered = %v", snap.ConsideredDocuments)
	}
	if !reflect.DeepEqual(snap.RelationshipIDs, []string{"r1", "r2"}) {
		t.Fatalf("relationships = %v", snap.RelationshipIDs)
	}
	if snap.StoreCalls == 0 || snap.StoreErrors != 0 {
		t.Fatalf("store calls = %d, errors = %d", snap.StoreCalls, snap.StoreErrors)
	}
}

func TestHybridFallsBackToNameSeedsForUntaggedChunks(t *testing.T) {
	kb := store.NewKnowledgeBase("test", fixture(t))
	emb := &fakeEmbedder{vectors: map[string][]float32{"What is GraphRAG?": {0, 0, 1}}}
	e := NewEngine(kb, emb, &fakeLLM{})

	res := mustQuery(t, e, NewRequest("What is GraphRAG?", ModeHybrid, 1, 1))
	checkGraphInvariants(t, res.GraphContext)
	checkSteps(t, res.ReasoningPath)
	if res.Degraded {
		t.Fatalf("unexpected degraded result: %v", res.DegradedStores)
	}
	if res.Evidence[0].ChunkText != "Unrelated cooking notes." {
		t.Fatalf("untagged chunk should rank first, got %q", res.Evidence[0].ChunkText)
	}
	gc := res.GraphContext
	if gc.Stats.SeedCount != 1 || len(gc.Nodes) != 2 || len(gc.Edges) != 1 {
		t.Fatalf("expected one name-matched seed and one hop, got %+v", gc.Stats)
	}
	if gc.Nodes[0].Name != "GraphRAG" {
		t.Fatalf("seed = %q, want GraphRAG", gc.Nodes[0].Name)
	}
	found := false
	for _, s := range res.ReasoningPath {
		if strings.Contains(s.Description, "GraphRAG —uses→ Knowledge Graph") {
			found = true
		}
	}
	if !found {
		t.Fatalf("traversal step missing from %+v", res.ReasoningPath)
	}
}

func TestHybridKeepsAllTaggedEntities(t *testing.T) {
	mem := fixture(t)
	kb := store.KnowledgeBase{Name: "test", Vectors: mem, Graph: downGraph{}}
	emb := &fakeEmbedder{vectors: map[string][]float32{"Where is the graph stored?": {0.1, 0.995, 0}}}
	e := NewEngine(kb, emb, &fakeLLM{}, WithMaxSeeds(1))

	res := mustQuery(t, e, NewRequest("Where is the graph stored?", ModeHybrid, 1, 2))
	if !res.Degraded {
		t.Fatal("expected degraded result with the graph store down")
	}
	want := map[string]string{"Knowledge Graph": "Concept", "Neo4j": "Technology"}
	if len(res.GraphContext.Nodes) != len(want) {
		t.Fatalf("expected %d tagged nodes, got %+v", len(want), res.GraphContext.Nodes)
	}
	for _, n := range res.GraphContext.Nodes {
		if want[n.Name] != n.Type {
			t.Fatalf("node %q has type %q, want %q", n.Name, n.Type, want[n.Name])
		}
	}
	checkGraphInvariants(t, res.GraphContext)
}
