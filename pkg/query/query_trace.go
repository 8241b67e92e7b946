package query

import (
	"slices"
	"sync"
)

type TraceEventKind string

const (
	TraceEventConsideredDocuments    TraceEventKind = "considered_documents"
	TraceEventUsedDocuments          TraceEventKind = "used_documents"
	TraceEventSeedEntityIDs          TraceEventKind = "seed_entity_ids"
	TraceEventVisitedEntityIDs       TraceEventKind = "visited_entity_ids"
	TraceEventTraversedRelationships TraceEventKind = "traversed_relationship_ids"
	TraceEventStoreCall              TraceEventKind = "store_call"
)

// TraceEvent is an extensible event envelope for query tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	DocumentIDs     []string
	EntityIDs       []string
	RelationshipIDs []string

	Store      string
	Operation  string
	DurationMs int64
	Error      string
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs, metrics, or custom post-processing
// pipelines. Record may be called from several goroutines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func recordIDs(t Tracer, kind TraceEventKind, ids []string) {
	if t == nil || len(ids) == 0 {
		return
	}
	ev := TraceEvent{Kind: kind}
	switch kind {
	case TraceEventConsideredDocuments, TraceEventUsedDocuments:
		ev.DocumentIDs = ids
	case TraceEventTraversedRelationships:
		ev.RelationshipIDs = ids
	default:
		ev.EntityIDs = ids
	}
	t.Record(ev)
}

func recordStoreCall(t Tracer, storeName, op string, durationMs int64, err error) {
	if t == nil {
		return
	}
	ev := TraceEvent{Kind: TraceEventStoreCall, Store: storeName, Operation: op, DurationMs: durationMs}
	if err != nil {
		ev.Error = err.Error()
	}
	t.Record(ev)
}

// QueryTrace collects which documents, entities and relationships a query
// looked at.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	consideredDocuments map[string]struct{}
	usedDocuments       map[string]struct{}
	seedEntities        map[string]struct{}
	visitedEntities     map[string]struct{}
	relationships       map[string]struct{}
	storeCalls          int
	storeErrors         int
}

type QueryTraceSnapshot struct {
	ConsideredDocuments []string `json:"considered_documents"`
	UsedDocuments       []string `json:"used_documents"`
	SeedEntityIDs       []string `json:"seed_entity_ids"`
	VisitedEntityIDs    []string `json:"visited_entity_ids"`
	RelationshipIDs     []string `json:"relationship_ids"`
	StoreCalls          int      `json:"store_calls"`
	StoreErrors         int      `json:"store_errors"`
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{
		consideredDocuments: make(map[string]struct{}),
		usedDocuments:       make(map[string]struct{}),
		seedEntities:        make(map[string]struct{}),
		visitedEntities:     make(map[string]struct{}),
		relationships:       make(map[string]struct{}),
	}
}

func addAll(set map[string]struct{}, ids []string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventConsideredDocuments:
		addAll(t.consideredDocuments, event.DocumentIDs)
	case TraceEventUsedDocuments:
		addAll(t.usedDocuments, event.DocumentIDs)
	case TraceEventSeedEntityIDs:
		addAll(t.seedEntities, event.EntityIDs)
	case TraceEventVisitedEntityIDs:
		addAll(t.visitedEntities, event.EntityIDs)
	case TraceEventTraversedRelationships:
		addAll(t.relationships, event.RelationshipIDs)
	case TraceEventStoreCall:
		t.storeCalls++
		if event.Error != "" {
			t.storeErrors++
		}
	default:
		return
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return QueryTraceSnapshot{
		ConsideredDocuments: sortedKeys(t.consideredDocuments),
		UsedDocuments:       sortedKeys(t.usedDocuments),
		SeedEntityIDs:       sortedKeys(t.seedEntities),
		VisitedEntityIDs:    sortedKeys(t.visitedEntities),
		RelationshipIDs:     sortedKeys(t.relationships),
		StoreCalls:          t.storeCalls,
		StoreErrors:         t.storeErrors,
	}
}
