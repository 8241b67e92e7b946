// Package memory is an in-process knowledge base. Readers load an immutable
// snapshot through an atomic pointer and never take a lock. Writers build a
// new snapshot under a mutex and publish it with a single store.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"
)

type chunkRecord struct {
	chunk common.Chunk
	seq   int64
	norm  float32
}

type snapshot struct {
	entities    map[string]common.Entity
	entityByKey map[string]string
	entityOrder []string

	relationships []common.Relationship
	relKeys       map[string]struct{}
	outgoing      map[string][]int
	incoming      map[string][]int

	chunks     []chunkRecord
	entityDocs map[string][]string

	documents map[string]common.Document
	seq       int64
}

func emptySnapshot() *snapshot {
	return &snapshot{
		entities:    map[string]common.Entity{},
		entityByKey: map[string]string{},
		relKeys:     map[string]struct{}{},
		outgoing:    map[string][]int{},
		incoming:    map[string][]int{},
		entityDocs:  map[string][]string{},
		documents:   map[string]common.Document{},
	}
}

// clone copies every map so the writer can mutate the result while readers
// keep using s. Slices are clipped so appends always reallocate.
func (s *snapshot) clone() *snapshot {
	return &snapshot{
		entities:      maps.Clone(s.entities),
		entityByKey:   maps.Clone(s.entityByKey),
		entityOrder:   slices.Clip(s.entityOrder),
		relationships: slices.Clip(s.relationships),
		relKeys:       maps.Clone(s.relKeys),
		outgoing:      maps.Clone(s.outgoing),
		incoming:      maps.Clone(s.incoming),
		chunks:        slices.Clip(s.chunks),
		entityDocs:    maps.Clone(s.entityDocs),
		documents:     maps.Clone(s.documents),
		seq:           s.seq,
	}
}

// Store implements store.Store in memory.
type Store struct {
	current atomic.Pointer[snapshot]
	writeMu sync.Mutex

	statusMu   sync.RWMutex
	statuses   map[string]common.DocumentStatus
	statusSeq  map[string]int64
	nextStatus int64

	now func() time.Time
}

func New() *Store {
	s := &Store{
		statuses:  map[string]common.DocumentStatus{},
		statusSeq: map[string]int64{},
		now:       time.Now,
	}
	s.current.Store(emptySnapshot())
	return s
}

func (s *Store) load() *snapshot {
	return s.current.Load()
}

// ExistsAnyData reports whether at least one chunk or entity is stored.
func (s *Store) ExistsAnyData(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	snap := s.load()
	return len(snap.chunks) > 0 || len(snap.entities) > 0, nil
}

func relKey(r common.Relationship) string {
	return r.SourceID + "\x00" + r.Label + "\x00" + r.TargetID
}

// SaveBatch publishes one document's chunks, entities and relationships as a
// single new snapshot.
func (s *Store) SaveBatch(ctx context.Context, batch common.Batch) (common.Batch, error) {
	if err := ctx.Err(); err != nil {
		return common.Batch{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.load().clone()
	out := common.Batch{Document: batch.Document}

	if out.Document.CreatedAt.IsZero() {
		out.Document.CreatedAt = s.now()
	}
	next.documents[out.Document.ID] = out.Document

	remap := make(map[string]string, len(batch.Entities))
	for _, e := range batch.Entities {
		key := e.Key()
		if existingID, ok := next.entityByKey[key]; ok {
			remap[e.ID] = existingID
			continue
		}
		if _, taken := next.entities[e.ID]; taken {
			remap[e.ID] = e.ID
			continue
		}
		if e.SourceDoc == "" {
			e.SourceDoc = out.Document.Filename
		}
		next.entities[e.ID] = e
		next.entityByKey[key] = e.ID
		next.entityOrder = append(next.entityOrder, e.ID)
		remap[e.ID] = e.ID
		out.Entities = append(out.Entities, e)
	}

	resolve := func(id string) (string, bool) {
		if mapped, ok := remap[id]; ok {
			return mapped, true
		}
		_, ok := next.entities[id]
		return id, ok
	}

	for _, r := range batch.Relationships {
		src, ok1 := resolve(r.SourceID)
		tgt, ok2 := resolve(r.TargetID)
		if !ok1 || !ok2 {
			continue
		}
		r.SourceID, r.TargetID = src, tgt
		key := relKey(r)
		if _, dup := next.relKeys[key]; dup {
			continue
		}
		if r.SourceDoc == "" {
			r.SourceDoc = out.Document.Filename
		}
		idx := len(next.relationships)
		next.relationships = append(next.relationships, r)
		next.relKeys[key] = struct{}{}
		next.outgoing[src] = append(slices.Clip(next.outgoing[src]), idx)
		next.incoming[tgt] = append(slices.Clip(next.incoming[tgt]), idx)
		out.Relationships = append(out.Relationships, r)
	}

	for _, c := range batch.Chunks {
		ids := make([]string, 0, len(c.EntityIDs))
		for _, id := range c.EntityIDs {
			if mapped, ok := resolve(id); ok {
				ids = append(ids, mapped)
			}
		}
		c.EntityIDs = store.DedupeStrings(ids)
		if c.DocID == "" {
			c.DocID = out.Document.ID
		}
		next.seq++
		next.chunks = append(next.chunks, chunkRecord{
			chunk: c,
			seq:   next.seq,
			norm:  norm(c.Embedding),
		})
		for _, id := range c.EntityIDs {
			docs := next.entityDocs[id]
			if !slices.Contains(docs, c.DocID) {
				next.entityDocs[id] = append(slices.Clip(docs), c.DocID)
			}
		}
		out.Chunks = append(out.Chunks, c)
	}

	s.current.Store(next)
	return out, nil
}

// Clear drops everything, document statuses included.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	s.current.Store(emptySnapshot())
	s.writeMu.Unlock()

	s.statusMu.Lock()
	s.statuses = map[string]common.DocumentStatus{}
	s.statusSeq = map[string]int64{}
	s.statusMu.Unlock()
	return nil
}

var _ store.Store = (*Store)(nil)
