package pgx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type call struct {
	sql  string
	args []any
}

// fakeConn answers Query with canned rows keyed by SQL text and hands out a
// single fakeTx.
type fakeConn struct {
	rows  map[string][][]any
	calls []call
	tx    *fakeTx
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.calls = append(c.calls, call{sql, args})
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgxv5.Rows, error) {
	c.calls = append(c.calls, call{sql, args})
	return &fakeRows{data: c.rows[sql], pos: -1}, nil
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgxv5.Row {
	c.calls = append(c.calls, call{sql, args})
	return fakeRow{err: pgxv5.ErrNoRows}
}

func (c *fakeConn) Begin(ctx context.Context) (pgxv5.Tx, error) {
	if c.tx == nil {
		return nil, errors.New("no transaction")
	}
	return c.tx, nil
}

type fakeRows struct {
	pgxv5.Rows
	data [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(dest, r.data[r.pos])
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.vals)
}

func assign(dest, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d targets for %d columns", len(dest), len(vals))
	}
	for i, v := range vals {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

// fakeTx keeps entities by name_key|type and relationships by
// source|label|target, the unique keys of the schema.
type fakeTx struct {
	pgxv5.Tx
	entities  map[string]string
	edges     map[string]bool
	calls     []call
	queued    []*pgxv5.QueuedQuery
	committed bool
	entityErr error
}

func newFakeTx() *fakeTx {
	return &fakeTx{entities: map[string]string{}, edges: map[string]bool{}}
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.calls = append(t.calls, call{sql, args})
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgxv5.Row {
	t.calls = append(t.calls, call{sql, args})
	switch sql {
	case upsertEntitySQL:
		if t.entityErr != nil {
			return fakeRow{err: t.entityErr}
		}
		key := args[2].(string) + "|" + args[3].(string)
		if id, ok := t.entities[key]; ok {
			return fakeRow{vals: []any{id, false}}
		}
		t.entities[key] = args[0].(string)
		return fakeRow{vals: []any{args[0].(string), true}}
	case insertRelationshipSQL:
		key := args[1].(string) + "|" + args[3].(string) + "|" + args[2].(string)
		if t.edges[key] {
			return fakeRow{err: fmt.Errorf("relationship %s: %w", key, pgxv5.ErrNoRows)}
		}
		t.edges[key] = true
		return fakeRow{vals: []any{args[0].(string)}}
	}
	return fakeRow{err: errors.New("unexpected sql")}
}

func (t *fakeTx) SendBatch(ctx context.Context, b *pgxv5.Batch) pgxv5.BatchResults {
	t.queued = append(t.queued, b.QueuedQueries...)
	return fakeBatchResults{}
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeBatchResults struct {
	pgxv5.BatchResults
}

func (fakeBatchResults) Close() error { return nil }

func newFakeStore(conn *fakeConn) *Store {
	return &Store{conn: conn, name: "default"}
}

func TestSaveBatchRemapsExistingEntities(t *testing.T) {
	tx := newFakeTx()
	tx.entities["knowledge graph|Concept"] = "kg-stored"
	tx.edges["kg-stored|part_of|e1"] = true
	s := newFakeStore(&fakeConn{tx: tx})

	out, err := s.SaveBatch(context.Background(), common.Batch{
		Document: common.Document{ID: "doc2", Filename: "notes.md", FileType: "md"},
		Entities: []common.Entity{
			{ID: "e1", Name: "GraphRAG", Type: common.EntityTypeConcept},
			{ID: "e2", Name: "Knowledge  GRAPH", Type: common.EntityTypeConcept},
		},
		Relationships: []common.Relationship{
			{ID: "r1", SourceID: "e1", TargetID: "e2", Label: "uses"},
			{ID: "r2", SourceID: "e2", TargetID: "e1", Label: "part_of"},
			{ID: "r3", SourceID: "e1", TargetID: "ghost", Label: "mentions"},
		},
		Chunks: []common.Chunk{
			{ID: "c1", Text: "GraphRAG uses a knowledge graph.", Embedding: []float32{1, 0}, EntityIDs: []string{"e2", "e2", "e1", "ghost"}},
		},
	})
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if !tx.committed {
		t.Fatal("transaction was not committed")
	}

	if len(out.Entities) != 1 || out.Entities[0].ID != "e1" || out.Entities[0].SourceDoc != "notes.md" {
		t.Fatalf("only the new entity should be reported, got %+v", out.Entities)
	}
	var keys []string
	for _, c := range tx.calls {
		if c.sql == upsertEntitySQL {
			keys = append(keys, c.args[2].(string))
		}
	}
	if !slices.Equal(keys, []string{"graphrag", "knowledge graph"}) {
		t.Fatalf("name keys = %v", keys)
	}

	if len(out.Relationships) != 1 {
		t.Fatalf("expected the duplicate and dangling relationships to be skipped, got %+v", out.Relationships)
	}
	if r := out.Relationships[0]; r.ID != "r1" || r.SourceID != "e1" || r.TargetID != "kg-stored" {
		t.Fatalf("relationship not remapped: %+v", r)
	}

	if len(out.Chunks) != 1 || out.Chunks[0].DocID != "doc2" {
		t.Fatalf("unexpected chunks %+v", out.Chunks)
	}
	if got := out.Chunks[0].EntityIDs; !slices.Equal(got, []string{"kg-stored", "e1"}) {
		t.Fatalf("chunk entity IDs = %v", got)
	}
	if len(tx.queued) != 3 || tx.queued[0].SQL != insertChunkSQL {
		t.Fatalf("expected one chunk row and two tags, got %d queued", len(tx.queued))
	}
	for _, q := range tx.queued[1:] {
		if q.SQL != insertChunkEntitySQL || q.Arguments[0] != "c1" {
			t.Fatalf("unexpected queued query %q %v", q.SQL, q.Arguments)
		}
	}
}

func TestSaveBatchFailsOnEntityError(t *testing.T) {
	tx := newFakeTx()
	tx.entityErr = errors.New("deadlock detected")
	s := newFakeStore(&fakeConn{tx: tx})

	_, err := s.SaveBatch(context.Background(), common.Batch{
		Document: common.Document{ID: "doc1", Filename: "a.md"},
		Entities: []common.Entity{{ID: "e1", Name: "A", Type: common.EntityTypeConcept}},
	})
	if !errors.Is(err, tx.entityErr) || !strings.Contains(err.Error(), "upsert entity") {
		t.Fatalf("expected entity error, got %v", err)
	}
	if tx.committed {
		t.Fatal("failed batch must not commit")
	}
}

func TestSearchKeepsRowOrder(t *testing.T) {
	rows := [][]any{
		{"c2", "doc1", "a.md", "second inserted", 0.5, []string{"e2"}, []string{"B"}, []string{"Concept"}},
		{"c1", "doc1", "a.md", "first inserted", 0.5, []string{}, []string{}, []string{}},
	}
	tests := []struct {
		name string
		topK int
		rows [][]any
		want []string
	}{
		{name: "Ties", topK: 5, rows: rows, want: []string{"c2", "c1"}},
		{name: "HugeTopK", topK: math.MaxInt, rows: nil, want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn := &fakeConn{rows: map[string][][]any{searchSQL: tc.rows}}
			hits, err := newFakeStore(conn).Search(context.Background(), []float32{1, 0}, tc.topK)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			var ids []string
			for _, h := range hits {
				ids = append(ids, h.ChunkID)
			}
			if !slices.Equal(ids, tc.want) {
				t.Fatalf("hits = %v, want %v", ids, tc.want)
			}
			if cap(hits) > searchPrealloc {
				t.Fatalf("preallocated %d hits", cap(hits))
			}
			if len(conn.calls) != 1 || conn.calls[0].args[1] != tc.topK {
				t.Fatalf("top_k not passed as the limit: %+v", conn.calls)
			}
		})
	}

	if !strings.Contains(searchSQL, "ORDER BY score DESC, c.seq") {
		t.Fatal("ties must fall back to insertion order")
	}
	hits, _ := newFakeStore(&fakeConn{rows: map[string][][]any{searchSQL: rows}}).Search(context.Background(), []float32{1}, 5)
	if !slices.Equal(hits[0].EntityTypes, []string{"Concept"}) {
		t.Fatalf("entity types not scanned: %+v", hits[0])
	}
}

func TestFindByNameArgs(t *testing.T) {
	conn := &fakeConn{rows: map[string][][]any{findByNameSQL: {{"e1"}, {"e7"}}}}
	s := newFakeStore(conn)

	ids, err := s.FindByName(context.Background(), "  50%_Off  SALE ")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if !slices.Equal(ids, []string{"e1", "e7"}) {
		t.Fatalf("ids = %v", ids)
	}
	args := conn.calls[0].args
	if args[0] != "50%_off sale" || args[1] != `50\%\_off sale` {
		t.Fatalf("args = %q", args)
	}

	conn.calls = nil
	if ids, err := s.FindByName(context.Background(), "   "); ids != nil || err != nil || len(conn.calls) != 0 {
		t.Fatalf("blank name should not query, got %v %v %d calls", ids, err, len(conn.calls))
	}
}
