package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/graph"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"

	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	queue string
	msg   amqp091.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, published{queue: key, msg: msg})
	f.mu.Unlock()
	return nil
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }
func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

type declared struct {
	name string
	args amqp091.Table
}

type fakeDeclarer struct {
	queues []declared
}

func (f *fakeDeclarer) QueueDeclare(name string, _, _, _, _ bool, args amqp091.Table) (amqp091.Queue, error) {
	f.queues = append(f.queues, declared{name: name, args: args})
	return amqp091.Queue{Name: name}, nil
}

func TestSetupQueues(t *testing.T) {
	d := &fakeDeclarer{}
	if err := SetupQueues(d, IngestQueue); err != nil {
		t.Fatalf("SetupQueues: %v", err)
	}
	if len(d.queues) != 3 {
		t.Fatalf("expected 3 queues, got %d", len(d.queues))
	}
	names := map[string]amqp091.Table{}
	for _, q := range d.queues {
		names[q.name] = q.args
	}
	for _, name := range []string{"ingest_queue", "ingest_queue_retry", "ingest_queue_dlq"} {
		if _, ok := names[name]; !ok {
			t.Fatalf("queue %s not declared", name)
		}
	}
	retry := names["ingest_queue_retry"]
	if retry["x-message-ttl"] != int32(10000) || retry["x-dead-letter-routing-key"] != "ingest_queue" {
		t.Fatalf("unexpected retry args %v", retry)
	}
}

func TestRetries(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp091.Table
		want    int
	}{
		{name: "Missing", headers: nil, want: 0},
		{name: "Int32", headers: amqp091.Table{"x-retries": int32(3)}, want: 3},
		{name: "Int64", headers: amqp091.Table{"x-retries": int64(7)}, want: 7},
		{name: "Int", headers: amqp091.Table{"x-retries": 2}, want: 2},
		{name: "WrongType", headers: amqp091.Table{"x-retries": "5"}, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retries(tc.headers); got != tc.want {
				t.Fatalf("Retries = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestFailureRoute(t *testing.T) {
	tests := []struct {
		name        string
		headers     amqp091.Table
		permanent   bool
		wantQueue   string
		wantRetries int
	}{
		{name: "FirstFailure", headers: nil, wantQueue: "ingest_queue_retry", wantRetries: 1},
		{name: "Retrying", headers: amqp091.Table{"x-retries": int32(4)}, wantQueue: "ingest_queue_retry", wantRetries: 5},
		{name: "LastRetry", headers: amqp091.Table{"x-retries": int32(9)}, wantQueue: "ingest_queue_retry", wantRetries: 10},
		{name: "Exhausted", headers: amqp091.Table{"x-retries": int32(10)}, wantQueue: "ingest_queue_dlq", wantRetries: 10},
		{name: "Permanent", headers: nil, permanent: true, wantQueue: "ingest_queue_dlq", wantRetries: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q, headers := failureRoute(IngestQueue, tc.headers, tc.permanent)
			if q != tc.wantQueue {
				t.Fatalf("queue = %s, want %s", q, tc.wantQueue)
			}
			if got := Retries(headers); got != tc.wantRetries {
				t.Fatalf("retries = %d, want %d", got, tc.wantRetries)
			}
		})
	}
}

func TestFailureRouteDoesNotMutateHeaders(t *testing.T) {
	in := amqp091.Table{"x-retries": int32(1), "trace": "abc"}
	_, out := failureRoute(IngestQueue, in, false)
	if in["x-retries"] != int32(1) {
		t.Fatalf("input headers changed: %v", in)
	}
	if out["trace"] != "abc" {
		t.Fatalf("headers not carried over: %v", out)
	}
}

func TestHandleFailure(t *testing.T) {
	t.Run("Republishes", func(t *testing.T) {
		pub := &fakePublisher{}
		ack := &fakeAck{}
		HandleFailure(context.Background(), pub, ack, IngestQueue, []byte("{}"), nil, false)
		if len(pub.sent) != 1 || pub.sent[0].queue != "ingest_queue_retry" {
			t.Fatalf("unexpected publishes %v", pub.sent)
		}
		if pub.sent[0].msg.DeliveryMode != amqp091.Persistent {
			t.Fatalf("expected persistent message")
		}
		if !ack.acked || ack.nacked {
			t.Fatalf("expected ack, got %+v", ack)
		}
	})
	t.Run("PublishFails", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("channel closed")}
		ack := &fakeAck{}
		HandleFailure(context.Background(), pub, ack, IngestQueue, []byte("{}"), nil, false)
		if ack.acked || !ack.nacked || !ack.requeued {
			t.Fatalf("expected nack with requeue, got %+v", ack)
		}
	})
}

type fakeIngester struct {
	mu    sync.Mutex
	calls []loader.GraphFile
	docs  []common.Document
	err   error
}

func (f *fakeIngester) Ingest(_ context.Context, file loader.GraphFile, doc common.Document) (common.DocumentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, file)
	f.docs = append(f.docs, doc)
	if f.err != nil {
		return common.DocumentStatus{Document: doc, Stage: string(graph.StageError)}, f.err
	}
	return common.DocumentStatus{Document: doc, Stage: string(graph.StageComplete)}, nil
}

type nopLoader struct{}

func (nopLoader) GetFileText(context.Context, loader.GraphFile) ([]byte, error) { return nil, nil }

func TestProcessIngestMessage(t *testing.T) {
	valid, _ := IngestMessage{DocID: "d1", Filename: "a.md", FileType: "md", FileKey: "uploads/d1.md"}.Marshal()

	tests := []struct {
		name      string
		body      []byte
		ingestErr error
		wantErr   bool
		permanent bool
		wantCalls int
	}{
		{name: "Success", body: valid, wantCalls: 1},
		{name: "BadJSON", body: []byte("{"), wantErr: true, permanent: true},
		{name: "MissingKey", body: []byte(`{"doc_id":"d1","file_type":"md"}`), wantErr: true, permanent: true},
		{name: "AlreadyIngested", body: valid, ingestErr: util.Permanent(graph.ErrAlreadyIngested), wantCalls: 1},
		{name: "Transient", body: valid, ingestErr: errors.New("timeout"), wantErr: true, wantCalls: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ing := &fakeIngester{err: tc.ingestErr}
			p := NewProcessor(ing, nopLoader{})
			err := p.ProcessIngestMessage(context.Background(), tc.body)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && util.IsPermanent(err) != tc.permanent {
				t.Fatalf("IsPermanent = %v, want %v", util.IsPermanent(err), tc.permanent)
			}
			if len(ing.calls) != tc.wantCalls {
				t.Fatalf("calls = %d, want %d", len(ing.calls), tc.wantCalls)
			}
		})
	}
}

func TestProcessBuildsGraphFile(t *testing.T) {
	ing := &fakeIngester{}
	body, _ := IngestMessage{DocID: "d1", Filename: "notes.pdf", FileType: "pdf", FileKey: "uploads/d1.pdf", MaxTokens: 200}.Marshal()
	if err := NewProcessor(ing, nopLoader{}).ProcessIngestMessage(context.Background(), body); err != nil {
		t.Fatalf("ProcessIngestMessage: %v", err)
	}
	file := ing.calls[0]
	if file.ID != "d1" || file.FilePath != "uploads/d1.pdf" || file.FileType != loader.FileTypePDF || file.MaxTokens != 200 || file.Loader == nil {
		t.Fatalf("unexpected file %#v", file)
	}
	if doc := ing.docs[0]; doc.Filename != "notes.pdf" || doc.FileKey != "uploads/d1.pdf" {
		t.Fatalf("unexpected document %#v", doc)
	}
}

func TestHandleDelivery(t *testing.T) {
	tests := []struct {
		name      string
		body      []byte
		wantQueue string
	}{
		{name: "Success", body: []byte(`{"doc_id":"d1","file_type":"md","file_key":"k"}`)},
		{name: "Malformed", body: []byte("{"), wantQueue: "ingest_queue_dlq"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pub := &fakePublisher{}
			ack := &fakeAck{}
			params := ConsumeParams{Queue: IngestQueue, Publisher: pub, Processor: NewProcessor(&fakeIngester{}, nopLoader{})}
			handleDelivery(context.Background(), params, ack, tc.body, nil)
			if !ack.acked {
				t.Fatalf("expected ack")
			}
			if tc.wantQueue == "" && len(pub.sent) != 0 {
				t.Fatalf("unexpected publishes %v", pub.sent)
			}
			if tc.wantQueue != "" && (len(pub.sent) != 1 || pub.sent[0].queue != tc.wantQueue) {
				t.Fatalf("expected publish to %s, got %v", tc.wantQueue, pub.sent)
			}
		})
	}
}

func TestDispatchers(t *testing.T) {
	msg := IngestMessage{DocID: "d1", Filename: "a.txt", FileType: "txt", FileKey: "uploads/d1.txt"}

	t.Run("AMQP", func(t *testing.T) {
		pub := &fakePublisher{}
		if err := NewAMQPDispatcher(pub, IngestQueue).Dispatch(context.Background(), msg); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		if len(pub.sent) != 1 || pub.sent[0].queue != IngestQueue {
			t.Fatalf("unexpected publishes %v", pub.sent)
		}
		got, err := ParseIngestMessage(pub.sent[0].msg.Body)
		if err != nil || got != msg {
			t.Fatalf("body = %#v (%v)", got, err)
		}
	})

	t.Run("Inline", func(t *testing.T) {
		ing := &fakeIngester{}
		d := NewInlineDispatcher(NewProcessor(ing, nopLoader{}))
		ctx, cancel := context.WithCancel(context.Background())
		if err := d.Dispatch(ctx, msg); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		cancel()
		d.Wait()
		if len(ing.docs) != 1 || ing.docs[0].ID != "d1" {
			t.Fatalf("unexpected ingests %v", ing.docs)
		}
	})
}
