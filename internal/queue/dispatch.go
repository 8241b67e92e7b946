package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"
)

// Dispatcher hands a registered document over for ingestion.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg IngestMessage) error
}

// AMQPDispatcher publishes ingest messages for cmd/worker.
type AMQPDispatcher struct {
	ch    Publisher
	queue string
}

func NewAMQPDispatcher(ch Publisher, queueName string) *AMQPDispatcher {
	return &AMQPDispatcher{ch: ch, queue: queueName}
}

func (d *AMQPDispatcher) Dispatch(ctx context.Context, msg IngestMessage) error {
	body, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode ingest message: %w", err)
	}
	return PublishFIFO(ctx, d.ch, d.queue, body, nil)
}

// InlineDispatcher ingests documents in-process when no broker is
// configured. Each document runs in its own goroutine, detached from the
// request context.
type InlineDispatcher struct {
	processor *Processor
	wg        sync.WaitGroup
}

func NewInlineDispatcher(processor *Processor) *InlineDispatcher {
	return &InlineDispatcher{processor: processor}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, msg IngestMessage) error {
	body, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode ingest message: %w", err)
	}
	runCtx := context.WithoutCancel(ctx)
	d.wg.Go(func() {
		if err := d.processor.ProcessIngestMessage(runCtx, body); err != nil {
			logger.Error("[Queue] Inline ingestion failed", "doc_id", msg.DocID, "err", err)
		}
	})
	return nil
}

// Wait blocks until every dispatched document has finished.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
