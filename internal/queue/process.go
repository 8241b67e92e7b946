package queue

import (
	"context"
	"errors"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/graph"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// Ingester runs a document through the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, file loader.GraphFile, doc common.Document) (common.DocumentStatus, error)
}

// Processor turns ingest messages into pipeline runs.
type Processor struct {
	ingester Ingester
	loader   loader.GraphFileLoader
}

// NewProcessor creates a processor that reads files through l. l usually
// is a loader.TypeLoader covering every upload type and web pages.
func NewProcessor(ingester Ingester, l loader.GraphFileLoader) *Processor {
	return &Processor{ingester: ingester, loader: l}
}

// ProcessIngestMessage handles one message body. Malformed messages and
// documents that were already ingested fail permanently so they are not
// retried.
func (p *Processor) ProcessIngestMessage(ctx context.Context, body []byte) error {
	msg, err := ParseIngestMessage(body)
	if err != nil {
		return util.Permanent(err)
	}

	status, err := p.ingester.Ingest(ctx, msg.File(p.loader), msg.Document())
	if errors.Is(err, graph.ErrAlreadyIngested) {
		logger.Info("[Queue] Document already ingested, dropping message", "doc_id", msg.DocID)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Debug("[Queue] Document ingested", "doc_id", msg.DocID, "chunks", status.ChunkCount)
	return nil
}

// ConsumeParams configures Consume.
type ConsumeParams struct {
	Queue     string
	Publisher Publisher
	Processor *Processor
	// AfterMessage runs once per delivery, whatever the outcome.
	AfterMessage func()
}

// Consume handles deliveries one at a time until ctx is cancelled or the
// delivery channel closes. Failed messages go through HandleFailure.
func Consume(ctx context.Context, deliveries <-chan amqp091.Delivery, params ConsumeParams) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", params.Queue)
			return
		case d, ok := <-deliveries:
			if !ok {
				logger.Info("[Queue] Message channel closed", "queue", params.Queue)
				return
			}
			handleDelivery(ctx, params, d, d.Body, d.Headers)
			if params.AfterMessage != nil {
				params.AfterMessage()
			}
		}
	}
}

func handleDelivery(ctx context.Context, params ConsumeParams, ack Acknowledger, body []byte, headers amqp091.Table) {
	start := time.Now()
	logger.Info("[Queue] Received message", "queue", params.Queue)

	err := params.Processor.ProcessIngestMessage(ctx, body)
	if err != nil {
		logger.Error("[Queue] Error processing message", "queue", params.Queue, "err", err)
		HandleFailure(context.WithoutCancel(ctx), params.Publisher, ack, params.Queue, body, headers, util.IsPermanent(err))
		return
	}
	if err := ack.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
	logger.Info("[Queue] Message processed successfully", "queue", params.Queue, "duration", time.Since(start).Round(time.Millisecond))
}
