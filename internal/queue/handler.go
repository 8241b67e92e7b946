package queue

import (
	"context"
	"maps"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// MaxRetries is how often a message is retried before it goes to the DLQ.
const MaxRetries = 10

const retriesHeader = "x-retries"

// Retries reads the retry counter a message carries.
func Retries(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}

// failureRoute decides where a failed message goes next and with which
// headers. Permanent failures skip the retry queue.
func failureRoute(queueName string, headers amqp091.Table, permanent bool) (string, amqp091.Table) {
	out := amqp091.Table{}
	maps.Copy(out, headers)

	retries := Retries(headers)
	if permanent || retries >= MaxRetries {
		return DeadLetterQueue(queueName), out
	}
	out[retriesHeader] = int32(retries + 1)
	return RetryQueue(queueName), out
}

// Acknowledger is the part of a delivery the failure handler settles.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// HandleFailure republishes a failed delivery to the retry queue, or to the
// DLQ once it is out of retries, and acks the original. If republishing
// fails the delivery is requeued.
func HandleFailure(
	ctx context.Context,
	ch Publisher,
	ack Acknowledger,
	queueName string,
	body []byte,
	headers amqp091.Table,
	permanent bool,
) {
	target, next := failureRoute(queueName, headers, permanent)
	if target == DeadLetterQueue(queueName) {
		logger.Warn("[Queue] Sending message to DLQ", "dlq", target, "retries", Retries(headers), "permanent", permanent)
	} else {
		logger.Info("[Queue] Scheduling retry", "retry_queue", target, "attempt", Retries(next))
	}

	if err := PublishFIFO(ctx, ch, target, body, next); err != nil {
		logger.Error("[Queue] Failed to republish message", "queue", target, "err", err)
		if nackErr := ack.Nack(false, true); nackErr != nil {
			logger.Error("[Queue] Failed to nack message", "err", nackErr)
		}
		return
	}
	if err := ack.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
}
