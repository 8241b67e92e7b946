package queue

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// IngestQueue carries documents waiting for the ingestion pipeline.
	IngestQueue = "ingest_queue"

	retryTTL = 10 * time.Second
)

// RetryQueue names the delay queue that feeds failed messages back into
// queueName.
func RetryQueue(queueName string) string { return queueName + "_retry" }

// DeadLetterQueue names the queue holding messages that gave up.
func DeadLetterQueue(queueName string) string { return queueName + "_dlq" }

// Configured reports whether a broker host is set in the environment.
func Configured() bool {
	return util.GetEnv("RABBITMQ_HOST") != ""
}

// URL builds the AMQP connection URL from RABBITMQ_* variables.
func URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(util.GetEnvString("RABBITMQ_USER", "guest"), util.GetEnvString("RABBITMQ_PASSWORD", "guest")),
		Host:   fmt.Sprintf("%s:%s", util.GetEnvString("RABBITMQ_HOST", "localhost"), util.GetEnvString("RABBITMQ_PORT", "5672")),
		Path:   "/",
	}
	return u.String()
}

// Init connects to the broker configured in the environment.
func Init() (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// QueueDeclarer is the part of an AMQP channel SetupQueues needs.
type QueueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
}

// SetupQueues declares each queue together with its retry queue, which
// dead-letters back into the main queue after retryTTL, and its DLQ.
func SetupQueues(ch QueueDeclarer, queueNames ...string) error {
	for _, name := range queueNames {
		decls := []struct {
			name string
			args amqp091.Table
		}{
			{name, nil},
			{DeadLetterQueue(name), nil},
			{RetryQueue(name), amqp091.Table{
				"x-message-ttl":             int32(retryTTL / time.Millisecond),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			}},
		}
		for _, d := range decls {
			if _, err := ch.QueueDeclare(d.name, true, false, false, false, d.args); err != nil {
				return fmt.Errorf("failed to declare queue %s: %w", d.name, err)
			}
		}
	}
	return nil
}

// Publisher is the part of an AMQP channel used to publish messages.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// PublishFIFO sends data to queueName through the default exchange as a
// persistent message.
func PublishFIFO(ctx context.Context, ch Publisher, queueName string, data []byte, headers amqp091.Table) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}
	return nil
}
