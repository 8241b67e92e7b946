package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/bootstrap"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/queue"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/storage"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"
)

func main() {
	util.LoadEnv()
	bootstrap.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aiClient, err := bootstrap.NewAIClient()
	if err != nil {
		logger.Fatal("Could not create AI client", "err", err)
	}

	if err := bootstrap.CheckQueueBackend(true); err != nil {
		logger.Fatal("Invalid deployment", "err", err)
	}

	s, closeStore, err := bootstrap.NewStore(ctx)
	if err != nil {
		logger.Fatal("Could not open knowledge base store", "err", err)
	}
	defer closeStore()

	files, err := storage.NewFromEnv(ctx)
	if err != nil {
		logger.Fatal("Could not open file storage", "err", err)
	}

	pipeline, err := bootstrap.NewPipeline(aiClient, s)
	if err != nil {
		logger.Fatal("Could not create ingestion pipeline", "err", err)
	}
	processor := queue.NewProcessor(pipeline, bootstrap.NewFileLoader(files))

	// Init rabbitmq
	conn, err := queue.Init()
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.IngestQueue); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	// A separate consumer channel with prefetch=1 so only one document is
	// ingested at a time.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.IngestQueue,
		queue.IngestQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.IngestQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.IngestQueue)
	queue.Consume(ctx, msgs, queue.ConsumeParams{
		Queue:     queue.IngestQueue,
		Publisher: ch,
		Processor: processor,
		AfterMessage: func() {
			logAIMetrics(aiClient)
			logger.Info("Waiting for next message")
		},
	})

	logger.Info("Shutdown signal received, exiting...")
}

func logAIMetrics(client ai.GraphAIClient) {
	metrics := client.GetMetrics()
	d := time.Duration(metrics.DurationMs) * time.Millisecond
	logger.Info(
		"AI Metrics",
		"requests", metrics.Requests,
		"input_tokens", metrics.InputTokens,
		"output_tokens", metrics.OutputTokens,
		"total_tokens", metrics.TotalTokens,
		"duration", fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60),
	)
	client.ResetMetrics()
}
