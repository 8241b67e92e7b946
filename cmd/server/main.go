package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/bootstrap"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/queue"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/server"
	mid "github.com/psaikeshav/PersonalKnowledgeGraph/internal/server/middleware"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/storage"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"

	_ "github.com/lib/pq"
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

	if err := bootstrap.CheckQueueBackend(queue.Configured()); err != nil {
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

	app := &mid.App{
		Engine:    bootstrap.NewEngine(aiClient, s),
		Store:     s,
		Files:     files,
		Registrar: pipeline,
	}

	if queue.Configured() {
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
		app.Dispatcher = queue.NewAMQPDispatcher(ch, queue.IngestQueue)
		logger.Info("Uploads are ingested by the worker", "queue", queue.IngestQueue)
	} else {
		inline := queue.NewInlineDispatcher(queue.NewProcessor(pipeline, bootstrap.NewFileLoader(files)))
		defer inline.Wait()
		app.Dispatcher = inline
		logger.Info("RABBITMQ_HOST not set, ingesting uploads in-process")
	}

	e := server.New(app)
	if err := server.Run(ctx, e, util.GetEnvString("PORT", "8080")); err != nil {
		logger.Fatal("Server stopped", "err", err)
	}
}
