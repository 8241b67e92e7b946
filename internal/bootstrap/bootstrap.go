// Package bootstrap builds the components cmd/server and cmd/worker share
// from environment variables.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/metrics"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/storage"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai"
	oai "github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai/ollama"
	gai "github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai/openai"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/graph"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader/doc"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader/pdf"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader/web"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger/console"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/query"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store/memory"
	pgstore "github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store/pgx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// InitLogger installs the console logger, with debug output when DEBUG is
// true.
func InitLogger() {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnvBool("LOG_JSON", false),
	}))
}

// Adapter returns the configured model provider name.
func Adapter() string {
	return util.GetEnvString("AI_ADAPTER", "openai")
}

// NewAIClient creates the model client selected by AI_ADAPTER.
func NewAIClient() (ai.GraphAIClient, error) {
	parallel := int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 10))
	dim := util.GetEnvInt("AI_EMBED_DIM", 0)
	timeout := util.GetEnvDuration("AI_TIMEOUT", 0)

	switch Adapter() {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:       util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel: util.GetEnv("AI_EXTRACT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			Dimensions:            dim,
			MaxConcurrentRequests: parallel,
			Timeout:               timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return client, nil
	case "openai":
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:       util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel: util.GetEnv("AI_EXTRACT_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			Dimensions:            dim,
			MaxConcurrentRequests: parallel,
			Timeout:               timeout,
		}), nil
	}
	return nil, fmt.Errorf("unknown AI_ADAPTER %q", Adapter())
}

// StoreBackend is the knowledge base backend selected by STORE_BACKEND.
func StoreBackend() string {
	return util.GetEnvString("STORE_BACKEND", "memory")
}

// CheckQueueBackend rejects queue mode on the memory backend: the server and
// the worker would each hold their own knowledge base and uploads consumed
// by the worker would never be visible to queries.
func CheckQueueBackend(queued bool) error {
	if queued && StoreBackend() == "memory" {
		return fmt.Errorf("RABBITMQ_HOST is set but STORE_BACKEND is memory; use STORE_BACKEND=postgres or unset RABBITMQ_HOST")
	}
	return nil
}

// NewStore opens the backend selected by STORE_BACKEND. The returned func
// releases it.
func NewStore(ctx context.Context) (store.Store, func(), error) {
	backend := StoreBackend()
	switch backend {
	case "memory":
		logger.Info("[Store] Using in-memory knowledge base")
		return memory.New(), func() {}, nil
	case "postgres":
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}

	databaseURL := util.GetEnv("DATABASE_URL")
	if databaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}
	if err := pgstore.Migrate(databaseURL, util.GetEnvString("MIGRATIONS_PATH", "pkg/store/pgx/migrations")); err != nil {
		return nil, nil, err
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to reach database: %w", err)
	}

	logger.Info("[Store] Using postgres knowledge base")
	s := pgstore.New(pool, pgstore.WithKnowledgeBase(util.GetEnvString("KNOWLEDGE_BASE", "default")))
	return s, pool.Close, nil
}

// NewFileLoader routes each upload type to its parser on top of files and
// fetches web pages with an HTTP client.
func NewFileLoader(files storage.FileStore) loader.GraphFileLoader {
	raw := files.Loader()
	return loader.NewTypeLoader(map[loader.FileType]loader.GraphFileLoader{
		loader.FileTypeText:     raw,
		loader.FileTypeMarkdown: raw,
		loader.FileTypeDocx:     doc.NewDocGraphLoader(raw),
		loader.FileTypePDF:      pdf.NewPDFGraphLoader(raw),
		loader.FileTypeURL:      web.NewWebGraphLoader(&http.Client{Timeout: 30 * time.Second}),
	})
}

// NewPipeline creates the ingestion pipeline writing into s. Stage changes
// are counted in metrics.
func NewPipeline(client ai.GraphAIClient, s store.Store) (*graph.Pipeline, error) {
	return graph.NewPipeline(graph.PipelineParams{
		AI:        client,
		Writer:    s,
		Documents: s,

		ChunkMaxTokens:     util.GetEnvInt("CHUNK_MAX_TOKENS", graph.DefaultChunkMaxTokens),
		OverlapSentences:   util.GetEnvInt("CHUNK_OVERLAP_SENTENCES", graph.DefaultOverlapSentences),
		ParallelAIRequests: util.GetEnvInt("AI_PARALLEL_REQ", 10),
		MaxRetries:         util.GetEnvInt("AI_MAX_RETRIES", 3),
		OnStage: func(stage graph.Stage) {
			metrics.ObserveIngestStage(string(stage))
		},
	})
}

// NewEngine creates the query engine over s. Question embeddings are cached.
func NewEngine(client ai.GraphAIClient, s store.Store) *query.Engine {
	embedder := ai.NewCachedEmbedder(
		client,
		util.GetEnvInt("AI_EMBED_CACHE_SIZE", 1024),
		util.GetEnvDuration("AI_EMBED_CACHE_TTL", time.Hour),
	)
	kb := store.NewKnowledgeBase(util.GetEnvString("KNOWLEDGE_BASE", "default"), s)
	return query.NewEngine(kb, embedder, client,
		query.WithEmbedTimeout(util.GetEnvDuration("QUERY_EMBED_TIMEOUT", query.DefaultEmbedTimeout)),
		query.WithLLMTimeout(util.GetEnvDuration("QUERY_LLM_TIMEOUT", query.DefaultLLMTimeout)),
		query.WithMaxVisited(util.GetEnvInt("QUERY_MAX_VISITED", query.DefaultMaxVisited)),
		query.WithProvider(Adapter()),
		query.WithTracer(metrics.StoreTracer{}),
		query.WithFileIndex(s),
	)
}
