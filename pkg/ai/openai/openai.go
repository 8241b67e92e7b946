package openai

import (
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

const (
	defaultDimensions = 1536
	defaultTimeout    = 2 * time.Minute
)

// GraphOpenAIClient talks to any OpenAI compatible endpoint. Embeddings and
// chat may live behind different base URLs and keys.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	ai.MetricsCounter

	embeddingModel  string
	chatModel       string
	extractionModel string

	chatURL    string
	dimensions int
	timeout    time.Duration

	reqLock *semaphore.Weighted

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams configures NewGraphOpenAIClient.
//
// ChatModel answers questions; ExtractionModel is used for structured
// entity extraction and defaults to ChatModel. Dimensions fixes the length
// of every returned vector (truncated or zero padded).
type NewGraphOpenAIClientParams struct {
	EmbeddingModel  string
	ChatModel       string
	ExtractionModel string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	Dimensions            int
	MaxConcurrentRequests int64
	Timeout               time.Duration
}

// NewGraphOpenAIClient builds a client from params.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		EmbeddingModel: "text-embedding-3-small",
//		ChatModel:      "gpt-4o-mini",
//		EmbeddingKey:   os.Getenv("AI_EMBED_KEY"),
//		ChatKey:        os.Getenv("AI_CHAT_KEY"),
//	})
func NewGraphOpenAIClient(params NewGraphOpenAIClientParams) *GraphOpenAIClient {
	extractionModel := params.ExtractionModel
	if extractionModel == "" {
		extractionModel = params.ChatModel
	}
	dim := params.Dimensions
	if dim <= 0 {
		dim = defaultDimensions
	}
	parallel := params.MaxConcurrentRequests
	if parallel <= 0 {
		parallel = 8
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &GraphOpenAIClient{
		embeddingModel:  params.EmbeddingModel,
		chatModel:       params.ChatModel,
		extractionModel: extractionModel,

		chatURL:    params.ChatURL,
		dimensions: dim,
		timeout:    timeout,

		reqLock: semaphore.NewWeighted(parallel),

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newOpenaiClient(baseURL string, apiKey string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

var _ ai.GraphAIClient = (*GraphOpenAIClient)(nil)
var _ ai.BatchEmbedder = (*GraphOpenAIClient)(nil)
