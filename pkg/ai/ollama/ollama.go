package ollama

import (
	"net/http"
	"net/url"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

const (
	defaultDimensions = 768
	defaultTimeout    = 5 * time.Minute
)

// GraphOllamaClient implements ai.GraphAIClient against a local or hosted
// Ollama server.
type GraphOllamaClient struct {
	ai.MetricsCounter

	embeddingModel  string
	chatModel       string
	extractionModel string

	dimensions int
	timeout    time.Duration

	reqLock *semaphore.Weighted

	Client *api.Client
}

type NewGraphOllamaClientParams struct {
	EmbeddingModel  string
	ChatModel       string
	ExtractionModel string

	BaseURL string
	ApiKey  string

	Dimensions            int
	MaxConcurrentRequests int64
	Timeout               time.Duration
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewGraphOllamaClient connects to BaseURL, or to the Ollama default when
// BaseURL is empty.
func NewGraphOllamaClient(params NewGraphOllamaClientParams) (*GraphOllamaClient, error) {
	u, err := url.Parse("http://localhost:11434")
	if err != nil {
		return nil, err
	}
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	headers := map[string]string{}
	if params.ApiKey != "" {
		headers["Authorization"] = "Bearer " + params.ApiKey
	}
	httpClient := &http.Client{
		Transport: &headerTransport{headers: headers, rt: http.DefaultTransport},
	}

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
		parallel = 2
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &GraphOllamaClient{
		embeddingModel:  params.EmbeddingModel,
		chatModel:       params.ChatModel,
		extractionModel: extractionModel,

		dimensions: dim,
		timeout:    timeout,

		reqLock: semaphore.NewWeighted(parallel),

		Client: api.NewClient(u, httpClient),
	}, nil
}

var _ ai.GraphAIClient = (*GraphOllamaClient)(nil)
var _ ai.BatchEmbedder = (*GraphOllamaClient)(nil)
