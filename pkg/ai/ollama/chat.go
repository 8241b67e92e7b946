package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

const (
	baseContext     = 4096
	responseReserve = 1024
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// numCtx estimates the context window a prompt needs. Ollama silently
// truncates prompts longer than num_ctx, so long grounding contexts must
// raise it. Returns 0 when the default window is large enough.
func numCtx(prompt string) (int, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("o200k_base")
	})
	if encErr != nil {
		return 0, encErr
	}
	needed := len(enc.Encode(prompt, nil, nil)) + responseReserve
	if needed <= baseContext {
		return 0, nil
	}
	return needed, nil
}

func (c *GraphOllamaClient) chat(ctx context.Context, options ai.GenerateOptions, prompt string, format json.RawMessage) (string, error) {
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Format:   format,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}

	n, err := numCtx(prompt)
	if err != nil {
		return "", err
	}
	if n > 0 {
		req.Options["num_ctx"] = n
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", err
	}

	c.Record(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	if final.Message.Content == "" {
		return "", errors.New("empty response from model")
	}
	return final.Message.Content, nil
}

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *GraphOllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.NewGenerateOptions(ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.3,
	}, opts...)
	return c.chat(ctx, options, prompt, nil)
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (c *GraphOllamaClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	rv := reflect.ValueOf(out)
	if out == nil || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	format, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return err
	}

	options := ai.NewGenerateOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.1,
	}, opts...)

	content, err := c.chat(ctx, options, prompt, format)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(content, out)
}

// LoadModel preloads a model so the first query does not pay the load time.
func (c *GraphOllamaClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error {
	options := ai.NewGenerateOptions(ai.GenerateOptions{Model: c.chatModel}, opts...)
	req := &api.ChatRequest{Model: options.Model}
	return c.Client.Chat(ctx, req, func(api.ChatResponse) error { return nil })
}
