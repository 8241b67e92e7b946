package query

import (
	"time"
)

const (
	DefaultEmbedTimeout      = 5 * time.Second
	DefaultLLMTimeout        = 30 * time.Second
	DefaultMaxVisited        = 200
	DefaultMaxSeeds          = 10
	DefaultEvidenceTextLimit = 500
	DefaultMaxGraphEvidence  = 50
	DefaultMaxChains         = 5
)

type options struct {
	EmbedTimeout      time.Duration
	LLMTimeout        time.Duration
	MaxVisited        int
	MaxSeeds          int
	EvidenceTextLimit int
	MaxGraphEvidence  int
	MaxChains         int

	SystemPrompts []string
	Model         string
	Thinking      string
	Provider      string

	Tracer Tracer
	Files  FileIndex
}

func defaultOptions() options {
	return options{
		EmbedTimeout:      DefaultEmbedTimeout,
		LLMTimeout:        DefaultLLMTimeout,
		MaxVisited:        DefaultMaxVisited,
		MaxSeeds:          DefaultMaxSeeds,
		EvidenceTextLimit: DefaultEvidenceTextLimit,
		MaxGraphEvidence:  DefaultMaxGraphEvidence,
		MaxChains:         DefaultMaxChains,
	}
}

// Option is a functional option for configuring an Engine.
type Option func(*options)

// WithEmbedTimeout bounds the question embedding call. Non-positive values
// keep the default.
func WithEmbedTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.EmbedTimeout = d
		}
	}
}

// WithLLMTimeout bounds answer synthesis. Non-positive values keep the
// default.
func WithLLMTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.LLMTimeout = d
		}
	}
}

// WithMaxVisited caps how many entities one traversal may collect.
func WithMaxVisited(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.MaxVisited = n
		}
	}
}

func WithMaxSeeds(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.MaxSeeds = n
		}
	}
}

// WithSystemPrompts appends system prompts to the answer synthesis call.
func WithSystemPrompts(prompts ...string) Option {
	return func(o *options) {
		o.SystemPrompts = append(o.SystemPrompts, prompts...)
	}
}

// WithModel overrides the chat model used for answers.
func WithModel(model string) Option {
	return func(o *options) {
		o.Model = model
	}
}

func WithThinking(thinking string) Option {
	return func(o *options) {
		o.Thinking = thinking
	}
}

// WithProvider names the model provider in errors.
func WithProvider(name string) Option {
	return func(o *options) {
		o.Provider = name
	}
}

// WithTracer receives an event for every store lookup a query makes.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		o.Tracer = t
	}
}

// WithFileIndex enables SearchFiles and document lists in EntityDetails.
func WithFileIndex(f FileIndex) Option {
	return func(o *options) {
		o.Files = f
	}
}
