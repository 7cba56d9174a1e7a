package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"finlit-rag/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var ErrModelNotAllowed = errors.New("model not allowed")

// NewModel builds a generation model named name using the provider settings
// of llmConfig.
func NewModel(llmConfig *config.LLMConfig, name string) (llms.Model, error) {
	if name == "" {
		name = llmConfig.Model
	}
	log.Debug().
		Str("provider", llmConfig.Provider).
		Str("base_url", llmConfig.BaseURL).
		Str("model", name).
		Msg("Creating generation model")

	switch llmConfig.Provider {
	case "", "ollama":
		return ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(name),
		)
	case "openai":
		return openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(name),
		)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", llmConfig.Provider)
	}
}

// ModelCache creates each allowed model once and reuses it for the process.
type ModelCache struct {
	cfg     *config.LLMConfig
	factory func(cfg *config.LLMConfig, name string) (llms.Model, error)

	mu     sync.Mutex
	models map[string]llms.Model
}

func NewModelCache(cfg *config.LLMConfig) *ModelCache {
	return &ModelCache{cfg: cfg, factory: NewModel, models: make(map[string]llms.Model)}
}

func (c *ModelCache) Get(name string) (llms.Model, error) {
	if name == "" {
		name = c.cfg.Model
	}
	if !c.cfg.ModelAllowed(name) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotAllowed, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.models[name]; ok {
		return m, nil
	}
	m, err := c.factory(c.cfg, name)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", name, err)
	}
	c.models[name] = m
	return m, nil
}

// Client streams completions from one model with fixed sampling options.
type Client struct {
	model llms.Model
	opts  Options
}

func NewClient(model llms.Model, opts Options) *Client {
	return &Client{model: model, opts: opts}
}

// GenerateContent is a single non-streaming call, optionally offering tools.
func GenerateContent(ctx context.Context, llm llms.Model, tools []llms.Tool, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(tools) > 0 {
		options = append(options, llms.WithTools(tools))
	}
	resp, err := llm.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("generate content: empty response")
	}
	return resp, nil
}
