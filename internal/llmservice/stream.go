package llmservice

import (
	"context"
	"fmt"
	"iter"

	"finlit-rag/internal/config"

	"github.com/tmc/langchaingo/llms"
)

// Options are passed through to the model untouched.
type Options struct {
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	MaxTokens     int
}

func OptionsFromConfig(cfg *config.LLMConfig) Options {
	return Options{
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		TopK:          cfg.TopK,
		RepeatPenalty: cfg.RepeatPenalty,
		MaxTokens:     cfg.MaxTokens,
	}
}

func (o Options) CallOptions() []llms.CallOption {
	var out []llms.CallOption
	if o.Temperature > 0 {
		out = append(out, llms.WithTemperature(o.Temperature))
	}
	if o.TopP > 0 {
		out = append(out, llms.WithTopP(o.TopP))
	}
	if o.TopK > 0 {
		out = append(out, llms.WithTopK(o.TopK))
	}
	if o.RepeatPenalty > 0 {
		out = append(out, llms.WithRepetitionPenalty(o.RepeatPenalty))
	}
	if o.MaxTokens > 0 {
		out = append(out, llms.WithMaxTokens(o.MaxTokens))
	}
	return out
}

func (c *Client) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return Stream(ctx, c.model, prompt, c.opts)
}

type generation struct {
	resp *llms.ContentResponse
	err  error
}

// Stream yields text fragments as the model produces them. Generation starts
// on the first pull; breaking out of the loop cancels it.
func Stream(ctx context.Context, model llms.Model, prompt string, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		fragments := make(chan string)
		done := make(chan generation, 1)
		streamed := false

		callOpts := append(opts.CallOptions(), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			select {
			case fragments <- string(chunk):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))

		go func() {
			msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
			resp, err := model.GenerateContent(ctx, msgs, callOpts...)
			done <- generation{resp: resp, err: err}
		}()

		for {
			select {
			case frag := <-fragments:
				streamed = true
				if !yield(frag, nil) {
					return
				}
			case g := <-done:
				switch {
				case g.err != nil:
					yield("", fmt.Errorf("generate: %w", g.err))
				case !streamed && g.resp != nil && len(g.resp.Choices) > 0 && g.resp.Choices[0].Content != "":
					// the model ignored the streaming callback
					yield(g.resp.Choices[0].Content, nil)
				}
				return
			}
		}
	}
}
