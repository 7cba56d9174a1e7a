package rag

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"finlit-rag/internal/models"

	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyQuery     = errors.New("query is empty")
	ErrStreamConsumed = errors.New("answer stream already consumed")
)

// Generator turns a prompt into a lazily produced sequence of text fragments.
type Generator interface {
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// Answer is returned before generation starts; ranging over Stream drives
// the model. Stream is single pass: a second range yields ErrStreamConsumed.
// Stopping early cancels generation.
type Answer struct {
	Query         string
	ExpandedQuery string
	Mode          ResponseMode
	Intent        QueryIntent
	Prompt        string
	Sources       []models.Chunk
	Greeting      bool
	Stream        iter.Seq2[string, error]
}

// Collect drains Stream into one string.
func (a *Answer) Collect() (string, error) {
	var sb strings.Builder
	for frag, err := range a.Stream {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(frag)
	}
	return sb.String(), nil
}

type Chain struct {
	assembler *Assembler
	generator Generator
}

func NewChain(assembler *Assembler, generator Generator) *Chain {
	return &Chain{assembler: assembler, generator: generator}
}

// Ask runs expansion, intent detection, retrieval and prompt rendering.
// Greetings are answered directly without touching the model.
func (c *Chain) Ask(ctx context.Context, query string, mode ResponseMode) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	ans := &Answer{Query: query, Mode: mode}
	if IsGreeting(query) {
		ans.Greeting = true
		ans.Stream = singlePass(staticStream(models.GreetingReply))
		return ans, nil
	}

	ans.ExpandedQuery = Expand(query)
	ans.Intent = DetectIntent(query)

	var assembled Context
	if mode.UsesContext() && c.assembler != nil {
		assembled = c.assembler.Assemble(ctx, ans.ExpandedQuery)
		ans.Sources = assembled.Sources
	}
	ans.Prompt = BuildPrompt(mode, assembled.Text, query, ans.Intent)

	log.Debug().
		Str("mode", mode.String()).
		Str("list_type", string(ans.Intent.ListType)).
		Int("count", ans.Intent.Count).
		Int("sources", len(ans.Sources)).
		Int("context_chars", len([]rune(assembled.Text))).
		Msg("Prompt built")

	prompt := ans.Prompt
	ans.Stream = singlePass(func(yield func(string, error) bool) {
		for frag, err := range c.generator.Stream(ctx, prompt) {
			if !yield(frag, err) || err != nil {
				return
			}
		}
	})
	return ans, nil
}

func singlePass(seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrStreamConsumed)
			return
		}
		seq(yield)
	}
}

func staticStream(text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield(text, nil)
	}
}

var greetings = []string{"hi", "hello", "hey", "hiya", "good morning", "good afternoon", "good evening", "yo"}

// IsGreeting matches bare salutations and two-word openers like "hi there".
func IsGreeting(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	for _, g := range greetings {
		if t == g {
			return true
		}
	}
	if len(strings.Fields(t)) > 2 {
		return false
	}
	for _, g := range greetings {
		rest, ok := strings.CutPrefix(t, g)
		if !ok {
			continue
		}
		// "hiring" is not "hi"
		if r, _ := utf8.DecodeRuneInString(rest); !unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
