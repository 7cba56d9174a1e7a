package rag

import (
	"context"
	"errors"
	"iter"
	"testing"

	"finlit-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

type fakeGenerator struct {
	fragments []string
	err       error
	prompts   []string
	produced  int
}

func (g *fakeGenerator) Stream(_ context.Context, prompt string) iter.Seq2[string, error] {
	g.prompts = append(g.prompts, prompt)
	return func(yield func(string, error) bool) {
		for _, f := range g.fragments {
			g.produced++
			if !yield(f, nil) {
				return
			}
		}
		if g.err != nil {
			yield("", g.err)
		}
	}
}

func newTestChain(r Retriever, g Generator) *Chain {
	return NewChain(NewAssembler(r, testRAGConfig(1500, 200)), g)
}

func TestChainAsk_Strict(t *testing.T) {
	r := &fakeRetriever{docs: []schema.Document{doc("Save 20% of income.", "budgeting_rule.jsonl")}}
	g := &fakeGenerator{fragments: []string{"Hello", " world"}}

	ans, err := newTestChain(r, g).Ask(context.Background(), "How can I save 3 tips?", Strict)
	require.NoError(t, err)

	assert.Equal(t, "How can I save 3 tips? saving tips emergency fund money management", r.query)
	assert.Equal(t, 3, ans.Intent.Count)
	assert.Len(t, ans.Sources, 1)
	assert.Contains(t, ans.Prompt, "Save 20% of income.")
	assert.Empty(t, g.prompts, "generation starts only when the stream is consumed")

	text, err := ans.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, []string{ans.Prompt}, g.prompts)
}

func TestChainAsk_ModelOnlySkipsRetrieval(t *testing.T) {
	r := &fakeRetriever{docs: []schema.Document{doc("context", "a")}}
	g := &fakeGenerator{fragments: []string{"free form"}}

	ans, err := newTestChain(r, g).Ask(context.Background(), "What is compound interest?", ModelOnly)
	require.NoError(t, err)

	assert.Zero(t, r.calls)
	assert.Empty(t, ans.Sources)
	assert.NotContains(t, ans.Prompt, "Context:")
}

func TestChainAsk_Greeting(t *testing.T) {
	r := &fakeRetriever{}
	g := &fakeGenerator{}

	ans, err := newTestChain(r, g).Ask(context.Background(), "Hello!", Hybrid)
	require.NoError(t, err)
	text, err := ans.Collect()
	require.NoError(t, err)

	assert.True(t, ans.Greeting)
	assert.Equal(t, models.GreetingReply, text)
	assert.Zero(t, r.calls)
	assert.Empty(t, g.prompts)
}

func TestChainAsk_EmptyQuery(t *testing.T) {
	_, err := newTestChain(nil, &fakeGenerator{}).Ask(context.Background(), "   ", Strict)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestChainAsk_GenerationErrorSurfacesInStream(t *testing.T) {
	g := &fakeGenerator{fragments: []string{"partial"}, err: errors.New("model not found")}

	ans, err := newTestChain(&fakeRetriever{}, g).Ask(context.Background(), "What is EPF?", Strict)
	require.NoError(t, err)

	text, err := ans.Collect()
	assert.EqualError(t, err, "model not found")
	assert.Equal(t, "partial", text)
}

func TestChainAsk_EarlyStop(t *testing.T) {
	g := &fakeGenerator{fragments: []string{"a", "b", "c", "d"}}
	ans, err := newTestChain(&fakeRetriever{}, g).Ask(context.Background(), "Tell me about KWSP", Hybrid)
	require.NoError(t, err)

	for frag := range ans.Stream {
		if frag == "b" {
			break
		}
	}
	assert.Equal(t, 2, g.produced)
}

func TestIsGreeting(t *testing.T) {
	yes := []string{"hi", "Hello", "hey there", "good morning", "Good evening!", "yo", "hiya"}
	no := []string{"", "hiring tips", "hi, how do I start saving for retirement", "what is a budget", "yoga budget"}
	for _, s := range yes {
		assert.True(t, IsGreeting(s), s)
	}
	for _, s := range no {
		assert.False(t, IsGreeting(s), s)
	}
}

func TestChainAsk_StreamIsSinglePass(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"generated", "What is EPF?"},
		{"greeting", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGenerator{fragments: []string{"one", "two"}}
			ans, err := newTestChain(&fakeRetriever{}, g).Ask(context.Background(), tt.query, Hybrid)
			require.NoError(t, err)

			first, err := ans.Collect()
			require.NoError(t, err)
			assert.NotEmpty(t, first)

			second, err := ans.Collect()
			assert.ErrorIs(t, err, ErrStreamConsumed)
			assert.Empty(t, second)
			assert.LessOrEqual(t, len(g.prompts), 1)
		})
	}
}
