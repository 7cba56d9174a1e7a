package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"finlit-rag/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

type fakeRetriever struct {
	docs   []schema.Document
	err    error
	calls  int
	query  string
	k      int
	lambda float64
}

func (f *fakeRetriever) MaxMarginalRelevanceSearch(_ context.Context, query string, k, _ int, lambda float64) ([]schema.Document, error) {
	f.calls++
	f.lambda = lambda
	f.query = query
	f.k = k
	return f.docs, f.err
}

func doc(text, source string) schema.Document {
	return schema.Document{PageContent: text, Metadata: map[string]any{"source": source}}
}

func testRAGConfig(maxChars, minTruncate int) config.RAGConfig {
	return config.RAGConfig{K: 2, FetchK: 5, LambdaMult: lambdaOf(0.5), MaxChars: maxChars, MinTruncate: minTruncate}
}

func TestAssemble_FitsWholeChunks(t *testing.T) {
	r := &fakeRetriever{docs: []schema.Document{doc("first", "a.jsonl"), doc("second", "b.jsonl")}}
	got := NewAssembler(r, testRAGConfig(1500, 200)).Assemble(context.Background(), "q")

	assert.Equal(t, "first\n\nsecond", got.Text)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, "a.jsonl", got.Sources[0].Meta("source"))
	assert.Equal(t, 2, r.k)
}

func TestAssemble_TruncatesLastChunk(t *testing.T) {
	first := strings.Repeat("a", 1000)
	second := strings.Repeat("b", 800)
	third := strings.Repeat("c", 100)
	r := &fakeRetriever{docs: []schema.Document{doc(first, "a"), doc(second, "b"), doc(third, "c")}}

	got := NewAssembler(r, testRAGConfig(1500, 200)).Assemble(context.Background(), "q")

	assert.Len(t, []rune(got.Text), 1500)
	assert.True(t, strings.HasPrefix(got.Text, first+"\n\nbbb"))
	assert.NotContains(t, got.Text, "c")
	require.Len(t, got.Sources, 2)
	assert.Equal(t, second, got.Sources[1].Text, "truncated chunk keeps its full text")
}

func TestAssemble_StopsBelowTruncateThreshold(t *testing.T) {
	r := &fakeRetriever{docs: []schema.Document{doc(strings.Repeat("a", 1400), "a"), doc(strings.Repeat("b", 500), "b")}}

	got := NewAssembler(r, testRAGConfig(1500, 200)).Assemble(context.Background(), "q")

	assert.Equal(t, strings.Repeat("a", 1400), got.Text)
	assert.Len(t, got.Sources, 1)
}

func TestAssemble_NeverExceedsBudget(t *testing.T) {
	sizes := [][]int{
		{1500}, {1501}, {1499, 1}, {700, 700, 700}, {10, 10, 10, 10}, {1300, 198}, {1200, 5000}, {3000},
	}
	for _, maxChars := range []int{300, 1000, 1500} {
		for _, set := range sizes {
			var docs []schema.Document
			for _, n := range set {
				docs = append(docs, doc(strings.Repeat("é", n), "x"))
			}
			got := NewAssembler(&fakeRetriever{docs: docs}, testRAGConfig(maxChars, 200)).Assemble(context.Background(), "q")
			assert.LessOrEqual(t, len([]rune(got.Text)), maxChars, "sizes %v max %d", set, maxChars)
		}
	}
}

func TestAssemble_SkipsEmptyDocuments(t *testing.T) {
	r := &fakeRetriever{docs: []schema.Document{
		{PageContent: "   "},
		{Metadata: map[string]any{"content": "from metadata"}},
	}}

	got := NewAssembler(r, testRAGConfig(1500, 200)).Assemble(context.Background(), "q")

	assert.Equal(t, "from metadata", got.Text)
	assert.Len(t, got.Sources, 1)
}

func TestAssemble_RetrieverFailureIsEmptyContext(t *testing.T) {
	r := &fakeRetriever{err: errors.New("collection missing")}
	got := NewAssembler(r, testRAGConfig(1500, 200)).Assemble(context.Background(), "q")

	assert.True(t, got.Empty())
	assert.Empty(t, got.Sources)

	got = NewAssembler(nil, testRAGConfig(1500, 200)).Assemble(context.Background(), "q")
	assert.True(t, got.Empty())
}

func TestNewAssembler_Defaults(t *testing.T) {
	a := NewAssembler(nil, config.RAGConfig{})
	assert.Equal(t, config.DefaultMaxChars, a.MaxChars())
	assert.Equal(t, config.DefaultK, a.k)
	assert.Equal(t, config.DefaultFetchK, a.fetchK)
}

func TestChunkFromMap(t *testing.T) {
	c := ChunkFromMap(map[string]any{
		"page_content": "",
		"text":         "body",
		"metadata":     map[string]any{"title": "T"},
	})
	assert.Equal(t, "body", c.Text)
	assert.Equal(t, "T", c.Meta("title"))

	assert.True(t, ChunkFromMap(map[string]any{}).IsEmpty())
}

func lambdaOf(v float64) *float64 { return &v }

func TestAssemble_LambdaMult(t *testing.T) {
	tests := []struct {
		name   string
		lambda *float64
		want   float64
	}{
		{"unset uses default", nil, config.DefaultLambdaMult},
		{"zero is pure diversity", lambdaOf(0), 0},
		{"one is pure relevance", lambdaOf(1), 1},
		{"above one is clamped", lambdaOf(1.5), 1},
		{"negative is clamped", lambdaOf(-0.2), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRetriever{docs: []schema.Document{doc("first", "a.jsonl")}}
			cfg := testRAGConfig(1500, 200)
			cfg.LambdaMult = tt.lambda
			NewAssembler(r, cfg).Assemble(context.Background(), "q")
			assert.Equal(t, tt.want, r.lambda)
		})
	}
}
