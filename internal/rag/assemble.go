package rag

import (
	"context"
	"strings"

	"finlit-rag/internal/config"
	"finlit-rag/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"
)

const contextSeparator = "\n\n"

// Retriever is the vector search collaborator.
type Retriever interface {
	MaxMarginalRelevanceSearch(ctx context.Context, query string, k, fetchK int, lambdaMult float64) ([]schema.Document, error)
}

// Context is the text handed to the prompt plus the chunks it came from.
type Context struct {
	Text    string
	Sources []models.Chunk
}

func (c Context) Empty() bool {
	return c.Text == ""
}

type Assembler struct {
	retriever   Retriever
	k           int
	fetchK      int
	lambdaMult  float64
	maxChars    int
	minTruncate int
}

func NewAssembler(retriever Retriever, cfg config.RAGConfig) *Assembler {
	a := &Assembler{
		retriever:   retriever,
		k:           cfg.K,
		fetchK:      cfg.FetchK,
		lambdaMult:  cfg.Lambda(),
		maxChars:    cfg.MaxChars,
		minTruncate: cfg.MinTruncate,
	}
	if a.k <= 0 {
		a.k = config.DefaultK
	}
	if a.fetchK < a.k {
		a.fetchK = max(config.DefaultFetchK, a.k)
	}
	if a.maxChars <= 0 {
		a.maxChars = config.DefaultMaxChars
	}
	if a.minTruncate <= 0 {
		a.minTruncate = config.DefaultMinTruncate
	}
	return a
}

func (a *Assembler) MaxChars() int { return a.maxChars }

// Assemble fetches documents for query and packs them, in rank order, into a
// context of at most maxChars runes. Retrieval failures yield an empty context.
func (a *Assembler) Assemble(ctx context.Context, query string) Context {
	if a.retriever == nil {
		log.Warn().Msg("No retriever configured, answering without context")
		return Context{}
	}
	docs, err := a.retriever.MaxMarginalRelevanceSearch(ctx, query, a.k, a.fetchK, a.lambdaMult)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("Retrieval failed, answering without context")
		return Context{}
	}

	chunks := make([]models.Chunk, 0, len(docs))
	for _, d := range docs {
		chunks = append(chunks, ChunkFromDocument(d))
	}
	return a.pack(chunks)
}

func (a *Assembler) pack(chunks []models.Chunk) Context {
	var (
		parts   []string
		sources []models.Chunk
		total   int
	)
	sepLen := len([]rune(contextSeparator))
	for _, c := range chunks {
		if c.IsEmpty() {
			continue
		}
		text := []rune(c.Text)
		sep := 0
		if len(parts) > 0 {
			sep = sepLen
		}
		if total+sep+len(text) <= a.maxChars {
			parts = append(parts, c.Text)
			sources = append(sources, c)
			total += sep + len(text)
			continue
		}
		remaining := a.maxChars - total - sep
		if remaining > a.minTruncate {
			parts = append(parts, string(text[:remaining]))
			sources = append(sources, c)
		}
		break
	}
	return Context{Text: strings.Join(parts, contextSeparator), Sources: sources}
}

var contentKeys = []string{"page_content", "content", "text"}

// ChunkFromDocument reads text from PageContent, falling back to content-like
// metadata keys, and keeps the remaining metadata.
func ChunkFromDocument(doc schema.Document) models.Chunk {
	md := make(map[string]any, len(doc.Metadata))
	for k, v := range doc.Metadata {
		md[k] = v
	}
	text := doc.PageContent
	if strings.TrimSpace(text) == "" {
		text = firstString(md, contentKeys)
	}
	return models.Chunk{Text: text, Metadata: md}
}

// ChunkFromMap applies the same fallback chain to an untyped record such as
// a decoded JSON object. Metadata is read from a nested "metadata" object.
func ChunkFromMap(m map[string]any) models.Chunk {
	md := map[string]any{}
	if nested, ok := m["metadata"].(map[string]any); ok {
		for k, v := range nested {
			md[k] = v
		}
	}
	return models.Chunk{Text: firstString(m, contentKeys), Metadata: md}
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
