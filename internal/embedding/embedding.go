package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"finlit-rag/internal/config"
	"finlit-rag/internal/models"
)

// NewEmbedder creates an embedder against an OpenAI-compatible endpoint.
func NewEmbedder(key, baseURL, embeddingModel string) (*embeddings.EmbedderImpl, error) {
	log.Debug().
		Str("base_url", baseURL).
		Str("embedding_model", embeddingModel).
		Msg("Creating openai embedder")

	llm, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(strings.TrimPrefix(key, "Bearer ")),
		openai.WithEmbeddingModel(embeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// new ollama embedder
func NewOllamaEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().
		Str("base_url", llmConfig.BaseURL).
		Str("embedding_model", llmConfig.Model).
		Msg("Creating ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(llmConfig.BaseURL),
		ollama.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// NewFromConfig picks the embedder by provider.
func NewFromConfig(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	switch llmConfig.Provider {
	case "", "ollama":
		return NewOllamaEmbedder(llmConfig)
	case "openai":
		return NewEmbedder(llmConfig.Key, llmConfig.BaseURL, llmConfig.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", llmConfig.Provider)
	}
}

// EmbedFunc adapts an embedder to the vector store's embedding callback.
func EmbedFunc(embedder embeddings.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
}

// EmbedChunks embeds chunk texts in one batch and returns store documents.
// IDs are derived from source and text so re-ingesting a file overwrites
// rather than duplicates.
func EmbedChunks(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) ([]chromem.Document, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        ChunkID(c),
			Content:   c.Text,
			Metadata:  models.StringMetadata(c.Metadata),
			Embedding: vectors[i],
		}
	}
	return docs, nil
}

// ChunkID is a name-based UUID over source, chunk_id and text.
func ChunkID(c models.Chunk) string {
	name := c.Meta("source") + "\x00" + c.Meta("chunk_id") + "\x00" + c.Text
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("finlit-rag/chunk"))
