package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"finlit-rag/internal/embedding"
	"finlit-rag/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

const defaultBatchSize = 64

// DocumentStore is the part of the vector store ingestion writes to.
type DocumentStore interface {
	CreateDocs(ctx context.Context, docs []chromem.Document) error
}

type IngestStats struct {
	Files   int `json:"files"`
	Chunks  int `json:"chunks"`
	Skipped int `json:"skipped"`
}

// Ingest embeds the chunks of every JSONL file in dir and adds them to the
// store in batches. Chunks without a source get the file name.
func Ingest(ctx context.Context, dir string, store DocumentStore, embedder embeddings.Embedder, batchSize int) (IngestStats, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	files, err := jsonlFiles(dir)
	if err != nil {
		return IngestStats{}, err
	}

	var stats IngestStats
	for _, path := range files {
		chunks, skipped, err := ReadJSONL(path)
		if err != nil {
			return stats, err
		}
		stats.Files++
		stats.Skipped += skipped

		name := filepath.Base(path)
		var batch []models.Chunk
		for _, c := range chunks {
			if c.IsEmpty() {
				stats.Skipped++
				continue
			}
			if c.Meta("source") == "" {
				c = c.Clone()
				c.Metadata["source"] = name
			}
			batch = append(batch, c)
		}

		for start := 0; start < len(batch); start += batchSize {
			part := batch[start:min(start+batchSize, len(batch))]
			docs, err := embedding.EmbedChunks(ctx, embedder, part)
			if err != nil {
				return stats, fmt.Errorf("%s: %w", name, err)
			}
			if err := store.CreateDocs(ctx, docs); err != nil {
				return stats, fmt.Errorf("%s: %w", name, err)
			}
			stats.Chunks += len(docs)
		}
		log.Info().Str("file", name).Int("chunks", len(batch)).Msg("Ingested")
	}
	return stats, nil
}
