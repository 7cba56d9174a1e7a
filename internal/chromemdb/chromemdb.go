package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"runtime"

	"finlit-rag/internal/config"
	"finlit-rag/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"
)

var ErrNoCollection = errors.New("collection not opened")

// VectorDBManager wraps a chromem-go database holding one active collection.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	embed         chromem.EmbeddingFunc
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string
}

// NewVectorDBManager opens a persistent database at cfg.Path, or an
// in-memory one when cfg.InMemory is set.
func NewVectorDBManager(cfg config.VectorDBConfig, encryptionKey string) (*VectorDBManager, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &VectorDBManager{
		db:            db,
		dbPath:        cfg.Path,
		compress:      cfg.Compress,
		encryptionKey: encryptionKey,
		filePath:      filepath.Join(cfg.Path, cfg.Collection+".chromem"),
	}, nil
}

// GetOrCreateCollection opens name and makes it the active collection.
func (m *VectorDBManager) GetOrCreateCollection(name string, embed chromem.EmbeddingFunc) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	m.embed = embed
	return c, nil
}

func (m *VectorDBManager) Count() int {
	if m.collection == nil {
		return 0
	}
	return m.collection.Count()
}

// CreateDocs adds documents; missing embeddings are computed by the
// collection's embedding func.
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	if m.collection == nil {
		return ErrNoCollection
	}
	if err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (m *VectorDBManager) SearchWithQueryOptions(ctx context.Context, opts chromem.QueryOptions) ([]chromem.Result, error) {
	if m.collection == nil {
		return nil, ErrNoCollection
	}
	if opts.QueryText == "" && opts.QueryEmbedding == nil {
		return nil, fmt.Errorf("either query or embedding must be provided")
	}
	// chromem rejects nResults above the document count
	opts.NResults = min(opts.NResults, m.collection.Count())
	if opts.NResults <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

// SimilaritySearch returns the k nearest documents, most similar first.
func (m *VectorDBManager) SimilaritySearch(ctx context.Context, query string, k int) ([]schema.Document, error) {
	results, err := m.SearchWithQueryOptions(ctx, chromem.QueryOptions{QueryText: query, NResults: k})
	if err != nil {
		return nil, err
	}
	return toDocuments(results), nil
}

// MaxMarginalRelevanceSearch fetches fetchK candidates and greedily picks k
// of them, scoring each by lambdaMult*relevance minus
// (1-lambdaMult)*max similarity to the documents already picked.
func (m *VectorDBManager) MaxMarginalRelevanceSearch(ctx context.Context, query string, k, fetchK int, lambdaMult float64) ([]schema.Document, error) {
	if fetchK < k {
		fetchK = k
	}
	candidates, err := m.SearchWithQueryOptions(ctx, chromem.QueryOptions{QueryText: query, NResults: fetchK})
	if err != nil {
		return nil, err
	}
	selected := selectMMR(candidates, k, lambdaMult)
	log.Debug().
		Str("query", query).
		Int("candidates", len(candidates)).
		Int("selected", len(selected)).
		Msg("MMR search")
	return toDocuments(selected), nil
}

func selectMMR(candidates []chromem.Result, k int, lambdaMult float64) []chromem.Result {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))
	picked := make([]chromem.Result, 0, k)
	used := make([]bool, len(candidates))

	for len(picked) < k {
		best, bestScore := -1, math.Inf(-1)
		for i, c := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			for _, p := range picked {
				redundancy = math.Max(redundancy, cosine(c.Embedding, p.Embedding))
			}
			score := lambdaMult*float64(c.Similarity) - (1-lambdaMult)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		picked = append(picked, candidates[best])
	}
	return picked
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func toDocuments(results []chromem.Result) []schema.Document {
	docs := make([]schema.Document, 0, len(results))
	for _, r := range results {
		md := models.AnyMetadata(r.Metadata)
		md["id"] = r.ID
		docs = append(docs, schema.Document{
			PageContent: r.Content,
			Metadata:    md,
			Score:       r.Similarity,
		})
	}
	return docs
}

func (m *VectorDBManager) DeleteCollection() error {
	if m.collection == nil {
		return ErrNoCollection
	}
	if err := m.db.DeleteCollection(m.collection.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	m.collection = nil
	return nil
}

// Export writes the active collection to an encrypted file next to the DB.
func (m *VectorDBManager) Export(ctx context.Context) error {
	if err := m.checkPortable(); err != nil {
		return err
	}
	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", m.filePath).
		Bool("compress", m.compress).
		Msg("Exporting collection")

	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import restores the active collection from the file written by Export.
func (m *VectorDBManager) Import(ctx context.Context) error {
	if err := m.checkPortable(); err != nil {
		return err
	}
	name := m.collection.Name
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	c := m.db.GetCollection(name, m.embed)
	if c == nil {
		return fmt.Errorf("collection %q missing after import", name)
	}
	m.collection = c
	return nil
}

func (m *VectorDBManager) FilePath() string { return m.filePath }

func (m *VectorDBManager) checkPortable() error {
	switch {
	case m.encryptionKey == "":
		return fmt.Errorf("encryption key is required")
	case len(m.encryptionKey) != 32:
		return fmt.Errorf("encryption key must be 32 bytes, got %d", len(m.encryptionKey))
	case m.collection == nil:
		return ErrNoCollection
	case m.dbPath == "":
		return fmt.Errorf("db path is required")
	}
	return nil
}
