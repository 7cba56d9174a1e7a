package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finlit-rag/internal/chromemdb"
	"finlit-rag/internal/config"
	"finlit-rag/internal/db"
	"finlit-rag/internal/embedding"
	"finlit-rag/internal/store"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"
)

const defaultConfigPath = "./configs/config.yaml"

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "finlit",
	Short: "Financial literacy assistant for Malaysian youth",
	Long: `finlit answers personal finance questions from a curated knowledge base of
KWSP, AKPK and blog articles, and runs the pre/post literacy study around it.

The data commands build that knowledge base: scrape articles to PDF, parse
and clean them into JSONL chunks, repair their metadata and load them into
the vector store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded
		setupLogger(cfg.LogLevel)
		return nil
	},
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(rerunCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(cleanRedundancyCmd)
	rootCmd.AddCommand(fixMetadataCmd)
	rootCmd.AddCommand(trainingCmd)
	rootCmd.AddCommand(scrapeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// openVectorDB opens the knowledge collection with the configured embedder.
// An in-memory store is filled from its exported file when one exists.
func openVectorDB(ctx context.Context) (*chromemdb.VectorDBManager, embeddings.Embedder, error) {
	embedder, err := embedding.NewFromConfig(&cfg.EmbedLLM)
	if err != nil {
		return nil, nil, fmt.Errorf("init embedder: %w", err)
	}
	vdb, err := chromemdb.NewVectorDBManager(cfg.VectorDB, cfg.RAG.EncryptionKey)
	if err != nil {
		return nil, nil, err
	}
	if _, err := vdb.GetOrCreateCollection(cfg.VectorDB.Collection, embedding.EmbedFunc(embedder)); err != nil {
		return nil, nil, err
	}

	if cfg.VectorDB.InMemory {
		if _, statErr := os.Stat(vdb.FilePath()); statErr == nil {
			if err := vdb.Import(ctx); err != nil {
				return nil, nil, err
			}
		}
	}
	log.Info().
		Str("collection", cfg.VectorDB.Collection).
		Int("documents", vdb.Count()).
		Msg("Vector store ready")
	return vdb, embedder, nil
}

// openStore returns the results and feedback store for the configured
// driver and a function releasing it.
func openStore(ctx context.Context) (store.Store, func() error, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		bunDB := db.NewDB(sqldb, cfg.Database.Debug)
		if err := db.InitDB(ctx, bunDB); err != nil {
			bunDB.Close()
			return nil, nil, err
		}
		s := db.NewBunStore(bunDB)
		return s, s.Close, nil
	default:
		return store.NewFileStore(cfg.Storage.ResultsFile, cfg.Storage.FeedbackFile), func() error { return nil }, nil
	}
}
