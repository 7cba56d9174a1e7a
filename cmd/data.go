package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"finlit-rag/internal/articles"
	"finlit-rag/internal/helper"
	"finlit-rag/internal/parser"
	"finlit-rag/internal/pipeline"
	"finlit-rag/internal/scraper"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	ingestDir   string
	ingestBatch int
	ingestReset bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed JSONL chunks into the vector store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		vdb, embedder, err := openVectorDB(ctx)
		if err != nil {
			return err
		}
		if ingestReset {
			log.Info().Str("collection", cfg.VectorDB.Collection).Msg("Dropping collection")
			if err := vdb.DeleteCollection(); err != nil {
				return err
			}
			if vdb, embedder, err = openVectorDB(ctx); err != nil {
				return err
			}
		}

		stats, err := pipeline.Ingest(ctx, ingestDir, vdb, embedder, ingestBatch)
		if err != nil {
			return err
		}
		helper.PrettyPrint(stats)

		if cfg.VectorDB.InMemory {
			return vdb.Export(ctx)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the knowledge collection to an encrypted file",
	RunE: func(cmd *cobra.Command, args []string) error {
		vdb, _, err := openVectorDB(cmd.Context())
		if err != nil {
			return err
		}
		if err := vdb.Export(cmd.Context()); err != nil {
			return err
		}
		log.Info().Str("file", vdb.FilePath()).Int("documents", vdb.Count()).Msg("Collection exported")
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Restore the knowledge collection from its exported file",
	RunE: func(cmd *cobra.Command, args []string) error {
		vdb, _, err := openVectorDB(cmd.Context())
		if err != nil {
			return err
		}
		if err := vdb.Import(cmd.Context()); err != nil {
			return err
		}
		log.Info().Str("file", vdb.FilePath()).Int("documents", vdb.Count()).Msg("Collection imported")
		return nil
	},
}

var parseOut string

var parseCmd = &cobra.Command{
	Use:   "parse [file or dir...]",
	Short: "Split documents into JSONL chunk files",
	Long: `Parses PDF, DOCX, PPTX, XLSX, ODS, TXT and Markdown files into chunks and
writes one <name>.jsonl per document to --out. Directories are walked and
files of other types are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		for _, arg := range args {
			err := filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && parser.Supported(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		written := 0
		for _, path := range files {
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			chunks, err := parser.ParseFile(path, cfg)
			if err != nil {
				log.Warn().Err(err).Str("file", path).Msg("Parse failed, skipping")
				continue
			}
			base := filepath.Base(path)
			out := filepath.Join(parseOut, strings.TrimSuffix(base, filepath.Ext(base))+".jsonl")
			if err := pipeline.WriteJSONL(out, chunks); err != nil {
				return err
			}
			log.Info().Str("file", path).Int("chunks", len(chunks)).Str("out", out).Msg("Parsed")
			written++
		}
		log.Info().Int("files", len(files)).Int("written", written).Msg("Parse finished")
		return nil
	},
}

var rerunOpts pipeline.RerunOptions

var rerunCmd = &cobra.Command{
	Use:   "rerun",
	Short: "Parse PDFs and re-clean JSONL chunk files",
	RunE: func(cmd *cobra.Command, args []string) error {
		rerunOpts.Config = cfg
		summary, err := pipeline.Rerun(cmd.Context(), rerunOpts)
		if err != nil {
			return err
		}
		failed := 0
		for _, files := range []map[string]pipeline.FileSummary{summary.PDFs, summary.JSONL} {
			for name, f := range files {
				if f.Error != "" {
					failed++
					log.Warn().Str("file", name).Str("error", f.Error).Msg("File failed")
				}
			}
		}
		log.Info().
			Int("pdfs", len(summary.PDFs)).
			Int("jsonl", len(summary.JSONL)).
			Int("failed", failed).
			Str("summary", filepath.Join(rerunOpts.OutDir, "aggregated_summary.json")).
			Msg("Rerun finished")
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean [in.jsonl] [out.jsonl]",
	Short: "Strip navigation and boilerplate from a JSONL chunk file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := pipeline.CleanJSONL(args[0], args[1])
		if err != nil {
			return err
		}
		helper.PrettyPrint(stats)
		return nil
	},
}

var joinLines bool

var cleanRedundancyCmd = &cobra.Command{
	Use:   "clean-redundancy [file.jsonl...]",
	Short: "Remove text repeated across consecutive chunks, in place",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			stats, err := pipeline.RemoveRedundancy(path, joinLines)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			log.Info().Str("file", path).Interface("stats", stats).Msg("Redundancy removed")
		}
		return nil
	},
}

var fixMetadataDir string

var fixMetadataCmd = &cobra.Command{
	Use:   "fix-metadata [file.jsonl...]",
	Short: "Set source, title and URL from the article catalog",
	Long: `Rewrites chunk metadata from the article catalog. Without arguments every
JSONL file under --dir is fixed. Running it twice changes nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := articles.MustDefault()
		if len(args) == 0 {
			summary, err := pipeline.FixMetadataDir(fixMetadataDir, catalog)
			if err != nil {
				return err
			}
			helper.PrettyPrint(summary)
			return nil
		}
		for _, path := range args {
			n, err := pipeline.FixMetadata(path, catalog)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			log.Info().Str("file", path).Int("chunks", n).Msg("Metadata fixed")
		}
		return nil
	},
}

var trainingOpts pipeline.TrainingOptions

var trainingCmd = &cobra.Command{
	Use:   "training",
	Short: "Generate fine-tuning Q&A pairs from cleaned chunks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if trainingOpts.MinChunkLength == 0 {
			trainingOpts.MinChunkLength = cfg.RAG.MinChunkLength
		}
		stats, err := pipeline.GenerateTrainingData(trainingOpts)
		if err != nil {
			return err
		}
		helper.PrettyPrint(stats)
		return nil
	},
}

var scrapeOut string

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Print the catalog's web articles to PDF with headless Chrome",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		outDir := scrapeOut
		if outDir == "" {
			outDir = cfg.Scraper.OutDir
		}

		printer, err := scraper.NewRodPrinter(ctx, cfg.Scraper)
		if err != nil {
			return err
		}
		defer printer.Close()

		targets := scraper.TargetsFromCatalog(articles.MustDefault().ScrapeTargets())
		summary, err := scraper.New(printer).Run(ctx, targets, outDir)
		if err != nil {
			return err
		}
		helper.PrettyPrint(summary)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "data_improved_chunks", "Directory of JSONL chunk files")
	ingestCmd.Flags().IntVar(&ingestBatch, "batch", 64, "Chunks embedded per batch")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "Drop the collection before loading")

	parseCmd.Flags().StringVar(&parseOut, "out", "data_chunks", "Directory for the JSONL chunk files")

	rerunCmd.Flags().StringVar(&rerunOpts.PDFDir, "pdf-dir", "pdfs", "Directory of PDFs to parse")
	rerunCmd.Flags().StringVar(&rerunOpts.JSONLDir, "jsonl-dir", "data_chunks", "Directory of existing JSONL files to re-clean")
	rerunCmd.Flags().StringVar(&rerunOpts.OutDir, "out", "reruns_results", "Output directory")
	rerunCmd.Flags().IntVar(&rerunOpts.Workers, "workers", 0, "Files processed in parallel (default: CPU count)")

	cleanRedundancyCmd.Flags().BoolVar(&joinLines, "join-lines", true, "Join hard-wrapped lines before comparing")

	fixMetadataCmd.Flags().StringVar(&fixMetadataDir, "dir", "data_improved_chunks", "Directory of JSONL chunk files")

	trainingCmd.Flags().StringVar(&trainingOpts.InputDir, "in", "data_improved_chunks", "Directory of cleaned JSONL chunks")
	trainingCmd.Flags().StringVar(&trainingOpts.OutputDir, "out", "train_model", "Output directory")
	trainingCmd.Flags().StringSliceVar(&trainingOpts.SkipFiles, "skip", nil, "File name fragments to leave out")
	trainingCmd.Flags().Uint64Var(&trainingOpts.Seed, "seed", 42, "Random seed for question templates")
	trainingCmd.Flags().IntVar(&trainingOpts.MinChunkLength, "min-chunk", 0, "Shortest chunk used, in characters")

	scrapeCmd.Flags().StringVar(&scrapeOut, "out", "", "PDF output directory (default: scraper.out_dir)")
}
