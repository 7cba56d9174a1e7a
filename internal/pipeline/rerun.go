package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"finlit-rag/internal/config"
	"finlit-rag/internal/parser"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type RerunOptions struct {
	PDFDir   string
	JSONLDir string
	OutDir   string
	Workers  int
	Config   *config.Config
}

func (o *RerunOptions) applyDefaults() {
	if o.PDFDir == "" {
		o.PDFDir = "pdfs"
	}
	if o.JSONLDir == "" {
		o.JSONLDir = "data_chunks"
	}
	if o.OutDir == "" {
		o.OutDir = "reruns_results"
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Config == nil {
		o.Config = config.Default()
	}
}

// FileSummary is what happened to one input file.
type FileSummary struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	RawPath   string `json:"raw_path,omitempty"`
	Chunks    int    `json:"chunks,omitempty"`
	CleanPath string `json:"cleaned_path,omitempty"`
	CleanStats
}

type RerunSummary struct {
	PDFs  map[string]FileSummary `json:"pdfs"`
	JSONL map[string]FileSummary `json:"jsonl"`
}

// Rerun parses every PDF to raw JSONL and cleans it, then re-cleans existing
// JSONL files. Each input gets a summary under summaries/ and the whole run
// is written to aggregated_summary.json. A failing file is recorded and does
// not stop the run.
func Rerun(ctx context.Context, opts RerunOptions) (RerunSummary, error) {
	opts.applyDefaults()
	rawDir := filepath.Join(opts.OutDir, "raw_outputs")
	cleanDir := filepath.Join(opts.OutDir, "cleaned")
	summaryDir := filepath.Join(opts.OutDir, "summaries")

	summary := RerunSummary{PDFs: map[string]FileSummary{}, JSONL: map[string]FileSummary{}}
	var mu sync.Mutex
	record := func(into map[string]FileSummary, name string, res FileSummary) {
		if err := writeJSON(filepath.Join(summaryDir, name+".json"), res); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Could not write summary")
		}
		mu.Lock()
		into[name] = res
		mu.Unlock()
	}

	pdfs, err := listPDFs(opts.PDFDir)
	if err != nil {
		return summary, err
	}
	log.Info().Int("pdfs", len(pdfs)).Msg("Processing PDFs")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, pdfPath := range pdfs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			name := stem(pdfPath)
			record(summary.PDFs, name, processPDF(pdfPath, rawDir, cleanDir, opts.Config))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	existing, err := jsonlFiles(opts.JSONLDir)
	if err != nil {
		return summary, err
	}
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, path := range existing {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			name := stem(path)
			out := filepath.Join(cleanDir, name+".jsonl")
			res := FileSummary{Status: "ok", CleanPath: out}
			stats, err := CleanJSONL(path, out)
			if err != nil {
				res = FileSummary{Status: "error", Error: err.Error()}
			} else {
				res.CleanStats = stats
			}
			record(summary.JSONL, name, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	return summary, writeJSON(filepath.Join(opts.OutDir, "aggregated_summary.json"), summary)
}

func processPDF(pdfPath, rawDir, cleanDir string, cfg *config.Config) FileSummary {
	name := stem(pdfPath)
	chunks, err := parser.ParseFile(pdfPath, cfg)
	if err != nil {
		return FileSummary{Status: "error", Error: err.Error()}
	}
	raw := filepath.Join(rawDir, name+".jsonl")
	if err := WriteJSONL(raw, chunks); err != nil {
		return FileSummary{Status: "error", Error: err.Error()}
	}
	res := FileSummary{Status: "ok", RawPath: raw, Chunks: len(chunks)}

	clean := filepath.Join(cleanDir, name+".jsonl")
	stats, err := CleanJSONL(raw, clean)
	if err != nil {
		res.Status, res.Error = "error", err.Error()
		return res
	}
	res.CleanPath = clean
	res.CleanStats = stats
	return res
}

// listPDFs returns the PDFs in dir; a missing dir has none.
func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
