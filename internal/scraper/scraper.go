// Package scraper saves article pages as PDFs using a headless Chrome
// driven over the DevTools protocol.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finlit-rag/internal/articles"
	"finlit-rag/internal/helper"

	"github.com/rs/zerolog/log"
)

// Target is one page to save.
type Target struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TargetsFromCatalog turns catalog entries into scrape targets named after
// their output file.
func TargetsFromCatalog(entries []articles.Info) []Target {
	out := make([]Target, 0, len(entries))
	for _, e := range entries {
		out = append(out, Target{Name: e.ScrapeName(), URL: e.URL})
	}
	return out
}

// NormalizeURL repairs the scheme typos found in hand-edited URL lists and
// adds https:// when no scheme is present.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return u
	}
	lower := strings.ToLower(u)
	switch {
	case strings.HasPrefix(lower, "https//"):
		u = "https://" + u[len("https//"):]
	case strings.HasPrefix(lower, "httpsin://"):
		u = "https://" + u[len("httpsin://"):]
	case strings.HasPrefix(lower, "http:/") && !strings.HasPrefix(lower, "http://"):
		u = "http://" + u[len("http:/"):]
	}
	lower = strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		u = "https://" + u
	}
	return u
}

// Printer renders the page at url as a PDF document.
type Printer interface {
	PrintPDF(ctx context.Context, url string) ([]byte, error)
}

type Result struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

type Summary struct {
	Saved  []Result `json:"saved"`
	Failed []Result `json:"failed"`
}

type Scraper struct {
	printer Printer
}

func New(printer Printer) *Scraper {
	return &Scraper{printer: printer}
}

// Run saves every target under outDir as <name>.pdf. Targets are fetched one
// after another; a failing target is logged and recorded, and the run moves
// on. Only cancellation stops the run early.
func (s *Scraper) Run(ctx context.Context, targets []Target, outDir string) (Summary, error) {
	var summary Summary
	if err := helper.CreateFolder(outDir); err != nil {
		return summary, err
	}

	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		url := NormalizeURL(t.URL)
		if url != t.URL {
			log.Debug().Str("from", t.URL).Str("to", url).Msg("Normalized URL")
		}
		res := Result{Name: t.Name, URL: url, Path: filepath.Join(outDir, pdfName(t.Name))}
		log.Info().Int("n", i+1).Int("of", len(targets)).Str("url", url).Msg("Scraping")

		if err := s.save(ctx, url, res.Path); err != nil {
			if errors.Is(err, context.Canceled) {
				return summary, err
			}
			log.Error().Err(err).Str("url", url).Msg("Failed to save page")
			res.Path, res.Error = "", err.Error()
			summary.Failed = append(summary.Failed, res)
			continue
		}
		log.Info().Str("file", res.Path).Msg("Saved")
		summary.Saved = append(summary.Saved, res)
	}
	return summary, nil
}

func (s *Scraper) save(ctx context.Context, url, path string) error {
	pdf, err := s.printer.PrintPDF(ctx, url)
	if err != nil {
		return err
	}
	if len(pdf) == 0 {
		return errors.New("empty pdf")
	}
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func pdfName(name string) string {
	name = helper.SafeFilename(name)
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return name
	}
	return name + ".pdf"
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
