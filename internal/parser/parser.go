package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"finlit-rag/internal/config"
	"finlit-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

const defaultPageNumber = 1

type ParserConfig struct {
	Config *config.Config
	source string
	path   string
}

// ParseFile extracts text from a document and splits it into chunks carrying
// source, source_file, page and chunk_id metadata.
func ParseFile(filePath string, cfg *config.Config) ([]models.Chunk, error) {
	if cfg == nil {
		cfg = config.Default()
	} else if cfg.RAG.ChunkSize == 0 || cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkSize = config.DefaultChunkSize
		cfg.RAG.ChunkOverlap = config.DefaultChunkOverlap
	}

	p := ParserConfig{
		Config: cfg,
		source: filepath.Base(filePath),
		path:   filePath,
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return p.parsePDF()
	case ".docx":
		return p.parseDOCX()
	case ".pptx":
		return p.parsePPTX()
	case ".xlsx":
		return p.parseXLSX()
	case ".ods":
		return p.parseODS()
	case ".txt":
		return p.parseText()
	case ".md", ".markdown":
		return p.parseMarkdown()
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

// Supported reports whether ParseFile understands the file extension.
func Supported(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf", ".docx", ".pptx", ".xlsx", ".ods", ".txt", ".md", ".markdown":
		return true
	}
	return false
}

func (p *ParserConfig) parsePDF() ([]models.Chunk, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", p.source, err)
	}

	var chunks []models.Chunk
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Str("file", p.source).Int("page", i).Msg("Skipping unreadable page")
			continue
		}
		chunks = append(chunks, p.getChunks(pageText, i, nil)...)
	}
	return chunks, nil
}

func (p *ParserConfig) parseDOCX() ([]models.Chunk, error) {
	r, err := docx.ReadDocxFile(p.path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := stripXMLTags(r.Editable().GetContent())
	return p.getChunks(content, defaultPageNumber, nil), nil
}

func (p *ParserConfig) parsePPTX() ([]models.Chunk, error) {
	f, err := zip.OpenReader(p.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []models.Chunk
	slide := 0
	for _, file := range f.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") || !strings.HasSuffix(file.Name, ".xml") {
			continue
		}
		slide++
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		chunks = append(chunks, p.getChunks(extractTextFromXML(string(data)), slide, nil)...)
	}
	return chunks, nil
}

func (p *ParserConfig) parseXLSX() ([]models.Chunk, error) {
	f, err := xlsx.OpenFile(p.path)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for sheetNum, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			var cells []string
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		chunks = append(chunks, p.getChunks(sheetText(rows), sheetNum+1, map[string]any{"sheet": sheet.Name})...)
	}
	return chunks, nil
}

func (p *ParserConfig) parseODS() ([]models.Chunk, error) {
	f, err := excelize.OpenFile(p.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []models.Chunk
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		chunks = append(chunks, p.getChunks(sheetText(rows), sheetNum+1, map[string]any{"sheet": sheetName})...)
	}
	return chunks, nil
}

// sheetText renders rows as tab separated lines, skipping empty rows.
func sheetText(rows [][]string) string {
	var text strings.Builder
	for _, row := range rows {
		line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
		if line == "" {
			continue
		}
		text.WriteString(line)
		text.WriteString("\n")
	}
	return text.String()
}

func (p *ParserConfig) parseText() ([]models.Chunk, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}
	return p.getChunks(string(data), defaultPageNumber, nil), nil
}

func (p *ParserConfig) parseMarkdown() ([]models.Chunk, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}
	return p.getChunks(MarkdownToText(data), defaultPageNumber, nil), nil
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(part[:endIdx] + " ")
		}
	}
	return text.String()
}

// stripXMLTags drops any markup docx leaves in the raw document content.
func stripXMLTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// chunkContent splits content into windows of maxChars runes that overlap by
// overlapChars, preferring to break on a space, newline or full stop within
// the last tenth of a window.
func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	text := []rune(strings.TrimSpace(content))
	contentLen := len(text)
	if contentLen == 0 {
		return nil
	}
	if contentLen <= maxChars {
		return []string{string(text)}
	}

	var chunks []string
	start := 0
	for start < contentLen {
		end := min(start+maxChars, contentLen)

		if end < contentLen {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if text[i] == ' ' || text[i] == '\n' || text[i] == '.' {
					end = i + 1
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(text[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		start += maxChars - overlapChars
	}
	return chunks
}

// getChunks chunks one page of text and stamps each piece with metadata.
func (p *ParserConfig) getChunks(content string, pageNumber int, extra map[string]any) []models.Chunk {
	var chunks []models.Chunk
	for i, text := range chunkContent(content, p.Config.RAG.ChunkSize, p.Config.RAG.ChunkOverlap) {
		md := map[string]any{
			"source":      p.source,
			"source_file": p.path,
			"page":        pageNumber,
			"chunk_id":    i + 1,
		}
		for k, v := range extra {
			md[k] = v
		}
		chunks = append(chunks, models.Chunk{Text: text, Metadata: md})
	}
	return chunks
}
