// Package pipeline holds the offline data steps: cleaning chunk files,
// fixing their metadata, generating fine-tuning data and loading chunks into
// the vector store.
package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"finlit-rag/internal/helper"
	"finlit-rag/internal/models"

	"github.com/rs/zerolog/log"
)

const maxLineSize = 4 << 20

var ErrMalformedLine = errors.New("malformed JSONL line")

// ReadJSONL loads chunks from a JSONL file. Blank lines are ignored and
// malformed lines are skipped and counted.
func ReadJSONL(path string) ([]models.Chunk, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var (
		chunks  []models.Chunk
		skipped int
		lineNo  int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var c models.Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			log.Debug().Err(err).Str("file", path).Int("line", lineNo).Msg("Skipping malformed line")
			skipped++
			continue
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return chunks, skipped, fmt.Errorf("read %s: %w", path, err)
	}
	return chunks, skipped, nil
}

// record is one JSONL object with every field kept as written, so in-place
// passes only touch the keys they own.
type record map[string]json.RawMessage

// readRecords loads a JSONL file for an in-place rewrite. Unlike ReadJSONL a
// single malformed line fails the whole read.
func readRecords(path string) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		records []record
		lineNo  int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformedLine, filepath.Base(path), lineNo, err)
		}
		if rec == nil {
			return nil, fmt.Errorf("%w: %s line %d: not an object", ErrMalformedLine, filepath.Base(path), lineNo)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

func (r record) text() string {
	var s string
	if raw, ok := r["text"]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func (r record) setString(key, value string) error {
	raw, err := rawJSON(value)
	if err != nil {
		return err
	}
	r[key] = raw
	return nil
}

// metadata decodes the metadata object shallowly; a missing or null value is
// an empty object.
func (r record) metadata() (record, error) {
	meta := record{}
	raw, ok := r["metadata"]
	if !ok || string(raw) == "null" {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	if meta == nil {
		meta = record{}
	}
	return meta, nil
}

func rawJSON(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// WriteJSONL writes one chunk per line, creating parent folders.
func WriteJSONL(path string, chunks []models.Chunk) error {
	return writeLines(path, chunks)
}

func writeLines[T any](path string, items []T) error {
	if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func writeJSON(path string, v any) error {
	if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// jsonlFiles lists *.jsonl files in dir in name order.
func jsonlFiles(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*.jsonl"))
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
