package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"finlit-rag/internal/helper"

	"github.com/rs/zerolog/log"
)

type resultsDoc struct {
	Results []TestResult `json:"results"`
}

type feedbackDoc struct {
	Feedback []Feedback `json:"feedback"`
}

// FileStore keeps results and feedback as two JSON documents. Every append
// reloads the whole file and rewrites it.
type FileStore struct {
	mu           sync.Mutex
	resultsPath  string
	feedbackPath string
}

func NewFileStore(resultsPath, feedbackPath string) *FileStore {
	return &FileStore{resultsPath: resultsPath, feedbackPath: feedbackPath}
}

func (s *FileStore) AppendResult(_ context.Context, r TestResult) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := load[resultsDoc](s.resultsPath)
	doc.Results = append(doc.Results, r)
	if err := save(s.resultsPath, doc); err != nil {
		return err
	}
	log.Info().Str("user_id", r.UserID).Str("test_type", string(r.TestType)).Msg("Saved test result")
	return nil
}

func (s *FileStore) AppendFeedback(_ context.Context, f Feedback) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := load[feedbackDoc](s.feedbackPath)
	doc.Feedback = append(doc.Feedback, f)
	if err := save(s.feedbackPath, doc); err != nil {
		return err
	}
	log.Info().Str("user_id", f.UserID).Str("rating", f.Rating).Msg("Saved feedback")
	return nil
}

func (s *FileStore) Results(_ context.Context) ([]TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := load[resultsDoc](s.resultsPath)
	return doc.Results, nil
}

func (s *FileStore) Feedback(_ context.Context) ([]Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := load[feedbackDoc](s.feedbackPath)
	return doc.Feedback, nil
}

// load returns an empty document when the file is missing or unreadable.
func load[T any](path string) T {
	var doc T
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return doc
	}
	if err == nil {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Could not load store file, starting a fresh document")
		var fresh T
		return fresh
	}
	return doc
}

func save(path string, v any) error {
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
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
