package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"finlit-rag/internal/articles"

	"github.com/rs/zerolog/log"
)

var ErrNoMapping = errors.New("no article mapping")

// FixMetadata stamps source, title, url and from on every chunk of a file
// using the article matched by the file name. Other fields are kept as they
// are. A malformed line aborts the pass with the file untouched. Running it
// twice produces the same bytes.
func FixMetadata(path string, catalog *articles.Catalog) (int, error) {
	name := filepath.Base(path)
	info, ok := catalog.Find(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoMapping, name)
	}

	records, err := readRecords(path)
	if err != nil {
		return 0, err
	}
	for i, rec := range records {
		meta, err := rec.metadata()
		if err != nil {
			return 0, fmt.Errorf("%w: %s record %d metadata: %v", ErrMalformedLine, name, i+1, err)
		}
		for key, value := range map[string]string{
			"source": name,
			"title":  info.Title,
			"url":    info.URL,
			"from":   info.Company,
		} {
			if err := meta.setString(key, value); err != nil {
				return 0, err
			}
		}
		raw, err := rawJSON(meta)
		if err != nil {
			return 0, err
		}
		rec["metadata"] = raw
	}
	if err := writeLines(path, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

type FixSummary struct {
	Files    int      `json:"files"`
	Updated  int      `json:"updated"`
	Chunks   int      `json:"chunks"`
	Unmapped []string `json:"unmapped,omitempty"`
	Failed   []string `json:"failed,omitempty"`
}

// FixMetadataDir runs FixMetadata over every JSONL file in dir. Files with no
// mapping are reported and left untouched.
func FixMetadataDir(dir string, catalog *articles.Catalog) (FixSummary, error) {
	files, err := jsonlFiles(dir)
	if err != nil {
		return FixSummary{}, err
	}
	summary := FixSummary{Files: len(files)}
	for _, path := range files {
		n, err := FixMetadata(path, catalog)
		if err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("Metadata not updated")
			if errors.Is(err, ErrNoMapping) {
				summary.Unmapped = append(summary.Unmapped, filepath.Base(path))
			} else {
				summary.Failed = append(summary.Failed, filepath.Base(path))
			}
			continue
		}
		log.Info().Str("file", filepath.Base(path)).Int("chunks", n).Msg("Updated chunks")
		summary.Updated++
		summary.Chunks += n
	}
	return summary, nil
}
