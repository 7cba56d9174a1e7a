// Package articles holds the read-only reference table that maps source
// files and slugs to article titles, URLs and publishers.
package articles

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed articles.yaml
var articlesYAML []byte

// Info is one article of the reference table.
type Info struct {
	Key     string   `yaml:"key"`
	Title   string   `yaml:"title"`
	URL     string   `yaml:"url"`
	Company string   `yaml:"company"`
	Scrape  bool     `yaml:"scrape"`
	Aliases []string `yaml:"aliases"`
}

// ScrapeName is the output filename stem the scraper uses for this article.
func (i Info) ScrapeName() string {
	return strings.ReplaceAll(i.Key, "_", " ")
}

// Catalog is an ordered, immutable lookup table.
type Catalog struct {
	entries []Info
	byKey   map[string]int
	raw     map[string]int
}

// minContainmentKey keeps very short slugs from matching everything.
const minContainmentKey = 4

var (
	trailingCopyRe = regexp.MustCompile(`\s*\(\d+\)\s*$`)
	nonSlugRe      = regexp.MustCompile(`[^a-z0-9]+`)
)

// Default returns the embedded catalog, parsed once per process.
var Default = sync.OnceValues(func() (*Catalog, error) {
	return Parse(articlesYAML)
})

// MustDefault is Default for callers that cannot proceed without the table.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse builds a catalog from YAML with a top-level `articles` list.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Articles []Info `yaml:"articles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse articles: %w", err)
	}
	return New(doc.Articles)
}

// New indexes entries; keys and aliases are normalized, duplicates rejected.
func New(entries []Info) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Info, 0, len(entries)),
		byKey:   make(map[string]int),
		raw:     make(map[string]int),
	}
	for _, e := range entries {
		key := NormalizeFilename(e.Key)
		if key == "" {
			return nil, fmt.Errorf("article %q has an empty key", e.Title)
		}
		if _, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("duplicate article key %q", key)
		}
		e.Key = key
		idx := len(c.entries)
		c.entries = append(c.entries, e)
		c.byKey[key] = idx
		for _, a := range e.Aliases {
			c.raw[strings.ToLower(strings.TrimSpace(a))] = idx
			if n := NormalizeFilename(a); n != "" {
				if _, taken := c.byKey[n]; !taken {
					c.byKey[n] = idx
				}
			}
		}
	}
	return c, nil
}

// NormalizeFilename turns a chunk filename or title into a catalog slug:
// lowercase, extension and "(N)" copy suffix removed, every run of other
// characters collapsed to "_", and a leading "www_" dropped unless the whole
// name is the generic www_kwsp(_gov) key.
func NormalizeFilename(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimSuffix(n, ".jsonl")
	n = strings.TrimSuffix(n, ".pdf")
	n = trailingCopyRe.ReplaceAllString(n, "")
	n = nonSlugRe.ReplaceAllString(n, "_")
	n = strings.Trim(n, "_")
	if strings.HasPrefix(n, "www_") && n != "www_kwsp" && n != "www_kwsp_gov" {
		n = strings.TrimPrefix(n, "www_")
	}
	return n
}

func (c *Catalog) Len() int { return len(c.entries) }

// Lookup is an exact match on an already normalized key or alias.
func (c *Catalog) Lookup(key string) (Info, bool) {
	if idx, ok := c.byKey[key]; ok {
		return c.entries[idx], true
	}
	return Info{}, false
}

// LookupRaw matches a raw lowercase filename listed as an alias.
func (c *Catalog) LookupRaw(filename string) (Info, bool) {
	if idx, ok := c.raw[strings.ToLower(strings.TrimSpace(filename))]; ok {
		return c.entries[idx], true
	}
	return Info{}, false
}

// Contains walks entries in order and returns the first whose key contains
// slug or is contained in it, comparing underscore and hyphen variants.
func (c *Catalog) Contains(slug string) (Info, bool) {
	if len(slug) < minContainmentKey {
		return Info{}, false
	}
	hyphen := strings.ReplaceAll(slug, "_", "-")
	for _, e := range c.entries {
		if len(e.Key) < minContainmentKey {
			continue
		}
		keyHyphen := strings.ReplaceAll(e.Key, "_", "-")
		if strings.Contains(slug, e.Key) || strings.Contains(e.Key, slug) ||
			strings.Contains(hyphen, keyHyphen) || strings.Contains(keyHyphen, hyphen) {
			return e, true
		}
	}
	return Info{}, false
}

// Find resolves a chunk filename: exact normalized, exact raw, containment.
func (c *Catalog) Find(filename string) (Info, bool) {
	normalized := NormalizeFilename(filename)
	if info, ok := c.Lookup(normalized); ok {
		return info, true
	}
	if info, ok := c.LookupRaw(filename); ok {
		return info, true
	}
	return c.Contains(normalized)
}

// ScrapeTargets lists articles flagged for scraping, in order.
func (c *Catalog) ScrapeTargets() []Info {
	var out []Info
	for _, e := range c.entries {
		if e.Scrape {
			out = append(out, e)
		}
	}
	return out
}
