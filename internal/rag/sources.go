package rag

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"finlit-rag/internal/articles"
	"finlit-rag/internal/models"
)

const excerptRunes = 300

// Source is the display form of a retrieved chunk.
type Source struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Attribution string `json:"from"`
	Section     string `json:"section,omitempty"`
	Excerpt     string `json:"excerpt"`
	// Rule names the matching step that produced Title and URL.
	Rule string `json:"rule"`
}

type sourceInput struct {
	name     string
	nameKey  string
	title    string
	titleKey string
}

type sourceRule struct {
	name  string
	match func(c *articles.Catalog, in sourceInput) (articles.Info, bool)
}

// Rule order is the match priority.
var sourceRules = []sourceRule{
	{"lalua-title", matchLalua},
	{"exact-title", func(c *articles.Catalog, in sourceInput) (articles.Info, bool) {
		if in.titleKey == "" {
			return articles.Info{}, false
		}
		return c.Lookup(in.titleKey)
	}},
	{"contains-title", func(c *articles.Catalog, in sourceInput) (articles.Info, bool) {
		return c.Contains(in.titleKey)
	}},
	{"exact-source", func(c *articles.Catalog, in sourceInput) (articles.Info, bool) {
		if in.nameKey == "" {
			return articles.Info{}, false
		}
		if info, ok := c.Lookup(in.nameKey); ok {
			return info, true
		}
		return c.LookupRaw(in.name)
	}},
	{"contains-source", func(c *articles.Catalog, in sourceInput) (articles.Info, bool) {
		return c.Contains(in.nameKey)
	}},
}

var laluaArticles = []struct {
	keywords []string
	key      string
}{
	{[]string{"mistake"}, "5_mistakes_young_adult_make_with_money_lalua_rahsiad"},
	{[]string{"budget"}, "what_no_one_tells_you_about_budgeting_in_your_20s_lalua_rahsiad"},
	{[]string{"mindset", "freedom"}, "why_financial_freedom_starts_with_your_mindset_lalua_rahsiad"},
}

func matchLalua(c *articles.Catalog, in sourceInput) (articles.Info, bool) {
	title := strings.ToLower(in.title)
	if !strings.Contains(in.nameKey, "lalua") && !strings.Contains(title, "lalua") {
		return articles.Info{}, false
	}
	for _, a := range laluaArticles {
		if containsAny(in.nameKey, a.keywords) || containsAny(title, a.keywords) {
			return c.Lookup(a.key)
		}
	}
	return articles.Info{}, false
}

// Formatter maps chunk metadata to a title, URL and publisher label.
type Formatter struct {
	catalog *articles.Catalog
}

func NewFormatter(catalog *articles.Catalog) *Formatter {
	return &Formatter{catalog: catalog}
}

func (f *Formatter) Format(chunk models.Chunk) Source {
	in := newSourceInput(chunk)
	src := Source{
		Section: SectionText(chunk.Metadata),
		Excerpt: excerpt(chunk.Text),
	}

	matched := false
	if f.catalog != nil {
		for _, r := range sourceRules {
			if info, ok := r.match(f.catalog, in); ok {
				src.Title, src.URL, src.Rule = info.Title, info.URL, r.name
				matched = true
				break
			}
		}
	}
	if !matched {
		src.Title = in.title
		if src.Title == "" {
			src.Title = in.name
		}
		if src.Title == "" {
			src.Title = models.UnknownSource
		}
		url, ok := metadataURL(chunk.Metadata)
		if ok {
			src.URL, src.Rule = url, "metadata-url"
		} else {
			src.URL, src.Rule = models.DefaultSourceURL, "fallback"
		}
	}
	src.Attribution = Attribution(in.name, src.Title, src.URL, chunk.Metadata)
	return src
}

func (f *Formatter) FormatAll(chunks []models.Chunk) []Source {
	out := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, f.Format(c))
	}
	return out
}

// The display name prefers the source_file basename, then source, then title.
func newSourceInput(chunk models.Chunk) sourceInput {
	in := sourceInput{title: chunk.Meta("title")}
	switch {
	case chunk.Meta("source_file") != "":
		in.name = filepath.Base(chunk.Meta("source_file"))
	case chunk.Meta("source") != "" && !looksLikeURL(chunk.Meta("source")):
		in.name = chunk.Meta("source")
	default:
		in.name = in.title
	}
	in.nameKey = articles.NormalizeFilename(in.name)
	in.titleKey = articles.NormalizeFilename(in.title)
	return in
}

var urlKeys = []string{"url", "source", "source_url", "link", "href", "webpage_url", "uri"}

// ExtractSourceURL returns the first URL-looking metadata value or the
// default site.
func ExtractSourceURL(meta map[string]any) string {
	if url, ok := metadataURL(meta); ok {
		return url
	}
	return models.DefaultSourceURL
}

func metadataURL(meta map[string]any) (string, bool) {
	for _, k := range urlKeys {
		if v := models.MetaString(meta, k); looksLikeURL(v) {
			return withScheme(v), true
		}
	}
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		v := models.MetaString(meta, k)
		if strings.Contains(v, "http") || strings.HasPrefix(v, "www") {
			return withScheme(v), true
		}
	}
	return "", false
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http") || strings.HasPrefix(s, "www")
}

func withScheme(s string) string {
	if strings.HasPrefix(s, "www") {
		return "https://" + s
	}
	return s
}

// Attribution labels the publisher from the name, title and resolved URL.
func Attribution(name, title, url string, meta map[string]any) string {
	lowerURL := strings.ToLower(url)
	switch {
	case strings.Contains(strings.ToLower(name), "lalua") || strings.Contains(strings.ToLower(title), "lalua"):
		return "Lalua Rahsiad Blog"
	case strings.Contains(lowerURL, "laluarahsiad"):
		return "Lalua Rahsiad Blog"
	case strings.Contains(lowerURL, "akpk"):
		return "AKPK Malaysia"
	case strings.Contains(lowerURL, "kwsp") || strings.Contains(lowerURL, "epf"):
		return "KWSP Malaysia"
	}
	if from := models.MetaString(meta, "from"); from != "" {
		return from
	}
	if company := models.MetaString(meta, "company"); company != "" {
		return company
	}
	return models.GenericAttributor
}

func SectionText(meta map[string]any) string {
	page := models.MetaString(meta, "page")
	if page == "" {
		page = models.MetaString(meta, "page_number")
	}
	section := models.MetaString(meta, "section")
	switch {
	case section != "" && page != "":
		return fmt.Sprintf("Section: %s, p.%s", section, page)
	case page != "":
		return "p." + page
	case section != "":
		return "Section: " + section
	}
	return ""
}

func excerpt(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= excerptRunes {
		return string(r)
	}
	return string(r[:excerptRunes]) + "..."
}
