package fintools

import (
	"context"
	"strings"

	"finlit-rag/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"
)

// Searcher is the vector store surface the search tools need.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]schema.Document, error)
	MaxMarginalRelevanceSearch(ctx context.Context, query string, k, fetchK int, lambdaMult float64) ([]schema.Document, error)
}

const (
	maxSearchResults = 5
	categoryResults  = 3
	searchLambda     = 0.5
)

// categoryKeywords widens a category name into terms that match the
// knowledge base wording.
var categoryKeywords = map[string]string{
	"budgeting":  "budget spending 50/30/20 expenses money management",
	"saving":     "save savings emergency fund pay yourself first",
	"debt":       "debt loan credit card PTPTN interest payment",
	"investment": "invest investment stocks ASB unit trust returns",
	"insurance":  "insurance medical coverage takaful protection",
	"tax":        "tax LHDN income tax filing deduction relief",
	"scam":       "scam fraud prevention phishing red flags",
	"retirement": "retirement EPF KWSP pension planning",
}

type SearchHit struct {
	Content  string `json:"content"`
	Source   string `json:"source"`
	Category string `json:"category,omitempty"`
	Title    string `json:"title"`
}

type SearchResult struct {
	Success     bool        `json:"success"`
	Query       string      `json:"query"`
	Category    string      `json:"category,omitempty"`
	TotalFound  int         `json:"total_found"`
	Results     []SearchHit `json:"results"`
	SourcesUsed []string    `json:"sources_used,omitempty"`
	Instruction string      `json:"instruction,omitempty"`
	Error       string      `json:"error,omitempty"`
}

func hitFrom(doc schema.Document) SearchHit {
	source := models.MetaString(doc.Metadata, "source")
	if source == "" {
		source = models.MetaString(doc.Metadata, "url")
	}
	if source == "" {
		source = "Unknown"
	}
	category := models.MetaString(doc.Metadata, "category")
	if category == "" {
		category = "General"
	}
	return SearchHit{
		Content:  strings.TrimSpace(doc.PageContent),
		Source:   source,
		Category: category,
		Title:    models.MetaString(doc.Metadata, "title"),
	}
}

// SearchKnowledge runs a diverse (MMR) search. maxResults is clamped to 1..5
// and twice as many candidates are fetched. A store failure is reported in
// the result rather than returned.
func SearchKnowledge(ctx context.Context, s Searcher, query string, maxResults int) SearchResult {
	k := min(max(1, maxResults), maxSearchResults)
	docs, err := s.MaxMarginalRelevanceSearch(ctx, query, k, 2*k, searchLambda)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("Knowledge search failed")
		return SearchResult{
			Query:       query,
			Results:     []SearchHit{},
			Error:       err.Error(),
			Instruction: "No results found. Tell the user you don't have information on this topic.",
		}
	}

	out := SearchResult{Success: true, Query: query, Results: make([]SearchHit, 0, len(docs))}
	seen := map[string]bool{}
	for _, d := range docs {
		hit := hitFrom(d)
		out.Results = append(out.Results, hit)
		if !seen[hit.Source] {
			seen[hit.Source] = true
			out.SourcesUsed = append(out.SourcesUsed, hit.Source)
		}
	}
	out.TotalFound = len(out.Results)
	out.Instruction = "Use ONLY the content above to answer. Do not add information not present in these results."
	return out
}

// CategoryQuery expands category into its keywords and appends query.
// Unknown categories are searched as given.
func CategoryQuery(category, query string) string {
	terms, ok := categoryKeywords[strings.ToLower(category)]
	if !ok {
		terms = category
	}
	return strings.TrimSpace(terms + " " + query)
}

// Categories lists the categories with keyword expansion.
func Categories() []string {
	return []string{"budgeting", "saving", "debt", "investment", "insurance", "tax", "scam", "retirement"}
}

func SearchByCategory(ctx context.Context, s Searcher, category, query string) SearchResult {
	q := CategoryQuery(category, query)
	docs, err := s.SimilaritySearch(ctx, q, categoryResults)
	if err != nil {
		log.Warn().Err(err).Str("category", category).Msg("Category search failed")
		return SearchResult{Query: q, Category: category, Results: []SearchHit{}, Error: err.Error()}
	}
	out := SearchResult{Success: true, Query: q, Category: category, Results: make([]SearchHit, 0, len(docs))}
	for _, d := range docs {
		hit := hitFrom(d)
		hit.Category = ""
		out.Results = append(out.Results, hit)
	}
	out.TotalFound = len(out.Results)
	out.Instruction = "Present these " + category + " tips clearly. Only use information from the results."
	return out
}
