package pipeline

import (
	"regexp"
	"strings"

	"finlit-rag/internal/models"
)

// navRule removes site chrome scraped along with an article. A rule with an
// until marker cuts from the match up to (not including) the marker; with
// orEOF set a missing marker cuts to the end of the text.
type navRule struct {
	start *regexp.Regexp
	until string
	orEOF bool
}

var navRules = []navRule{
	{start: regexp.MustCompile(`(?i)Member Employer Corporate`), until: "\n\n", orEOF: true},
	{start: regexp.MustCompile(`(?i)Table of Contents`), until: "\n\n", orEOF: true},
	{start: regexp.MustCompile(`(?i)Related Reads`), until: "\n\n", orEOF: true},
	{start: regexp.MustCompile(`(?is)Terms & Conditions.*`)},
	{start: regexp.MustCompile(`(?is)Privacy Policy.*`)},
	{start: regexp.MustCompile(`(?is)Contact Us.*`)},
	{start: regexp.MustCompile(`(?is)Disclaimer:.*`)},
	{start: regexp.MustCompile(`(?i)HOUSING\n`), until: "\n\n"},
	{start: regexp.MustCompile(`(?i)ACCOUNT\n`), until: "\n\n"},
	{start: regexp.MustCompile(`(?i)PERSONAL\nFINANCE\n`), until: "\n\n"},
	{start: regexp.MustCompile(`(?i)EPF\n`), until: "\n\n"},
	{start: regexp.MustCompile(`(?is)EN\n.*?Myra Athena`)},
}

func (r navRule) apply(s string) string {
	if r.until == "" {
		return r.start.ReplaceAllString(s, "")
	}
	var b strings.Builder
	for {
		loc := r.start.FindStringIndex(s)
		if loc == nil {
			break
		}
		end := strings.Index(s[loc[1]:], r.until)
		if end < 0 {
			if r.orEOF {
				s = s[:loc[0]]
			}
			break
		}
		b.WriteString(s[:loc[0]])
		s = s[loc[1]+end:]
	}
	b.WriteString(s)
	return b.String()
}

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	manySpaces   = regexp.MustCompile(` {2,}`)
)

// CleanText strips navigation and boilerplate blocks and collapses runs of
// blank lines and spaces.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, r := range navRules {
		text = r.apply(text)
	}
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = manySpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

type CleanStats struct {
	Original int `json:"original"`
	Kept     int `json:"kept"`
}

// CleanJSONL cleans every chunk of in and writes the non-empty ones to out.
func CleanJSONL(in, out string) (CleanStats, error) {
	chunks, skipped, err := ReadJSONL(in)
	if err != nil {
		return CleanStats{}, err
	}
	stats := CleanStats{Original: len(chunks) + skipped}
	kept := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		text := CleanText(c.Text)
		if text == "" {
			continue
		}
		c.Text = text
		kept = append(kept, c)
	}
	stats.Kept = len(kept)
	if err := WriteJSONL(out, kept); err != nil {
		return stats, err
	}
	return stats, nil
}
