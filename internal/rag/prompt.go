package rag

import (
	"fmt"
	"strings"

	"finlit-rag/internal/models"
)

// ResponseMode decides how strictly an answer must stay within the context.
type ResponseMode int

const (
	Strict ResponseMode = iota
	Hybrid
	ModelOnly
)

func (m ResponseMode) String() string {
	switch m {
	case Strict:
		return "Strict"
	case Hybrid:
		return "Hybrid"
	case ModelOnly:
		return "Model-only"
	default:
		return fmt.Sprintf("ResponseMode(%d)", int(m))
	}
}

// UsesContext is false for ModelOnly, which never retrieves.
func (m ResponseMode) UsesContext() bool {
	return m != ModelOnly
}

func ParseResponseMode(s string) (ResponseMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return Strict, nil
	case "hybrid":
		return Hybrid, nil
	case "model-only", "model_only", "modelonly", "model only":
		return ModelOnly, nil
	}
	return Strict, fmt.Errorf("unknown response mode %q", s)
}

func (m ResponseMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ResponseMode) UnmarshalText(b []byte) error {
	parsed, err := ParseResponseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// CountInstruction is empty unless the query asked for a number of items.
func CountInstruction(intent QueryIntent) string {
	if intent.Count <= 0 {
		return ""
	}
	return fmt.Sprintf(models.CountInstructionFormat, intent.Count, intent.Count)
}

func ListFormat(intent QueryIntent) string {
	switch intent.ListType {
	case ListMistakes:
		return "mistakes (things to AVOID)"
	case ListSteps:
		return "steps (in order)"
	case ListReasons:
		return "reasons"
	case ListWays:
		return "ways"
	case ListHabits:
		return "habits"
	default:
		return "tips"
	}
}

// BuildPrompt renders the template for mode. ModelOnly ignores contextText.
func BuildPrompt(mode ResponseMode, contextText, query string, intent QueryIntent) string {
	var tmpl string
	switch mode {
	case Hybrid:
		tmpl = models.HybridPromptTemplate
	case ModelOnly:
		tmpl = models.ModelOnlyPromptTemplate
		contextText = ""
	default:
		tmpl = models.StrictPromptTemplate
	}
	if mode.UsesContext() && strings.TrimSpace(contextText) == "" {
		contextText = models.NoContextText
	}

	r := strings.NewReplacer(
		models.PlaceholderCountInstruction, CountInstruction(intent),
		models.PlaceholderListFormat, ListFormat(intent),
		models.PlaceholderContext, contextText,
		models.PlaceholderQuery, query,
	)
	return r.Replace(tmpl)
}
