package rag

import (
	"regexp"
	"strconv"
	"strings"
)

type ListType string

const (
	ListNone     ListType = ""
	ListMistakes ListType = "mistakes"
	ListTips     ListType = "tips"
	ListWays     ListType = "ways"
	ListSteps    ListType = "steps"
	ListReasons  ListType = "reasons"
	ListHabits   ListType = "habits"
)

// QueryIntent shapes the answer format. Count 0 means no count was asked for.
type QueryIntent struct {
	ListType   ListType `json:"list_type,omitempty"`
	Count      int      `json:"count,omitempty"`
	IsQuestion bool     `json:"is_question"`
}

var questionWords = []string{"what", "how", "why", "when", "where", "can", "should", "is", "are", "do", "does"}

var listPatterns = []struct {
	listType ListType
	keywords []string
}{
	{ListMistakes, []string{"mistake", "error", "wrong", "avoid", "don't", "never"}},
	{ListTips, []string{"tip", "advice", "suggestion", "recommend"}},
	{ListWays, []string{"way", "method", "how to"}},
	{ListSteps, []string{"step", "process", "procedure"}},
	{ListReasons, []string{"reason", "why", "cause"}},
	{ListHabits, []string{"habit", "practice", "routine"}},
}

var countRe = regexp.MustCompile(`(\d+)\s*(mistake|tip|way|step|reason|habit|thing|point)`)

// wordNumbers are checked one through ten; the lowest matching number wins.
var wordNumbers = func() []*regexp.Regexp {
	words := []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"}
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`\b` + w + `\b`)
	}
	return out
}()

func DetectIntent(query string) QueryIntent {
	lower := strings.ToLower(strings.TrimSpace(query))
	intent := QueryIntent{IsQuestion: strings.Contains(query, "?")}
	if !intent.IsQuestion {
		for _, w := range questionWords {
			if strings.HasPrefix(lower, w) {
				intent.IsQuestion = true
				break
			}
		}
	}

	for _, p := range listPatterns {
		if containsAny(lower, p.keywords) {
			intent.ListType = p.listType
			break
		}
	}

	if m := countRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			intent.Count = n
		}
		return intent
	}
	for i, re := range wordNumbers {
		if re.MatchString(lower) {
			intent.Count = i + 1
			break
		}
	}
	return intent
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
