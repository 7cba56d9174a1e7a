// Package quiz implements the PISA 2022 style financial literacy assessment
// taken before and after using the chatbot.
package quiz

import "slices"

type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"question"`
	Options []string `json:"options"`
	Weight  int      `json:"weight"`
}

// MaxScore is the score of the last option.
func (q Question) MaxScore() int {
	return len(q.Options) - 1
}

// OptionIndex returns the position of answer among the options.
func (q Question) OptionIndex(answer string) (int, bool) {
	for i, o := range q.Options {
		if o == answer {
			return i, true
		}
	}
	return 0, false
}

type Category struct {
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

const (
	Knowledge  = "Financial Knowledge"
	Behavior   = "Financial Behavior"
	Confidence = "Financial Confidence"
	Attitudes  = "Financial Attitudes"
	Overall    = "Overall"
)

var (
	heardOf    = []string{"Never heard of it", "Heard of it, but don't recall meaning", "Know what it means"}
	confidence = []string{"Not at all confident", "Not very confident", "Confident", "Very confident"}
	agreement  = []string{"Strongly disagree", "Disagree", "Agree", "Strongly agree"}
)

var bank = []Category{
	{Knowledge, []Question{
		{"FL164Q01", "Have you heard of or learnt about: Interest payment", heardOf, 1},
		{"FL164Q02", "Have you heard of or learnt about: Compound interest", heardOf, 1},
		{"FL164Q12", "Have you heard of or learnt about: Budget", heardOf, 1},
	}},
	{Behavior, []Question{
		{"FL160Q01", "When buying a product, how often do you compare prices in different shops?",
			[]string{"Never", "Rarely", "Sometimes", "Always"}, 1},
		{"FL171Q08", "In the last 12 months, how often have you checked how much money you have?",
			[]string{"Never/Almost never", "Once/twice a year", "Once/twice a month", "Weekly", "Daily"}, 1},
	}},
	{Confidence, []Question{
		{"FL162Q03", "How confident would you feel about understanding bank statements?", confidence, 1},
		{"FL162Q06", "How confident are you about planning spending with consideration of your financial situation?", confidence, 1},
	}},
	{Attitudes, []Question{
		{"FL169Q05", "To what extent do you agree: I know how to manage my money", agreement, 1},
		{"FL169Q10", "To what extent do you agree: I make savings goals for things I want to buy", agreement, 1},
	}},
}

// Bank returns a copy of the question bank in display order.
func Bank() []Category {
	out := make([]Category, len(bank))
	for i, c := range bank {
		qs := make([]Question, len(c.Questions))
		for j, q := range c.Questions {
			q.Options = slices.Clone(q.Options)
			qs[j] = q
		}
		out[i] = Category{Name: c.Name, Questions: qs}
	}
	return out
}

// CategoryNames lists the categories followed by Overall.
func CategoryNames() []string {
	names := make([]string, 0, len(bank)+1)
	for _, c := range bank {
		names = append(names, c.Name)
	}
	return append(names, Overall)
}

func QuestionCount() int {
	n := 0
	for _, c := range bank {
		n += len(c.Questions)
	}
	return n
}

// FindQuestion returns the question with id and its category name.
func FindQuestion(id string) (Question, string, bool) {
	for _, c := range bank {
		for _, q := range c.Questions {
			if q.ID == id {
				return q, c.Name, true
			}
		}
	}
	return Question{}, "", false
}
