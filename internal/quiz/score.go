package quiz

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrUnknownTestType = errors.New("unknown test type")
	ErrUnknownQuestion = errors.New("unknown question")
	ErrInvalidAnswer   = errors.New("answer is not one of the options")
	ErrMissingAnswer   = errors.New("question not answered")

	ErrInvalidParticipant = errors.New("invalid participant info")
)

type TestType string

const (
	PreTest  TestType = "pre"
	PostTest TestType = "post"
)

func ParseTestType(s string) (TestType, error) {
	switch t := TestType(strings.ToLower(strings.TrimSpace(s))); t {
	case PreTest, PostTest:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTestType, s)
}

// Response is one answered question; Score is the option index.
type Response struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Category   string `json:"category"`
	Response   string `json:"response"`
	Score      int    `json:"score"`
}

// Scores maps category names and Overall to percentages.
type Scores map[string]float64

// Score checks answers (question id to option text) against the bank and
// returns responses in bank order. Every question must be answered.
func Score(answers map[string]string) ([]Response, error) {
	for id := range answers {
		if _, _, ok := FindQuestion(id); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, id)
		}
	}

	responses := make([]Response, 0, QuestionCount())
	for _, c := range bank {
		for _, q := range c.Questions {
			answer, ok := answers[q.ID]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingAnswer, q.ID)
			}
			idx, ok := q.OptionIndex(answer)
			if !ok {
				return nil, fmt.Errorf("%w: %s=%q", ErrInvalidAnswer, q.ID, answer)
			}
			responses = append(responses, Response{
				QuestionID: q.ID,
				Question:   q.Text,
				Category:   c.Name,
				Response:   answer,
				Score:      idx,
			})
		}
	}
	return responses, nil
}

// CalculateScores gives each category sum(score)/sum(max score)*100 over the
// answered questions (0 when none were answered) and Overall as the mean of
// the categories.
func CalculateScores(responses []Response) Scores {
	byID := make(map[string]Response, len(responses))
	for _, r := range responses {
		byID[r.QuestionID] = r
	}

	scores := make(Scores, len(bank)+1)
	var sum float64
	for _, c := range bank {
		total, possible := 0, 0
		for _, q := range c.Questions {
			if r, ok := byID[q.ID]; ok {
				total += r.Score
				possible += q.MaxScore()
			}
		}
		pct := 0.0
		if possible > 0 {
			pct = float64(total) / float64(possible) * 100
		}
		scores[c.Name] = pct
		sum += pct
	}
	scores[Overall] = sum / float64(len(bank))
	return scores
}

// Improvement is post minus pre for every category and Overall.
func Improvement(pre, post Scores) Scores {
	out := make(Scores, len(bank)+1)
	for _, name := range CategoryNames() {
		out[name] = post[name] - pre[name]
	}
	return out
}

func Verdict(overallDelta float64) string {
	switch {
	case overallDelta > 15:
		return fmt.Sprintf("Excellent Progress! You improved by %.1f%% overall!", overallDelta)
	case overallDelta > 5:
		return fmt.Sprintf("Good Work! You improved by %.1f%%", overallDelta)
	case overallDelta > 0:
		return fmt.Sprintf("You Improved! +%.1f%%", overallDelta)
	default:
		return "Consider spending more time learning with the chatbot."
	}
}

var (
	educationLevels = []string{"Secondary School", "Diploma", "Bachelor's", "Master's", "PhD", "Other"}
	genders         = []string{"Male", "Female", "Prefer not to say"}
	occupations     = []string{"Student", "Employee", "Self-employed", "Unemployed", "Other"}
)

type ParticipantInfo struct {
	Age        int    `json:"age"`
	Education  string `json:"education"`
	Gender     string `json:"gender"`
	Occupation string `json:"occupation"`
}

func (p ParticipantInfo) Validate() error {
	switch {
	case p.Age < 15 || p.Age > 99:
		return fmt.Errorf("%w: age %d outside 15-99", ErrInvalidParticipant, p.Age)
	case !slices.Contains(educationLevels, p.Education):
		return fmt.Errorf("%w: unknown education level %q", ErrInvalidParticipant, p.Education)
	case !slices.Contains(genders, p.Gender):
		return fmt.Errorf("%w: unknown gender %q", ErrInvalidParticipant, p.Gender)
	case !slices.Contains(occupations, p.Occupation):
		return fmt.Errorf("%w: unknown occupation %q", ErrInvalidParticipant, p.Occupation)
	}
	return nil
}

// ParticipantChoices lists the accepted answers for each demographic field.
func ParticipantChoices() map[string][]string {
	return map[string][]string{
		"education":  slices.Clone(educationLevels),
		"gender":     slices.Clone(genders),
		"occupation": slices.Clone(occupations),
	}
}

// Outcome is the part of a stored result that analytics needs.
type Outcome struct {
	UserID   string
	TestType TestType
	Overall  float64
}

type Report struct {
	Participants       int     `json:"participants"`
	BothTests          int     `json:"users_with_both_tests"`
	AverageImprovement float64 `json:"average_improvement"`
	Improved           int     `json:"users_improved"`
}

// Analytics pairs each user's latest pre and post Overall score.
func Analytics(outcomes []Outcome) Report {
	type pair struct {
		pre, post       float64
		hasPre, hasPost bool
	}
	users := map[string]*pair{}
	var order []string
	for _, o := range outcomes {
		p, ok := users[o.UserID]
		if !ok {
			p = &pair{}
			users[o.UserID] = p
			order = append(order, o.UserID)
		}
		switch o.TestType {
		case PreTest:
			p.pre, p.hasPre = o.Overall, true
		case PostTest:
			p.post, p.hasPost = o.Overall, true
		}
	}

	r := Report{Participants: len(order)}
	var sum float64
	for _, id := range order {
		p := users[id]
		if !p.hasPre || !p.hasPost {
			continue
		}
		delta := p.post - p.pre
		r.BothTests++
		sum += delta
		if delta > 0 {
			r.Improved++
		}
	}
	if r.BothTests > 0 {
		r.AverageImprovement = sum / float64(r.BothTests)
	}
	return r
}
