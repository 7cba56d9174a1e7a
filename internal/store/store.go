// Package store persists quiz results and chatbot feedback.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"finlit-rag/internal/helper"
	"finlit-rag/internal/quiz"
)

var ErrInvalidRecord = errors.New("invalid record")

const (
	FeedbackResponse = "response"
	FeedbackGeneral  = "general"

	// answerLimit is how much of a rated answer is kept.
	answerLimit = 500
)

var (
	responseRatings = []string{"helpful", "not_helpful"}
	generalRatings  = []string{"excellent", "good", "average", "poor"}
)

// Store is implemented by FileStore and the Postgres store in package db.
type Store interface {
	AppendResult(ctx context.Context, r TestResult) error
	AppendFeedback(ctx context.Context, f Feedback) error
	Results(ctx context.Context) ([]TestResult, error)
	Feedback(ctx context.Context) ([]Feedback, error)
}

type TestResult struct {
	UserID          string                `json:"user_id"`
	Timestamp       string                `json:"timestamp"`
	TestType        quiz.TestType         `json:"test_type"`
	ParticipantInfo *quiz.ParticipantInfo `json:"participant_info"`
	Responses       []quiz.Response       `json:"responses"`
	Scores          quiz.Scores           `json:"scores"`
	ModelUsed       string                `json:"model_used"`
}

func NewTestResult(userID string, t quiz.TestType, info *quiz.ParticipantInfo, responses []quiz.Response, scores quiz.Scores, model string, now time.Time) TestResult {
	return TestResult{
		UserID:          userID,
		Timestamp:       now.Format(time.RFC3339),
		TestType:        t,
		ParticipantInfo: info,
		Responses:       responses,
		Scores:          scores,
		ModelUsed:       model,
	}
}

func (r TestResult) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidRecord)
	}
	if _, err := quiz.ParseTestType(string(r.TestType)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}

// Outcome reduces the result to what quiz.Analytics needs.
func (r TestResult) Outcome() quiz.Outcome {
	return quiz.Outcome{UserID: r.UserID, TestType: r.TestType, Overall: r.Scores[quiz.Overall]}
}

func Outcomes(results []TestResult) []quiz.Outcome {
	out := make([]quiz.Outcome, len(results))
	for i, r := range results {
		out[i] = r.Outcome()
	}
	return out
}

// FilterResults keeps results of the given test type; an empty type keeps all.
func FilterResults(results []TestResult, t quiz.TestType) []TestResult {
	if t == "" {
		return results
	}
	var out []TestResult
	for _, r := range results {
		if r.TestType == t {
			out = append(out, r)
		}
	}
	return out
}

type Feedback struct {
	UserID       string `json:"user_id"`
	Timestamp    string `json:"timestamp"`
	FeedbackType string `json:"feedback_type"`
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	Rating       string `json:"rating"`
	SourcesCount int    `json:"sources_count"`
	ModelUsed    string `json:"model_used"`
	FeedbackText string `json:"feedback_text,omitempty"`
}

// NewResponseFeedback rates a single chatbot answer.
func NewResponseFeedback(userID, question, answer, rating string, sourcesCount int, model string, now time.Time) Feedback {
	return Feedback{
		UserID:       userID,
		Timestamp:    now.Format(time.RFC3339),
		FeedbackType: FeedbackResponse,
		Question:     question,
		Answer:       helper.Truncate(answer, answerLimit),
		Rating:       rating,
		SourcesCount: sourcesCount,
		ModelUsed:    model,
	}
}

// NewGeneralFeedback records the end-of-study survey.
func NewGeneralFeedback(userID, text, rating, model string, now time.Time) Feedback {
	return Feedback{
		UserID:       userID,
		Timestamp:    now.Format(time.RFC3339),
		FeedbackType: FeedbackGeneral,
		Question:     "General Feedback",
		Answer:       "N/A",
		Rating:       rating,
		ModelUsed:    model,
		FeedbackText: text,
	}
}

func (f Feedback) Validate() error {
	if f.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidRecord)
	}
	switch f.FeedbackType {
	case FeedbackResponse:
		if !slices.Contains(responseRatings, f.Rating) {
			return fmt.Errorf("%w: rating %q", ErrInvalidRecord, f.Rating)
		}
	case FeedbackGeneral:
		if !slices.Contains(generalRatings, f.Rating) {
			return fmt.Errorf("%w: rating %q", ErrInvalidRecord, f.Rating)
		}
		if strings.TrimSpace(f.FeedbackText) == "" {
			return fmt.Errorf("%w: empty feedback text", ErrInvalidRecord)
		}
	default:
		return fmt.Errorf("%w: feedback type %q", ErrInvalidRecord, f.FeedbackType)
	}
	return nil
}

type FeedbackSummary struct {
	Total      int `json:"total"`
	Helpful    int `json:"helpful"`
	NotHelpful int `json:"not_helpful"`
}

func SummarizeFeedback(feedback []Feedback) FeedbackSummary {
	s := FeedbackSummary{Total: len(feedback)}
	for _, f := range feedback {
		switch f.Rating {
		case "helpful":
			s.Helpful++
		case "not_helpful":
			s.NotHelpful++
		}
	}
	return s
}
