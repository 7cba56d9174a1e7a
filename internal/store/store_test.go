package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"finlit-rag/internal/quiz"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	return NewFileStore(filepath.Join(dir, "data", "test_results.json"), filepath.Join(dir, "data", "user_feedback.json"))
}

func sampleResult(user string, tt quiz.TestType, overall float64) TestResult {
	info := &quiz.ParticipantInfo{Age: 21, Education: "Diploma", Gender: "Female", Occupation: "Student"}
	return NewTestResult(user, tt, info, []quiz.Response{{QuestionID: "FL164Q01", Score: 2}},
		quiz.Scores{quiz.Overall: overall}, "my-finetuned", fixedNow)
}

func TestFileStore_Results(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.Results(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.AppendResult(ctx, sampleResult("u1", quiz.PreTest, 40)))
	require.NoError(t, s.AppendResult(ctx, sampleResult("u1", quiz.PostTest, 55)))

	got, err = s.Results(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-03-01T10:30:00Z", got[0].Timestamp)
	assert.Equal(t, quiz.PostTest, got[1].TestType)
	assert.Equal(t, "Diploma", got[0].ParticipantInfo.Education)

	raw, err := os.ReadFile(s.resultsPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "{\n  \"results\": ["), string(raw))

	r := quiz.Analytics(Outcomes(got))
	assert.Equal(t, 1, r.BothTests)
	assert.InDelta(t, 15, r.AverageImprovement, 1e-9)
}

func TestFileStore_CorruptFileStartsFresh(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.feedbackPath), 0o755))
	require.NoError(t, os.WriteFile(s.feedbackPath, []byte(`{"feedback": [{"user_id": 1`), 0o644))

	got, err := s.Feedback(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.AppendFeedback(ctx, NewResponseFeedback("u1", "q", "a", "helpful", 2, "m", fixedNow)))

	var doc map[string][]map[string]any
	raw, err := os.ReadFile(s.feedbackPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Len(t, doc["feedback"], 1)
}

func TestFileStore_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.ErrorIs(t, s.AppendResult(ctx, sampleResult("", quiz.PreTest, 0)), ErrInvalidRecord)
	assert.ErrorIs(t, s.AppendResult(ctx, sampleResult("u", "mid", 0)), ErrInvalidRecord)
	assert.ErrorIs(t, s.AppendFeedback(ctx, NewResponseFeedback("u", "q", "a", "meh", 0, "m", fixedNow)), ErrInvalidRecord)
	assert.ErrorIs(t, s.AppendFeedback(ctx, NewGeneralFeedback("u", "  ", "good", "m", fixedNow)), ErrInvalidRecord)

	_, err := os.Stat(s.resultsPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendFeedback(ctx, NewResponseFeedback("u", "q", "a", "not_helpful", 0, "m", fixedNow)))
		}()
	}
	wg.Wait()

	got, err := s.Feedback(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestFeedbackConstructors(t *testing.T) {
	long := strings.Repeat("é", 600)
	f := NewResponseFeedback("u", "How to save?", long, "helpful", 3, "llama3.2", fixedNow)
	assert.Equal(t, FeedbackResponse, f.FeedbackType)
	assert.Len(t, []rune(f.Answer), 500)
	assert.Equal(t, 3, f.SourcesCount)
	assert.NoError(t, f.Validate())

	g := NewGeneralFeedback("u", "Loved it", "excellent", "llama3.2", fixedNow)
	assert.Equal(t, "General Feedback", g.Question)
	assert.Equal(t, "N/A", g.Answer)
	assert.Zero(t, g.SourcesCount)
	assert.NoError(t, g.Validate())
}

func TestSummarizeFeedback(t *testing.T) {
	s := SummarizeFeedback([]Feedback{
		{Rating: "helpful"}, {Rating: "helpful"}, {Rating: "not_helpful"}, {Rating: "good"},
	})
	assert.Equal(t, FeedbackSummary{Total: 4, Helpful: 2, NotHelpful: 1}, s)
}

func TestFilterResults(t *testing.T) {
	all := []TestResult{sampleResult("a", quiz.PreTest, 1), sampleResult("a", quiz.PostTest, 2)}
	assert.Len(t, FilterResults(all, ""), 2)
	post := FilterResults(all, quiz.PostTest)
	require.Len(t, post, 1)
	assert.Equal(t, quiz.PostTest, post[0].TestType)
}
