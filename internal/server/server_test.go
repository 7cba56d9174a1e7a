package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"finlit-rag/internal/articles"
	"finlit-rag/internal/config"
	"finlit-rag/internal/fintools"
	"finlit-rag/internal/llmservice"
	"finlit-rag/internal/models"
	"finlit-rag/internal/quiz"
	"finlit-rag/internal/rag"
	"finlit-rag/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

const adminPassword = "s3cret"

var fixedNow = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

// fakeAsker streams the given fragments after a delay.
type fakeAsker struct {
	fragments []string
	delay     time.Duration
	sources   []models.Chunk
	err       error
	streamErr error
}

func (f *fakeAsker) Ask(_ context.Context, query string, mode rag.ResponseMode) (*rag.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &rag.Answer{
		Query:   query,
		Mode:    mode,
		Sources: f.sources,
		Stream: func(yield func(string, error) bool) {
			time.Sleep(f.delay)
			for _, frag := range f.fragments {
				if !yield(frag, nil) {
					return
				}
			}
			if f.streamErr != nil {
				yield("", f.streamErr)
			}
		},
	}, nil
}

type fakeSearcher struct {
	docs []schema.Document
}

func (f *fakeSearcher) SimilaritySearch(_ context.Context, _ string, k int) ([]schema.Document, error) {
	return f.docs[:min(k, len(f.docs))], nil
}

func (f *fakeSearcher) MaxMarginalRelevanceSearch(_ context.Context, _ string, k, _ int, _ float64) ([]schema.Document, error) {
	return f.docs[:min(k, len(f.docs))], nil
}

type testEnv struct {
	handler http.Handler
	store   *store.FileStore
	asker   *fakeAsker

	mu     sync.Mutex
	models []string
}

func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	env := &testEnv{
		store: store.NewFileStore(filepath.Join(dir, "test_results.json"), filepath.Join(dir, "user_feedback.json")),
		asker: &fakeAsker{
			fragments: []string{"Save ", "20% ", "of your income."},
			delay:     30 * time.Millisecond,
			sources: []models.Chunk{{
				Text:     "The 50/30/20 rule splits income into needs, wants and savings.",
				Metadata: map[string]any{"title": "Smart Budgeting Technique", "page": 2},
			}},
		},
	}
	searcher := &fakeSearcher{docs: []schema.Document{
		{PageContent: "Keep three to six months of expenses.", Metadata: map[string]any{"source": "emergency.pdf", "title": "Emergency Fund"}},
		{PageContent: "Automate your savings.", Metadata: map[string]any{"url": "https://www.kwsp.gov.my/savings"}},
	}}

	opts := Options{
		Config: config.ServerConfig{
			Addr:           ":0",
			AllowedOrigins: []string{"http://localhost:3000"},
			AdminPassword:  adminPassword,
		},
		Sessions: quiz.NewSessions("base-model", rag.Strict),
		Store:    env.store,
		Chains: func(model string) (Asker, error) {
			env.mu.Lock()
			env.models = append(env.models, model)
			env.mu.Unlock()
			return env.asker, nil
		},
		Formatter:        rag.NewFormatter(articles.MustDefault()),
		Tools:            fintools.NewToolbox(searcher),
		Searcher:         searcher,
		Models:           []string{"base-model", "finetuned-model"},
		ThinkingInterval: 5 * time.Millisecond,
		Now:              func() time.Time { return fixedNow },
	}
	for _, m := range mutate {
		m(&opts)
	}
	env.handler = New(opts).Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	switch b := body.(type) {
	case nil:
		r = bytes.NewReader(nil)
	case string:
		r = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) newSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/session", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	return decode[sessionView](t, w).UserID
}

// answersAt picks the option at pick(options) for every question.
func answersAt(pick func(n int) int) map[string]string {
	out := map[string]string{}
	for _, c := range quiz.Bank() {
		for _, q := range c.Questions {
			out[q.ID] = q.Options[pick(len(q.Options))]
		}
	}
	return out
}

func lowest(int) int    { return 0 }
func highest(n int) int { return n - 1 }

var participant = &quiz.ParticipantInfo{Age: 22, Education: "Bachelor's", Gender: "Female", Occupation: "Student"}

func (e *testEnv) completePreTest(t *testing.T, id string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/session/"+id+"/quiz/pre", quizSubmission{Answers: answersAt(lowest), Participant: participant})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

type sseEvent struct {
	Name string
	Data map[string]any
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		var ev sseEvent
		var data string
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event:"):
				ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data += strings.TrimPrefix(line, "data:")
			}
		}
		require.NoError(t, json.Unmarshal([]byte(data), &ev.Data), block)
		events = append(events, ev)
	}
	return events
}

func names(events []sseEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Name
	}
	return out
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "/api/session")
}

func TestQuizQuestions(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/quiz/questions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct {
		Categories    []quiz.Category     `json:"categories"`
		Participant   map[string][]string `json:"participant"`
		QuestionCount int                 `json:"question_count"`
	}](t, w)
	assert.Len(t, body.Categories, 4)
	assert.Equal(t, quiz.QuestionCount(), body.QuestionCount)
	assert.Contains(t, body.Participant["occupation"], "Student")
}

func TestSession(t *testing.T) {
	env := newTestEnv(t)

	t.Run("create and get", func(t *testing.T) {
		id := env.newSession(t)
		w := env.do(t, http.MethodGet, "/api/session/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)
		sess := decode[sessionView](t, w)
		assert.Equal(t, quiz.PageWelcome, sess.Page)
		assert.Equal(t, "base-model", sess.Model)
		assert.Equal(t, rag.Strict, sess.Mode)
		assert.Zero(t, sess.Progress)
	})

	t.Run("unknown", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/session/nobody", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decode[ErrorEnvelope](t, w).Error.Code)
	})

	t.Run("reset issues a new id", func(t *testing.T) {
		id := env.newSession(t)
		env.completePreTest(t, id)
		w := env.do(t, http.MethodPost, "/api/session/"+id+"/reset", nil)
		require.Equal(t, http.StatusOK, w.Code)
		fresh := decode[sessionView](t, w)
		assert.NotEqual(t, id, fresh.UserID)
		assert.False(t, fresh.PreTestCompleted)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/session/"+id, nil).Code)
	})
}

func TestChangePage(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	path := "/api/session/" + id + "/page"

	w := env.do(t, http.MethodPost, path, gin.H{"page": "pre_test"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, quiz.PagePreTest, decode[sessionView](t, w).Page)

	w = env.do(t, http.MethodPost, path, gin.H{"page": "chatbot"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, path, gin.H{"page": "nowhere"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, path, gin.H{"page": "admin"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, path, gin.H{"page": "admin"}, adminHeader, adminPassword)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, quiz.PageAdmin, decode[sessionView](t, w).Page)
}

func TestUpdateSettings(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	path := "/api/session/" + id + "/settings"

	tests := []struct {
		name     string
		body     gin.H
		wantCode int
	}{
		{"switch model", gin.H{"model": "finetuned-model"}, http.StatusOK},
		{"switch mode", gin.H{"rag_mode": "hybrid"}, http.StatusOK},
		{"unknown model", gin.H{"model": "gpt-x"}, http.StatusBadRequest},
		{"unknown mode", gin.H{"rag_mode": "creative"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}

	sess := decode[sessionView](t, env.do(t, http.MethodGet, "/api/session/"+id, nil))
	assert.Equal(t, "finetuned-model", sess.Model)
	assert.Equal(t, rag.Hybrid, sess.Mode)
}

func TestSubmitQuiz(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		testType string
		body     any
		wantCode int
	}{
		{"pre-test without participant", "pre", quizSubmission{Answers: answersAt(lowest)}, http.StatusBadRequest},
		{"participant too young", "pre", quizSubmission{Answers: answersAt(lowest), Participant: &quiz.ParticipantInfo{Age: 12, Education: "Diploma", Gender: "Male", Occupation: "Student"}}, http.StatusBadRequest},
		{"missing answer", "pre", quizSubmission{Answers: map[string]string{"FL164Q01": "Know what it means"}, Participant: participant}, http.StatusBadRequest},
		{"unknown test type", "mid", quizSubmission{Answers: answersAt(lowest)}, http.StatusBadRequest},
		{"post before pre", "post", quizSubmission{Answers: answersAt(highest)}, http.StatusConflict},
		{"malformed body", "pre", `{"answers":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := env.newSession(t)
			w := env.do(t, http.MethodPost, "/api/session/"+id+"/quiz/"+tt.testType, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())

			sess := decode[sessionView](t, env.do(t, http.MethodGet, "/api/session/"+id, nil))
			assert.False(t, sess.PreTestCompleted)
		})
	}

	results, err := env.store.Results(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChat_RequiresPreTest(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)

	w := env.do(t, http.MethodPost, "/api/session/"+id+"/chat", gin.H{"message": "hello"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, env.models)
}

func TestChat_EmptyMessage(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	env.completePreTest(t, id)

	w := env.do(t, http.MethodPost, "/api/session/"+id+"/chat", gin.H{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat_Stream(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	env.completePreTest(t, id)

	w := env.do(t, http.MethodPost, "/api/session/"+id+"/chat", gin.H{"message": "How do I budget?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream"), w.Header().Get("Content-Type"))

	events := parseSSE(t, w.Body.String())
	got := names(events)
	require.NotEmpty(t, got)
	assert.Equal(t, eventThinking, got[0])

	firstToken := -1
	var text strings.Builder
	for i, ev := range events {
		if ev.Name == eventToken {
			if firstToken < 0 {
				firstToken = i
			}
			text.WriteString(ev.Data["text"].(string))
		}
	}
	require.Positive(t, firstToken)
	assert.NotContains(t, got[firstToken:], eventThinking)
	assert.Equal(t, "Save 20% of your income.", text.String())
	assert.Equal(t, []string{eventSources, eventDone}, got[len(got)-2:])

	sources := events[len(events)-2].Data
	assert.EqualValues(t, 1, sources["retrieved_count"])
	list := sources["sources"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "Smart Budgeting Technique", list[0].(map[string]any)["title"])

	done := events[len(events)-1].Data
	assert.Equal(t, "base-model", done["model"])
	assert.Equal(t, "Strict", done["rag_mode"])

	sess := decode[sessionView](t, env.do(t, http.MethodGet, "/api/session/"+id, nil))
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "user", sess.Messages[0].Role)
	assert.Equal(t, "assistant", sess.Messages[1].Role)
	assert.Equal(t, "Save 20% of your income.", sess.Messages[1].Content)
	assert.Equal(t, 1, sess.Messages[1].RetrievedCount)
	assert.Equal(t, 67, sess.Progress)
	assert.Equal(t, []string{"base-model"}, env.models)

	w = env.do(t, http.MethodDelete, "/api/session/"+id+"/chat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[sessionView](t, w).Messages)
}

func TestChat_Failures(t *testing.T) {
	tests := []struct {
		name  string
		asker *fakeAsker
	}{
		{"ask fails", &fakeAsker{err: errors.New("vector store offline")}},
		{"stream fails", &fakeAsker{fragments: []string{"Partial"}, streamErr: errors.New("connection reset")}},
		{"empty answer", &fakeAsker{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.asker = tt.asker
			id := env.newSession(t)
			env.completePreTest(t, id)

			w := env.do(t, http.MethodPost, "/api/session/"+id+"/chat", gin.H{"message": "What is ASB?"})
			require.Equal(t, http.StatusOK, w.Code)
			events := parseSSE(t, w.Body.String())
			require.NotEmpty(t, events)
			last := events[len(events)-1]
			assert.Equal(t, eventError, last.Name)
			assert.NotContains(t, names(events), eventDone)

			sess := decode[sessionView](t, env.do(t, http.MethodGet, "/api/session/"+id, nil))
			assert.Len(t, sess.Messages, 1)
		})
	}
}

func TestChat_ModelUnavailable(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Chains = func(model string) (Asker, error) {
			return nil, fmt.Errorf("%w: %s", llmservice.ErrModelNotAllowed, model)
		}
	})
	id := env.newSession(t)
	env.completePreTest(t, id)

	w := env.do(t, http.MethodPost, "/api/session/"+id+"/chat", gin.H{"message": "What is ASB?"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, w.Header().Get("Content-Type"), "text/event-stream")

	sess := decode[sessionView](t, env.do(t, http.MethodGet, "/api/session/"+id, nil))
	assert.Empty(t, sess.Messages)
}

func TestStudyFlow(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	base := "/api/session/" + id

	w := env.do(t, http.MethodGet, base+"/results", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	env.completePreTest(t, id)
	w = env.do(t, http.MethodPost, base+"/chat", gin.H{"message": "What is compound interest?"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, base+"/quiz/post", quizSubmission{Answers: answersAt(highest)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	submitted := decode[struct {
		Session sessionView `json:"session"`
		Scores  quiz.Scores `json:"scores"`
	}](t, w)
	assert.Equal(t, quiz.PageResults, submitted.Session.Page)
	assert.Equal(t, 100, submitted.Session.Progress)
	assert.InDelta(t, 100.0, submitted.Scores[quiz.Overall], 0.001)

	w = env.do(t, http.MethodGet, base+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[resultsView](t, w)
	assert.Equal(t, quiz.CategoryNames(), res.Categories)
	assert.InDelta(t, 0.0, res.Pre[quiz.Overall], 0.001)
	assert.InDelta(t, 100.0, res.Improvement[quiz.Overall], 0.001)
	assert.Equal(t, "Excellent Progress! You improved by 100.0% overall!", res.Verdict)

	results, err := env.store.Results(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, quiz.PreTest, results[0].TestType)
	assert.Equal(t, participant, results[0].ParticipantInfo)
	assert.Equal(t, quiz.PostTest, results[1].TestType)
	assert.Equal(t, "2025-03-01T10:30:00Z", results[1].Timestamp)
}

func TestFeedback(t *testing.T) {
	env := newTestEnv(t)
	id := env.newSession(t)
	base := "/api/session/" + id

	tests := []struct {
		name     string
		path     string
		body     gin.H
		wantCode int
	}{
		{"helpful", base + "/feedback", gin.H{"question": "q", "answer": "a", "rating": "helpful", "sources_count": 2}, http.StatusCreated},
		{"bad rating", base + "/feedback", gin.H{"question": "q", "answer": "a", "rating": "meh"}, http.StatusBadRequest},
		{"general", base + "/feedback/general", gin.H{"feedback_text": "Very useful", "rating": "excellent"}, http.StatusCreated},
		{"general without text", base + "/feedback/general", gin.H{"feedback_text": " ", "rating": "good"}, http.StatusBadRequest},
		{"unknown session", "/api/session/nobody/feedback", gin.H{"rating": "helpful"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}

	feedback, err := env.store.Feedback(context.Background())
	require.NoError(t, err)
	require.Len(t, feedback, 2)
	assert.Equal(t, store.FeedbackResponse, feedback[0].FeedbackType)
	assert.Equal(t, store.FeedbackGeneral, feedback[1].FeedbackType)
	assert.Equal(t, "base-model", feedback[0].ModelUsed)
}

func TestAdmin(t *testing.T) {
	env := newTestEnv(t)
	for range 2 {
		id := env.newSession(t)
		env.completePreTest(t, id)
		w := env.do(t, http.MethodPost, "/api/session/"+id+"/quiz/post", quizSubmission{Answers: answersAt(highest)})
		require.Equal(t, http.StatusOK, w.Code)
	}
	env.completePreTest(t, env.newSession(t))

	t.Run("auth", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/admin/results", nil).Code)
		assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/admin/results", nil, adminHeader, "guess").Code)
	})

	t.Run("results", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/admin/results", nil, adminHeader, adminPassword)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[struct {
			Participants int                `json:"participants"`
			Results      []store.TestResult `json:"results"`
		}](t, w)
		assert.Equal(t, 3, body.Participants)
		assert.Len(t, body.Results, 5)

		w = env.do(t, http.MethodGet, "/api/admin/results?type=post", nil, adminHeader, adminPassword)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[struct {
			Results []store.TestResult `json:"results"`
		}](t, w).Results, 2)

		w = env.do(t, http.MethodGet, "/api/admin/results?type=mid", nil, adminHeader, adminPassword)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("analytics", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/admin/analytics", nil, adminHeader, adminPassword)
		require.Equal(t, http.StatusOK, w.Code)
		report := decode[quiz.Report](t, w)
		assert.Equal(t, 3, report.Participants)
		assert.Equal(t, 2, report.BothTests)
		assert.Equal(t, 2, report.Improved)
		assert.InDelta(t, 100.0, report.AverageImprovement, 0.001)
	})

	t.Run("feedback", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/admin/feedback", nil, adminHeader, adminPassword)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[struct {
			Summary  store.FeedbackSummary `json:"summary"`
			Feedback []store.Feedback      `json:"feedback"`
		}](t, w)
		assert.Zero(t, body.Summary.Total)
		assert.NotNil(t, body.Feedback)
	})
}

func TestAdmin_Disabled(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Config.AdminPassword = "" })
	w := env.do(t, http.MethodGet, "/api/admin/results", nil, adminHeader, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTools(t *testing.T) {
	env := newTestEnv(t)

	t.Run("list", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/tools", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "check_debt_ratio")
		assert.Contains(t, w.Body.String(), "search_by_category")
	})

	t.Run("call", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/tools/check_debt_ratio", gin.H{"monthly_income": 3000, "total_monthly_debt_payments": 900})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var res fintools.DebtResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, 30.0, res.Assessment.DebtToIncomeRatio)
		assert.Equal(t, fintools.DebtHealthy, res.Assessment.Status)
	})

	t.Run("invalid input", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/tools/check_debt_ratio", gin.H{"monthly_income": 0, "total_monthly_debt_payments": 900})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown tool", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/tools/crystal_ball", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)

	t.Run("query", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/search?q=emergency+fund&k=1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		res := decode[fintools.SearchResult](t, w)
		assert.True(t, res.Success)
		require.Len(t, res.Results, 1)
		assert.Equal(t, "emergency.pdf", res.Results[0].Source)
	})

	t.Run("category", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/search?category=saving", nil)
		require.Equal(t, http.StatusOK, w.Code)
		res := decode[fintools.SearchResult](t, w)
		assert.Equal(t, "saving", res.Category)
		assert.Len(t, res.Results, 2)
	})

	t.Run("missing query", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/search", nil).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/search?q=x&k=many", nil).Code)
	})

	t.Run("disabled", func(t *testing.T) {
		off := newTestEnv(t, func(o *Options) { o.Searcher = nil })
		assert.Equal(t, http.StatusServiceUnavailable, off.do(t, http.MethodGet, "/api/search?q=x", nil).Code)
	})
}

func TestStartThinking(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	w := &eventWriter{c: c}

	stop := startThinking(w, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	stop()
	stop()
	n := strings.Count(rec.Body.String(), "event:thinking")
	time.Sleep(5 * time.Millisecond)

	assert.GreaterOrEqual(t, n, 2)
	assert.Equal(t, n, strings.Count(rec.Body.String(), "event:thinking"))
	assert.Contains(t, rec.Body.String(), "chatbot is thinking")
}
