package quiz

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"finlit-rag/internal/helper"
	"finlit-rag/internal/rag"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid page transition")
	ErrPreTestRequired   = errors.New("pre-test not completed")
)

type Page string

const (
	PageWelcome  Page = "welcome"
	PagePreTest  Page = "pre_test"
	PageChatbot  Page = "chatbot"
	PagePostTest Page = "post_test"
	PageResults  Page = "results"
	PageAdmin    Page = "admin"
)

func ParsePage(s string) (Page, error) {
	p := Page(s)
	if _, ok := transitions[p]; !ok {
		return "", fmt.Errorf("%w: unknown page %q", ErrInvalidTransition, s)
	}
	return p, nil
}

// transitions lists where each page may go next; admin and welcome are
// always reachable.
var transitions = map[Page][]Page{
	PageWelcome:  {PagePreTest},
	PagePreTest:  {PageChatbot},
	PageChatbot:  {PagePostTest},
	PagePostTest: {PageResults, PageChatbot},
	PageResults:  {},
	PageAdmin:    {},
}

type Message struct {
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	Sources        []rag.Source `json:"sources,omitempty"`
	Model          string       `json:"model,omitempty"`
	Mode           string       `json:"rag_mode,omitempty"`
	RetrievedCount int          `json:"retrieved_count"`
}

// Session is everything one participant carries through the study flow.
type Session struct {
	UserID            string           `json:"user_id"`
	Page              Page             `json:"current_page"`
	PreTestCompleted  bool             `json:"pre_test_completed"`
	PostTestCompleted bool             `json:"post_test_completed"`
	PreScores         Scores           `json:"pre_test_scores,omitempty"`
	PostScores        Scores           `json:"post_test_scores,omitempty"`
	Participant       *ParticipantInfo `json:"participant_info,omitempty"`
	Messages          []Message        `json:"messages"`
	Model             string           `json:"selected_model"`
	Mode              rag.ResponseMode `json:"rag_mode"`
	CreatedAt         time.Time        `json:"created_at"`
}

func NewSession(userID, model string, mode rag.ResponseMode) *Session {
	s := &Session{UserID: userID}
	s.reset(model, mode)
	return s
}

func (s *Session) reset(model string, mode rag.ResponseMode) {
	s.Page = PageWelcome
	s.PreTestCompleted = false
	s.PostTestCompleted = false
	s.PreScores = nil
	s.PostScores = nil
	s.Participant = nil
	s.Messages = nil
	s.Model = model
	s.Mode = mode
	s.CreatedAt = time.Now()
}

// Progress is 33 for the pre-test, 34 once chatting started and 33 for the
// post-test.
func (s *Session) Progress() int {
	p := 0
	if s.PreTestCompleted {
		p += 33
	}
	if len(s.Messages) > 0 {
		p += 34
	}
	if s.PostTestCompleted {
		p += 33
	}
	return p
}

// Advance moves to page if the flow allows it.
func (s *Session) Advance(to Page) error {
	if to == PageAdmin || to == PageWelcome || to == s.Page {
		s.Page = to
		return nil
	}
	for _, next := range transitions[s.Page] {
		if next == to {
			if to == PageChatbot && !s.PreTestCompleted {
				return ErrPreTestRequired
			}
			if to == PageResults && !s.PostTestCompleted {
				return fmt.Errorf("%w: post-test not completed", ErrInvalidTransition)
			}
			s.Page = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Page, to)
}

// CompleteTest records scores and moves to the next page: the chatbot
// after the pre-test, results after the post-test.
func (s *Session) CompleteTest(t TestType, info *ParticipantInfo, scores Scores) error {
	switch t {
	case PreTest:
		if info == nil {
			return fmt.Errorf("%w: required for the pre-test", ErrInvalidParticipant)
		}
		if err := info.Validate(); err != nil {
			return err
		}
		s.Participant = info
		s.PreScores = scores
		s.PreTestCompleted = true
		s.Page = PageChatbot
	case PostTest:
		if !s.PreTestCompleted {
			return ErrPreTestRequired
		}
		s.PostScores = scores
		s.PostTestCompleted = true
		s.Page = PageResults
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTestType, t)
	}
	return nil
}

func (s *Session) AddMessage(m Message) {
	s.Messages = append(s.Messages, m)
}

func (s *Session) ClearChat() {
	s.Messages = nil
}

func (s *Session) clone() Session {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	if s.Participant != nil {
		p := *s.Participant
		c.Participant = &p
	}
	return c
}

// NewUserID is a sortable timestamp plus a random suffix.
func NewUserID(now time.Time) (string, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return "", err
	}
	return now.Format("20060102_150405") + "_" + id[:8], nil
}

// Sessions is a concurrency-safe registry of live sessions.
type Sessions struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	defaultModel string
	defaultMode  rag.ResponseMode
}

func NewSessions(defaultModel string, defaultMode rag.ResponseMode) *Sessions {
	return &Sessions{
		sessions:     make(map[string]*Session),
		defaultModel: defaultModel,
		defaultMode:  defaultMode,
	}
}

func (r *Sessions) Create() (Session, error) {
	id, err := NewUserID(time.Now())
	if err != nil {
		return Session{}, err
	}
	s := NewSession(id, r.defaultModel, r.defaultMode)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
	return s.clone(), nil
}

// Get returns a snapshot of the session.
func (r *Sessions) Get(id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s.clone(), nil
}

// Update runs fn on the live session under the registry lock.
func (r *Sessions) Update(id string, fn func(*Session) error) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if err := fn(s); err != nil {
		return s.clone(), err
	}
	return s.clone(), nil
}

// Reset discards the session and starts a fresh one for the next
// participant, restoring the default model and mode.
func (r *Sessions) Reset(id string) (Session, error) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return r.Create()
}

func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
