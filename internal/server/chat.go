package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"finlit-rag/internal/quiz"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Chat stream event names.
const (
	eventThinking = "thinking"
	eventToken    = "token"
	eventSources  = "sources"
	eventDone     = "done"
	eventError    = "error"
)

var thinkingDots = []string{"", ".", "..", "..."}

// eventWriter serializes SSE writes from the handler and the thinking
// ticker.
type eventWriter struct {
	mu sync.Mutex
	c  *gin.Context
}

func (w *eventWriter) send(event string, data any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SSEvent(event, data)
	w.c.Writer.Flush()
}

// startThinking emits a thinking event straight away and then every
// interval. The returned stop waits for the ticker goroutine, so no
// thinking event follows it.
func startThinking(w *eventWriter, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			w.send(eventThinking, gin.H{"text": "chatbot is thinking" + thinkingDots[i%len(thinkingDots)]})
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// chat answers a message as a server-sent event stream: thinking ticks until
// the first fragment, token events, then sources and done. Failures after
// the stream has started arrive as an error event.
func (s *Server) chat(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if !bind(c, &req) {
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		respondError(c, fmt.Errorf("%w: message is empty", errBadRequest))
		return
	}

	id := c.Param("id")
	sess, err := s.opts.Sessions.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !sess.PreTestCompleted {
		respondError(c, quiz.ErrPreTestRequired)
		return
	}
	// The user turn is only recorded once a model can answer it.
	asker, err := s.opts.Chains(sess.Model)
	if err != nil {
		respondError(c, err)
		return
	}
	sess, err = s.opts.Sessions.Update(id, func(sess *quiz.Session) error {
		if !sess.PreTestCompleted {
			return quiz.ErrPreTestRequired
		}
		sess.AddMessage(quiz.Message{Role: "user", Content: message})
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h := c.Writer.Header()
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	w := &eventWriter{c: c}
	stopThinking := startThinking(w, s.opts.ThinkingInterval)
	defer stopThinking()

	ctx := c.Request.Context()
	fail := func(err error) {
		stopThinking()
		log.Error().Err(err).Str("user_id", sess.UserID).Msg("Chat failed")
		w.send(eventError, gin.H{"message": err.Error()})
	}

	ans, err := asker.Ask(ctx, message, sess.Mode)
	if err != nil {
		fail(err)
		return
	}

	var full strings.Builder
	for frag, err := range ans.Stream {
		if err != nil {
			fail(err)
			return
		}
		stopThinking()
		full.WriteString(frag)
		w.send(eventToken, gin.H{"text": frag})
	}
	stopThinking()
	if full.Len() == 0 {
		fail(errors.New("the model returned an empty answer"))
		return
	}

	sources := s.opts.Formatter.FormatAll(ans.Sources)
	reply := quiz.Message{
		Role:           "assistant",
		Content:        full.String(),
		Sources:        sources,
		Model:          sess.Model,
		Mode:           sess.Mode.String(),
		RetrievedCount: len(ans.Sources),
	}
	if _, err := s.opts.Sessions.Update(id, func(sess *quiz.Session) error {
		sess.AddMessage(reply)
		return nil
	}); err != nil {
		log.Warn().Err(err).Str("user_id", sess.UserID).Msg("Reply not recorded")
	}

	w.send(eventSources, gin.H{"sources": sources, "retrieved_count": reply.RetrievedCount})
	w.send(eventDone, gin.H{"model": reply.Model, "rag_mode": reply.Mode, "retrieved_count": reply.RetrievedCount})
}

func (s *Server) clearChat(c *gin.Context) {
	sess, err := s.opts.Sessions.Update(c.Param("id"), func(sess *quiz.Session) error {
		sess.ClearChat()
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(sess))
}
