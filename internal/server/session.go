package server

import (
	"fmt"
	"net/http"
	"slices"

	"finlit-rag/internal/quiz"
	"finlit-rag/internal/rag"
	"finlit-rag/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type sessionView struct {
	quiz.Session
	Progress int `json:"progress"`
}

func viewOf(s quiz.Session) sessionView {
	return sessionView{Session: s, Progress: s.Progress()}
}

func (s *Server) quizQuestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"categories":     quiz.Bank(),
		"participant":    quiz.ParticipantChoices(),
		"question_count": quiz.QuestionCount(),
	})
}

func (s *Server) createSession(c *gin.Context) {
	sess, err := s.opts.Sessions.Create()
	if err != nil {
		respondError(c, err)
		return
	}
	log.Info().Str("user_id", sess.UserID).Msg("Session created")
	c.JSON(http.StatusCreated, viewOf(sess))
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.opts.Sessions.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(sess))
}

// resetSession replaces the session with a fresh one for the next
// participant.
func (s *Server) resetSession(c *gin.Context) {
	sess, err := s.opts.Sessions.Reset(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(sess))
}

func (s *Server) changePage(c *gin.Context) {
	var req struct {
		Page string `json:"page" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	page, err := quiz.ParsePage(req.Page)
	if err != nil {
		respondError(c, err)
		return
	}
	if page == quiz.PageAdmin {
		if err := s.checkAdmin(c); err != nil {
			respondError(c, err)
			return
		}
	}
	sess, err := s.opts.Sessions.Update(c.Param("id"), func(sess *quiz.Session) error {
		return sess.Advance(page)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(sess))
}

func (s *Server) updateSettings(c *gin.Context) {
	var req struct {
		Model string `json:"model"`
		Mode  string `json:"rag_mode"`
	}
	if !bind(c, &req) {
		return
	}
	if req.Model != "" && !slices.Contains(s.opts.Models, req.Model) {
		respondError(c, fmt.Errorf("%w: unknown model %q", errBadRequest, req.Model))
		return
	}
	var mode rag.ResponseMode
	if req.Mode != "" {
		var err error
		if mode, err = rag.ParseResponseMode(req.Mode); err != nil {
			respondError(c, fmt.Errorf("%w: %w", errBadRequest, err))
			return
		}
	}
	sess, err := s.opts.Sessions.Update(c.Param("id"), func(sess *quiz.Session) error {
		if req.Model != "" {
			sess.Model = req.Model
		}
		if req.Mode != "" {
			sess.Mode = mode
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(sess))
}

type quizSubmission struct {
	Answers     map[string]string     `json:"answers" binding:"required"`
	Participant *quiz.ParticipantInfo `json:"participant_info"`
}

// submitQuiz scores a pre or post test, stores the result and moves the
// session on. Nothing changes if the result cannot be stored.
func (s *Server) submitQuiz(c *gin.Context) {
	testType, err := quiz.ParseTestType(c.Param("type"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req quizSubmission
	if !bind(c, &req) {
		return
	}
	responses, err := quiz.Score(req.Answers)
	if err != nil {
		respondError(c, err)
		return
	}
	scores := quiz.CalculateScores(responses)

	ctx := c.Request.Context()
	sess, err := s.opts.Sessions.Update(c.Param("id"), func(sess *quiz.Session) error {
		next := *sess
		if err := next.CompleteTest(testType, req.Participant, scores); err != nil {
			return err
		}
		result := store.NewTestResult(next.UserID, testType, next.Participant, responses, scores, next.Model, s.opts.Now())
		if err := s.opts.Store.AppendResult(ctx, result); err != nil {
			return fmt.Errorf("save %s-test result: %w", testType, err)
		}
		*sess = next
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	log.Info().Str("user_id", sess.UserID).Str("test", string(testType)).Float64("overall", scores[quiz.Overall]).Msg("Test completed")
	c.JSON(http.StatusOK, gin.H{"session": viewOf(sess), "scores": scores})
}

type resultsView struct {
	Categories  []string    `json:"categories"`
	Pre         quiz.Scores `json:"pre"`
	Post        quiz.Scores `json:"post"`
	Improvement quiz.Scores `json:"improvement"`
	Verdict     string      `json:"verdict"`
}

func (s *Server) results(c *gin.Context) {
	sess, err := s.opts.Sessions.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !sess.PreTestCompleted || !sess.PostTestCompleted {
		respondError(c, fmt.Errorf("%w: both tests must be completed", quiz.ErrInvalidTransition))
		return
	}
	delta := quiz.Improvement(sess.PreScores, sess.PostScores)
	c.JSON(http.StatusOK, resultsView{
		Categories:  quiz.CategoryNames(),
		Pre:         sess.PreScores,
		Post:        sess.PostScores,
		Improvement: delta,
		Verdict:     quiz.Verdict(delta[quiz.Overall]),
	})
}

func (s *Server) responseFeedback(c *gin.Context) {
	var req struct {
		Question     string `json:"question"`
		Answer       string `json:"answer"`
		Rating       string `json:"rating"`
		SourcesCount int    `json:"sources_count"`
	}
	if !bind(c, &req) {
		return
	}
	s.saveFeedback(c, func(sess quiz.Session) store.Feedback {
		return store.NewResponseFeedback(sess.UserID, req.Question, req.Answer, req.Rating, req.SourcesCount, sess.Model, s.opts.Now())
	})
}

func (s *Server) generalFeedback(c *gin.Context) {
	var req struct {
		Text   string `json:"feedback_text"`
		Rating string `json:"rating"`
	}
	if !bind(c, &req) {
		return
	}
	s.saveFeedback(c, func(sess quiz.Session) store.Feedback {
		return store.NewGeneralFeedback(sess.UserID, req.Text, req.Rating, sess.Model, s.opts.Now())
	})
}

func (s *Server) saveFeedback(c *gin.Context, build func(quiz.Session) store.Feedback) {
	sess, err := s.opts.Sessions.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	fb := build(sess)
	if err := s.opts.Store.AppendFeedback(c.Request.Context(), fb); err != nil {
		respondError(c, err)
		return
	}
	log.Info().Str("user_id", sess.UserID).Str("type", fb.FeedbackType).Str("rating", fb.Rating).Msg("Feedback saved")
	c.JSON(http.StatusCreated, fb)
}
