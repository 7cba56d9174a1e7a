package server

import (
	"crypto/subtle"
	"net/http"

	"finlit-rag/internal/quiz"
	"finlit-rag/internal/store"

	"github.com/gin-gonic/gin"
)

const adminHeader = "X-Admin-Password"

// checkAdmin compares the admin header with the configured password. With
// no password configured the dashboard is closed.
func (s *Server) checkAdmin(c *gin.Context) error {
	want := s.opts.Config.AdminPassword
	if want == "" {
		return errForbidden
	}
	got := c.GetHeader(adminHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return errUnauthorized
	}
	return nil
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.checkAdmin(c); err != nil {
			respondError(c, err)
			return
		}
		c.Next()
	}
}

// adminResults lists stored test results, optionally only ?type=pre|post.
func (s *Server) adminResults(c *gin.Context) {
	var testType quiz.TestType
	if t := c.Query("type"); t != "" && t != "all" {
		var err error
		if testType, err = quiz.ParseTestType(t); err != nil {
			respondError(c, err)
			return
		}
	}
	results, err := s.opts.Store.Results(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	users := map[string]bool{}
	for _, r := range results {
		users[r.UserID] = true
	}
	filtered := store.FilterResults(results, testType)
	if filtered == nil {
		filtered = []store.TestResult{}
	}
	c.JSON(http.StatusOK, gin.H{"participants": len(users), "results": filtered})
}

func (s *Server) adminFeedback(c *gin.Context) {
	feedback, err := s.opts.Store.Feedback(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if feedback == nil {
		feedback = []store.Feedback{}
	}
	c.JSON(http.StatusOK, gin.H{"summary": store.SummarizeFeedback(feedback), "feedback": feedback})
}

func (s *Server) adminAnalytics(c *gin.Context) {
	results, err := s.opts.Store.Results(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quiz.Analytics(store.Outcomes(results)))
}
