// Package server is the HTTP transport for the study: sessions, quizzes, the
// streaming chat, feedback, calculators and the admin dashboard.
package server

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"time"

	"finlit-rag/internal/config"
	"finlit-rag/internal/fintools"
	"finlit-rag/internal/quiz"
	"finlit-rag/internal/rag"
	"finlit-rag/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

//go:embed web/index.html
var indexHTML []byte

const (
	defaultThinkingInterval = 500 * time.Millisecond
	shutdownTimeout         = 10 * time.Second
)

// Asker answers one chat question.
type Asker interface {
	Ask(ctx context.Context, query string, mode rag.ResponseMode) (*rag.Answer, error)
}

// ChainFunc returns the chain that answers with the named model.
type ChainFunc func(model string) (Asker, error)

type Options struct {
	Config    config.ServerConfig
	Sessions  *quiz.Sessions
	Store     store.Store
	Chains    ChainFunc
	Formatter *rag.Formatter
	Tools     *fintools.Toolbox
	// Searcher backs /api/search; nil disables it.
	Searcher fintools.Searcher
	// Models are the generation models a session may switch to.
	Models []string

	ThinkingInterval time.Duration
	Now              func() time.Time
}

type Server struct {
	opts   Options
	engine *gin.Engine
}

func New(opts Options) *Server {
	if opts.ThinkingInterval <= 0 {
		opts.ThinkingInterval = defaultThinkingInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{opts: opts}
	s.engine = s.router()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	corsConfig := cors.Config{
		AllowOrigins:     s.opts.Config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", adminHeader},
		AllowCredentials: true,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	router.GET("/healthcheck", healthCheck)

	api := router.Group("/api")
	api.GET("/quiz/questions", s.quizQuestions)
	api.POST("/session", s.createSession)

	session := api.Group("/session/:id")
	session.GET("", s.getSession)
	session.POST("/reset", s.resetSession)
	session.POST("/page", s.changePage)
	session.PUT("/settings", s.updateSettings)
	session.POST("/quiz/:type", s.submitQuiz)
	session.POST("/chat", s.chat)
	session.DELETE("/chat", s.clearChat)
	session.POST("/feedback", s.responseFeedback)
	session.POST("/feedback/general", s.generalFeedback)
	session.GET("/results", s.results)

	api.GET("/tools", s.listTools)
	api.POST("/tools/:name", s.callTool)
	api.GET("/search", s.search)

	admin := api.Group("/admin", s.requireAdmin())
	admin.GET("/results", s.adminResults)
	admin.GET("/feedback", s.adminFeedback)
	admin.GET("/analytics", s.adminAnalytics)

	return router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func healthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("Request")
	}
}
