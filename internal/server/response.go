package server

import (
	"errors"
	"net/http"

	"finlit-rag/internal/fintools"
	"finlit-rag/internal/llmservice"
	"finlit-rag/internal/quiz"
	"finlit-rag/internal/rag"
	"finlit-rag/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	errBadRequest   = errors.New("bad request")
	errUnavailable  = errors.New("not available")
	errUnauthorized = errors.New("admin password required")
	errForbidden    = errors.New("admin access is disabled")
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, quiz.ErrSessionNotFound), errors.Is(err, fintools.ErrUnknownTool):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, quiz.ErrInvalidTransition), errors.Is(err, quiz.ErrPreTestRequired):
		return http.StatusConflict, "wrong_step"
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, errBadRequest),
		errors.Is(err, quiz.ErrUnknownTestType),
		errors.Is(err, quiz.ErrUnknownQuestion),
		errors.Is(err, quiz.ErrInvalidAnswer),
		errors.Is(err, quiz.ErrMissingAnswer),
		errors.Is(err, quiz.ErrInvalidParticipant),
		errors.Is(err, store.ErrInvalidRecord),
		errors.Is(err, fintools.ErrInvalidInput),
		errors.Is(err, rag.ErrEmptyQuery),
		errors.Is(err, llmservice.ErrModelNotAllowed):
		return http.StatusBadRequest, "invalid"
	}
	return http.StatusInternalServerError, "internal"
}

func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: err.Error(), Code: code}})
}

// bind decodes the JSON body into v, reporting failures as bad requests.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, errors.Join(errBadRequest, err))
		return false
	}
	return true
}
