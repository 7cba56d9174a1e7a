package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"finlit-rag/internal/fintools"

	"github.com/gin-gonic/gin"
)

const maxToolInput = 64 << 10

func (s *Server) listTools(c *gin.Context) {
	type toolInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	var out []toolInfo
	if s.opts.Tools != nil {
		for _, t := range s.opts.Tools.Tools() {
			out = append(out, toolInfo{t.Name(), t.Description()})
		}
	}
	c.JSON(http.StatusOK, gin.H{"tools": out})
}

// callTool runs a calculator with the raw JSON request body as input.
func (s *Server) callTool(c *gin.Context) {
	if s.opts.Tools == nil {
		respondError(c, fmt.Errorf("%w: tools", errUnavailable))
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxToolInput))
	if err != nil {
		respondError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	out, err := s.opts.Tools.Call(c.Request.Context(), c.Param("name"), string(body))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(out))
}

// search queries the knowledge base: ?q= for a diverse search, with
// &category= to search one topic instead, and &k= for the result count.
func (s *Server) search(c *gin.Context) {
	if s.opts.Searcher == nil {
		respondError(c, fmt.Errorf("%w: knowledge search", errUnavailable))
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	category := strings.TrimSpace(c.Query("category"))
	ctx := c.Request.Context()

	if category != "" {
		c.JSON(http.StatusOK, fintools.SearchByCategory(ctx, s.opts.Searcher, category, q))
		return
	}
	if q == "" {
		respondError(c, fmt.Errorf("%w: q or category is required", errBadRequest))
		return
	}
	k := 3
	if raw := c.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, fmt.Errorf("%w: k must be a number", errBadRequest))
			return
		}
		k = n
	}
	c.JSON(http.StatusOK, fintools.SearchKnowledge(ctx, s.opts.Searcher, q, k))
}
