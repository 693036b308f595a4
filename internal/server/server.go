// Package server exposes the pipeline over HTTP. The surface is thin:
// handlers validate shape, serialize imports, and delegate to the engine.
package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/EngSayh/backsync/internal/engine"
	"github.com/EngSayh/backsync/internal/extract"
	"github.com/EngSayh/backsync/internal/reconcile"
)

// Server hosts the HTTP boundary over one engine.
type Server struct {
	eng *engine.Engine
	log zerolog.Logger

	// importMu serializes imports; the merge rules do not support
	// concurrent writers racing on the same key.
	importMu sync.Mutex
}

// New creates a server over the engine.
func New(eng *engine.Engine, log zerolog.Logger) *Server {
	return &Server{eng: eng, log: log}
}

// Router builds the gin handler.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.POST("/issues/import", s.handleImport)
	api.GET("/issues/report", s.handleReport)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

// importResponse is the full sync report: what changed plus the aggregate
// analytics view after the run.
type importResponse struct {
	Result *reconcile.Result `json:"result"`
	Report interface{}       `json:"report,omitempty"`
}

// handleImport accepts either a markdown document (any text content type)
// or a pre-extracted JSON array (application/json) and runs the pipeline.
// A degraded run returns 207 so callers never mistake it for a clean sync.
func (s *Server) handleImport(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 32<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "empty request body"})
		return
	}

	source := c.Query("source")
	if source == "" {
		source = "http-import"
	}

	s.importMu.Lock()
	defer s.importMu.Unlock()

	var result *reconcile.Result
	if strings.HasPrefix(c.ContentType(), "application/json") {
		result, err = s.eng.ImportJSON(c.Request.Context(), body, source)
	} else {
		result, err = s.eng.ImportMarkdown(c.Request.Context(), string(body), source)
	}

	var structural *extract.StructuralError
	switch {
	case errors.As(err, &structural):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": structural.Error()})
		return
	case err != nil && result == nil:
		s.log.Error().Err(err).Str("source", source).Msg("import failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	report, reportErr := s.eng.Report(c.Request.Context())
	resp := importResponse{Result: result}
	if reportErr == nil {
		resp.Report = report
	}

	status := http.StatusOK
	if result.Degraded() || err != nil {
		status = http.StatusMultiStatus
	}
	c.JSON(status, resp)
}

func (s *Server) handleReport(c *gin.Context) {
	report, err := s.eng.Report(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
