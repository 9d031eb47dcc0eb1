// Package api holds the feature routers mounted on the server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"issuewiz/internal/analysis"
	"issuewiz/internal/models"
	"issuewiz/internal/server"
	"issuewiz/logging"

	"github.com/gin-gonic/gin"
)

// Analyzer produces an analysis for a validated request.
type Analyzer interface {
	Analyze(ctx context.Context, req *models.AnalyzeIssueRequest, progress analysis.ProgressFunc) (*models.IssueAnalysis, error)
}

// ModelsRouter serves the AI analysis endpoints.
type ModelsRouter struct {
	analyzer     Analyzer
	maxBodyBytes int64
}

// NewModelsRouter creates the router. Bodies above maxBodyBytes are rejected.
func NewModelsRouter(analyzer Analyzer, maxBodyBytes int64) *ModelsRouter {
	return &ModelsRouter{analyzer: analyzer, maxBodyBytes: maxBodyBytes}
}

// Routes implements server.Router.
func (m *ModelsRouter) Routes() []server.Route {
	return []server.Route{
		{Method: http.MethodPost, Path: "/analyze-issue", Summary: "Analyze Issue", Handler: m.AnalyzeIssue},
		{Method: http.MethodPost, Path: "/analyze-issue/stream", Summary: "Analyze Issue (streaming)", Handler: m.AnalyzeIssueStream},
	}
}

// AnalyzeIssue handles POST /analyze-issue.
func (m *ModelsRouter) AnalyzeIssue(c *gin.Context) {
	req, ok := m.bind(c)
	if !ok {
		return
	}

	result, err := m.analyzer.Analyze(c.Request.Context(), req, nil)
	if err != nil {
		logging.FromContext(c).WithError(err).Error("Issue analysis failed")
		c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Issue analysis process failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.AnalyzeIssueResponse{Reply: result})
}

// AnalyzeIssueStream handles POST /analyze-issue/stream. Validation errors
// are answered before the stream starts; afterwards everything is an event.
func (m *ModelsRouter) AnalyzeIssueStream(c *gin.Context) {
	req, ok := m.bind(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	send := func(ev models.ProgressEvent) {
		c.SSEvent(ev.Type, ev)
		c.Writer.Flush()
	}

	result, err := m.analyzer.Analyze(c.Request.Context(), req, send)
	if err != nil {
		logging.FromContext(c).WithError(err).Error("Streaming issue analysis failed")
		send(models.ProgressEvent{Type: "error", Step: "final", Message: "Issue analysis process failed", Data: err.Error()})
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		send(models.ProgressEvent{Type: "error", Step: "final", Message: "Issue analysis process failed", Data: err.Error()})
		return
	}
	send(models.ProgressEvent{Type: "result", Step: "final", Message: "Analysis completed", Data: string(data)})
}

// bind reads and validates the request body, answering the client itself
// when that fails.
func (m *ModelsRouter) bind(c *gin.Context) (*models.AnalyzeIssueRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, m.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return nil, false
	}

	req, err := models.DecodeAnalyzeIssueRequest(body)
	if err != nil {
		var verr *models.SchemaValidationError
		if errors.As(err, &verr) {
			logging.FromContext(c).Warnf("Rejected request: %v", verr)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "request validation failed", "details": verr.Errors})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return req, true
}
