package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/modelbridge/claude-bridge/internal/httputil"
	"github.com/modelbridge/claude-bridge/internal/models"
)

func (s *Server) setSSEHeaders(c *gin.Context) {
	httputil.SetSSEHeaders(c.Writer.Header())
}

func (s *Server) writeEvent(c *gin.Context, event models.StreamEvent) error {
	return httputil.WriteEvent(c.Writer, event)
}

func (s *Server) createMessage(c *gin.Context) {
	route := "/v1/messages"

	var req models.MessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.metrics.RecordRequest(route, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, errorBody("invalid_request_error", "Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		s.metrics.RecordRequest(route, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, errorBody("invalid_request_error", err.Error()))
		return
	}

	apiKey, err := s.resolveKey(c)
	if err != nil {
		s.metrics.RecordRequest(route, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, errorBody("api_error", err.Error()))
		return
	}

	requestID := uuid.NewString()
	s.log.Info("processing request",
		"request_id", requestID,
		"model", req.Model,
		"stream", req.Stream,
		"max_tokens", req.MaxTokens,
	)

	if !req.Stream {
		s.completeOnce(c, &req, apiKey, requestID)
		return
	}
	s.streamOnce(c, &req, apiKey, requestID)
}

func (s *Server) completeOnce(c *gin.Context, req *models.MessagesRequest, apiKey, requestID string) {
	route := "/v1/messages"
	resp, err := s.backend.Complete(c.Request.Context(), req, apiKey)
	if err != nil {
		s.log.Error("request failed", "request_id", requestID, "error", err)
		s.metrics.RecordBackendError(s.backend.Name())
		s.metrics.RecordRequest(route, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, errorBody("api_error", err.Error()))
		return
	}
	s.log.Info("request completed", "request_id", requestID)
	s.metrics.RecordRequest(route, http.StatusOK)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) streamOnce(c *gin.Context, req *models.MessagesRequest, apiKey, requestID string) {
	route := "/v1/messages"
	ctx := c.Request.Context()

	stream, err := s.backend.StreamComplete(ctx, req, apiKey)
	if err != nil {
		s.metrics.RecordRequest(route, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, errorBody("api_error", err.Error()))
		return
	}
	defer stream.Close()

	s.setSSEHeaders(c)
	c.Status(http.StatusOK)

	for {
		select {
		case <-ctx.Done():
			// Client went away; the deferred Close releases the backend
			// connection, nothing more to write.
			s.log.Info("client disconnected, stopping stream", "request_id", requestID)
			s.metrics.RecordRequest(route, http.StatusOK)
			return
		default:
		}

		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.log.Error("stream receive failed", "request_id", requestID, "error", err)
			break
		}

		if event.EventType() == models.EventError {
			s.metrics.RecordBackendError(s.backend.Name())
		}
		s.metrics.RecordStreamEvent(event.EventType())
		if err := s.writeEvent(c, event); err != nil {
			s.log.Info("client write failed, stopping stream", "request_id", requestID, "error", err)
			s.metrics.RecordRequest(route, http.StatusOK)
			return
		}
	}

	s.log.Info("stream completed", "request_id", requestID)
	s.metrics.RecordRequest(route, http.StatusOK)
}

func (s *Server) countTokens(c *gin.Context) {
	route := "/v1/messages/count_tokens"

	var req models.TokenCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.metrics.RecordRequest(route, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, errorBody("invalid_request_error", "Invalid JSON format"))
		return
	}

	totalChars := 0
	if req.System != nil {
		totalChars += contentChars(*req.System)
	}
	for _, msg := range req.Messages {
		totalChars += contentChars(msg.Content)
	}

	// Rough estimate: four characters per token, never below one.
	estimated := totalChars / 4
	if estimated < 1 {
		estimated = 1
	}

	s.metrics.RecordRequest(route, http.StatusOK)
	c.JSON(http.StatusOK, models.TokenCountResponse{InputTokens: estimated})
}

// contentChars counts the characters in the text portions of a content
// value; non-text blocks contribute nothing.
func contentChars(content models.MessageContent) int {
	if content.IsText {
		return len(content.Text)
	}
	total := 0
	for _, block := range content.Blocks {
		if block.Type == models.ContentText {
			total += len(block.Text)
		}
	}
	return total
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":              "healthy",
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
		"version":             version,
		"provider":            s.backend.Name(),
		"api_key_configured":  !s.cfg.Passthrough(),
		"auth_key_validation": s.cfg.AuthKey != "",
		"big_model":           s.cfg.BigModel,
		"small_model":         s.cfg.SmallModel,
	})
}

func (s *Server) testConnection(c *gin.Context) {
	if s.cfg.Passthrough() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "failed",
			"error":     "connection test requires a configured OPENAI_API_KEY",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	testReq := &models.MessagesRequest{
		Model:     "claude-3-5-haiku-20241022",
		MaxTokens: 16,
		Messages: []models.Message{
			{Role: models.RoleUser, Content: models.TextContent("Hello")},
		},
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	resp, err := s.backend.Complete(ctx, testReq, s.cfg.OpenAIAPIKey)
	if err != nil {
		s.log.Error("connection test failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "failed",
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"suggestions": []string{
				"Check your OPENAI_API_KEY is valid",
				"Verify API key permissions",
				"Check rate limits and quotas",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"message":     "Successfully connected to target API",
		"model_used":  s.cfg.SmallModel,
		"response_id": resp.ID,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "claude-bridge v" + version,
		"status":  "running",
		"config": gin.H{
			"provider":            s.backend.Name(),
			"openai_base_url":     s.cfg.OpenAIBaseURL,
			"max_tokens_limit":    s.cfg.MaxTokensLimit,
			"api_key_configured":  !s.cfg.Passthrough(),
			"auth_key_validation": s.cfg.AuthKey != "",
			"big_model":           s.cfg.BigModel,
			"middle_model":        s.cfg.MiddleModel,
			"small_model":         s.cfg.SmallModel,
		},
		"endpoints": gin.H{
			"messages":        "/v1/messages",
			"count_tokens":    "/v1/messages/count_tokens",
			"health":          "/health",
			"test_connection": "/test-connection",
			"metrics":         "/metrics",
		},
	})
}
