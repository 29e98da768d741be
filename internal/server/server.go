// Package server wires the HTTP surface of the gateway: routing, credential
// handling and the request handlers that drive the translation engine.
package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/modelbridge/claude-bridge/internal/config"
	"github.com/modelbridge/claude-bridge/internal/httputil"
	"github.com/modelbridge/claude-bridge/internal/metrics"
	"github.com/modelbridge/claude-bridge/internal/provider"
)

const version = "0.1.0"

// clientKeyContext is the gin context key holding the credential extracted
// from the inbound request headers.
const clientKeyContext = "clientAPIKey"

type Server struct {
	cfg     *config.Config
	backend provider.Provider
	metrics *metrics.Registry
	log     *slog.Logger
}

func New(cfg *config.Config, backend provider.Provider, reg *metrics.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, backend: backend, metrics: reg, log: log}
}

// Router builds the gin engine. The /v1 API surface sits behind the auth
// middleware; introspection endpoints do not.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	v1 := router.Group("/v1", s.auth)
	v1.POST("/messages", s.createMessage)
	v1.POST("/messages/count_tokens", s.countTokens)

	router.GET("/health", s.health)
	router.GET("/test-connection", s.testConnection)
	router.GET("/", s.root)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	return router
}

// auth implements the two credential modes. In fixed-key mode an optional
// proxy access key gates entry (byte-for-byte compare); in passthrough mode
// gating is disabled and the client key is carried forward for the backend.
func (s *Server) auth(c *gin.Context) {
	clientKey := httputil.ExtractAPIKey(c.Request.Header)

	if s.cfg.AuthKey != "" && clientKey != s.cfg.AuthKey {
		s.log.Warn("rejected request with invalid proxy authentication key")
		s.metrics.RecordRequest(c.FullPath(), 401)
		c.AbortWithStatusJSON(401, errorBody("authentication_error",
			"Invalid API key. Please provide a valid proxy authentication key."))
		return
	}

	c.Set(clientKeyContext, clientKey)
	c.Next()
}

// resolveKey picks the backend credential for this request: the server-held
// key in fixed-key mode, the client's own key in passthrough mode.
func (s *Server) resolveKey(c *gin.Context) (string, error) {
	if !s.cfg.Passthrough() {
		return s.cfg.OpenAIAPIKey, nil
	}
	if key, _ := c.Get(clientKeyContext); key != nil {
		if k, ok := key.(string); ok && k != "" {
			return k, nil
		}
	}
	return "", provider.ErrNoCredential
}

func errorBody(errType, message string) gin.H {
	return gin.H{
		"type": "error",
		"error": gin.H{
			"type":    errType,
			"message": message,
		},
	}
}
