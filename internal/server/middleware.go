package server

import (
	"net/http"
	"strings"
	"time"

	"genrouter/internal/core"
	"genrouter/internal/util"

	"github.com/gin-gonic/gin"
)

func (s *Server) maxBodySizeMiddleware() gin.HandlerFunc {
	limit := s.config.MaxBodySize
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(core.HeaderXRequestID)
		if id == "" {
			id = util.NewRequestID()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(core.HeaderXRequestID, id)
		c.Next()
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.metrics.RecordHTTPRequest(time.Since(start))
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.metrics.RecordHTTPError()
		}
	}
}

// ipRateLimitMiddleware bounds requests per client IP per minute,
// independently of the per-caller generation quotas.
func (s *Server) ipRateLimitMiddleware() gin.HandlerFunc {
	limit := s.config.IPRateLimit
	return func(c *gin.Context) {
		st, ok := s.ipLimiter.Consume(c.ClientIP(), limit, time.Minute)
		if !ok {
			s.metrics.RecordRateLimited("ip")
			s.respondError(c, core.NewRateLimitError(st.ResetAt))
			return
		}
		c.Next()
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowOrigin := s.config.CORSAllowOrigin

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key")
		c.Header("Access-Control-Max-Age", core.CORSMaxAge)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// credential extracts the API key from x-api-key or a Bearer token.
func credential(c *gin.Context) string {
	if apiKey := c.GetHeader(core.HeaderXAPIKey); apiKey != "" {
		return apiKey
	}
	authHeader := c.GetHeader(core.HeaderAuthorization)
	if strings.HasPrefix(authHeader, core.AuthBearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, core.AuthBearerPrefix))
	}
	return ""
}

func (s *Server) authenticateClient(c *gin.Context) {
	key := credential(c)
	if key == "" {
		s.respondError(c, core.NewUnauthenticatedError("API key required in Authorization header (Bearer) or x-api-key header"))
		return
	}

	caller, err := s.verifier.Verify(c.Request.Context(), key)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Set(ctxKeyCaller, caller)
	c.Next()
}

func (s *Server) requireAdmin(c *gin.Context) {
	if !callerFrom(c).IsAdmin() {
		s.respondError(c, core.NewForbiddenError("admin role required"))
		return
	}
	c.Next()
}
