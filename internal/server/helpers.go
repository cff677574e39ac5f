package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"genrouter/internal/core"

	"github.com/gin-gonic/gin"
)

const (
	ctxKeyCaller    = "caller"
	ctxKeyRequestID = "requestID"
)

// respondOK writes the success envelope.
func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, core.APIResponse{Success: true, Data: data})
}

// respondError maps err onto its status code and writes the error envelope.
// Rate limit errors carry Retry-After in whole seconds.
func (s *Server) respondError(c *gin.Context, err error) {
	e := core.AsError(err)
	status := core.HTTPStatus(e)

	if e.Kind == core.ErrKindRateLimitExceeded && !e.ResetAt.IsZero() {
		c.Header(core.HeaderRetryAfter, retryAfter(e.ResetAt, time.Now()))
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s [%s]: %v", c.Request.Method, c.FullPath(), c.GetString(ctxKeyRequestID), err)
	}

	c.AbortWithStatusJSON(status, core.APIResponse{
		Success: false,
		Error: &core.ErrorBody{
			Code:    string(e.Kind),
			Message: e.Message,
			Details: e.Details(),
		},
	})
}

// retryAfter returns the seconds until resetAt, rounded up, at least 1.
func retryAfter(resetAt, now time.Time) string {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	return strconv.Itoa(max(secs, 1))
}

// callerFrom returns the caller stored by the auth middleware.
func callerFrom(c *gin.Context) core.Caller {
	if v, ok := c.Get(ctxKeyCaller); ok {
		if caller, ok := v.(core.Caller); ok {
			return caller
		}
	}
	return core.Caller{}
}

// bindJSON decodes the request body into v, reporting failures as
// validation errors.
func (s *Server) bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		s.respondError(c, core.NewValidationError("invalid request body: %v", err))
		return false
	}
	return true
}
