package server

import (
	"context"
	"errors"
	"net/http"

	"genrouter/internal/core"
	"genrouter/internal/stream"

	"github.com/gin-gonic/gin"
)

func (s *Server) generateText(c *gin.Context) {
	var req core.TextRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.Stream {
		s.streamText(c, &req)
		return
	}
	s.generate(c, &req)
}

func (s *Server) generateImage(c *gin.Context) {
	var req core.ImageRequest
	if !s.bindJSON(c, &req) {
		return
	}
	s.generate(c, &req)
}

func (s *Server) generateVideo(c *gin.Context) {
	var req core.VideoRequest
	if !s.bindJSON(c, &req) {
		return
	}
	s.generate(c, &req)
}

func (s *Server) generate(c *gin.Context, req core.GenerationRequest) {
	res, err := s.gen.Generate(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, res)
}

// streamText relays a streamed generation as SSE. Setup failures are
// answered with the JSON error envelope since no stream has started yet.
func (s *Server) streamText(c *gin.Context, req *core.TextRequest) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := s.gen.GenerateStream(ctx, callerFrom(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	stream.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)

	enc := stream.NewEncoder(c.Writer)
	if err := enc.Pump(ctx, cancel, events); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("stream for model %s ended early [%s]: %v", req.ModelID, c.GetString(ctxKeyRequestID), err)
	}
}
