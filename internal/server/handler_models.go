package server

import (
	"strconv"

	"genrouter/internal/core"
	"genrouter/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// parseModelFilter reads ?type=&provider=&enabled=.
func parseModelFilter(c *gin.Context) (core.ModelFilter, error) {
	var filter core.ModelFilter
	if t := c.Query("type"); t != "" {
		filter.Type = core.ModelType(t)
		if !filter.Type.Valid() {
			return filter, core.NewValidationError("invalid model type %q", t)
		}
	}
	filter.Provider = c.Query("provider")
	if raw := c.Query("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, core.NewValidationError("invalid enabled value %q", raw)
		}
		filter.Enabled = &enabled
	}
	return filter, nil
}

func (s *Server) listModels(c *gin.Context) {
	filter, err := parseModelFilter(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	models, err := s.registry.List(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if models == nil {
		models = []core.Model{}
	}
	respondOK(c, models)
}

func (s *Server) getModel(c *gin.Context) {
	model, err := s.registry.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, model)
}

// rateLimitStatus reports the caller's quota in every limited class.
func (s *Server) rateLimitStatus(c *gin.Context) {
	caller := callerFrom(c)
	out := make(map[string]ratelimit.Status)
	for _, class := range s.quotas.Classes() {
		if st, ok := s.quotas.StatusFor(class, caller.ID); ok {
			out[class] = st
		}
	}
	respondOK(c, out)
}

func (s *Server) invalidateModel(c *gin.Context) {
	id := c.Param("id")
	s.registry.Invalidate(id)
	s.logger.Info("Model cache entry %s invalidated by %s", id, callerFrom(c).ID)
	respondOK(c, map[string]string{"invalidated": id})
}

func (s *Server) invalidateCache(c *gin.Context) {
	s.registry.InvalidateAll()
	s.logger.Info("Model cache cleared by %s", callerFrom(c).ID)
	respondOK(c, map[string]bool{"cleared": true})
}
