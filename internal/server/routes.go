package server

import (
	"github.com/gin-gonic/gin"
)

func (s *Server) setupRoutes() {
	gin.SetMode(s.ginMode)
	s.router = gin.New()

	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.metricsMiddleware())
	s.router.Use(s.corsMiddleware())
	s.router.Use(s.maxBodySizeMiddleware())
	s.router.Use(s.ipRateLimitMiddleware())

	// Public routes (no auth)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/api/stats", s.getStatsData)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Prometheus().Handler()))

	// API routes (auth required)
	api := s.router.Group("/v1")
	api.Use(s.authenticateClient)
	{
		api.POST("/generate/text", s.generateText)
		api.POST("/generate/image", s.generateImage)
		api.POST("/generate/video", s.generateVideo)
		api.GET("/models", s.listModels)
		api.GET("/models/:id", s.getModel)
		api.GET("/ratelimit", s.rateLimitStatus)
	}

	// Admin routes (admin role required)
	admin := s.router.Group("/admin")
	admin.Use(s.authenticateClient, s.requireAdmin)
	{
		admin.POST("/models/:id/invalidate", s.invalidateModel)
		admin.POST("/cache/invalidate", s.invalidateCache)
	}
}
