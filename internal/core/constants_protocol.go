package core

// Default config constants
const (
	DefaultPort          = "8080"
	DefaultGinMode       = "release"
	DefaultRoutingConfig = "routing.yaml"
	DefaultModelsFile    = "models.json"
	CORSMaxAge           = "86400"
	DefaultIPRateLimit   = 600
	DefaultMaxBodySize   = 50 << 20
)

// Content type and header constants
const (
	ContentTypeEventStream = "text/event-stream"
	ContentTypeJSON        = "application/json"
	CacheControlNoCache    = "no-cache"
	ConnectionKeepAlive    = "keep-alive"
	HeaderContentType      = "Content-Type"
	HeaderAuthorization    = "Authorization"
	HeaderAccept           = "Accept"
	HeaderCacheControl     = "Cache-Control"
	HeaderConnection       = "Connection"
	HeaderRetryAfter       = "Retry-After"
	HeaderXAPIKey          = "x-api-key"
	HeaderXRequestID       = "X-Request-ID"
	AuthBearerPrefix       = "Bearer "
)

// SSE stream constants
const (
	StreamChunkDoneMessage = "[DONE]"
	StreamChunkPrefix      = "data: "
	StreamEventPrefix      = "event: "
	StreamEventError       = "error"
)

// Caller role constants
const (
	RoleAdmin  = "admin"
	RoleUser   = "user"
	RoleViewer = "viewer"
)

// Health status constants
const (
	HealthStatusHealthy  = "healthy"
	HealthStatusDegraded = "degraded"
)
