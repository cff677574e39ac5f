package core

import (
	"context"
	"time"
)

// Logger interface
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Fatal(format string, args ...any)
}

// StorageInterface persists request statistics
type StorageInterface interface {
	SaveStats(stats *RequestStats) error
	LoadStats() (*RequestStats, error)
	Close() error
}

// ModelStore is the external metadata store. Read-only from the router's side.
type ModelStore interface {
	Get(ctx context.Context, modelID string) (Model, error)
	List(ctx context.Context, filter ModelFilter) ([]Model, error)
}

// IdentityVerifier turns a credential into a caller identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (Caller, error)
}

// Adapter is the part of the provider capability interface shared by all kinds.
type Adapter interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// TextAdapter generates text. StreamText pushes chunks into out in emission
// order and returns when the backend finishes, fails, or ctx is done.
// It must not close out.
type TextAdapter interface {
	Adapter
	GenerateText(ctx context.Context, req *TextRequest) (*TextResult, error)
	StreamText(ctx context.Context, req *TextRequest, out chan<- string) error
}

// ImageAdapter generates images.
type ImageAdapter interface {
	Adapter
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error)
}

// VideoAdapter generates videos.
type VideoAdapter interface {
	Adapter
	GenerateVideo(ctx context.Context, req *VideoRequest) (*VideoResult, error)
}

// ImageBounds are provider-declared limits for image requests.
type ImageBounds struct {
	MaxWidth     int
	MaxHeight    int
	MaxNumImages int
}

// BoundedImageAdapter is implemented by image adapters with tighter limits
// than the global ones.
type BoundedImageAdapter interface {
	ImageAdapter
	ImageBounds() ImageBounds
}

// MetricsCollector interface
type MetricsCollector interface {
	RecordHTTPRequest(duration time.Duration)
	RecordHTTPError()
	RecordCacheHit()
	RecordCacheMiss()
	RecordRateLimited(class string)
	RecordGeneration(kind RequestKind, model, provider string, success bool, duration time.Duration)
	RecordProviderError(provider string, kind ProviderErrorKind)
	StreamStarted()
	StreamFinished()
	GetQPS() float64
}

// NopLogger empty logger implementation
type NopLogger struct{}

func (*NopLogger) Debug(format string, args ...any) {}
func (*NopLogger) Info(format string, args ...any)  {}
func (*NopLogger) Warn(format string, args ...any)  {}
func (*NopLogger) Error(format string, args ...any) {}
func (*NopLogger) Fatal(format string, args ...any) {}

// NopMetrics empty metrics collector implementation
type NopMetrics struct{}

func (*NopMetrics) RecordHTTPRequest(duration time.Duration)                          {}
func (*NopMetrics) RecordHTTPError()                                                  {}
func (*NopMetrics) RecordCacheHit()                                                   {}
func (*NopMetrics) RecordCacheMiss()                                                  {}
func (*NopMetrics) RecordRateLimited(class string)                                    {}
func (*NopMetrics) RecordGeneration(RequestKind, string, string, bool, time.Duration) {}
func (*NopMetrics) RecordProviderError(provider string, kind ProviderErrorKind)       {}
func (*NopMetrics) StreamStarted()                                                    {}
func (*NopMetrics) StreamFinished()                                                   {}
func (*NopMetrics) GetQPS() float64                                                   { return 0 }
