package provider

import (
	"context"
	"time"

	"genrouter/internal/core"
)

type timeoutAdapter struct {
	inner   core.Adapter
	timeout time.Duration
}

// WithTimeout bounds every non-streaming call to adapter by timeout, on top
// of whatever deadline the caller sets. Streams are left to the router's
// idle timeout. A non-positive timeout returns adapter unchanged.
func WithTimeout(adapter core.Adapter, timeout time.Duration) core.Adapter {
	if timeout <= 0 {
		return adapter
	}
	return &timeoutAdapter{inner: adapter, timeout: timeout}
}

func (t *timeoutAdapter) Name() string {
	return t.inner.Name()
}

func (t *timeoutAdapter) Supports(kind core.RequestKind) bool {
	return supports(t.inner, kind)
}

func (t *timeoutAdapter) HealthCheck(ctx context.Context) error {
	return t.inner.HealthCheck(ctx)
}

func (t *timeoutAdapter) GenerateText(ctx context.Context, req *core.TextRequest) (*core.TextResult, error) {
	a, ok := t.inner.(core.TextAdapter)
	if !ok {
		return nil, core.NewUnsupportedModelTypeError(t.inner.Name(), core.KindText)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return a.GenerateText(ctx, req)
}

func (t *timeoutAdapter) StreamText(ctx context.Context, req *core.TextRequest, out chan<- string) error {
	a, ok := t.inner.(core.TextAdapter)
	if !ok {
		return core.NewUnsupportedModelTypeError(t.inner.Name(), core.KindText)
	}
	return a.StreamText(ctx, req, out)
}

func (t *timeoutAdapter) GenerateImage(ctx context.Context, req *core.ImageRequest) (*core.ImageResult, error) {
	a, ok := t.inner.(core.ImageAdapter)
	if !ok {
		return nil, core.NewUnsupportedModelTypeError(t.inner.Name(), core.KindImage)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return a.GenerateImage(ctx, req)
}

func (t *timeoutAdapter) ImageBounds() core.ImageBounds {
	if a, ok := t.inner.(core.BoundedImageAdapter); ok {
		return a.ImageBounds()
	}
	return core.ImageBounds{}
}

func (t *timeoutAdapter) GenerateVideo(ctx context.Context, req *core.VideoRequest) (*core.VideoResult, error) {
	a, ok := t.inner.(core.VideoAdapter)
	if !ok {
		return nil, core.NewUnsupportedModelTypeError(t.inner.Name(), core.KindVideo)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return a.GenerateVideo(ctx, req)
}
