package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"genrouter/internal/core"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker placed in front of an adapter.
type BreakerConfig struct {
	FailureLimit  uint32
	OpenTimeout   time.Duration
	HalfOpenProbe uint32
}

// DefaultBreakerConfig returns the default breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureLimit:  core.BreakerFailureLimit,
		OpenTimeout:   core.BreakerOpenTimeout,
		HalfOpenProbe: core.BreakerHalfOpenProbes,
	}
}

type breakerAdapter struct {
	inner core.Adapter
	cb    *gobreaker.CircuitBreaker
}

// WithBreaker wraps adapter in a circuit breaker. After FailureLimit
// consecutive failures calls fail fast with an unreachable provider error
// until OpenTimeout elapses. Caller cancellations and rejected requests do
// not count as failures.
func WithBreaker(adapter core.Adapter, cfg BreakerConfig, logger core.Logger) core.Adapter {
	if logger == nil {
		logger = &core.NopLogger{}
	}
	limit := cfg.FailureLimit
	if limit == 0 {
		limit = core.BreakerFailureLimit
	}
	settings := gobreaker.Settings{
		Name:        adapter.Name(),
		MaxRequests: cfg.HalfOpenProbe,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= limit
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: breakerSuccess,
	}
	return &breakerAdapter{inner: adapter, cb: gobreaker.NewCircuitBreaker(settings)}
}

func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *core.UpstreamStatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
	}
	return false
}

func (b *breakerAdapter) Name() string {
	return b.inner.Name()
}

// Supports reports whether the wrapped adapter can serve kind.
func (b *breakerAdapter) Supports(kind core.RequestKind) bool {
	return supports(b.inner, kind)
}

// State exposes the breaker state for health reporting.
func (b *breakerAdapter) State() gobreaker.State {
	return b.cb.State()
}

func (b *breakerAdapter) HealthCheck(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return b.wrap(gobreaker.ErrOpenState)
	}
	return b.inner.HealthCheck(ctx)
}

func (b *breakerAdapter) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return core.NewProviderError(b.inner.Name(), core.ProviderUnreachable, err)
	}
	return err
}

func (b *breakerAdapter) GenerateText(ctx context.Context, req *core.TextRequest) (*core.TextResult, error) {
	a, ok := b.inner.(core.TextAdapter)
	if !ok {
		return nil, core.NewUnsupportedModelTypeError(b.inner.Name(), core.KindText)
	}
	res, err := b.cb.Execute(func() (any, error) {
		return a.GenerateText(ctx, req)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return res.(*core.TextResult), nil
}

func (b *breakerAdapter) StreamText(ctx context.Context, req *core.TextRequest, out chan<- string) error {
	a, ok := b.inner.(core.TextAdapter)
	if !ok {
		return core.NewUnsupportedModelTypeError(b.inner.Name(), core.KindText)
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, a.StreamText(ctx, req, out)
	})
	return b.wrap(err)
}

func (b *breakerAdapter) GenerateImage(ctx context.Context, req *core.ImageRequest) (*core.ImageResult, error) {
	a, ok := b.inner.(core.ImageAdapter)
	if !ok {
		return nil, core.NewUnsupportedModelTypeError(b.inner.Name(), core.KindImage)
	}
	res, err := b.cb.Execute(func() (any, error) {
		return a.GenerateImage(ctx, req)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return res.(*core.ImageResult), nil
}

// ImageBounds forwards the inner adapter's bounds; zero means unlimited.
func (b *breakerAdapter) ImageBounds() core.ImageBounds {
	if a, ok := b.inner.(core.BoundedImageAdapter); ok {
		return a.ImageBounds()
	}
	return core.ImageBounds{}
}

func (b *breakerAdapter) GenerateVideo(ctx context.Context, req *core.VideoRequest) (*core.VideoResult, error) {
	a, ok := b.inner.(core.VideoAdapter)
	if !ok {
		return nil, core.NewUnsupportedModelTypeError(b.inner.Name(), core.KindVideo)
	}
	res, err := b.cb.Execute(func() (any, error) {
		return a.GenerateVideo(ctx, req)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return res.(*core.VideoResult), nil
}
