package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"genrouter/internal/core"
	"genrouter/internal/provider"
	"genrouter/internal/ratelimit"
	"genrouter/internal/validate"
)

// ModelResolver looks up routing metadata for a model id.
type ModelResolver interface {
	Resolve(ctx context.Context, modelID string) (core.Model, error)
}

// QuotaChecker consumes one request of callerID against an endpoint class.
type QuotaChecker interface {
	Consume(class, callerID string) (ratelimit.Status, bool)
}

// ImagePersister may rewrite generated images, e.g. by uploading them to
// object storage. It must return a usable result even when it fails.
type ImagePersister interface {
	Persist(ctx context.Context, res *core.ImageResult) *core.ImageResult
}

// Config tunes the router.
type Config struct {
	ProviderTimeout   time.Duration
	StreamIdleTimeout time.Duration
	StreamMaxDuration time.Duration
	Images            ImagePersister
	Logger            core.Logger
	Metrics           core.MetricsCollector
}

// Router dispatches generation requests to provider adapters.
type Router struct {
	models          ModelResolver
	quota           QuotaChecker
	table           *provider.Table
	images          ImagePersister
	providerTimeout time.Duration
	idleTimeout     time.Duration
	streamMax       time.Duration
	logger          core.Logger
	metrics         core.MetricsCollector
}

var errNoResult = errors.New("provider returned no result")

// New creates a Router.
func New(models ModelResolver, quota QuotaChecker, table *provider.Table, cfg Config) *Router {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = core.DefaultProviderTimeout
	}
	if cfg.StreamIdleTimeout <= 0 {
		cfg.StreamIdleTimeout = core.DefaultStreamIdleTimeout
	}
	if cfg.StreamMaxDuration <= 0 {
		cfg.StreamMaxDuration = core.DefaultStreamMaxDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = &core.NopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &core.NopMetrics{}
	}
	return &Router{
		models:          models,
		quota:           quota,
		table:           table,
		images:          cfg.Images,
		providerTimeout: cfg.ProviderTimeout,
		idleTimeout:     cfg.StreamIdleTimeout,
		streamMax:       cfg.StreamMaxDuration,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
	}
}

// invocation is a fully prepared provider call.
type invocation func(ctx context.Context) (core.GenerationResult, error)

// Generate runs req to completion. Validation, resolution and adapter
// lookup happen before quota is consumed; provider failures come back as
// provider_error with the adapter's name attached.
func (r *Router) Generate(ctx context.Context, caller core.Caller, req core.GenerationRequest) (core.GenerationResult, error) {
	model, call, err := r.plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := r.consume(caller, req.Kind()); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.providerTimeout)
	defer cancel()

	r.logger.Debug("dispatching %s request for model %s to %s", req.Kind(), model.ID, model.Provider)
	start := time.Now()
	res, err := call(callCtx)
	r.metrics.RecordGeneration(req.Kind(), model.ID, model.Provider, err == nil, time.Since(start))
	if err != nil {
		return nil, r.providerFailure(model.Provider, err)
	}

	if img, ok := res.(*core.ImageResult); ok && r.images != nil {
		res = r.images.Persist(ctx, img)
	}
	return res, nil
}

// plan validates req, resolves its model and binds it to an adapter. It
// never consumes quota.
func (r *Router) plan(ctx context.Context, req core.GenerationRequest) (core.Model, invocation, error) {
	if err := validate.Request(req); err != nil {
		return core.Model{}, nil, err
	}
	model, err := r.resolve(ctx, req)
	if err != nil {
		return core.Model{}, nil, err
	}

	switch req := req.(type) {
	case *core.TextRequest:
		a, tr, err := r.planText(model, req)
		if err != nil {
			return core.Model{}, nil, err
		}
		return model, func(ctx context.Context) (core.GenerationResult, error) {
			res, err := a.GenerateText(ctx, tr)
			if err != nil {
				return nil, err
			}
			if res == nil {
				return nil, errNoResult
			}
			res.ModelID = model.ID
			return res, nil
		}, nil

	case *core.ImageRequest:
		a, ok := r.table.Image(model.Provider)
		if !ok {
			return core.Model{}, nil, core.NewUnsupportedModelTypeError(model.Provider, core.KindImage)
		}
		ir := imageRequest(model, req)
		if b, ok := a.(core.BoundedImageAdapter); ok {
			if err := validate.ImageWithin(ir, b.ImageBounds()); err != nil {
				return core.Model{}, nil, err
			}
		}
		return model, func(ctx context.Context) (core.GenerationResult, error) {
			res, err := a.GenerateImage(ctx, ir)
			if err != nil {
				return nil, err
			}
			if res == nil {
				return nil, errNoResult
			}
			res.ModelID = model.ID
			return res, nil
		}, nil

	case *core.VideoRequest:
		a, ok := r.table.Video(model.Provider)
		if !ok {
			return core.Model{}, nil, core.NewUnsupportedModelTypeError(model.Provider, core.KindVideo)
		}
		vr := videoRequest(model, req)
		return model, func(ctx context.Context) (core.GenerationResult, error) {
			res, err := a.GenerateVideo(ctx, vr)
			if err != nil {
				return nil, err
			}
			if res == nil {
				return nil, errNoResult
			}
			res.ModelID = model.ID
			return res, nil
		}, nil
	}

	return core.Model{}, nil, core.NewValidationError("unsupported request type %T", req)
}

func (r *Router) resolve(ctx context.Context, req core.GenerationRequest) (core.Model, error) {
	model, err := r.models.Resolve(ctx, req.Target())
	if err != nil {
		return core.Model{}, err
	}
	if !model.Enabled {
		return core.Model{}, core.NewModelDisabledError(model.ID)
	}
	if !model.Supports(req.Kind()) {
		return core.Model{}, &core.Error{
			Kind:     core.ErrKindUnsupportedModelType,
			Message:  fmt.Sprintf("model %s of type %s cannot serve %s requests", model.ID, model.Type, req.Kind()),
			Provider: model.Provider,
		}
	}
	return model, nil
}

func (r *Router) planText(model core.Model, req *core.TextRequest) (core.TextAdapter, *core.TextRequest, error) {
	a, ok := r.table.Text(model.Provider)
	if !ok {
		return nil, nil, core.NewUnsupportedModelTypeError(model.Provider, core.KindText)
	}
	return a, textRequest(model, req), nil
}

func (r *Router) consume(caller core.Caller, kind core.RequestKind) error {
	class := string(kind)
	st, ok := r.quota.Consume(class, caller.ID)
	if !ok {
		r.metrics.RecordRateLimited(class)
		r.logger.Debug("caller %s over %s quota until %s", caller.ID, class, st.ResetAt.Format(time.RFC3339))
		return core.NewRateLimitError(st.ResetAt)
	}
	return nil
}

func (r *Router) providerFailure(providerName string, err error) *core.Error {
	e := core.ClassifyProviderError(providerName, err)
	if e.Kind == core.ErrKindProvider {
		r.metrics.RecordProviderError(e.Provider, e.ProviderKind)
		r.logger.Warn("provider %s failed (%s): %v", e.Provider, e.ProviderKind, e.Cause)
	}
	return e
}

// textRequest copies req with the model's defaults and backend name applied.
func textRequest(model core.Model, req *core.TextRequest) *core.TextRequest {
	out := *req
	out.ModelID = model.BackendName()
	cfg := model.Config
	if out.Temperature == nil {
		out.Temperature = cfg.Temperature
	}
	if out.MaxTokens == nil {
		out.MaxTokens = cfg.MaxTokens
	}
	if out.SystemPrompt == "" {
		out.SystemPrompt = cfg.DefaultSystemPrompt
	}
	return &out
}

func imageRequest(model core.Model, req *core.ImageRequest) *core.ImageRequest {
	out := *req
	out.ModelID = model.BackendName()
	cfg := model.Config
	if out.NegativePrompt == "" {
		out.NegativePrompt = cfg.NegativePrompt
	}
	if out.GuidanceScale == nil {
		out.GuidanceScale = cfg.GuidanceScale
	}
	if out.Steps == nil {
		out.Steps = cfg.Steps
	}
	validate.ApplyImageDefaults(&out)
	return &out
}

func videoRequest(model core.Model, req *core.VideoRequest) *core.VideoRequest {
	out := *req
	out.ModelID = model.BackendName()
	cfg := model.Config
	if out.Duration == nil {
		out.Duration = cfg.Duration
	}
	if out.FPS == nil {
		out.FPS = cfg.FPS
	}
	if out.Resolution == "" {
		out.Resolution = cfg.Resolution
	}
	validate.ApplyVideoDefaults(&out)
	return &out
}
