package router

import (
	"context"
	"errors"
	"time"

	"genrouter/internal/core"
	"genrouter/internal/validate"
)

var (
	errStreamIdle    = errors.New("no output from provider within the idle timeout")
	errStreamTooLong = errors.New("stream exceeded its maximum duration")
)

// GenerateStream starts a streamed text generation. Setup failures
// (validation, resolution, quota, missing adapter) are returned directly.
// Afterwards every outcome arrives on the channel, which carries chunks in
// provider order followed by exactly one Done or Error event and is then
// closed.
//
// The consumer must read until the channel closes or cancel ctx. Cancelling
// ctx stops the adapter; the terminal event is then delivered only if the
// channel has room.
func (r *Router) GenerateStream(ctx context.Context, caller core.Caller, req *core.TextRequest) (<-chan core.StreamEvent, error) {
	if err := validate.Text(req); err != nil {
		return nil, err
	}
	model, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	adapter, tr, err := r.planText(model, req)
	if err != nil {
		return nil, err
	}
	if err := r.consume(caller, core.KindText); err != nil {
		return nil, err
	}

	tr.Stream = true
	events := make(chan core.StreamEvent, core.StreamBufferSize)
	go r.relay(ctx, model, adapter, tr, events)
	return events, nil
}

func (r *Router) relay(ctx context.Context, model core.Model, adapter core.TextAdapter, req *core.TextRequest, events chan<- core.StreamEvent) {
	defer close(events)

	r.metrics.StreamStarted()
	defer r.metrics.StreamFinished()
	start := time.Now()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan string, core.StreamBufferSize)
	done := make(chan error, 1)
	go func() {
		done <- adapter.StreamText(streamCtx, req, chunks)
	}()

	// stop cancels the adapter and waits for it to return.
	stop := func() {
		cancel()
		<-done
	}

	emit := func(ev core.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	finish := func(err error) {
		r.metrics.RecordGeneration(core.KindText, model.ID, model.Provider, err == nil, time.Since(start))
		if err == nil {
			emit(core.DoneEvent())
			return
		}
		emit(core.ErrorEvent(r.providerFailure(model.Provider, err)))
	}

	idle := time.NewTimer(r.idleTimeout)
	defer idle.Stop()
	limit := time.NewTimer(r.streamMax)
	defer limit.Stop()

	for {
		select {
		case chunk := <-chunks:
			if !emit(core.ChunkEvent(chunk)) {
				stop()
				r.abandon(model, start, events, ctx.Err())
				return
			}
			idle.Reset(r.idleTimeout)

		case err := <-done:
			// The adapter has returned, so everything it sent is buffered.
			for len(chunks) > 0 {
				if !emit(core.ChunkEvent(<-chunks)) {
					r.abandon(model, start, events, ctx.Err())
					return
				}
			}
			if err != nil && ctx.Err() != nil {
				r.abandon(model, start, events, ctx.Err())
				return
			}
			finish(err)
			return

		case <-idle.C:
			stop()
			finish(core.NewProviderError(model.Provider, core.ProviderTimeout, errStreamIdle))
			return

		case <-limit.C:
			stop()
			finish(core.NewProviderError(model.Provider, core.ProviderTimeout, errStreamTooLong))
			return

		case <-ctx.Done():
			stop()
			r.abandon(model, start, events, ctx.Err())
			return
		}
	}
}

// abandon records a stream whose consumer went away and offers the terminal
// event without blocking.
func (r *Router) abandon(model core.Model, start time.Time, events chan<- core.StreamEvent, cause error) {
	r.metrics.RecordGeneration(core.KindText, model.ID, model.Provider, false, time.Since(start))
	r.logger.Debug("stream for model %s abandoned: %v", model.ID, cause)
	select {
	case events <- core.ErrorEvent(&core.Error{Kind: core.ErrKindInternal, Message: "stream cancelled", Cause: cause}):
	default:
	}
}
