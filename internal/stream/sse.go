package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"genrouter/internal/core"
	"genrouter/internal/util"
)

type chunkPayload struct {
	Content string `json:"content"`
}

type errorDetail struct {
	Kind    core.ErrorKind `json:"kind"`
	Message string         `json:"message"`
}

type errorPayload struct {
	Error errorDetail `json:"error"`
}

// Encoder writes StreamEvents as Server-Sent Events frames, flushing after
// each frame when the writer supports it.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder creates an encoder over w.
func NewEncoder(w io.Writer) *Encoder {
	f, _ := w.(http.Flusher)
	return &Encoder{w: w, flusher: f}
}

// SetHeaders sets the SSE response headers.
func SetHeaders(h http.Header) {
	h.Set(core.HeaderContentType, core.ContentTypeEventStream)
	h.Set(core.HeaderCacheControl, core.CacheControlNoCache)
	h.Set(core.HeaderConnection, core.ConnectionKeepAlive)
	h.Set("X-Accel-Buffering", "no")
}

// Encode renders one event as a frame.
func Encode(ev core.StreamEvent) ([]byte, error) {
	switch ev.Type {
	case core.EventChunk:
		data, err := util.MarshalJSON(chunkPayload{Content: ev.Text})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal chunk: %w", err)
		}
		return fmt.Appendf(nil, "%s%s\n\n", core.StreamChunkPrefix, data), nil
	case core.EventDone:
		return fmt.Appendf(nil, "%s%s\n\n", core.StreamChunkPrefix, core.StreamChunkDoneMessage), nil
	case core.EventError:
		detail := errorDetail{Kind: core.ErrKindInternal, Message: "internal error"}
		if ev.Err != nil {
			detail = errorDetail{Kind: ev.Err.Kind, Message: ev.Err.Message}
		}
		data, err := util.MarshalJSON(errorPayload{Error: detail})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal error: %w", err)
		}
		return fmt.Appendf(nil, "%s%s\n%s%s\n\n", core.StreamEventPrefix, core.StreamEventError, core.StreamChunkPrefix, data), nil
	}
	return nil, fmt.Errorf("unknown stream event type %d", ev.Type)
}

// WriteEvent encodes ev, writes it and flushes.
func (e *Encoder) WriteEvent(ev core.StreamEvent) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Pump writes events until a terminal event or until the channel closes.
// A write failure means the consumer is gone: cancel is called and the
// remaining events are drained so the producer can exit.
func (e *Encoder) Pump(ctx context.Context, cancel context.CancelFunc, events <-chan core.StreamEvent) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := e.WriteEvent(ev); err != nil {
				cancel()
				drain(events)
				return err
			}
			if ev.Terminal() {
				return nil
			}
		case <-ctx.Done():
			cancel()
			drain(events)
			return ctx.Err()
		}
	}
}

func drain(events <-chan core.StreamEvent) {
	for range events {
	}
}
