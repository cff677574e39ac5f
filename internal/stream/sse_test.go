package stream

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"genrouter/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		ev   core.StreamEvent
		want string
	}{
		{"chunk", core.ChunkEvent("hi \"there\""), "data: {\"content\":\"hi \\\"there\\\"\"}\n\n"},
		{"done", core.DoneEvent(), "data: [DONE]\n\n"},
		{
			"error",
			core.ErrorEvent(core.NewProviderError("ollama", core.ProviderTimeout, errors.New("slow"))),
			"event: error\ndata: {\"error\":{\"kind\":\"provider_error\",\"message\":\"provider ollama failed (timeout)\"}}\n\n",
		},
		{
			"plain error is internal",
			core.ErrorEvent(errors.New("boom")),
			"event: error\ndata: {\"error\":{\"kind\":\"internal_error\",\"message\":\"internal error\"}}\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncoder_FlushesEachFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	enc := NewEncoder(rec)

	require.NoError(t, enc.WriteEvent(core.ChunkEvent("a")))
	assert.True(t, rec.Flushed)
	assert.Equal(t, "data: {\"content\":\"a\"}\n\n", rec.Body.String())
}

func TestSetHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetHeaders(rec.Header())

	assert.Equal(t, core.ContentTypeEventStream, rec.Header().Get(core.HeaderContentType))
	assert.Equal(t, core.CacheControlNoCache, rec.Header().Get(core.HeaderCacheControl))
}

func TestPump_StopsAtTerminal(t *testing.T) {
	events := make(chan core.StreamEvent, 4)
	events <- core.ChunkEvent("a")
	events <- core.ChunkEvent("b")
	events <- core.DoneEvent()
	close(events)

	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, NewEncoder(rec).Pump(ctx, cancel, events))
	assert.Equal(t, "data: {\"content\":\"a\"}\n\ndata: {\"content\":\"b\"}\n\ndata: [DONE]\n\n", rec.Body.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestPump_WriteFailureCancelsAndDrains(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan core.StreamEvent)
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		defer close(events)
		for {
			select {
			case events <- core.ChunkEvent("x"):
			case <-ctx.Done():
				events <- core.ErrorEvent(ctx.Err())
				return
			}
		}
	}()

	err := NewEncoder(failingWriter{}).Pump(ctx, cancel, events)
	require.Error(t, err)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	<-producerDone
}
