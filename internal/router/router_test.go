package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"genrouter/internal/core"
	"genrouter/internal/provider"
	"genrouter/internal/ratelimit"
	"genrouter/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeModels map[string]core.Model

func (f fakeModels) Resolve(ctx context.Context, id string) (core.Model, error) {
	m, ok := f[id]
	if !ok {
		return core.Model{}, core.NewModelNotFoundError(id)
	}
	return m, nil
}

type fakeQuota struct {
	mu    sync.Mutex
	limit int
	used  map[string]int
	reset time.Time
}

func newQuota(limit int) *fakeQuota {
	return &fakeQuota{limit: limit, used: map[string]int{}, reset: time.Now().Add(time.Minute)}
}

func (q *fakeQuota) Consume(class, callerID string) (ratelimit.Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := class + "/" + callerID
	if q.used[key] >= q.limit {
		return ratelimit.Status{Count: q.used[key], Limit: q.limit, ResetAt: q.reset}, false
	}
	q.used[key]++
	return ratelimit.Status{Count: q.used[key], Limit: q.limit, ResetAt: q.reset}, true
}

func (q *fakeQuota) count(class, callerID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used[class+"/"+callerID]
}

type fakeText struct {
	name      string
	mu        sync.Mutex
	got       *core.TextRequest
	err       error
	chunks    []string
	streamErr error
	block     bool
	trickle   time.Duration
}

func (f *fakeText) Name() string                      { return f.name }
func (f *fakeText) HealthCheck(context.Context) error { return nil }

func (f *fakeText) record(req *core.TextRequest) {
	f.mu.Lock()
	f.got = req
	f.mu.Unlock()
}

func (f *fakeText) request() *core.TextRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

func (f *fakeText) GenerateText(ctx context.Context, req *core.TextRequest) (*core.TextResult, error) {
	f.record(req)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &core.TextResult{Content: "hello", ModelID: req.ModelID, FinishReason: "stop"}, nil
}

func (f *fakeText) StreamText(ctx context.Context, req *core.TextRequest, out chan<- string) error {
	f.record(req)
	for _, c := range f.chunks {
		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for f.trickle > 0 {
		select {
		case <-time.After(f.trickle):
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case out <- ".":
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.streamErr
}

type fakeImage struct {
	bounds core.ImageBounds
	got    *core.ImageRequest
}

func (f *fakeImage) Name() string                      { return "sd" }
func (f *fakeImage) HealthCheck(context.Context) error { return nil }
func (f *fakeImage) ImageBounds() core.ImageBounds     { return f.bounds }

func (f *fakeImage) GenerateImage(ctx context.Context, req *core.ImageRequest) (*core.ImageResult, error) {
	f.got = req
	return &core.ImageResult{Images: []string{"data:image/png;base64,AAAA"}, ModelID: req.ModelID}, nil
}

type fakeVideo struct {
	got *core.VideoRequest
}

func (f *fakeVideo) Name() string                      { return "comfy" }
func (f *fakeVideo) HealthCheck(context.Context) error { return nil }

func (f *fakeVideo) GenerateVideo(ctx context.Context, req *core.VideoRequest) (*core.VideoResult, error) {
	f.got = req
	return &core.VideoResult{VideoURL: "http://comfy/view?x", ModelID: req.ModelID}, nil
}

type uploadSpy struct {
	calls int
}

func (u *uploadSpy) Persist(ctx context.Context, res *core.ImageResult) *core.ImageResult {
	u.calls++
	out := *res
	out.Images = []string{"https://bucket/img.png"}
	return &out
}

var caller = core.Caller{ID: "user-1", Role: core.RoleUser}

func testModels() fakeModels {
	return fakeModels{
		"llama": {
			ID: "llama", Name: "llama3:8b", Provider: "ollama", Type: core.ModelTypeText, Enabled: true,
			Config: core.ModelConfig{Temperature: util.Ptr(0.2), DefaultSystemPrompt: "be brief"},
		},
		"off":   {ID: "off", Provider: "ollama", Type: core.ModelTypeText},
		"sdxl":  {ID: "sdxl", Name: "sd_xl_base", Provider: "sd", Type: core.ModelTypeImage, Enabled: true, Config: core.ModelConfig{Steps: util.Ptr(30)}},
		"svd":   {ID: "svd", Provider: "comfy", Type: core.ModelTypeVideo, Enabled: true, Config: core.ModelConfig{FPS: util.Ptr(12)}},
		"ghost": {ID: "ghost", Provider: "nowhere", Type: core.ModelTypeText, Enabled: true},
	}
}

type fixture struct {
	router *Router
	quota  *fakeQuota
	text   *fakeText
	image  *fakeImage
	video  *fakeVideo
	images *uploadSpy
}

func newFixture(t *testing.T, limit int, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		quota:  newQuota(limit),
		text:   &fakeText{name: "ollama"},
		image:  &fakeImage{},
		video:  &fakeVideo{},
		images: &uploadSpy{},
	}
	table := provider.NewTable()
	require.NoError(t, table.Register("ollama", core.KindText, f.text))
	require.NoError(t, table.Register("sd", core.KindImage, f.image))
	require.NoError(t, table.Register("comfy", core.KindVideo, f.video))

	cfg := Config{ProviderTimeout: time.Second, StreamIdleTimeout: time.Second, Images: f.images}
	if mutate != nil {
		mutate(&cfg)
	}
	f.router = New(testModels(), f.quota, table, cfg)
	return f
}

func TestGenerate_Text(t *testing.T) {
	f := newFixture(t, 10, nil)

	res, err := f.router.Generate(context.Background(), caller, &core.TextRequest{ModelID: " llama ", Prompt: " hi "})
	require.NoError(t, err)

	text, ok := res.(*core.TextResult)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Content)
	assert.Equal(t, "llama", text.ModelID)

	got := f.text.request()
	assert.Equal(t, "llama3:8b", got.ModelID)
	assert.Equal(t, "hi", got.Prompt)
	assert.Equal(t, "be brief", got.SystemPrompt)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.2, *got.Temperature)
	assert.Equal(t, 1, f.quota.count(core.ClassText, caller.ID))
}

func TestGenerate_SetupErrorsDoNotConsumeQuota(t *testing.T) {
	tests := []struct {
		name string
		req  core.GenerationRequest
		kind core.ErrorKind
	}{
		{"empty prompt", &core.TextRequest{ModelID: "llama", Prompt: "  "}, core.ErrKindValidation},
		{"bad temperature", &core.TextRequest{ModelID: "llama", Prompt: "x", Temperature: util.Ptr(3.0)}, core.ErrKindValidation},
		{"unknown model", &core.TextRequest{ModelID: "nope", Prompt: "x"}, core.ErrKindModelNotFound},
		{"disabled model", &core.TextRequest{ModelID: "off", Prompt: "x"}, core.ErrKindModelDisabled},
		{"kind mismatch", &core.ImageRequest{ModelID: "llama", Prompt: "x"}, core.ErrKindUnsupportedModelType},
		{"no adapter", &core.TextRequest{ModelID: "ghost", Prompt: "x"}, core.ErrKindUnsupportedModelType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10, nil)
			_, err := f.router.Generate(context.Background(), caller, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, core.KindOf(err))
			assert.Zero(t, f.quota.count(string(tt.req.Kind()), caller.ID))
		})
	}
}

func TestGenerate_RateLimited(t *testing.T) {
	f := newFixture(t, 1, nil)
	req := func() *core.TextRequest { return &core.TextRequest{ModelID: "llama", Prompt: "x"} }

	_, err := f.router.Generate(context.Background(), caller, req())
	require.NoError(t, err)

	_, err = f.router.Generate(context.Background(), caller, req())
	require.Error(t, err)
	e := core.AsError(err)
	assert.Equal(t, core.ErrKindRateLimitExceeded, e.Kind)
	assert.Equal(t, f.quota.reset, e.ResetAt)

	other := core.Caller{ID: "user-2"}
	_, err = f.router.Generate(context.Background(), other, req())
	assert.NoError(t, err)
}

func TestGenerate_QuotaClassesAreIndependent(t *testing.T) {
	limits := ratelimit.NewClassLimiter(map[string]ratelimit.Limit{
		core.ClassText:  {Requests: 1, Window: time.Minute},
		core.ClassImage: {Requests: 1, Window: time.Minute},
	})
	defer limits.Stop()

	f := newFixture(t, 0, nil)
	f.router.quota = limits

	_, err := f.router.Generate(context.Background(), caller, &core.TextRequest{ModelID: "llama", Prompt: "x"})
	require.NoError(t, err)
	_, err = f.router.Generate(context.Background(), caller, &core.ImageRequest{ModelID: "sdxl", Prompt: "x"})
	require.NoError(t, err)
	_, err = f.router.Generate(context.Background(), caller, &core.TextRequest{ModelID: "llama", Prompt: "x"})
	assert.Equal(t, core.ErrKindRateLimitExceeded, core.KindOf(err))
}

func TestGenerate_ProviderTimeout(t *testing.T) {
	f := newFixture(t, 10, func(c *Config) { c.ProviderTimeout = 20 * time.Millisecond })
	f.text.block = true

	_, err := f.router.Generate(context.Background(), caller, &core.TextRequest{ModelID: "llama", Prompt: "x"})
	require.Error(t, err)
	e := core.AsError(err)
	assert.Equal(t, core.ErrKindProvider, e.Kind)
	assert.Equal(t, core.ProviderTimeout, e.ProviderKind)
	assert.Equal(t, "ollama", e.Provider)
}

func TestGenerate_ProviderFailureIsWrapped(t *testing.T) {
	f := newFixture(t, 10, nil)
	f.text.err = &core.UpstreamStatusError{StatusCode: 503, Body: "loading"}

	_, err := f.router.Generate(context.Background(), caller, &core.TextRequest{ModelID: "llama", Prompt: "x"})
	e := core.AsError(err)
	require.NotNil(t, e)
	assert.Equal(t, core.ErrKindProvider, e.Kind)
	assert.Equal(t, core.ProviderUnreachable, e.ProviderKind)

	var status *core.UpstreamStatusError
	assert.True(t, errors.As(err, &status))
}

func TestGenerate_ImageDefaultsBoundsAndPersist(t *testing.T) {
	f := newFixture(t, 10, nil)

	res, err := f.router.Generate(context.Background(), caller, &core.ImageRequest{ModelID: "sdxl", Prompt: "cat"})
	require.NoError(t, err)

	got := f.image.got
	assert.Equal(t, "sd_xl_base", got.ModelID)
	assert.Equal(t, 512, *got.Width)
	assert.Equal(t, 30, *got.Steps)
	assert.Equal(t, 1, *got.NumImages)

	img := res.(*core.ImageResult)
	assert.Equal(t, []string{"https://bucket/img.png"}, img.Images)
	assert.Equal(t, "sdxl", img.ModelID)
	assert.Equal(t, 1, f.images.calls)

	f.image.bounds = core.ImageBounds{MaxWidth: 512}
	_, err = f.router.Generate(context.Background(), caller, &core.ImageRequest{ModelID: "sdxl", Prompt: "cat", Width: util.Ptr(1024)})
	assert.Equal(t, core.ErrKindValidation, core.KindOf(err))
	assert.Equal(t, 1, f.quota.count(core.ClassImage, caller.ID))
}

func TestGenerate_VideoDefaults(t *testing.T) {
	f := newFixture(t, 10, nil)

	res, err := f.router.Generate(context.Background(), caller, &core.VideoRequest{ModelID: "svd", Prompt: "waves"})
	require.NoError(t, err)

	got := f.video.got
	assert.Equal(t, "svd", got.ModelID)
	assert.Equal(t, 12, *got.FPS)
	assert.Equal(t, core.DefaultVideoDuration, *got.Duration)
	assert.Equal(t, core.DefaultVideoResolution, got.Resolution)
	assert.Equal(t, "svd", res.(*core.VideoResult).ModelID)
}

func collect(t *testing.T, events <-chan core.StreamEvent) []core.StreamEvent {
	t.Helper()
	var out []core.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestGenerateStream_ChunksThenDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, 10, nil)
	f.text.chunks = []string{"a", "b", "c"}

	events, err := f.router.GenerateStream(context.Background(), caller, &core.TextRequest{ModelID: "llama", Prompt: "x"})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 4)
	assert.Equal(t, "a", got[0].Text)
	assert.Equal(t, "b", got[1].Text)
	assert.Equal(t, "c", got[2].Text)
	assert.Equal(t, core.EventDone, got[3].Type)
	assert.True(t, f.text.request().Stream)
}

func TestGenerateStream_FailureBecomesTerminalError(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, 10, nil)
	f.text.chunks = []string{"partial"}
	f.text.streamErr = errors.New("connection reset")

	events, err := f.router.GenerateStream(context.Background(), caller, &core.TextRequest{ModelID: "llama", Prompt: "x"})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, core.EventChunk, got[0].Type)
	last := got[1]
	assert.Equal(t, core.EventError, last.Type)
	assert.Equal(t, core.ErrKindProvider, last.Err.Kind)
	assert.Equal(t, "ollama", last.Err.Provider)
}

func TestGenerateStream_IdleTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, 10, func(c *Config) { c.StreamIdleTimeout = 30 * time.Millisecond })
	f.text.chunks = []string{"a"}
	f.text.block = true

	events, err := f.router.GenerateStream(context.Background(), caller, &core.TextRequest{ModelID: "llama", Prompt: "x"})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, core.ProviderTimeout, got[1].Err.ProviderKind)
}

func TestGenerateStream_MaxDuration(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, 10, func(c *Config) {
		c.StreamIdleTimeout = 80 * time.Millisecond
		c.StreamMaxDuration = 150 * time.Millisecond
	})
	f.text.trickle = 10 * time.Millisecond

	start := time.Now()
	events, err := f.router.GenerateStream(context.Background(), caller, &core.TextRequest{ModelID: "llama", Prompt: "x"})
	require.NoError(t, err)

	got := collect(t, events)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	require.Equal(t, core.EventError, last.Type)
	assert.Equal(t, core.ProviderTimeout, last.Err.ProviderKind)
	assert.ErrorIs(t, last.Err, errStreamTooLong)
	for _, ev := range got[:len(got)-1] {
		assert.Equal(t, core.EventChunk, ev.Type)
	}
}

func TestGenerateStream_ConsumerCancelStopsAdapter(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, 10, nil)
	f.text.chunks = []string{"a"}
	f.text.block = true

	ctx, cancel := context.WithCancel(context.Background())
	events, err := f.router.GenerateStream(ctx, caller, &core.TextRequest{ModelID: "llama", Prompt: "x"})
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, "a", first.Text)
	cancel()

	got := collect(t, events)
	require.LessOrEqual(t, len(got), 1)
	if len(got) == 1 {
		assert.True(t, got[0].Terminal())
	}
}

func TestGenerateStream_SetupErrorsAreSynchronous(t *testing.T) {
	f := newFixture(t, 1, nil)

	_, err := f.router.GenerateStream(context.Background(), caller, &core.TextRequest{ModelID: "sdxl", Prompt: "x"})
	assert.Equal(t, core.ErrKindUnsupportedModelType, core.KindOf(err))

	_, err = f.router.GenerateStream(context.Background(), caller, nil)
	assert.Equal(t, core.ErrKindValidation, core.KindOf(err))

	events, err := f.router.GenerateStream(context.Background(), caller, &core.TextRequest{ModelID: "llama", Prompt: "x"})
	require.NoError(t, err)
	collect(t, events)

	_, err = f.router.GenerateStream(context.Background(), caller, &core.TextRequest{ModelID: "llama", Prompt: "x"})
	assert.Equal(t, core.ErrKindRateLimitExceeded, core.KindOf(err))
}
