package metrics

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"genrouter/internal/core"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type countingStorage struct {
	mu        sync.Mutex
	saveCount int
	stored    *core.RequestStats
}

func (s *countingStorage) SaveStats(stats *core.RequestStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCount++
	s.stored = stats
	return nil
}

func (s *countingStorage) LoadStats() (*core.RequestStats, error) {
	if s.stored != nil {
		return s.stored, nil
	}
	return &core.RequestStats{}, nil
}

func (s *countingStorage) Close() error { return nil }

func (s *countingStorage) getSaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCount
}

func newTestService(historySize int, storage core.StorageInterface) *MetricsService {
	return NewMetricsService(MetricsConfig{
		SaveInterval: time.Second,
		HistorySize:  historySize,
		Storage:      storage,
		Logger:       &core.NopLogger{},
	})
}

func TestMetricsService_RecordGeneration(t *testing.T) {
	ms := newTestService(10, nil)
	defer func() { _ = ms.Close() }()

	ms.RecordGeneration(core.KindText, "llama", "ollama", true, 100*time.Millisecond)
	ms.RecordGeneration(core.KindText, "llama", "ollama", false, 200*time.Millisecond)
	ms.RecordGeneration(core.KindImage, "sdxl", "automatic1111", true, 150*time.Millisecond)

	stats := ms.GetRequestStats()
	if stats.TotalRequests != 3 {
		t.Errorf("Expected 3 total requests, got %d", stats.TotalRequests)
	}
	if stats.SuccessfulRequests != 2 {
		t.Errorf("Expected 2 successful requests, got %d", stats.SuccessfulRequests)
	}
	if stats.FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
	}
	if stats.TotalResponseTime != 450 {
		t.Errorf("Expected 450ms total response time, got %d", stats.TotalResponseTime)
	}
	if len(stats.RequestHistory) != 3 {
		t.Fatalf("Expected 3 history records, got %d", len(stats.RequestHistory))
	}
	if got := stats.RequestHistory[2]; got.Kind != "image" || got.Provider != "automatic1111" || got.Model != "sdxl" {
		t.Errorf("Unexpected record %+v", got)
	}

	prom := ms.Prometheus()
	if v := testutil.ToFloat64(prom.generations.WithLabelValues("text", "ollama", "failure")); v != 1 {
		t.Errorf("Expected 1 failed text generation, got %v", v)
	}
}

func TestMetricsService_GetQPS(t *testing.T) {
	ms := newTestService(10, nil)
	defer func() { _ = ms.Close() }()

	if qps := ms.GetQPS(); qps != 0 {
		t.Errorf("QPS should start at 0, got %f", qps)
	}
	for i := 0; i < 6; i++ {
		ms.RecordGeneration(core.KindText, "m", "p", true, time.Millisecond)
	}
	if qps := ms.GetQPS(); qps != 0.1 {
		t.Errorf("Expected QPS 0.1, got %f", qps)
	}
}

func TestRateWindow_Expires(t *testing.T) {
	start := time.Now()
	w := rateWindow{span: time.Minute}
	w.mark(start)
	w.mark(start.Add(10 * time.Second))
	w.mark(start.Add(50 * time.Second))

	if got := w.perSecond(start.Add(50 * time.Second)); got != 0.05 {
		t.Errorf("Expected 0.05 with all marks inside the window, got %f", got)
	}
	if got := w.perSecond(start.Add(65 * time.Second)); got != 0.033 {
		t.Errorf("Expected 0.033 after the first mark expired, got %f", got)
	}
	if got := w.perSecond(start.Add(3 * time.Minute)); got != 0 {
		t.Errorf("Expected 0 once every mark expired, got %f", got)
	}
}

func TestMetricsService_MaxHistorySize(t *testing.T) {
	ms := newTestService(3, nil)
	defer func() { _ = ms.Close() }()

	for i := 0; i < 5; i++ {
		ms.RecordGeneration(core.KindText, "model", "provider", true, 100*time.Millisecond)
	}

	stats := ms.GetRequestStats()
	if len(stats.RequestHistory) != 3 {
		t.Errorf("History should be capped at 3, got %d", len(stats.RequestHistory))
	}
}

func TestMetricsService_DefaultHistorySize(t *testing.T) {
	ms := newTestService(0, nil)
	defer func() { _ = ms.Close() }()

	if ms.history.capacity != core.HistoryBufferSize {
		t.Errorf("Expected default history size %d, got %d", core.HistoryBufferSize, ms.history.capacity)
	}
}

func TestMetricsService_CollectorCounters(t *testing.T) {
	ms := newTestService(10, nil)
	defer func() { _ = ms.Close() }()
	prom := ms.Prometheus()

	ms.RecordCacheHit()
	ms.RecordCacheHit()
	ms.RecordCacheMiss()
	ms.RecordRateLimited(core.ClassVideo)
	ms.RecordProviderError("comfyui", core.ProviderTimeout)
	ms.RecordHTTPError()
	ms.StreamStarted()
	ms.StreamStarted()
	ms.StreamFinished()

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"cache hits", testutil.ToFloat64(prom.cacheLookups.WithLabelValues("hit")), 2},
		{"cache misses", testutil.ToFloat64(prom.cacheLookups.WithLabelValues("miss")), 1},
		{"rate limited", testutil.ToFloat64(prom.rateLimited.WithLabelValues("video")), 1},
		{"provider errors", testutil.ToFloat64(prom.providerErrors.WithLabelValues("comfyui", "timeout")), 1},
		{"http errors", testutil.ToFloat64(prom.httpErrors), 1},
		{"active streams", testutil.ToFloat64(prom.activeStreams), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestPrometheus_Handler(t *testing.T) {
	ms := newTestService(10, nil)
	defer func() { _ = ms.Close() }()
	ms.RecordRateLimited(core.ClassText)

	rec := httptest.NewRecorder()
	ms.Prometheus().Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `genrouter_rate_limited_total{class="text"} 1`) {
		t.Errorf("Expected rate limit counter in output")
	}
}

func TestGetPeriodStats(t *testing.T) {
	now := time.Now()
	history := []core.RequestRecord{
		{Timestamp: now.Add(-30 * time.Minute), Success: true, ResponseTime: 100, Provider: "ollama"},
		{Timestamp: now.Add(-2 * time.Hour), Success: false, ResponseTime: 300, Provider: "ollama"},
		{Timestamp: now.Add(-48 * time.Hour), Success: true, ResponseTime: 50, Provider: "comfyui"},
	}

	stats := GetPeriodStats(history, 1, 24)
	if stats[1].Requests != 1 || stats[1].SuccessRate != 100 {
		t.Errorf("Unexpected 1h stats %+v", stats[1])
	}
	if stats[24].Requests != 2 || stats[24].AvgResponseTime != 200 {
		t.Errorf("Unexpected 24h stats %+v", stats[24])
	}
	if GetPeriodStats(history) != nil {
		t.Error("Expected nil for no periods")
	}

	breakdown := ProviderBreakdown(history)
	if breakdown["ollama"] != 2 || breakdown["comfyui"] != 1 {
		t.Errorf("Unexpected breakdown %v", breakdown)
	}
	if kinds := KindBreakdown(history); len(kinds) != 0 {
		t.Errorf("Records without a kind must not be counted, got %v", kinds)
	}
}

func TestMetricsService_LoadStats(t *testing.T) {
	st := &countingStorage{stored: &core.RequestStats{
		TotalRequests:      4,
		SuccessfulRequests: 3,
		FailedRequests:     1,
		RequestHistory:     []core.RequestRecord{{Success: true}, {Success: true}},
	}}
	ms := newTestService(10, st)
	defer func() { _ = ms.Close() }()

	if err := ms.LoadStats(); err != nil {
		t.Fatalf("LoadStats failed: %v", err)
	}
	stats := ms.GetRequestStats()
	if stats.TotalRequests != 4 || len(stats.RequestHistory) != 2 {
		t.Errorf("Unexpected stats after load %+v", stats)
	}
}

func TestMetricsService_Close_Idempotent(t *testing.T) {
	st := &countingStorage{}
	ms := newTestService(10, st)

	ms.RecordGeneration(core.KindText, "llama", "ollama", true, 10*time.Millisecond)

	if err := ms.Close(); err != nil {
		t.Fatalf("First close should not fail: %v", err)
	}
	firstCloseSaves := st.getSaveCount()
	if firstCloseSaves == 0 {
		t.Fatal("Expected at least one save after first close")
	}

	if err := ms.Close(); err != nil {
		t.Fatalf("Second close should not fail: %v", err)
	}

	if st.getSaveCount() != firstCloseSaves {
		t.Fatalf("Second close must not save again: first=%d, after second=%d", firstCloseSaves, st.getSaveCount())
	}
}
