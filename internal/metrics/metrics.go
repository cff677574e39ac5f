package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"genrouter/internal/core"
)

// totals are the lifetime counters persisted across restarts.
type totals struct {
	requests  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	latencyMs atomic.Int64
	lastNanos atomic.Int64
}

func (t *totals) observe(success bool, latency time.Duration, at time.Time) {
	t.requests.Add(1)
	t.latencyMs.Add(latency.Milliseconds())
	if success {
		t.succeeded.Add(1)
	} else {
		t.failed.Add(1)
	}
	t.lastNanos.Store(at.UnixNano())
}

func (t *totals) fill(stats *core.RequestStats) {
	stats.TotalRequests = t.requests.Load()
	stats.SuccessfulRequests = t.succeeded.Load()
	stats.FailedRequests = t.failed.Load()
	stats.TotalResponseTime = t.latencyMs.Load()
	if last := t.lastNanos.Load(); last != 0 {
		stats.LastRequestTime = time.Unix(0, last)
	}
}

func (t *totals) restore(stats *core.RequestStats) {
	t.requests.Store(stats.TotalRequests)
	t.succeeded.Store(stats.SuccessfulRequests)
	t.failed.Store(stats.FailedRequests)
	t.latencyMs.Store(stats.TotalResponseTime)
	if !stats.LastRequestTime.IsZero() {
		t.lastNanos.Store(stats.LastRequestTime.UnixNano())
	}
}

// MetricsConfig configures a MetricsService.
type MetricsConfig struct {
	SaveInterval time.Duration
	HistorySize  int
	Storage      core.StorageInterface
	Logger       core.Logger
	Prometheus   *Prometheus
}

// MetricsService tracks generation outcomes for the stats endpoint,
// persists them through a StorageInterface and mirrors every event into
// Prometheus collectors.
type MetricsService struct {
	totals       totals
	history      *requestLog
	recent       rateWindow
	storage      core.StorageInterface
	logger       core.Logger
	prom         *Prometheus
	saveInterval time.Duration
	lastSave     atomic.Int64
	flushTicker  *time.Ticker
	done         chan struct{}
	closeOnce    sync.Once
}

var _ core.MetricsCollector = (*MetricsService)(nil)

// NewMetricsService starts a MetricsService. Close must be called to stop
// its flush goroutine and write the final snapshot.
func NewMetricsService(config MetricsConfig) *MetricsService {
	if config.HistorySize <= 0 {
		config.HistorySize = core.HistoryBufferSize
	}
	if config.SaveInterval <= 0 {
		config.SaveInterval = core.MinSaveInterval
	}
	if config.Logger == nil {
		config.Logger = &core.NopLogger{}
	}
	if config.Prometheus == nil {
		config.Prometheus = NewPrometheus(nil)
	}

	ms := &MetricsService{
		history:      newRequestLog(config.HistorySize),
		recent:       rateWindow{span: time.Minute},
		storage:      config.Storage,
		logger:       config.Logger,
		prom:         config.Prometheus,
		saveInterval: config.SaveInterval,
		flushTicker:  time.NewTicker(core.HistoryFlushInterval),
		done:         make(chan struct{}),
	}
	go ms.flushLoop()
	return ms
}

// Prometheus returns the collectors this service feeds.
func (ms *MetricsService) Prometheus() *Prometheus {
	return ms.prom
}

func (ms *MetricsService) flushLoop() {
	for {
		select {
		case <-ms.flushTicker.C:
			ms.history.flush()
		case <-ms.done:
			return
		}
	}
}

// RecordGeneration records one finished provider call.
func (ms *MetricsService) RecordGeneration(kind core.RequestKind, model, provider string, success bool, duration time.Duration) {
	now := time.Now()
	ms.totals.observe(success, duration, now)
	ms.recent.mark(now)
	ms.prom.observeGeneration(kind, provider, success, duration)

	full := ms.history.add(core.RequestRecord{
		Timestamp:    now,
		Success:      success,
		ResponseTime: duration.Milliseconds(),
		Kind:         string(kind),
		Model:        model,
		Provider:     provider,
	})
	if full {
		ms.history.flush()
	}

	ms.SaveStatsDebounced()
}

// RecordHTTPRequest records HTTP request duration
func (ms *MetricsService) RecordHTTPRequest(duration time.Duration) {
	ms.prom.httpDuration.Observe(duration.Seconds())
}

// RecordHTTPError records a request answered with a 5xx status
func (ms *MetricsService) RecordHTTPError() {
	ms.prom.httpErrors.Inc()
}

// RecordCacheHit records a model cache hit
func (ms *MetricsService) RecordCacheHit() {
	ms.prom.cacheLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a model cache miss
func (ms *MetricsService) RecordCacheMiss() {
	ms.prom.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordRateLimited records a request rejected by quota
func (ms *MetricsService) RecordRateLimited(class string) {
	ms.prom.rateLimited.WithLabelValues(class).Inc()
}

// RecordProviderError records a failed provider call
func (ms *MetricsService) RecordProviderError(provider string, kind core.ProviderErrorKind) {
	ms.prom.providerErrors.WithLabelValues(provider, string(kind)).Inc()
}

func (ms *MetricsService) StreamStarted() {
	ms.prom.activeStreams.Inc()
}

func (ms *MetricsService) StreamFinished() {
	ms.prom.activeStreams.Dec()
}

// GetQPS returns the generation rate over the last minute.
func (ms *MetricsService) GetQPS() float64 {
	return ms.recent.perSecond(time.Now())
}

// GetRequestStats returns a snapshot of the totals and history.
func (ms *MetricsService) GetRequestStats() core.RequestStats {
	stats := core.RequestStats{RequestHistory: ms.history.snapshot()}
	ms.totals.fill(&stats)
	return stats
}

// LoadStats restores totals and history from storage.
func (ms *MetricsService) LoadStats() error {
	if ms.storage == nil {
		return nil
	}
	stats, err := ms.storage.LoadStats()
	if err != nil {
		return err
	}
	ms.totals.restore(stats)
	ms.history.restore(stats.RequestHistory)
	return nil
}

// SaveStatsDebounced persists a snapshot unless one was written within the
// save interval.
func (ms *MetricsService) SaveStatsDebounced() {
	if ms.storage == nil {
		return
	}
	now := time.Now().UnixNano()
	last := ms.lastSave.Load()
	if now-last < int64(ms.saveInterval) || !ms.lastSave.CompareAndSwap(last, now) {
		return
	}
	if err := ms.persist(); err != nil {
		ms.logger.Warn("Failed to save stats: %v", err)
	}
}

func (ms *MetricsService) persist() error {
	stats := ms.GetRequestStats()
	return ms.storage.SaveStats(&stats)
}

// Close stops the flush loop and writes a final snapshot. Calls after the
// first are no-ops.
func (ms *MetricsService) Close() error {
	var err error
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.flushTicker.Stop()
		ms.history.flush()
		if ms.storage != nil {
			err = ms.persist()
		}
	})
	return err
}
