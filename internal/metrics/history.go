package metrics

import (
	"sort"
	"sync"
	"time"

	"genrouter/internal/core"
)

// requestLog queues finished generations and folds them into a bounded
// history in batches, so the hot path only touches the pending slice.
type requestLog struct {
	capacity int

	pendingMu sync.Mutex
	pending   []core.RequestRecord

	mu      sync.RWMutex
	records []core.RequestRecord
}

func newRequestLog(capacity int) *requestLog {
	return &requestLog{
		capacity: capacity,
		pending:  make([]core.RequestRecord, 0, core.HistoryBatchSize),
	}
}

// add queues rec and reports whether the pending batch is full.
func (l *requestLog) add(rec core.RequestRecord) bool {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	l.pending = append(l.pending, rec)
	return len(l.pending) >= core.HistoryBatchSize
}

func (l *requestLog) flush() {
	l.pendingMu.Lock()
	batch := l.pending
	if len(batch) > 0 {
		l.pending = make([]core.RequestRecord, 0, core.HistoryBatchSize)
	}
	l.pendingMu.Unlock()
	if len(batch) == 0 {
		return
	}

	l.mu.Lock()
	l.records = keepNewest(append(l.records, batch...), l.capacity)
	l.mu.Unlock()
}

// snapshot flushes pending records and returns a copy of the history.
func (l *requestLog) snapshot() []core.RequestRecord {
	l.flush()
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.RequestRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *requestLog) restore(records []core.RequestRecord) {
	l.mu.Lock()
	l.records = keepNewest(records, l.capacity)
	l.mu.Unlock()
}

func keepNewest(records []core.RequestRecord, n int) []core.RequestRecord {
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}

// rateWindow keeps the timestamps of generations finished within span.
type rateWindow struct {
	mu    sync.Mutex
	span  time.Duration
	times []time.Time
}

func (w *rateWindow) mark(now time.Time) {
	w.mu.Lock()
	w.times = append(w.times, now)
	w.expire(now)
	w.mu.Unlock()
}

// perSecond returns the average rate over the window, rounded to three
// decimals.
func (w *rateWindow) perSecond(now time.Time) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expire(now)
	if len(w.times) == 0 {
		return 0
	}
	rate := float64(len(w.times)) / w.span.Seconds()
	return float64(int64(rate*1000+0.5)) / 1000
}

// expire drops timestamps older than span. Caller holds mu.
func (w *rateWindow) expire(now time.Time) {
	cutoff := now.Add(-w.span)
	i := sort.Search(len(w.times), func(i int) bool { return !w.times[i].Before(cutoff) })
	if i > 0 {
		w.times = append(w.times[:0:0], w.times[i:]...)
	}
}

// GetPeriodStats summarises history over each trailing window of hours in
// a single pass. Results are keyed by the hour count.
func GetPeriodStats(history []core.RequestRecord, hourPeriods ...int) map[int]core.PeriodStats {
	if len(hourPeriods) == 0 {
		return nil
	}

	type period struct {
		hours     int
		cutoff    time.Time
		requests  int64
		succeeded int64
		latencyMs int64
	}
	now := time.Now()
	periods := make([]period, len(hourPeriods))
	for i, hours := range hourPeriods {
		periods[i] = period{hours: hours, cutoff: now.Add(-time.Duration(hours) * time.Hour)}
	}

	for _, rec := range history {
		for i := range periods {
			p := &periods[i]
			if !rec.Timestamp.After(p.cutoff) {
				continue
			}
			p.requests++
			p.latencyMs += rec.ResponseTime
			if rec.Success {
				p.succeeded++
			}
		}
	}

	out := make(map[int]core.PeriodStats, len(periods))
	for _, p := range periods {
		ps := core.PeriodStats{
			Requests: p.requests,
			QPS:      float64(p.requests) / (time.Duration(p.hours) * time.Hour).Seconds(),
		}
		if p.requests > 0 {
			ps.SuccessRate = float64(p.succeeded) / float64(p.requests) * 100
			ps.AvgResponseTime = p.latencyMs / p.requests
		}
		out[p.hours] = ps
	}
	return out
}

// ProviderBreakdown counts history records per provider.
func ProviderBreakdown(history []core.RequestRecord) map[string]int64 {
	return countBy(history, func(r core.RequestRecord) string { return r.Provider })
}

// KindBreakdown counts history records per request kind.
func KindBreakdown(history []core.RequestRecord) map[string]int64 {
	return countBy(history, func(r core.RequestRecord) string { return r.Kind })
}

func countBy(history []core.RequestRecord, key func(core.RequestRecord) string) map[string]int64 {
	out := make(map[string]int64)
	for _, rec := range history {
		if k := key(rec); k != "" {
			out[k]++
		}
	}
	return out
}
