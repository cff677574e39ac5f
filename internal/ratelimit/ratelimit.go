package ratelimit

import (
	"context"
	"sync"
	"time"

	"genrouter/internal/core"

	"github.com/cespare/xxhash/v2"
)

// State is the fixed-window counter of one caller.
type State struct {
	WindowStart time.Time
	Count       int
	Limit       int
	Window      time.Duration
}

func (s *State) resetAt() time.Time {
	return s.WindowStart.Add(s.Window)
}

func (s *State) expired(now time.Time) bool {
	return !now.Before(s.resetAt())
}

// Status is a caller's view of its quota.
type Status struct {
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

func (s *State) status() Status {
	return Status{
		Count:     s.Count,
		Limit:     s.Limit,
		Remaining: max(0, s.Limit-s.Count),
		ResetAt:   s.resetAt(),
	}
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*State
}

// Limiter is a fixed-window rate limiter keyed by caller id.
// A caller may see up to twice its limit across a window boundary.
type Limiter struct {
	shards        []*shard
	now           func() time.Time
	sweepInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

type options struct {
	now           func() time.Time
	sweepInterval time.Duration
}

// Option configures a Limiter.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSweepInterval sets how often elapsed windows are dropped.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, sweepInterval: core.RateLimitSweepInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates a Limiter and starts its sweeper. Call Stop to release it.
func New(opts ...Option) *Limiter {
	o := buildOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	l := &Limiter{
		shards:        make([]*shard, core.RateLimitShards),
		now:           o.now,
		sweepInterval: o.sweepInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string]*State)}
	}
	go l.sweepLoop()
	return l
}

func (l *Limiter) shardFor(callerID string) *shard {
	return l.shards[xxhash.Sum64String(callerID)%uint64(len(l.shards))]
}

// CheckAndConsume records one request for callerID and reports whether it
// fits within limit requests per window.
func (l *Limiter) CheckAndConsume(callerID string, limit int, window time.Duration) bool {
	_, ok := l.Consume(callerID, limit, window)
	return ok
}

// Consume is CheckAndConsume that also returns the caller's status after
// the attempt. Rejected attempts are not counted.
func (l *Limiter) Consume(callerID string, limit int, window time.Duration) (Status, bool) {
	now := l.now()
	s := l.shardFor(callerID)

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.windows[callerID]
	if !ok || st.expired(now) {
		st = &State{WindowStart: now, Limit: limit, Window: window}
		s.windows[callerID] = st
	}
	st.Limit = limit
	st.Window = window

	if st.Count >= limit {
		return st.status(), false
	}
	st.Count++
	return st.status(), true
}

// StatusFor returns the current window of callerID. The second result is
// false when the caller has no live window.
func (l *Limiter) StatusFor(callerID string) (Status, bool) {
	now := l.now()
	s := l.shardFor(callerID)

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.windows[callerID]
	if !ok || st.expired(now) {
		return Status{}, false
	}
	return st.status(), true
}

// Len returns the number of tracked windows.
func (l *Limiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}

// Stop terminates the sweeper.
func (l *Limiter) Stop() {
	l.cancel()
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.ctx.Done():
			return
		}
	}
}

func (l *Limiter) sweep() {
	now := l.now()
	for _, s := range l.shards {
		s.mu.Lock()
		for id, st := range s.windows {
			if st.expired(now) {
				delete(s.windows, id)
			}
		}
		s.mu.Unlock()
	}
}
