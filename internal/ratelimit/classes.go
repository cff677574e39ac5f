package ratelimit

import (
	"sort"
	"time"

	"genrouter/internal/core"
)

// Limit is a quota of Requests per Window.
type Limit struct {
	Requests int           `yaml:"requests" json:"requests"`
	Window   time.Duration `yaml:"window" json:"window"`
}

// DefaultLimits returns the built-in quota of each endpoint class.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		core.ClassText:       {Requests: 100, Window: time.Minute},
		core.ClassImage:      {Requests: 20, Window: time.Minute},
		core.ClassVideo:      {Requests: 5, Window: time.Minute},
		core.ClassSeparation: {Requests: 10, Window: time.Hour},
	}
}

// ClassLimiter holds one independent Limiter per endpoint class.
type ClassLimiter struct {
	limits   map[string]Limit
	limiters map[string]*Limiter
	now      func() time.Time
}

// NewClassLimiter creates limiters for every class in limits. Classes with
// a non-positive request count are unlimited.
func NewClassLimiter(limits map[string]Limit, opts ...Option) *ClassLimiter {
	c := &ClassLimiter{
		limits:   make(map[string]Limit, len(limits)),
		limiters: make(map[string]*Limiter, len(limits)),
		now:      buildOptions(opts).now,
	}

	for class, limit := range limits {
		if limit.Requests <= 0 || limit.Window <= 0 {
			continue
		}
		c.limits[class] = limit
		c.limiters[class] = New(opts...)
	}
	return c
}

// Consume records one request of callerID against class.
func (c *ClassLimiter) Consume(class, callerID string) (Status, bool) {
	l, ok := c.limiters[class]
	if !ok {
		return Status{}, true
	}
	limit := c.limits[class]
	return l.Consume(callerID, limit.Requests, limit.Window)
}

// StatusFor reports callerID's quota in class. A caller without a live
// window has its full quota, resetting one window from now.
func (c *ClassLimiter) StatusFor(class, callerID string) (Status, bool) {
	l, ok := c.limiters[class]
	if !ok {
		return Status{}, false
	}
	if st, ok := l.StatusFor(callerID); ok {
		return st, true
	}
	limit := c.limits[class]
	return Status{
		Limit:     limit.Requests,
		Remaining: limit.Requests,
		ResetAt:   c.now().Add(limit.Window),
	}, true
}

// Classes returns the limited class names in sorted order.
func (c *ClassLimiter) Classes() []string {
	out := make([]string, 0, len(c.limiters))
	for class := range c.limiters {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}

// Stop terminates every class limiter.
func (c *ClassLimiter) Stop() {
	for _, l := range c.limiters {
		l.Stop()
	}
}
