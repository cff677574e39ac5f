package health

import (
	"context"
	"math"
	"sync"
	"time"

	"genrouter/internal/core"

	"golang.org/x/sync/errgroup"
)

// Source lists the adapters registered per provider.
type Source interface {
	Providers() map[string][]core.Adapter
}

// Report is the aggregate health of all providers.
type Report struct {
	Status     string          `json:"status"`
	Providers  map[string]bool `json:"providers"`
	Healthy    int             `json:"healthy"`
	Total      int             `json:"total"`
	Percentage float64         `json:"percentage"`
	Uptime     float64         `json:"uptime"`
	Timestamp  time.Time       `json:"timestamp"`
}

// IsHealthy reports whether every provider passed its probe.
func (r Report) IsHealthy() bool {
	return r.Status == core.HealthStatusHealthy
}

// Aggregator probes every provider concurrently.
type Aggregator struct {
	source       Source
	probeTimeout time.Duration
	started      time.Time
	logger       core.Logger
}

// New creates an Aggregator. Each probe gets its own probeTimeout.
func New(source Source, probeTimeout time.Duration, logger core.Logger) *Aggregator {
	if probeTimeout <= 0 {
		probeTimeout = core.DefaultHealthProbeTimeout
	}
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &Aggregator{
		source:       source,
		probeTimeout: probeTimeout,
		started:      time.Now(),
		logger:       logger,
	}
}

// CheckAll probes every registered adapter concurrently. A provider is
// healthy when all of its adapters answer within the probe timeout.
func (a *Aggregator) CheckAll(ctx context.Context) Report {
	providers := a.source.Providers()
	results := make(map[string]bool, len(providers))

	for name := range providers {
		results[name] = true
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for name, adapters := range providers {
		for _, adapter := range adapters {
			g.Go(func() error {
				if err := a.probe(ctx, adapter); err != nil {
					a.logger.Warn("health check for %s (%s) failed: %v", name, adapter.Name(), err)
					mu.Lock()
					results[name] = false
					mu.Unlock()
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	healthy := 0
	for _, ok := range results {
		if ok {
			healthy++
		}
	}
	total := len(results)

	report := Report{
		Status:     core.HealthStatusHealthy,
		Providers:  results,
		Healthy:    healthy,
		Total:      total,
		Percentage: 100,
		Uptime:     math.Round(time.Since(a.started).Seconds()),
		Timestamp:  time.Now(),
	}
	if total > 0 {
		report.Percentage = math.Round(float64(healthy) / float64(total) * 100)
	}
	if healthy < total {
		report.Status = core.HealthStatusDegraded
	}
	return report
}

func (a *Aggregator) probe(ctx context.Context, adapter core.Adapter) error {
	probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- adapter.HealthCheck(probeCtx)
	}()

	select {
	case err := <-errc:
		return err
	case <-probeCtx.Done():
		return probeCtx.Err()
	}
}
