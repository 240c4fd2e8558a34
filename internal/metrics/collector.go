package metrics

import (
	"context"
	"time"

	"github.com/onnwee/nbody-barneshut/backend/internal/logger"
)

// StatusCounter reports how many runs are recorded per status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Statuses tracked by the collector. Missing statuses are reported as zero.
var Statuses = []string{"queued", "running", "completed", "failed", "canceled"}

// Collector periodically collects and updates Prometheus metrics
type Collector struct {
	source   StatusCounter
	interval time.Duration
	stop     chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source StatusCounter, interval time.Duration) *Collector {
	return &Collector{
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Collect initial metrics
	c.collect(ctx)

	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	close(c.stop)
}

// collect refreshes the run ledger gauges.
func (c *Collector) collect(ctx context.Context) {
	counts, err := c.source.CountByStatus(ctx)
	if err != nil {
		logger.WithComponent("metrics").Warn("counting runs failed", "error", err)
		MetricsCollectionErrors.WithLabelValues("runs").Inc()
		// Signal stale data
		for _, s := range Statuses {
			RunsByStatus.WithLabelValues(s).Set(-1)
		}
		return
	}
	for _, s := range Statuses {
		RunsByStatus.WithLabelValues(s).Set(float64(counts[s]))
	}
}
