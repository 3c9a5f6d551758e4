package metrics

import (
	"context"
	"time"

	"metadb-gateway/internal/logging"
)

// Prober reports the availability of the gateway's two backends.
type Prober interface {
	PingUpstream(ctx context.Context) error
	CheckStaticRoot() error
}

// Collector periodically probes the backends and updates availability gauges
type Collector struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	stopChan chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(prober Prober, interval time.Duration) *Collector {
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Collector{
		prober:   prober,
		interval: interval,
		timeout:  timeout,
		stopChan: make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.prober == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	upstreamErr := c.prober.PingUpstream(ctx)
	UpstreamUp.Set(boolGauge(upstreamErr == nil))

	staticErr := c.prober.CheckStaticRoot()
	StaticRootAvailable.Set(boolGauge(staticErr == nil))

	if upstreamErr != nil {
		logging.Debug("Upstream probe failed: %v", upstreamErr)
	}
	if staticErr != nil {
		logging.Debug("Static root probe failed: %v", staticErr)
	}
}

func boolGauge(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
