package controlplane

import (
	"context"
	"time"

	"github.com/fleetctl/fleetd/pkg/failuredetector"
	"github.com/fleetctl/fleetd/pkg/leader"
	"github.com/fleetctl/fleetd/pkg/log"
	"github.com/fleetctl/fleetd/pkg/metrics"
	"github.com/fleetctl/fleetd/pkg/registry"
	"github.com/fleetctl/fleetd/pkg/store"
)

// DefaultMetricsInterval is how often the collector refreshes its
// gauges.
const DefaultMetricsInterval = 15 * time.Second

// MetricsCollector periodically sets the gauge metrics that can't be
// updated incrementally by the component that changed them: instance
// counts by formation and state, worker counts by liveness, and
// current leadership.
type MetricsCollector struct {
	instances *store.InstanceStore
	reg       registry.Registry
	detector  *failuredetector.Detector
	lock      *leader.Lock
	interval  time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMetricsCollector builds a MetricsCollector using the default
// refresh interval.
func NewMetricsCollector(instances *store.InstanceStore, reg registry.Registry, detector *failuredetector.Detector, lock *leader.Lock) *MetricsCollector {
	return &MetricsCollector{
		instances: instances,
		reg:       reg,
		detector:  detector,
		lock:      lock,
		interval:  DefaultMetricsInterval,
	}
}

// Start begins collecting in a background goroutine.
func (c *MetricsCollector) Start(ctx context.Context) {
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.run(ctx)
}

// Stop halts collection and waits for it to exit.
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *MetricsCollector) run(ctx context.Context) {
	defer close(c.doneCh)

	c.collect(ctx)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *MetricsCollector) collect(ctx context.Context) {
	c.collectInstanceMetrics()
	c.collectWorkerMetrics(ctx)
	c.collectLeaderMetric()
}

func (c *MetricsCollector) collectInstanceMetrics() {
	counts := make(map[string]map[string]int) // formation -> state -> count
	for _, inst := range c.instances.All() {
		if counts[inst.Formation] == nil {
			counts[inst.Formation] = make(map[string]int)
		}
		counts[inst.Formation][string(inst.State)]++
	}
	for formation, states := range counts {
		for state, n := range states {
			metrics.InstancesTotal.WithLabelValues(formation, state).Set(float64(n))
		}
	}
}

func (c *MetricsCollector) collectWorkerMetrics(ctx context.Context) {
	workers, err := c.reg.Query(ctx)
	if err != nil {
		log.WithComponent("metrics-collector").Warn().Err(err).Msg("worker registry query failed")
		return
	}

	var alive, problematic int
	for _, w := range workers {
		if c.detector.Alive(w.ID) {
			alive++
		} else {
			problematic++
		}
	}
	metrics.WorkersTotal.WithLabelValues("alive").Set(float64(alive))
	metrics.WorkersTotal.WithLabelValues("problematic").Set(float64(problematic))
}

func (c *MetricsCollector) collectLeaderMetric() {
	if c.lock.Held() {
		metrics.LeaderGauge.Set(1)
	} else {
		metrics.LeaderGauge.Set(0)
	}
}
