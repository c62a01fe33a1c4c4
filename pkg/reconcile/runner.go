package reconcile

import (
	"context"
	"time"

	"github.com/fleetctl/fleetd/pkg/metrics"
	"github.com/rs/zerolog"
)

// Runner is the ticker-driven loop shape shared by every reconciliation
// pass in this package: tick on an interval, run one bounded pass, log
// and continue on error, stop cleanly on signal.
type Runner struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context) error
	log      zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func newRunner(name string, interval time.Duration, log zerolog.Logger, tick func(ctx context.Context) error) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		tick:     tick,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// WithInterval overrides the loop's tick interval. Must be called before
// Start.
func (r *Runner) WithInterval(d time.Duration) *Runner {
	r.interval = d
	return r
}

// Start begins the loop in a background goroutine.
func (r *Runner) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop signals the loop to exit and waits for it to do so.
func (r *Runner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			timer := metrics.NewTimer()
			err := r.tick(ctx)
			timer.ObserveDurationVec(metrics.ReconciliationDuration, r.name)
			metrics.ReconciliationCyclesTotal.WithLabelValues(r.name).Inc()
			if err != nil {
				r.log.Error().Err(err).Str("loop", r.name).Msg("reconciliation pass failed")
			}
		}
	}
}
