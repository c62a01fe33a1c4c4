package scheduler

import (
	"context"
	"time"

	"github.com/fleetctl/fleetd/pkg/log"
	"github.com/fleetctl/fleetd/pkg/metrics"
	"github.com/fleetctl/fleetd/pkg/placement"
	"github.com/fleetctl/fleetd/pkg/ratelimit"
	"github.com/fleetctl/fleetd/pkg/registry"
	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultInterval is how often the placement loop runs a cycle.
const DefaultInterval = 3 * time.Second

// DefaultRateLimit and DefaultRateWindow bound placement attempts: 100
// per 30 seconds by default.
const (
	DefaultRateLimit  = 100
	DefaultRateWindow = 30 * time.Second
)

// Scheduler assigns pending instances to workers.
type Scheduler struct {
	instances *store.InstanceStore
	registry  registry.Registry
	limiter   *ratelimit.Limiter
	interval  time.Duration
	logger    zerolog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New builds a Scheduler over the given instance store and worker
// registry, using the default interval and rate limit.
func New(instances *store.InstanceStore, reg registry.Registry) *Scheduler {
	return &Scheduler{
		instances: instances,
		registry:  reg,
		limiter:   ratelimit.New(DefaultRateLimit, DefaultRateWindow),
		interval:  DefaultInterval,
		logger:    log.WithComponent("scheduler"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the placement loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop halts the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.cycle(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduling cycle failed")
			}
		}
	}
}

// cycle performs one pass over every unassigned instance.
func (s *Scheduler) cycle(ctx context.Context) error {
	pending := s.instances.Unassigned()
	if len(pending) == 0 {
		return nil
	}

	workers, err := s.registry.Query(ctx)
	if err != nil {
		return err
	}
	if len(workers) == 0 {
		s.logger.Warn().Msg("no workers registered, leaving instances pending")
		return nil
	}

	for _, inst := range pending {
		if !s.limiter.Check() {
			return nil // rate-limited; remaining instances retried next tick
		}
		s.placeOne(ctx, inst, workers)
	}
	return nil
}

func (s *Scheduler) placeOne(ctx context.Context, inst *types.Instance, workers map[string]types.Worker) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	policy, err := placement.Compile(inst.Placement)
	if err != nil {
		s.logger.Error().Err(err).Str("instance", inst.Name()).Msg("invalid placement policy, leaving pending")
		return
	}

	candidates := make([]placement.Candidate, 0, len(workers))
	for _, w := range workers {
		candidates = append(candidates, placement.Candidate{
			Worker:        w,
			InstanceCount: len(s.instances.AssignedTo(w.ID)),
		})
	}

	winner, ok, err := policy.Select(candidates)
	if err != nil {
		s.logger.Error().Err(err).Str("instance", inst.Name()).Msg("placement evaluation failed, leaving pending")
		return
	}
	if !ok {
		return // no worker qualifies yet; retried next cycle
	}

	inst.State = types.StatePendingDispatch
	inst.AssignedTo = winner.Worker.ID
	if err := s.instances.Update(ctx, inst); err != nil {
		s.logger.Error().Err(err).Str("instance", inst.Name()).Msg("failed to persist placement decision")
		return
	}
	metrics.InstancesScheduled.Inc()
	s.logger.Info().Str("instance", inst.Name()).Str("worker", winner.Worker.ID).Msg("placed instance")
}
