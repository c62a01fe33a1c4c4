package controlplane

import (
	"context"
	"time"

	"github.com/fleetctl/fleetd/pkg/failuredetector"
	"github.com/fleetctl/fleetd/pkg/leader"
	"github.com/fleetctl/fleetd/pkg/log"
	"github.com/fleetctl/fleetd/pkg/reconcile"
	"github.com/fleetctl/fleetd/pkg/registry"
	"github.com/fleetctl/fleetd/pkg/scheduler"
	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/fleetctl/fleetd/pkg/workerclient"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// LeaderPollInterval is how often a non-leader process retries
// acquiring the leader lock.
const LeaderPollInterval = 2 * time.Second

// RegistrySyncInterval is how often the worker pool's membership is
// refreshed from the worker registry.
const RegistrySyncInterval = 10 * time.Second

// runnable is the common shape of every component the supervisor starts
// only while holding leadership.
type runnable interface {
	Start(ctx context.Context)
	Stop()
}

// Supervisor owns the leader lock and every reconciliation loop that
// must run only while it is held.
type Supervisor struct {
	instances *store.InstanceStore
	reg       registry.Registry
	pool      *workerclient.Pool
	lock      *leader.Lock
	detector  *failuredetector.Detector
	log       zerolog.Logger

	loops []runnable
}

// Thresholds overrides the package-default timing every reconciliation
// loop would otherwise use, sourced from config.Config. A zero field
// leaves that loop's own default in place.
type Thresholds struct {
	SlowBootThreshold time.Duration
	SlowTermThreshold time.Duration
	RemoveTerminated  time.Duration
}

// NewSupervisor builds a Supervisor over the given instance store,
// worker registry and pool, gated by the given leader lock. It
// constructs the scheduler and every reconciliation loop internally,
// applying any non-zero override in t on top of each loop's package
// default.
func NewSupervisor(instances *store.InstanceStore, reg registry.Registry, pool *workerclient.Pool, lock *leader.Lock, t Thresholds) *Supervisor {
	s := &Supervisor{
		instances: instances,
		reg:       reg,
		pool:      pool,
		lock:      lock,
		detector:  failuredetector.New(failuredetector.DefaultThreshold, failuredetector.DefaultSampleWindow),
		log:       log.WithComponent("controlplane"),
	}

	slowBoot := reconcile.NewSlowBootHandler(instances, pool)
	slowTerm := reconcile.NewSlowTermHandler(instances)
	removeTerminated := reconcile.NewRemoveTerminatedHandler(instances)
	if t.SlowBootThreshold > 0 {
		slowBoot.WithThreshold(t.SlowBootThreshold)
	}
	if t.SlowTermThreshold > 0 {
		slowTerm.WithThreshold(t.SlowTermThreshold)
	}
	if t.RemoveTerminated > 0 {
		removeTerminated.Runner.WithInterval(t.RemoveTerminated)
	}

	s.loops = []runnable{
		scheduler.New(instances, reg),
		reconcile.NewDispatcher(instances, pool),
		reconcile.NewUpdater(instances, pool),
		reconcile.NewTerminator(instances, pool),
		slowBoot,
		slowTerm,
		removeTerminated,
		NewMetricsCollector(instances, reg, s.detector, lock),
	}
	return s
}

// Run blocks until ctx is canceled. It repeatedly acquires the leader
// lock, runs every loop plus the worker pool and registry sync while
// held, and stops them all as soon as leadership is lost, looping back
// to try acquiring again.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		lost, err := s.lock.Acquire(ctx, LeaderPollInterval)
		if err != nil {
			return err // context canceled or an unexpected KV error
		}
		s.log.Info().Msg("acquired leadership, starting reconciliation loops")

		leaseCtx, cancel := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(leaseCtx)

		for _, l := range s.loops {
			l.Start(gctx)
		}
		g.Go(func() error { s.pool.Run(gctx); return nil })
		g.Go(func() error { s.syncRegistry(gctx); return nil })

		select {
		case <-lost:
			s.log.Warn().Msg("lost leadership, stopping reconciliation loops")
		case <-ctx.Done():
		}
		cancel()
		for _, l := range s.loops {
			l.Stop()
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// syncRegistry keeps the worker pool's client set in sync with the
// worker registry until ctx is canceled.
func (s *Supervisor) syncRegistry(ctx context.Context) {
	ticker := time.NewTicker(RegistrySyncInterval)
	defer ticker.Stop()

	sync := func() {
		workers, err := s.reg.Query(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("registry query failed, keeping previous worker set")
			return
		}
		s.applyWorkers(workers)
	}
	sync()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sync()
		}
	}
}

func (s *Supervisor) applyWorkers(workers map[string]types.Worker) {
	list := make([]types.Worker, 0, len(workers))
	for _, w := range workers {
		list = append(list, w)
		s.detector.Heartbeat(w.ID)
	}
	s.pool.Sync(list)
}
