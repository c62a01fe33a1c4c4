package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetctl/fleetd/pkg/config"
	"github.com/fleetctl/fleetd/pkg/controlplane"
	"github.com/fleetctl/fleetd/pkg/events"
	"github.com/fleetctl/fleetd/pkg/kv"
	"github.com/fleetctl/fleetd/pkg/leader"
	"github.com/fleetctl/fleetd/pkg/log"
	"github.com/fleetctl/fleetd/pkg/metrics"
	"github.com/fleetctl/fleetd/pkg/registry"
	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/fleetctl/fleetd/pkg/workerclient"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fleetd",
	Short:   "fleetd - a small container-instance control plane",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("fleetd version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(applyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control plane: leader election, scheduling and reconciliation",
	RunE:  runControlPlane,
}

func init() {
	runCmd.Flags().String("node-id", "node-1", "This process's identity, used as the leader lock owner")
}

// openKV builds a kv.KV from cfg.Database, a URL of one of:
//
//	memory://                       in-process, for local experimentation
//	bolt:///path/to/data            single-node, durable
//	raft://node-id@bind-host:port/path/to/data?bootstrap=true
func openKV(cfg config.Config, nodeID string) (kv.KV, error) {
	if cfg.Database == "" {
		return kv.NewMemory(0), nil
	}
	u, err := url.Parse(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE: %w", err)
	}

	switch u.Scheme {
	case "", "memory":
		return kv.NewMemory(0), nil

	case "bolt":
		return kv.NewBoltKV(u.Path)

	case "raft":
		id := nodeID
		if u.User != nil {
			id = u.User.Username()
		}
		return kv.NewRaftKV(kv.RaftConfig{
			NodeID:       id,
			BindAddr:     u.Host,
			DataDir:      u.Path,
			Bootstrap:    u.Query().Get("bootstrap") == "true",
			ExistingNode: u.Query().Get("bootstrap") != "true",
		})

	default:
		return nil, fmt.Errorf("unrecognized DATABASE scheme %q", u.Scheme)
	}
}

// buildRegistry prefers a static registry seeded from SERVICE_REGISTRY
// when set (fixed worker addresses, the common case for a small or
// single-node deployment); otherwise it polls the worker announcements
// kept in the backing KV store under workers/<formation>/.
func buildRegistry(cfg config.Config, backingKV kv.KV) registry.Registry {
	if len(cfg.ServiceRegistry) == 0 {
		return registry.NewPollRegistry(backingKV, cfg.Formation, cfg.CheckInterval)
	}
	workers := make([]types.Worker, 0, len(cfg.ServiceRegistry))
	for _, host := range cfg.ServiceRegistry {
		workers = append(workers, types.Worker{ID: host, Host: host})
	}
	return registry.NewStaticRegistry(workers...)
}

func runControlPlane(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	nodeID, _ := cmd.Flags().GetString("node-id")

	logger := log.WithComponent("fleetd")
	logger.Info().Str("formation", cfg.Formation).Str("node_id", nodeID).Msg("starting fleetd control plane")

	backingKV, err := openKV(cfg, nodeID)
	if err != nil {
		return fmt.Errorf("open kv store: %w", err)
	}
	metrics.RegisterComponent("kv", true, "opened")

	broker := events.NewBroker()
	instances := store.NewInstanceStore(backingKV, broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := instances.Start(ctx); err != nil {
		return fmt.Errorf("start instance store: %w", err)
	}
	defer instances.Stop()
	metrics.RegisterComponent("instance-store", true, "watching")

	reg := buildRegistry(cfg, backingKV)
	metrics.RegisterComponent("worker-registry", true, "polling")

	pool := workerclient.NewPool(cfg.Formation, instances, workerclient.OrphanIgnore, cfg.CheckInterval, logger)
	lock := leader.New(backingKV, nodeID, 10*time.Second)
	metrics.RegisterComponent("leader", false, "not yet acquired")

	thresholds := controlplane.Thresholds{
		SlowBootThreshold: cfg.SlowBootThreshold,
		SlowTermThreshold: cfg.SlowTermThreshold,
		RemoveTerminated:  cfg.RemoveTerminated,
	}
	sup := controlplane.NewSupervisor(instances, reg, pool, lock, thresholds)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server exited")
		}
	}()
	logger.Info().Int("port", cfg.Port).Msg("metrics and health endpoints listening")

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(ctx) }()

	go leaderGauge(ctx, lock)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-runErr:
		if err != nil {
			logger.Error().Err(err).Msg("supervisor exited")
		}
	}

	cancel()
	_ = srv.Close()
	return nil
}

// leaderGauge keeps the "leader" health component's message current; the
// metric itself is set by controlplane.MetricsCollector.
func leaderGauge(ctx context.Context, lock *leader.Lock) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if lock.Held() {
				metrics.UpdateComponent("leader", true, "held")
			} else {
				metrics.UpdateComponent("leader", true, "not held, following")
			}
		}
	}
}
