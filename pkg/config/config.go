/*
Package config reads the environment-variable contract the control
plane is deployed with. Every variable is optional; a missing one
falls back to the default the owning package already declares, so
config.Load never needs to know those defaults itself beyond what it
prints in --help.
*/
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fleetctl/fleetd/pkg/reconcile"
	"github.com/fleetctl/fleetd/pkg/workerclient"
)

// Config is the fully-resolved set of environment knobs for one
// controlplane process.
type Config struct {
	Formation         string
	ServiceRegistry   []string
	Port              int
	SlowBootThreshold time.Duration
	SlowTermThreshold time.Duration
	RemoveTerminated  time.Duration
	CheckInterval     time.Duration
	Database          string
}

// Load reads the environment, applying the defaults named throughout
// pkg/reconcile and pkg/workerclient wherever a variable
// is unset.
func Load() Config {
	return Config{
		Formation:         os.Getenv("FORMATION"),
		ServiceRegistry:   splitCSV(os.Getenv("SERVICE_REGISTRY")),
		Port:              envInt("PORT", 9000),
		SlowBootThreshold: envDuration("SLOW_BOOT_THRESHOLD", reconcile.DefaultSlowBootThreshold),
		SlowTermThreshold: envDuration("SLOW_TERM_THRESHOLD", reconcile.DefaultSlowTermThreshold),
		RemoveTerminated:  envDuration("REMOVE_TERMINATED_INTERVAL", reconcile.DefaultRemoveTerminatedInterval),
		CheckInterval:     envDuration("CHECK_INTERVAL", workerclient.DefaultPollInterval),
		Database:          os.Getenv("DATABASE"),
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	// Bare integers are seconds, matching the threshold-in-seconds
	// convention of the original scheduler these variables came from.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
