package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/fleetctl/fleetd/pkg/config"
	"github.com/fleetctl/fleetd/pkg/events"
	"github.com/fleetctl/fleetd/pkg/kv"
	"github.com/fleetctl/fleetd/pkg/release"
	"github.com/fleetctl/fleetd/pkg/store"
	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a formation or release manifest directly against the KV store",
	Long: `Apply reads a YAML manifest and writes it straight to the KV store
fleetd's control plane watches — there is no separate API server to go
through.

Examples:

  fleetd apply -f formation.yaml
  fleetd apply -f release.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// manifest is the generic envelope every applied resource shares,
// matching the apiVersion/kind/metadata/spec shape of a Kubernetes-style
// manifest without committing to that ecosystem's actual types.
type manifest struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   manifestMetadata `yaml:"metadata"`
	Spec       manifestSpec     `yaml:"spec"`
}

type manifestMetadata struct {
	Name      string `yaml:"name"`
	Formation string `yaml:"formation"`
}

type manifestSpec struct {
	Attributes map[string]string              `yaml:"attributes"`
	Services   map[string]manifestServiceSpec `yaml:"services"`
}

type manifestServiceSpec struct {
	Image    string            `yaml:"image"`
	Command  string            `yaml:"command"`
	Env      map[string]string `yaml:"env"`
	Ports    []types.PortSpec  `yaml:"ports"`
	Requires []string          `yaml:"requires"`
	Replicas int               `yaml:"replicas"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	cfg := config.Load()
	backingKV, err := openKV(cfg, "apply")
	if err != nil {
		return fmt.Errorf("open kv store: %w", err)
	}

	catalog := store.NewCatalogStore(backingKV)
	ctx := context.Background()

	switch m.Kind {
	case "Formation":
		return applyFormation(ctx, catalog, &m)
	case "Release":
		return applyRelease(ctx, backingKV, catalog, &m)
	default:
		return fmt.Errorf("unsupported manifest kind: %s", m.Kind)
	}
}

func applyFormation(ctx context.Context, catalog *store.CatalogStore, m *manifest) error {
	f := &types.Formation{Name: m.Metadata.Name, Attributes: m.Spec.Attributes}
	if err := catalog.CreateFormation(ctx, f); err != nil {
		if err == store.ErrAlreadyExists {
			fmt.Printf("formation %s already exists, skipping\n", f.Name)
			return nil
		}
		return fmt.Errorf("create formation: %w", err)
	}
	fmt.Printf("formation created: %s\n", f.Name)
	return nil
}

func applyRelease(ctx context.Context, backingKV kv.KV, catalog *store.CatalogStore, m *manifest) error {
	formationName := m.Metadata.Formation
	if formationName == "" {
		return fmt.Errorf("release manifest requires metadata.formation")
	}

	existingFormation, err := catalog.GetFormation(ctx, formationName)
	if err != nil {
		return fmt.Errorf("look up formation: %w", err)
	}
	if existingFormation == nil {
		if err := catalog.CreateFormation(ctx, &types.Formation{Name: formationName}); err != nil && err != store.ErrAlreadyExists {
			return fmt.Errorf("create formation %s: %w", formationName, err)
		}
		fmt.Printf("formation created: %s\n", formationName)
	}

	services := make(map[string]*types.ServiceTemplate, len(m.Spec.Services))
	scales := make(map[string]int, len(m.Spec.Services))
	for name, svc := range m.Spec.Services {
		if svc.Image == "" {
			return fmt.Errorf("service %s: image is required", name)
		}
		services[name] = &types.ServiceTemplate{
			Image:    svc.Image,
			Command:  svc.Command,
			Env:      svc.Env,
			Ports:    svc.Ports,
			Requires: svc.Requires,
		}
		replicas := svc.Replicas
		if replicas == 0 {
			replicas = 1
		}
		scales[name] = replicas
	}

	rel := &types.Release{Formation: formationName, Name: m.Metadata.Name, Services: services}
	if err := catalog.CreateRelease(ctx, rel); err != nil {
		if err != store.ErrAlreadyExists {
			return fmt.Errorf("create release: %w", err)
		}
		existing, err := catalog.GetRelease(ctx, formationName, m.Metadata.Name)
		if err != nil {
			return fmt.Errorf("look up existing release: %w", err)
		}
		rel = existing
		fmt.Printf("release %s/%s already exists, reusing its service templates\n", formationName, rel.Name)
	} else {
		fmt.Printf("release created: %s/%s\n", formationName, rel.Name)
	}

	return scaleToTarget(ctx, backingKV, rel, scales)
}

// scaleToTarget drives the release's declared scale to completion by
// repeatedly stepping release.Controller.Scale, the same one-step-at-a-time
// shape the control plane's own scheduling loop uses.
func scaleToTarget(ctx context.Context, backingKV kv.KV, rel *types.Release, scales map[string]int) error {
	broker := events.NewBroker()
	instances := store.NewInstanceStore(backingKV, broker)
	if err := instances.Start(ctx); err != nil {
		return fmt.Errorf("start instance store: %w", err)
	}
	defer instances.Stop()

	controller := release.New(instances)
	src := rand.NewSource(time.Now().UnixNano())

	for {
		more, err := controller.Scale(ctx, rel, scales, src)
		if err != nil {
			return fmt.Errorf("scale: %w", err)
		}
		if !more {
			break
		}
		// Give the store's watch loop a moment to apply what Scale just
		// wrote before the next step reads Live() again.
		time.Sleep(20 * time.Millisecond)
	}
	fmt.Printf("release %s/%s scaled to target\n", rel.Formation, rel.Name)
	return nil
}
