package types

import "time"

// Formation is a named logical deployment.
type Formation struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Release is an immutable versioned definition of what a formation runs.
// The tuple (Formation, Name) is its primary key.
type Release struct {
	Formation string                      `json:"formation"`
	Name      string                      `json:"name"`
	Services  map[string]*ServiceTemplate `json:"services"`
	CreatedAt time.Time                   `json:"created_at"`
}

// ServiceTemplate describes one process type within a release.
type ServiceTemplate struct {
	Image    string            `json:"image"`
	Command  string            `json:"command,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Ports    []PortSpec        `json:"ports,omitempty"`
	Requires []string          `json:"requires,omitempty"`
}

// PortSpec is an ordered port declaration within a service template.
type PortSpec struct {
	Name     string `json:"name,omitempty"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol,omitempty"` // "tcp" or "udp"
}

// InstanceState is the closed set of proc lifecycle states.
type InstanceState string

const (
	StatePending         InstanceState = "pending"
	StatePendingDispatch InstanceState = "pending-dispatch"
	StateRunning         InstanceState = "running"
	StateMigrating       InstanceState = "migrating"
	StateShuttingDown    InstanceState = "shutting-down"
	StateTerminated      InstanceState = "terminated"
	StateLost            InstanceState = "lost"
)

// Live reports whether the state counts toward a release's declared scale.
func (s InstanceState) Live() bool {
	switch s {
	case StatePending, StatePendingDispatch, StateRunning, StateMigrating:
		return true
	default:
		return false
	}
}

// PlacementOptions carries the optional placement-policy hints a caller may
// attach to an instance.
type PlacementOptions struct {
	// Requirements is a list of boolean expressions evaluated against a
	// worker's {tags, host, domain}; all must be truthy for the worker to
	// be eligible.
	Requirements []string `json:"requirements,omitempty"`
	// Rank is an arithmetic expression evaluated against worker variables
	// (e.g. "ncont"); lower score wins. Empty means the default policy.
	Rank string `json:"rank,omitempty"`
}

// Instance (proc) is the fundamental unit of scheduling.
type Instance struct {
	Formation string `json:"formation"`
	Service   string `json:"service"`
	ID        string `json:"instance"` // short unique id within the service
	Release   string `json:"release"`

	// Frozen from the release's service template at creation/migration time.
	Image   string            `json:"image"`
	Command string            `json:"command,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Ports   []PortSpec        `json:"ports,omitempty"`

	State      InstanceState     `json:"state"`
	AssignedTo string            `json:"assigned_to,omitempty"`
	Placement  *PlacementOptions `json:"placement,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	StateSince time.Time         `json:"state_since"`
}

// Name is the derived, globally-unique-per-formation instance name:
// "<service>.<instance>".
func (i *Instance) Name() string {
	return i.Service + "." + i.ID
}

// SameSpec reports whether the instance's frozen image/command/env match a
// service template. Used by migrate()'s re-release/migrate distinction.
func (i *Instance) SameSpec(t *ServiceTemplate) bool {
	if i.Image != t.Image || i.Command != t.Command {
		return false
	}
	return envEqual(i.Env, t.Env)
}

// SamePorts reports whether the instance's frozen ports match a template's.
// Used alongside SameSpec by migrate()'s re-release/migrate distinction.
func (i *Instance) SamePorts(t *ServiceTemplate) bool {
	if len(i.Ports) != len(t.Ports) {
		return false
	}
	for idx, p := range i.Ports {
		if p != t.Ports[idx] {
			return false
		}
	}
	return true
}

func envEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Worker is a node known to the service registry that can run containers.
type Worker struct {
	ID     string            `json:"instance"`
	Tags   map[string]string `json:"tags,omitempty"`
	Host   string            `json:"host"`
	Domain string            `json:"domain"`
}

// ContainerState is the worker-reported state of a container.
type ContainerState string

const (
	ContainerRunning ContainerState = "running"
	ContainerFail    ContainerState = "fail"
	ContainerDone    ContainerState = "done"
	ContainerError   ContainerState = "error"
)

// Container is the worker-side realization of an instance. It is opaque to
// the orchestrator beyond the fields needed to correlate it to an Instance.
type Container struct {
	ID        string         `json:"id"`
	Formation string         `json:"formation"`
	Service   string         `json:"service"`
	Instance  string         `json:"instance"`
	Image     string         `json:"image"`
	Command   string         `json:"command,omitempty"`
	State     ContainerState `json:"state"`
}

// Correlates reports whether this container belongs to the given instance.
func (c *Container) Correlates(i *Instance) bool {
	return c.Formation == i.Formation && c.Service == i.Service && c.Instance == i.ID
}
