package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fleetctl/fleetd/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every outbound HTTP call unless the caller's
// context already carries a shorter deadline.
const DefaultTimeout = 10 * time.Second

// ErrProblematic is returned by calls other than Poll while the client is
// marked problematic, so callers fail fast instead of piling up requests
// against a broken worker.
var ErrProblematic = fmt.Errorf("workerclient: worker is problematic")

// dispatchRequest is the POST /container body.
type dispatchRequest struct {
	Image     string            `json:"image"`
	Command   string            `json:"command,omitempty"`
	Formation string            `json:"formation"`
	Service   string            `json:"service"`
	Instance  string            `json:"instance"`
	Env       map[string]string `json:"env,omitempty"`
	Ports     []types.PortSpec  `json:"ports,omitempty"`
}

// Client is the control plane's view of one worker's container endpoint.
type Client struct {
	worker  types.Worker
	baseURL string
	http    *http.Client
	log     zerolog.Logger

	mu             sync.RWMutex
	containers     map[string]*types.Container
	problematic    bool
	deferredDelete map[string]struct{}
}

// New builds a client for a worker. When the worker advertises a host
// (as a statically configured or directly dialable registry entry
// would), that host is used verbatim; otherwise the base URL follows
// the service-discovery convention http://<worker>.api.<formation>.service:9000.
func New(worker types.Worker, formation string, logger zerolog.Logger) *Client {
	return &Client{
		worker:         worker,
		baseURL:        resolveBaseURL(worker, formation),
		http:           &http.Client{Timeout: DefaultTimeout},
		log:            logger,
		containers:     make(map[string]*types.Container),
		problematic:    true,
		deferredDelete: make(map[string]struct{}),
	}
}

func resolveBaseURL(worker types.Worker, formation string) string {
	if worker.Host != "" {
		return fmt.Sprintf("http://%s", worker.Host)
	}
	return fmt.Sprintf("http://%s.api.%s.service:9000", worker.ID, formation)
}

// Worker returns the worker this client talks to.
func (c *Client) Worker() types.Worker {
	return c.worker
}

// Problematic reports whether the last poll or call failed.
func (c *Client) Problematic() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.problematic
}

func (c *Client) markProblematic() {
	c.mu.Lock()
	c.problematic = true
	c.mu.Unlock()
}

// guard returns ErrProblematic when the client is problematic, for every
// call except the poll itself.
func (c *Client) guard() error {
	if c.Problematic() {
		return ErrProblematic
	}
	return nil
}

// Poll fetches the worker's full container list. On the first success
// after being problematic it runs a reconciliation pass against the
// instance callback before clearing the flag.
func (c *Client) Poll(ctx context.Context, reconcile func(remote map[string]*types.Container, wasProblematic bool)) error {
	remote, err := c.fetchContainers(ctx)
	if err != nil {
		c.markProblematic()
		return err
	}

	c.mu.Lock()
	wasProblematic := c.problematic
	c.mu.Unlock()

	if reconcile != nil {
		reconcile(remote, wasProblematic)
	}

	c.mu.Lock()
	c.containers = remote
	c.problematic = false
	c.mu.Unlock()
	return nil
}

func (c *Client) fetchContainers(ctx context.Context) (map[string]*types.Container, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/container", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workerclient: GET /container: unexpected status %d", resp.StatusCode)
	}

	var out map[string]*types.Container
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("workerclient: decode container list: %w", err)
	}
	return out, nil
}

// Dispatch posts a create-container request for the instance.
func (c *Client) Dispatch(ctx context.Context, inst *types.Instance) (*types.Container, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(dispatchRequest{
		Image:     inst.Image,
		Command:   inst.Command,
		Formation: inst.Formation,
		Service:   inst.Service,
		Instance:  inst.ID,
		Env:       inst.Env,
		Ports:     inst.Ports,
	})
	if err != nil {
		return nil, err
	}
	ctr, err := c.do(ctx, http.MethodPost, c.baseURL+"/container", body)
	if err != nil {
		c.markProblematic()
		return nil, err
	}
	c.mu.Lock()
	c.containers[ctr.ID] = ctr
	c.mu.Unlock()
	return ctr, nil
}

// Restart issues an update-in-place request for an existing container.
func (c *Client) Restart(ctx context.Context, cid string, inst *types.Instance) (*types.Container, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(dispatchRequest{
		Image:     inst.Image,
		Command:   inst.Command,
		Formation: inst.Formation,
		Service:   inst.Service,
		Instance:  inst.ID,
		Env:       inst.Env,
		Ports:     inst.Ports,
	})
	if err != nil {
		return nil, err
	}
	ctr, err := c.do(ctx, http.MethodPut, c.baseURL+"/container/"+cid, body)
	if err != nil {
		c.markProblematic()
		return nil, err
	}
	c.mu.Lock()
	c.containers[ctr.ID] = ctr
	c.mu.Unlock()
	return ctr, nil
}

// Delete issues a delete request. On failure the container id is added to
// the deferred-delete list so the next reconciliation pass retries it.
func (c *Client) Delete(ctx context.Context, cid string) error {
	if err := c.guard(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/container/"+cid, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.markProblematic()
		c.addDeferredDelete(cid)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		c.addDeferredDelete(cid)
		return fmt.Errorf("workerclient: DELETE /container/%s: unexpected status %d", cid, resp.StatusCode)
	}

	c.mu.Lock()
	delete(c.containers, cid)
	delete(c.deferredDelete, cid)
	c.mu.Unlock()
	return nil
}

func (c *Client) addDeferredDelete(cid string) {
	c.mu.Lock()
	c.deferredDelete[cid] = struct{}{}
	c.mu.Unlock()
}

// DeferredDeletes returns container ids whose delete previously failed.
func (c *Client) DeferredDeletes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.deferredDelete))
	for id := range c.deferredDelete {
		out = append(out, id)
	}
	return out
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*types.Container, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("workerclient: %s %s: status %d: %s", method, url, resp.StatusCode, string(b))
	}
	var ctr types.Container
	if err := json.NewDecoder(resp.Body).Decode(&ctr); err != nil {
		return nil, fmt.Errorf("workerclient: decode container: %w", err)
	}
	return &ctr, nil
}

// Find returns the locally cached container correlating to an instance.
func (c *Client) Find(inst *types.Instance) (*types.Container, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ctr := range c.containers {
		if ctr.Correlates(inst) {
			return ctr, true
		}
	}
	return nil, false
}

// Containers returns a snapshot of the local container map.
func (c *Client) Containers() map[string]*types.Container {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*types.Container, len(c.containers))
	for k, v := range c.containers {
		cp := *v
		out[k] = &cp
	}
	return out
}

// Wait blocks until the worker reports the instance in one of
// {running, fail, done, error}, polling status every 5 seconds, or fails
// with a timeout.
func (c *Client) Wait(ctx context.Context, inst *types.Instance, timeout time.Duration) (types.ContainerState, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	check := func() (types.ContainerState, bool) {
		if ctr, ok := c.Find(inst); ok {
			switch ctr.State {
			case types.ContainerRunning, types.ContainerFail, types.ContainerDone, types.ContainerError:
				return ctr.State, true
			}
		}
		return "", false
	}

	if state, done := check(); done {
		return state, nil
	}
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("workerclient: wait for %s: %w", inst.Name(), ctx.Err())
		case <-ticker.C:
			if state, done := check(); done {
				return state, nil
			}
		}
	}
}
