package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetctl/fleetd/pkg/kv"
	"github.com/fleetctl/fleetd/pkg/types"
)

// ErrAlreadyExists is surfaced to API callers when a CAS create conflicts
// with an existing formation or release (spec error taxonomy: "already
// exists").
var ErrAlreadyExists = fmt.Errorf("already exists")

func formationKey(name string) string {
	return "formation/" + name
}

func releaseKey(formation, name string) string {
	return "release/" + formation + "/" + name
}

// CatalogStore provides CRUD for Formation and Release, both of which use
// CAS-on-create (SET IF ABSENT) to avoid silently overwriting an existing
// record — the one place in the data model where the store itself enforces
// uniqueness rather than relying on last-writer-wins.
type CatalogStore struct {
	kv kv.KV
}

func NewCatalogStore(store kv.KV) *CatalogStore {
	return &CatalogStore{kv: store}
}

func (c *CatalogStore) CreateFormation(ctx context.Context, f *types.Formation) error {
	f.CreatedAt = time.Now()
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode formation %s: %w", f.Name, err)
	}
	if err := c.kv.CAS(ctx, formationKey(f.Name), nil, data, 0); err != nil {
		if err == kv.ErrConflict {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (c *CatalogStore) GetFormation(ctx context.Context, name string) (*types.Formation, error) {
	raw, err := c.kv.Get(ctx, formationKey(name))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f types.Formation
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode formation %s: %w", name, err)
	}
	return &f, nil
}

func (c *CatalogStore) CreateRelease(ctx context.Context, r *types.Release) error {
	r.CreatedAt = time.Now()
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode release %s/%s: %w", r.Formation, r.Name, err)
	}
	if err := c.kv.CAS(ctx, releaseKey(r.Formation, r.Name), nil, data, 0); err != nil {
		if err == kv.ErrConflict {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (c *CatalogStore) GetRelease(ctx context.Context, formation, name string) (*types.Release, error) {
	raw, err := c.kv.Get(ctx, releaseKey(formation, name))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r types.Release
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode release %s/%s: %w", formation, name, err)
	}
	return &r, nil
}

func (c *CatalogStore) ListReleases(ctx context.Context, formation string) ([]*types.Release, error) {
	values, _, err := c.kv.GetRecursive(ctx, "release/"+formation+"/")
	if err != nil {
		return nil, err
	}
	out := make([]*types.Release, 0, len(values))
	for key, raw := range values {
		var r types.Release
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode release at %s: %w", key, err)
		}
		out = append(out, &r)
	}
	return out, nil
}
