package tenant

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/feedmux/feedgate/internal/model"
)

// ErrUnknown is returned when a tenant id is not registered.
var ErrUnknown = errors.New("unknown tenant")

// ErrSuspended is returned when a tenant exists but is suspended.
var ErrSuspended = errors.New("tenant suspended")

// Registry is a concurrency-safe lookup table of tenants.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]model.Tenant
}

// NewRegistry creates a registry seeded with the given tenants.
func NewRegistry(seed []model.Tenant) *Registry {
	r := &Registry{tenants: make(map[string]model.Tenant, len(seed))}
	for _, t := range seed {
		if t.Status == "" {
			t.Status = model.TenantActive
		}
		r.tenants[t.ID] = t
	}
	return r
}

// GetTenant returns the tenant for id.
func (r *Registry) GetTenant(id string) (model.Tenant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	return t, ok
}

// CheckActive returns nil when the tenant exists and is active, and a typed
// error otherwise. Used to gate Subscribe and per-cycle delivery.
func (r *Registry) CheckActive(id string) error {
	t, ok := r.GetTenant(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	if !t.Active() {
		return fmt.Errorf("%w: %s", ErrSuspended, id)
	}
	return nil
}

// Upsert adds or replaces a tenant.
func (r *Registry) Upsert(t model.Tenant) {
	if t.Status == "" {
		t.Status = model.TenantActive
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
}

// SetStatus changes a tenant's status. Returns false if the tenant is unknown.
func (r *Registry) SetStatus(id string, status model.TenantStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return false
	}
	t.Status = status
	r.tenants[id] = t
	return true
}

// List returns all tenants sorted by id.
func (r *Registry) List() []model.Tenant {
	r.mu.RLock()
	out := make([]model.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
