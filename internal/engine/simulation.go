package engine

import (
	"fmt"

	"github.com/talgya/agrisim/internal/entity"
)

// registry is an identifier-keyed store that remembers first-insertion order.
// Re-adding an identifier replaces the record in place.
type registry[T any] struct {
	items map[string]T
	order []string
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{items: make(map[string]T)}
}

func (r *registry[T]) put(id string, v T) {
	if _, ok := r.items[id]; !ok {
		r.order = append(r.order, id)
	}
	r.items[id] = v
}

func (r *registry[T]) len() int { return len(r.order) }

func (r *registry[T]) values() []T {
	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out
}

func (e *Engine) checkOpen(kind, id string) error {
	if e.state != StateConfiguring {
		return fmt.Errorf("add %s %q: %w", kind, id, ErrRegistryClosed)
	}
	return nil
}

// AddRegion registers a region keyed by district. Last write wins.
func (e *Engine) AddRegion(loc entity.Location) error {
	if err := e.checkOpen("region", loc.District); err != nil {
		return err
	}
	if err := loc.Validate(); err != nil {
		return err
	}
	e.regions.put(loc.District, loc)
	return nil
}

// AddFarmer registers a farmer keyed by farmer ID. Last write wins.
// Unit-interval attributes are clamped rather than rejected.
func (e *Engine) AddFarmer(f entity.FarmerProfile) error {
	if err := e.checkOpen("farmer", f.FarmerID); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	f = f.Normalize()
	f.CropsGrown = append([]string(nil), f.CropsGrown...)
	e.farmers.put(f.FarmerID, f)
	return nil
}

// AddInfrastructure registers an infrastructure item. Last write wins.
func (e *Engine) AddInfrastructure(i entity.Infrastructure) error {
	if err := e.checkOpen("infrastructure", i.InfrastructureID); err != nil {
		return err
	}
	if err := i.Validate(); err != nil {
		return err
	}
	e.infra.put(i.InfrastructureID, i)
	return nil
}

// AddPolicy registers a policy. Last write wins.
func (e *Engine) AddPolicy(p entity.Policy) error {
	if err := e.checkOpen("policy", p.PolicyID); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	e.policies.put(p.PolicyID, p.Normalize())
	return nil
}

// Load adds every record of the set, stopping at the first error.
func (e *Engine) Load(set entity.Set) error {
	for _, r := range set.Regions {
		if err := e.AddRegion(r); err != nil {
			return err
		}
	}
	for _, f := range set.Farmers {
		if err := e.AddFarmer(f); err != nil {
			return err
		}
	}
	for _, i := range set.Infrastructure {
		if err := e.AddInfrastructure(i); err != nil {
			return err
		}
	}
	for _, p := range set.Policies {
		if err := e.AddPolicy(p); err != nil {
			return err
		}
	}
	return nil
}

// Regions returns the registered regions in registry order.
func (e *Engine) Regions() []entity.Location { return e.regions.values() }

// Farmers returns copies of the registered farmers in registry order.
func (e *Engine) Farmers() []entity.FarmerProfile {
	return entity.Set{Farmers: e.farmers.values()}.Clone().Farmers
}

// Infrastructure returns the registered infrastructure in registry order.
func (e *Engine) Infrastructure() []entity.Infrastructure { return e.infra.values() }

// Policies returns copies of the registered policies in registry order.
func (e *Engine) Policies() []entity.Policy {
	return entity.Set{Policies: e.policies.values()}.Clone().Policies
}

// Snapshot returns a deep copy of every registry.
func (e *Engine) Snapshot() entity.Set {
	return entity.Set{
		Regions:        e.Regions(),
		Farmers:        e.Farmers(),
		Policies:       e.Policies(),
		Infrastructure: e.Infrastructure(),
	}
}
