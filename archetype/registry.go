// Package archetype holds the live, user-editable set of archetypes and
// hands out immutable snapshots for runs.
package archetype

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/insightmesh/core"
)

// Registry is an ordered, goroutine-safe archetype collection. Order is the
// registration order and defines the deterministic invocation and synthesis
// order of every run built from a Snapshot.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]core.Archetype
}

// NewRegistry creates a registry seeded with the given archetypes. With no
// arguments the built-in Defaults are used.
func NewRegistry(seed ...core.Archetype) *Registry {
	if len(seed) == 0 {
		seed = Defaults()
	}
	r := &Registry{byID: make(map[string]core.Archetype, len(seed))}
	for _, a := range seed {
		_ = r.Upsert(a)
	}
	return r
}

// Upsert adds or replaces an archetype. Scalars are clamped; replaced
// archetypes keep their position.
func (r *Registry) Upsert(a core.Archetype) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a = a.Clamped()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[a.ID]; !ok {
		r.order = append(r.order, a.ID)
	}
	r.byID[a.ID] = a
	return nil
}

// Override applies fn to a copy of the archetype with the given id and
// stores the clamped result.
func (r *Registry) Override(id string, fn func(a *core.Archetype)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("archetype %q not found", id)
	}
	fn(&a)
	a.ID = id
	if err := a.Validate(); err != nil {
		return err
	}
	r.byID[id] = a.Clamped()
	return nil
}

// Remove deletes an archetype. It reports whether the id existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Reset restores the built-in defaults, discarding every customization.
func (r *Registry) Reset() {
	defaults := Defaults()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = r.order[:0]
	r.byID = make(map[string]core.Archetype, len(defaults))
	for _, a := range defaults {
		r.order = append(r.order, a.ID)
		r.byID[a.ID] = a.Clamped()
	}
}

// Get returns a copy of the archetype with the given id.
func (r *Registry) Get(id string) (core.Archetype, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// List returns a copy of every archetype in registry order.
func (r *Registry) List() []core.Archetype {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Archetype, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of registered archetypes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Snapshot returns detached copies of the requested archetypes in registry
// order, independent of the order of ids. With no ids every archetype is
// returned. Unknown ids are an error.
func (r *Registry) Snapshot(ids ...string) ([]core.Archetype, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(ids) == 0 {
		out := make([]core.Archetype, 0, len(r.order))
		for _, id := range r.order {
			out = append(out, r.byID[id])
		}
		return out, nil
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := r.byID[id]; !ok {
			return nil, fmt.Errorf("archetype %q not found", id)
		}
		wanted[id] = struct{}{}
	}
	out := make([]core.Archetype, 0, len(wanted))
	for _, id := range r.order {
		if _, ok := wanted[id]; ok {
			out = append(out, r.byID[id])
		}
	}
	return out, nil
}

// pack is the YAML document shape accepted by LoadYAML.
type pack struct {
	Archetypes []core.Archetype `yaml:"archetypes"`
}

// LoadYAML upserts every archetype of a YAML pack:
//
//	archetypes:
//	  - id: oracle
//	    name: Oracle
//	    imagination: 8
//
// It returns the number of archetypes loaded.
func (r *Registry) LoadYAML(rd io.Reader) (int, error) {
	var p pack
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("decode archetype pack: %w", err)
	}
	for i, a := range p.Archetypes {
		if err := r.Upsert(a); err != nil {
			return i, fmt.Errorf("archetype #%d: %w", i+1, err)
		}
	}
	return len(p.Archetypes), nil
}
