// Package plugin defines the resource-kind adapter contract for birthmark.
package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yairfalse/birthmark/internal/audit"
	"github.com/yairfalse/birthmark/pkg/resource"
)

// Adapter knows one resource kind on both sides of the join: which audit
// events create it, and how to list what currently exists.
type Adapter interface {
	audit.Matcher

	// ExtractIdentity returns the stable id assigned by the creation event.
	// Errors wrap resource.ErrMalformedPayload.
	ExtractIdentity(p audit.Payload) (string, error)

	// DisplayName returns a human name for id, falling back to id.
	// live is nil when the resource no longer exists.
	DisplayName(p audit.Payload, id string, live *resource.LiveResource) string

	// FetchLiveInventory lists the kind's current resources.
	FetchLiveInventory(ctx context.Context) ([]resource.LiveResource, error)
}

// BatchIdentityExtractor is implemented by kinds whose single creation
// event can create several resources (RunInstances with MaxCount > 1).
type BatchIdentityExtractor interface {
	ExtractIdentities(p audit.Payload) ([]string, error)
}

// Deleter is implemented by kinds that support best-effort deletion.
type Deleter interface {
	Delete(ctx context.Context, id string) (any, error)
}

// Identities returns every id a creation event names, using
// BatchIdentityExtractor when the adapter provides it.
func Identities(a Adapter, p audit.Payload) ([]string, error) {
	if b, ok := a.(BatchIdentityExtractor); ok {
		ids, err := b.ExtractIdentities(p)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: %s event names no resources", resource.ErrMalformedPayload, a.Kind())
		}
		return ids, nil
	}
	id, err := a.ExtractIdentity(p)
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

// Registry maps kinds to adapters. It is built once at startup.
type Registry struct {
	mu       sync.RWMutex
	adapters map[resource.Kind]Adapter
}

// NewRegistry creates a registry holding adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[resource.Kind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter, replacing any previous one for the same kind.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Kind()] = a
}

// Get returns the adapter for kind.
func (r *Registry) Get(kind resource.Kind) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	return a, ok
}

// Lookup is Get with an ErrUnknownKind error.
func (r *Registry) Lookup(kind resource.Kind) (Adapter, error) {
	a, ok := r.Get(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", resource.ErrUnknownKind, kind)
	}
	return a, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []resource.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]resource.Kind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
