package processor

import (
	"fmt"
	"sync"

	"github.com/maauso/faceswap/internal/engine"
)

// Info describes a registered processor.
type Info struct {
	ID          ID     `json:"id"`
	Description string `json:"description"`
}

// Registry maps processor IDs to factories. It is built once at startup
// and shared by all jobs.
type Registry struct {
	mu        sync.RWMutex
	factories map[ID]Factory
	infos     []Info
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[ID]Factory)}
}

// DefaultRegistry registers the built-in face processors backed by client.
func DefaultRegistry(client engine.Client) *Registry {
	r := NewRegistry()
	_ = r.Register(FaceSwapperID, "replaces target faces with the source face", func(deps Deps) (FrameProcessor, error) {
		return NewFaceSwapper(client, deps), nil
	})
	_ = r.Register(FaceEnhancerID, "restores face detail after swapping", func(deps Deps) (FrameProcessor, error) {
		return NewFaceEnhancer(client, deps), nil
	})
	return r
}

// Register adds a factory under id. Registering an ID twice fails.
func (r *Registry) Register(id ID, description string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProcessor, id)
	}
	r.factories[id] = f
	r.infos = append(r.infos, Info{ID: id, Description: description})
	return nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// List returns the registered processors in registration order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, len(r.infos))
	copy(out, r.infos)
	return out
}

// Validate returns ErrUnknownProcessor for the first unregistered ID.
func (r *Registry) Validate(ids []string) error {
	for _, id := range ids {
		if !r.Has(ID(id)) {
			return fmt.Errorf("%w: %s", ErrUnknownProcessor, id)
		}
	}
	return nil
}

// Chain instantiates one processor per ID, preserving the given order.
func (r *Registry) Chain(ids []string, deps Deps) (Chain, error) {
	if err := r.Validate(ids); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := make(Chain, 0, len(ids))
	for _, id := range ids {
		p, err := r.factories[ID(id)](deps)
		if err != nil {
			return nil, fmt.Errorf("create processor %s: %w", id, err)
		}
		chain = append(chain, p)
	}
	return chain, nil
}
