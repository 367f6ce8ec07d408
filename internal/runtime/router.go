package runtime

import (
	"fmt"
	"sync"

	errspkg "github.com/issuu/kanin/internal/runtime/errors"
)

// router is the immutable-after-start routing table: one handler descriptor
// per routing key, exact match only.
type router struct {
	mu     sync.RWMutex
	routes map[string]*handlerDescriptor
	order  []*handlerDescriptor
}

func newRouter() *router {
	return &router{routes: make(map[string]*handlerDescriptor)}
}

func (r *router) register(desc *handlerDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[desc.routingKey]; exists {
		return fmt.Errorf("%w: %q", errspkg.ErrDuplicateRoutingKey, desc.routingKey)
	}
	r.routes[desc.routingKey] = desc
	r.order = append(r.order, desc)
	return nil
}

func (r *router) resolve(routingKey string) (*handlerDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.routes[routingKey]
	return desc, ok
}

// descriptors returns the registered handlers in registration order.
func (r *router) descriptors() []*handlerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*handlerDescriptor, len(r.order))
	copy(out, r.order)
	return out
}

func (r *router) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}
