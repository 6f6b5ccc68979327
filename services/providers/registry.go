package providers

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrTransportAlreadyRegistered is returned when trying to register a tag twice
	ErrTransportAlreadyRegistered = errors.New("transport already registered")
)

// binding pairs a transport with the endpoint it talks to.
type binding struct {
	transport Transport
	endpoint  Endpoint
}

// Registry maps provider tags to their transport and endpoint.
type Registry struct {
	mu       sync.RWMutex
	bindings map[Tag]binding
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		bindings: make(map[Tag]binding),
	}
}

// Register binds a transport and endpoint to a tag.
func (r *Registry) Register(tag Tag, transport Transport, endpoint Endpoint) error {
	if transport == nil {
		return errors.New("transport cannot be nil")
	}
	if _, err := ParseTag(string(tag)); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bindings[tag]; exists {
		return fmt.Errorf("%w: %s", ErrTransportAlreadyRegistered, tag)
	}
	r.bindings[tag] = binding{transport: transport, endpoint: endpoint}
	return nil
}

// Lookup returns the transport and endpoint for tag.
func (r *Registry) Lookup(tag Tag) (Transport, Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[tag]
	if !ok {
		return nil, Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownProvider, tag)
	}
	return b.transport, b.endpoint, nil
}

// Endpoint returns the endpoint registered for tag.
func (r *Registry) Endpoint(tag Tag) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[tag]
	return b.endpoint, ok
}

// Tags returns the registered tags in AllTags order.
func (r *Registry) Tags() []Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]Tag, 0, len(r.bindings))
	for _, t := range AllTags() {
		if _, ok := r.bindings[t]; ok {
			tags = append(tags, t)
		}
	}
	return tags
}

// Count returns the number of registered transports
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
