// Package service holds callable services registered by integrations.
//
// A service is addressed as <domain>.<service> and receives the raw JSON
// body of the call. Integrations register their services during setup and
// remove them during teardown; the API dispatches
// POST /api/services/{domain}/{service} through Registry.Call.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrServiceNotFound is returned when calling an unregistered service.
	ErrServiceNotFound = errors.New("service: not found")

	// ErrAlreadyRegistered is returned when a name is taken.
	ErrAlreadyRegistered = errors.New("service: already registered")

	// ErrInvalidService is returned for empty or malformed names.
	ErrInvalidService = errors.New("service: invalid name")

	// ErrInvalidCall is returned by handlers for malformed call data.
	ErrInvalidCall = errors.New("service: invalid call data")
)

// Call is one service invocation.
type Call struct {
	Domain  string
	Service string
	Data    json.RawMessage
}

// Handler runs a service call. The returned value is encoded as the
// response body.
type Handler func(ctx context.Context, call Call) (any, error)

// Registry maps <domain>.<service> to handlers.
//
// All public methods are thread-safe. Handlers run on the caller's
// goroutine without any registry lock held.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler
}

// NewRegistry creates an empty service registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]map[string]Handler)}
}

// Register adds a handler. Names are lowercase [a-z0-9_].
func (r *Registry) Register(domain, service string, h Handler) error {
	if !validName(domain) || !validName(service) || h == nil {
		return fmt.Errorf("%w: %q.%q", ErrInvalidService, domain, service)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	svcs, ok := r.handlers[domain]
	if !ok {
		svcs = make(map[string]Handler)
		r.handlers[domain] = svcs
	}
	if _, exists := svcs[service]; exists {
		return fmt.Errorf("%w: %s.%s", ErrAlreadyRegistered, domain, service)
	}
	svcs[service] = h
	return nil
}

// Remove deletes a handler and reports whether it existed.
func (r *Registry) Remove(domain, service string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	svcs, ok := r.handlers[domain]
	if !ok {
		return false
	}
	if _, ok := svcs[service]; !ok {
		return false
	}
	delete(svcs, service)
	if len(svcs) == 0 {
		delete(r.handlers, domain)
	}
	return true
}

// Has reports whether a handler is registered.
func (r *Registry) Has(domain, service string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[domain][service]
	return ok
}

// Services returns the registered service names per domain, sorted.
func (r *Registry) Services() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.handlers))
	for domain, svcs := range r.handlers {
		names := make([]string, 0, len(svcs))
		for name := range svcs {
			names = append(names, name)
		}
		slices.Sort(names)
		out[domain] = names
	}
	return out
}

// Call dispatches to the registered handler. Empty data is passed as "{}".
func (r *Registry) Call(ctx context.Context, domain, service string, data json.RawMessage) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[domain][service]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrServiceNotFound, domain, service)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		data = json.RawMessage("{}")
	}
	return h(ctx, Call{Domain: domain, Service: service, Data: data})
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}
