package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Router dispatches storage operations to the backend registered for a URI's
// scheme.
type Router struct {
	mu       sync.RWMutex
	backends map[string]Storage
}

// NewRouter creates a router with no backends
func NewRouter() *Router {
	return &Router{backends: make(map[string]Storage)}
}

// Register binds b to each of the given schemes, replacing earlier bindings
func (r *Router) Register(b Storage, schemes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		r.backends[s] = b
	}
}

// Supports reports whether a backend is registered for scheme
func (r *Router) Supports(scheme string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.backends[scheme]
	return ok
}

// Backend returns the backend for uri
func (r *Router) Backend(uri string) (Storage, error) {
	scheme, _, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	b, ok := r.backends[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no storage backend for %s://", scheme)
	}
	return b, nil
}

func (r *Router) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	b, err := r.Backend(uri)
	if err != nil {
		return nil, err
	}
	return b.Open(ctx, uri)
}

func (r *Router) Save(ctx context.Context, uri string, data io.Reader, contentType string) error {
	b, err := r.Backend(uri)
	if err != nil {
		return err
	}
	return b.Save(ctx, uri, data, contentType)
}

func (r *Router) Remove(ctx context.Context, uri string) error {
	b, err := r.Backend(uri)
	if err != nil {
		return err
	}
	return b.Remove(ctx, uri)
}

func (r *Router) Exists(ctx context.Context, uri string) (bool, error) {
	b, err := r.Backend(uri)
	if err != nil {
		return false, err
	}
	return b.Exists(ctx, uri)
}
