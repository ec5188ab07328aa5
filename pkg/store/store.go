// Package store provides the persistent byte store interface the engine is
// built on.
//
// The cache keeps file bytes and entry metadata here; the mutation queue
// keeps its pending log here. Each consumer works inside its own key
// namespace so one store instance can back all of them. Implementations
// must be durable across process restarts except where explicitly labeled
// as test-only.
package store

import (
	"context"
	"errors"
)

// Common errors returned by Store implementations.
var (
	// ErrKeyNotFound is returned when a requested key doesn't exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// Store is an abstract durable key→bytes store.
//
// Thread Safety: implementations must be safe for concurrent use by
// multiple goroutines.
type Store interface {
	// Get returns the value for a key.
	// Returns ErrKeyNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores a value under a key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes a key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// ListKeys returns all keys with the given prefix, sorted.
	// Returns an empty slice if none match.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error

	// HealthCheck verifies the store is accessible and operational.
	HealthCheck(ctx context.Context) error
}

// Namespaced wraps a Store so all keys carry a fixed prefix. The cache and
// the mutation queue share one backing store through separate namespaces.
type Namespaced struct {
	inner  Store
	prefix string
}

// NewNamespaced returns a view of inner where every key is prefixed with
// ns + "/".
func NewNamespaced(inner Store, ns string) *Namespaced {
	return &Namespaced{inner: inner, prefix: ns + "/"}
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Put(ctx context.Context, key string, value []byte) error {
	return n.inner.Put(ctx, n.prefix+key, value)
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

func (n *Namespaced) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := n.inner.ListKeys(ctx, n.prefix+prefix)
	if err != nil {
		return nil, err
	}
	stripped := make([]string, len(keys))
	for i, k := range keys {
		stripped[i] = k[len(n.prefix):]
	}
	return stripped, nil
}

// Close is a no-op: the namespace view doesn't own the backing store.
func (n *Namespaced) Close() error { return nil }

func (n *Namespaced) HealthCheck(ctx context.Context) error {
	return n.inner.HealthCheck(ctx)
}

var _ Store = (*Namespaced)(nil)
