// Package storage defines the persistent key-value contract backing the
// offline engine. Implementations store opaque blobs by string key and must
// survive process restarts; the engine never assumes anything richer than
// get/set/remove.
package storage

import "context"

// Store is a durable string-keyed blob store.
type Store interface {
	// Get returns the blob stored under key. The boolean reports whether
	// the key was present; absence is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set overwrites the blob stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes the blob stored under key. Removing an absent key is
	// a no-op.
	Remove(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
