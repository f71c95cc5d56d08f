// Package storage defines the keyed byte-store contract used for durable
// persistence, with file, redis, and postgres backends.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound indicates that no value exists for the requested key.
var ErrNotFound = errors.New("key not found")

// Store is a minimal keyed byte-store. Values are opaque; encryption and
// serialization happen above this layer.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
