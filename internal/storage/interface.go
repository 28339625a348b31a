package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Store is a small persistent key/value store. Values are opaque bytes,
// usually a JSON document.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
