package out

import (
	"context"
	"errors"
	"io"
)

// ErrKeyNotFound indicates a read, size or delete on an absent key.
var ErrKeyNotFound = errors.New("key not found")

// ContentStore is the abstract key/value content store the registry is
// built on. Keys are opaque slash-separated strings. Reads after writes by
// the same caller are consistent; no transactions are assumed.
type ContentStore interface {
	// Exists reports whether a key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Read returns the full value stored under key.
	Read(ctx context.Context, key string) ([]byte, error)

	// ReadStream returns the value as a stream plus its size.
	ReadStream(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Write stores value under key, replacing any previous value.
	Write(ctx context.Context, key string, value []byte) error

	// Append appends value to the existing value under key and returns the
	// new total size. The key must exist.
	Append(ctx context.Context, key string, value []byte) (int64, error)

	// Size returns the size in bytes of the value stored under key.
	Size(ctx context.Context, key string) (int64, error)

	// Delete removes a key. Deleting an absent key returns ErrKeyNotFound.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)
}
