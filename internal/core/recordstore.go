package core

import (
	"context"
	"errors"
)

// ErrNotFound is returned by RecordStore reads for missing keys and by
// store operations on documents that were never persisted.
var ErrNotFound = errors.New("record not found")

// RecordStore is a namespaced key->bytes store backing all durable state.
// Keys are slash-separated paths ("metadata/<id>", "chunks/<id>/<batch>",
// "files/<name>"). Implementations create parent namespaces as needed.
//
// No atomicity is promised across keys; callers that need ordering (the
// chunk store writes its index record last) sequence their own writes.
type RecordStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error

	// List returns all keys under the given prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
}
