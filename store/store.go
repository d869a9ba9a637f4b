// Package store persists encoded replica snapshots together with the
// timestamps the sweeper and the replica cache need without decoding them.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no value is stored under a key.
var ErrNotFound = errors.New("store: not found")

// Value is what a Store keeps for a key.
type Value struct {
	Key         string
	EncodingID  string
	TimeCreated int64
	TimeUpdated int64
	TimeRead    int64
	TimeExpires int64
	Data        []byte
}

// Store is a key to value persistence layer.
type Store interface {
	Get(ctx context.Context, key string) (Value, error)
	Put(ctx context.Context, value Value) error
	Delete(ctx context.Context, key string) error
	// Iterate calls fn for at most limit values with keys greater than after,
	// in key order. An empty after starts at the first key. Iteration stops
	// at the first error returned by fn.
	Iterate(ctx context.Context, after string, limit int, fn func(Value) error) error
	// Apply stores and deletes values atomically.
	Apply(ctx context.Context, puts []Value, deletes []string) error
}
