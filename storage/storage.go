// Package storage holds the named buckets of stored responses.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyKey      = errors.New("empty entry key")
	ErrBucketDeleted = errors.New("bucket deleted")
)

// Storage is the set of named buckets.
// Opening a bucket that does not exist creates it.
//
// Implementations must be thread-safe!
type Storage interface {
	// Open returns the bucket with the given name, creating it if absent.
	Open(ctx context.Context, name string) (Bucket, error)
	// Keys returns the names of all buckets.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes the bucket and all its entries.
	// It returns false if no bucket with the name existed.
	// Writes through handles to the deleted bucket fail with ErrBucketDeleted.
	Delete(ctx context.Context, name string) (bool, error)
}

// Bucket maps request identities to serialized responses.
//
// Implementations must be thread-safe!
type Bucket interface {
	// Name returns the bucket name.
	Name() string
	// AddAll stores all the given entries, or none of them if any one fails.
	AddAll(ctx context.Context, entries []Entry) error
	// Put stores a single entry, replacing any entry with the same key.
	Put(ctx context.Context, entry Entry) error
	// Match returns the entry stored under the key, if it exists.
	// The boolean is false on a miss.
	Match(ctx context.Context, key string) (Entry, bool, error)
	// Keys returns the keys of all stored entries.
	Keys(ctx context.Context) ([]string, error)
}

type Entry struct {
	Key      string
	StoredAt time.Time
	Bytes    []byte
}

func validate(entries ...Entry) error {
	for _, e := range entries {
		if e.Key == "" {
			return ErrEmptyKey
		}
	}
	return nil
}
