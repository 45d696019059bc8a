package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type MemStorage struct {
	mutex   *sync.RWMutex
	buckets map[string]*MemBucket
}

func NewMemStorage() MemStorage {
	return MemStorage{
		mutex:   &sync.RWMutex{},
		buckets: make(map[string]*MemBucket),
	}
}

func (m MemStorage) Open(ctx context.Context, name string) (Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if b, ok := m.buckets[name]; ok {
		return b, nil
	}
	b := &MemBucket{
		name:    name,
		mutex:   &sync.RWMutex{},
		entries: make(map[string]Entry),
	}
	m.buckets[name] = b
	return b, nil
}

func (m MemStorage) Keys(ctx context.Context) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m MemStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	b, ok := m.buckets[name]
	if !ok {
		return false, nil
	}
	delete(m.buckets, name)
	b.mutex.Lock()
	b.deleted = true
	b.entries = make(map[string]Entry)
	b.mutex.Unlock()
	return true, nil
}

// MemBucket is a bucket kept in a map.
// A handle to a deleted bucket matches nothing and refuses writes.
type MemBucket struct {
	name    string
	mutex   *sync.RWMutex
	entries map[string]Entry
	deleted bool
}

func (b *MemBucket) Name() string {
	return b.name
}

func (b *MemBucket) AddAll(ctx context.Context, entries []Entry) error {
	if err := validate(entries...); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.deleted {
		return fmt.Errorf("%w: %s", ErrBucketDeleted, b.name)
	}
	for _, e := range entries {
		b.entries[e.Key] = e
	}
	return nil
}

func (b *MemBucket) Put(ctx context.Context, entry Entry) error {
	return b.AddAll(ctx, []Entry{entry})
}

func (b *MemBucket) Match(ctx context.Context, key string) (Entry, bool, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	e, ok := b.entries[key]
	return e, ok, nil
}

func (b *MemBucket) Keys(ctx context.Context) ([]string, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	keys := make([]string, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
