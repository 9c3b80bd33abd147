package storage

import (
	"context"
	"sort"
	"sync"
)

// NewMemoryStorage 构建内存存储。测试与 StorageDriver=memory 共用该实现，
// 进程退出后内容即消失，语义与磁盘驱动保持一致。
func NewMemoryStorage() Storage {
	return &memoryStorage{
		buckets: make(map[string]*memoryBucket),
	}
}

type memoryStorage struct {
	mu      sync.RWMutex
	buckets map[string]*memoryBucket
}

type memoryBucket struct {
	mu      sync.RWMutex
	entries map[Key]*Snapshot
}

func (s *memoryStorage) OpenBucket(ctx context.Context, name string) (Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errEmptyBucketName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.buckets[name]
	if bucket == nil {
		bucket = &memoryBucket{entries: make(map[Key]*Snapshot)}
		s.buckets[name] = bucket
	}
	return bucket, nil
}

func (s *memoryStorage) ListBuckets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memoryStorage) DeleteBucket(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, name)
	return nil
}

func (b *memoryBucket) Match(ctx context.Context, key Key) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	snapshot, ok := b.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot.Clone(), nil
}

func (b *memoryBucket) Put(ctx context.Context, key Key, snapshot *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot == nil {
		return errNilSnapshot
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = snapshot.Clone()
	return nil
}

func (b *memoryBucket) Keys(ctx context.Context) ([]Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]Key, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].URL == keys[j].URL {
			return keys[i].Method < keys[j].Method
		}
		return keys[i].URL < keys[j].URL
	})
	return keys, nil
}
