package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const snapshotSuffix = ".snap.json"

// NewDiskStorage 以 basePath 为根目录构建磁盘存储，整站复用一份实例。
func NewDiskStorage(basePath string) (Storage, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &diskStorage{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// diskStorage 每个桶一个子目录，通过 entryLock 避免同一键并发写入。
type diskStorage struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// snapshotFile 是落盘的 JSON 结构，Key 一并写入以便枚举时还原。
type snapshotFile struct {
	Key      Key         `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	Type     string      `json:"type"`
	StoredAt time.Time   `json:"stored_at"`
}

func (s *diskStorage) OpenBucket(ctx context.Context, name string) (Bucket, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	dir, err := s.bucketPath(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}
	return &diskBucket{store: s, name: name, dir: dir}, nil
}

func (s *diskStorage) ListBuckets(ctx context.Context) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func (s *diskStorage) DeleteBucket(ctx context.Context, name string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dir, err := s.bucketPath(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// bucketPath 校验桶名不会逃逸出 basePath。
func (s *diskStorage) bucketPath(name string) (string, error) {
	if name == "" {
		return "", errors.New("bucket name required")
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return "", fmt.Errorf("invalid bucket name: %s", name)
	}
	return filepath.Join(s.basePath, name), nil
}

type diskBucket struct {
	store *diskStorage
	name  string
	dir   string
}

func (b *diskBucket) Match(ctx context.Context, key Key) (*Snapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	raw, err := os.ReadFile(b.entryPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var file snapshotFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	return &Snapshot{
		Status:   file.Status,
		Header:   file.Header,
		Body:     file.Body,
		Type:     file.Type,
		StoredAt: file.StoredAt,
	}, nil
}

func (b *diskBucket) Put(ctx context.Context, key Key, snapshot *Snapshot) error {
	if snapshot == nil {
		return errors.New("snapshot required")
	}

	unlock := b.store.lockEntry(b.name, key)
	defer unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	storedAt := snapshot.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(snapshotFile{
		Key:      key,
		Status:   snapshot.Status,
		Header:   snapshot.Header,
		Body:     snapshot.Body,
		Type:     snapshot.Type,
		StoredAt: storedAt,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tempFile, err := os.CreateTemp(b.dir, ".snap-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(raw)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, b.entryPath(key)); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (b *diskBucket) Keys(ctx context.Context) ([]Key, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var keys []Key
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotSuffix) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(b.dir, entry.Name()))
		if err != nil {
			continue
		}
		var file snapshotFile
		if err := json.Unmarshal(raw, &file); err != nil {
			continue
		}
		keys = append(keys, file.Key)
	}
	return keys, nil
}

func (b *diskBucket) entryPath(key Key) string {
	return filepath.Join(b.dir, digestKey(key)+snapshotSuffix)
}

func (s *diskStorage) lockEntry(bucket string, key Key) func() {
	lockKey := bucket + "::" + digestKey(key)
	s.mu.Lock()
	lock := s.locks[lockKey]
	if lock == nil {
		lock = &entryLock{}
		s.locks[lockKey] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, lockKey)
		}
		s.mu.Unlock()
	}
}

func digestKey(key Key) string {
	sum := sha1.Sum([]byte(key.Method + " " + key.URL))
	return hex.EncodeToString(sum[:])
}
