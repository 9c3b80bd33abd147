package storage

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// 响应快照类型，对应请求方可见性的两档：同源可读与跨源不可校验。
const (
	TypeBasic  = "basic"
	TypeOpaque = "opaque"
)

// Key 唯一定位一个缓存条目（方法 + 绝对 URL）。写入侧保证只有 GET 会落库。
type Key struct {
	Method string
	URL    string
}

// Snapshot 是一次响应的完整快照：状态、头、正文字节与快照类型。
// 条目不会原地更新，后写覆盖先写。
type Snapshot struct {
	Status   int
	Header   http.Header
	Body     []byte
	Type     string
	StoredAt time.Time
}

// Clone 返回快照的深拷贝，供调用方在返回正文的同时保留一份落库。
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	dup := &Snapshot{
		Status:   s.Status,
		Type:     s.Type,
		StoredAt: s.StoredAt,
		Header:   make(http.Header, len(s.Header)),
		Body:     append([]byte(nil), s.Body...),
	}
	for key, values := range s.Header {
		dup.Header[key] = append([]string(nil), values...)
	}
	return dup
}

// Bucket 表示某个部署版本的条目集合，以版本化桶名区分新旧。
type Bucket interface {
	// Match 返回指定键的快照。若不存在则返回 ErrNotFound。
	Match(ctx context.Context, key Key) (*Snapshot, error)

	// Put 写入快照，同键覆盖。实现需保证单键写入的原子性。
	Put(ctx context.Context, key Key, snapshot *Snapshot) error

	// Keys 返回桶内全部键，供诊断接口与测试枚举。
	Keys(ctx context.Context) ([]Key, error)
}

// Storage 是注入 Worker 的存储端口。OpenBucket 不存在时创建；
// DeleteBucket 删除整个桶及其条目。
type Storage interface {
	OpenBucket(ctx context.Context, name string) (Bucket, error)
	ListBuckets(ctx context.Context) ([]string, error)
	DeleteBucket(ctx context.Context, name string) error
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

var (
	errEmptyBucketName = errors.New("bucket name required")
	errNilSnapshot     = errors.New("snapshot required")
)
