package worker

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/offline-hub/offline-hub/internal/storage"
)

// Mode 控制网络请求的跨源语义。no-cors 模式接受不可校验的 opaque 响应，
// 用于清单里的跨源条目。
type Mode string

const (
	ModeCORS   Mode = "cors"
	ModeNoCORS Mode = "no-cors"
)

// Request 描述一次待拦截或待发起的出站请求。
type Request struct {
	Method string
	URL    string
	Header http.Header
	Mode   Mode
}

// Response 是网络层返回的响应。Type 区分同源可读（basic）与跨源不可校验
// （opaque）两类，只有 basic 响应才有惰性缓存资格。
type Response struct {
	Status int
	Type   string
	Header http.Header
	Body   []byte
}

// Fetcher 是注入 Worker 的网络端口。实现负责根据请求源分类响应类型。
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc 将函数适配为 Fetcher，测试中注入桩实现时使用。
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

// Fetch 使 FetcherFunc 满足 Fetcher。
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// snapshotFromResponse 复制响应为落库快照。正文按值拷贝，
// 保证返回给调用方的 Response 与桶内条目互不影响。
func snapshotFromResponse(resp *Response) *storage.Snapshot {
	snapshot := &storage.Snapshot{
		Status:   resp.Status,
		Type:     resp.Type,
		Body:     append([]byte(nil), resp.Body...),
		Header:   make(http.Header, len(resp.Header)),
		StoredAt: time.Now().UTC(),
	}
	for key, values := range resp.Header {
		snapshot.Header[key] = append([]string(nil), values...)
	}
	return snapshot
}

// responseFromSnapshot 将缓存快照还原为响应。
func responseFromSnapshot(snapshot *storage.Snapshot) *Response {
	return &Response{
		Status: snapshot.Status,
		Type:   snapshot.Type,
		Header: snapshot.Header,
		Body:   snapshot.Body,
	}
}

// acceptsHTML 判断请求是否在等待一个 HTML 文档（离线兜底页只服务这类请求）。
func acceptsHTML(header http.Header) bool {
	for _, part := range strings.Split(header.Get("Accept"), ",") {
		mediaType, _, _ := strings.Cut(part, ";")
		if strings.TrimSpace(mediaType) == "text/html" {
			return true
		}
	}
	return false
}
