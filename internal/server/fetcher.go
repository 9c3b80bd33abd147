package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/offline-hub/offline-hub/internal/storage"
	"github.com/offline-hub/offline-hub/internal/worker"
)

// maxSnapshotBody 限制单次读入内存的响应正文大小，超出即视为回源失败。
const maxSnapshotBody = 64 << 20

// OriginFetcher 用共享 http.Client 实现 Worker 的网络端口，并根据最终 URL
// 与部署 Origin 的关系给响应分类：同源且未经重定向的是 basic，其余一律
// opaque（跨源或重定向后的响应都没有惰性缓存资格）。
type OriginFetcher struct {
	client *http.Client
	origin *url.URL
}

// NewOriginFetcher 构造 OriginFetcher。origin 必须是 scheme://host 形式。
func NewOriginFetcher(client *http.Client, origin string) (*OriginFetcher, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	parsed, err := url.Parse(strings.TrimRight(origin, "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid origin: %s", origin)
	}
	return &OriginFetcher{client: client, origin: parsed}, nil
}

// Fetch 执行网络请求并整体读入正文，返回带类型标注的响应。
func (f *OriginFetcher) Fetch(ctx context.Context, req *worker.Request) (*worker.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	CopyHeaders(httpReq.Header, req.Header)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxSnapshotBody {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxSnapshotBody)
	}

	header := make(http.Header, len(resp.Header))
	CopyHeaders(header, resp.Header)

	return &worker.Response{
		Status: resp.StatusCode,
		Type:   f.classify(req, resp),
		Header: header,
		Body:   body,
	}, nil
}

// classify 判定响应类型。重定向通过比较请求 URL 与最终 URL 检测。
func (f *OriginFetcher) classify(req *worker.Request, resp *http.Response) string {
	final := resp.Request.URL
	if !strings.EqualFold(final.Scheme, f.origin.Scheme) || !strings.EqualFold(final.Host, f.origin.Host) {
		return storage.TypeOpaque
	}
	if final.String() != req.URL {
		return storage.TypeOpaque
	}
	return storage.TypeBasic
}
