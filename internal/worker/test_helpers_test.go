package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/offline-hub/offline-hub/internal/storage"
)

const testOrigin = "http://localhost:5000"

var errNetworkDown = errors.New("network unreachable")

// fakeFetcher 按 URL 查表返回预设响应，并统计每个 URL 的网络调用次数。
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*Response
	failures  map[string]error
	offline   bool
	calls     map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]*Response),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[req.URL]++

	if f.offline {
		return nil, errNetworkDown
	}
	if err, ok := f.failures[req.URL]; ok {
		return nil, err
	}
	if resp, ok := f.responses[req.URL]; ok {
		clone := *resp
		clone.Body = append([]byte(nil), resp.Body...)
		return &clone, nil
	}
	return nil, errNetworkDown
}

func (f *fakeFetcher) serve(url string, resp *Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = resp
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[url] = err
}

func (f *fakeFetcher) setOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// fakeClients 记录 Claim/OpenWindow 调用，供断言使用。
type fakeClients struct {
	mu       sync.Mutex
	claimed  int
	opened   []string
	claimErr error
}

func (c *fakeClients) Claim(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimed++
	return c.claimErr
}

func (c *fakeClients) OpenWindow(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = append(c.opened, url)
	return nil
}

// fakeNotifier 记录展示过的通知。
type fakeNotifier struct {
	mu    sync.Mutex
	shown []Notification
}

func (n *fakeNotifier) Show(ctx context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, notification)
	return nil
}

func basicResponse(body string) *Response {
	return &Response{
		Status: http.StatusOK,
		Type:   storage.TypeBasic,
		Header: http.Header{"Content-Type": {"text/plain"}},
		Body:   []byte(body),
	}
}

func htmlResponse(body string) *Response {
	return &Response{
		Status: http.StatusOK,
		Type:   storage.TypeBasic,
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte(body),
	}
}

func opaqueResponse() *Response {
	return &Response{
		Status: http.StatusOK,
		Type:   storage.TypeOpaque,
		Header: http.Header{},
		Body:   []byte("opaque bytes"),
	}
}

func getRequest(url string, accept string) *Request {
	header := http.Header{}
	if accept != "" {
		header.Set("Accept", accept)
	}
	return &Request{Method: http.MethodGet, URL: url, Header: header, Mode: ModeCORS}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type workerFixture struct {
	worker  *Worker
	store   storage.Storage
	fetcher *fakeFetcher
	clients *fakeClients
	notify  *fakeNotifier
}

func newFixture(t *testing.T, mutate func(*Options)) *workerFixture {
	t.Helper()

	store := storage.NewMemoryStorage()
	fetcher := newFakeFetcher()
	clients := &fakeClients{}
	notify := &fakeNotifier{}

	fetcher.serve(testOrigin+"/", htmlResponse("<html>root</html>"))
	fetcher.serve(testOrigin+"/index.html", htmlResponse("<html>shell</html>"))
	fetcher.serve(testOrigin+"/style.css", basicResponse("body{}"))

	opts := Options{
		AppName:          "wedding",
		Version:          "1.1.0",
		Origin:           testOrigin,
		Manifest:         []string{"/", "/index.html", "/style.css"},
		Bypass:           []string{"https://maps.google.com/"},
		FallbackDocument: "/index.html",
		Storage:          store,
		Fetcher:          fetcher,
		Clients:          clients,
		Notifier:         notify,
		Logger:           testLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	w, err := New(opts)
	if err != nil {
		t.Fatalf("New 失败: %v", err)
	}

	return &workerFixture{worker: w, store: store, fetcher: fetcher, clients: clients, notify: notify}
}

// installAndActivate 把 Worker 推进到 active 状态。
func (f *workerFixture) installAndActivate(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.worker.Install(ctx); err != nil {
		t.Fatalf("Install 失败: %v", err)
	}
	if err := f.worker.Activate(ctx); err != nil {
		t.Fatalf("Activate 失败: %v", err)
	}
}

func (f *workerFixture) bucketKeys(t *testing.T) []storage.Key {
	t.Helper()
	ctx := context.Background()
	bucket, err := f.store.OpenBucket(ctx, f.worker.CacheName())
	if err != nil {
		t.Fatalf("OpenBucket 失败: %v", err)
	}
	keys, err := bucket.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys 失败: %v", err)
	}
	return keys
}

func hasKey(keys []storage.Key, url string) bool {
	for _, key := range keys {
		if key.URL == url && key.Method == http.MethodGet {
			return true
		}
	}
	return false
}

func bodyContains(resp *Response, fragment string) bool {
	return resp != nil && strings.Contains(string(resp.Body), fragment)
}
