package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/offline-hub/offline-hub/internal/storage"
	"github.com/offline-hub/offline-hub/internal/worker"
)

func TestOriginFetcherClassifiesBasic(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Write([]byte("body{}"))
	}))
	defer upstream.Close()

	fetcher, err := NewOriginFetcher(upstream.Client(), upstream.URL)
	if err != nil {
		t.Fatalf("NewOriginFetcher 失败: %v", err)
	}

	resp, err := fetcher.Fetch(context.Background(), &worker.Request{
		Method: http.MethodGet,
		URL:    upstream.URL + "/style.css",
		Header: http.Header{},
		Mode:   worker.ModeCORS,
	})
	if err != nil {
		t.Fatalf("Fetch 失败: %v", err)
	}
	if resp.Type != storage.TypeBasic {
		t.Fatalf("同源响应应为 basic: %s", resp.Type)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != "body{}" {
		t.Fatalf("响应内容不对: %d %s", resp.Status, resp.Body)
	}
	if resp.Header.Get("Content-Type") != "text/css" {
		t.Fatalf("响应头应保留: %v", resp.Header)
	}
}

func TestOriginFetcherClassifiesCrossOriginAsOpaque(t *testing.T) {
	external := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("font data"))
	}))
	defer external.Close()

	// Origin 指向别处，external 对它来说是跨源
	fetcher, err := NewOriginFetcher(external.Client(), "https://wedding.example.com")
	if err != nil {
		t.Fatalf("NewOriginFetcher 失败: %v", err)
	}

	resp, err := fetcher.Fetch(context.Background(), &worker.Request{
		Method: http.MethodGet,
		URL:    external.URL + "/font.woff2",
		Header: http.Header{},
		Mode:   worker.ModeNoCORS,
	})
	if err != nil {
		t.Fatalf("Fetch 失败: %v", err)
	}
	if resp.Type != storage.TypeOpaque {
		t.Fatalf("跨源响应应为 opaque: %s", resp.Type)
	}
}

func TestOriginFetcherClassifiesRedirectAsOpaque(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("moved here"))
	})
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	fetcher, err := NewOriginFetcher(upstream.Client(), upstream.URL)
	if err != nil {
		t.Fatalf("NewOriginFetcher 失败: %v", err)
	}

	resp, err := fetcher.Fetch(context.Background(), &worker.Request{
		Method: http.MethodGet,
		URL:    upstream.URL + "/old",
		Header: http.Header{},
		Mode:   worker.ModeCORS,
	})
	if err != nil {
		t.Fatalf("Fetch 失败: %v", err)
	}
	if resp.Type != storage.TypeOpaque {
		t.Fatalf("重定向后的响应不应是 basic: %s", resp.Type)
	}
}

func TestOriginFetcherValidatesInput(t *testing.T) {
	if _, err := NewOriginFetcher(nil, "https://wedding.example.com"); err == nil {
		t.Fatalf("缺少 client 应报错")
	}
	if _, err := NewOriginFetcher(http.DefaultClient, "not a url"); err == nil {
		t.Fatalf("非法 origin 应报错")
	}
}
