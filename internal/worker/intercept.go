package worker

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/offline-hub/offline-hub/internal/logging"
	"github.com/offline-hub/offline-hub/internal/storage"
)

// Intercept 处理 fetch 事件，实现 cache-first 语义：
//
//   - 只拦截 GET；其余方法与直通前缀命中的 URL 原样走网络，不读不写缓存。
//   - 命中缓存直接返回快照，不做任何新鲜度校验——缓存内容在下一个版本的
//     激活清理之前被视为权威。
//   - 未命中则回源。非 200 或非 basic 的响应原样返回且不落库；basic 200
//     响应复制一份写入当前桶后返回原响应。写入失败只记日志。
//   - 网络失败时，等待 HTML 文档的请求用缓存中的兜底文档顶替；
//     其余资源把失败原样抛给调用方。
func (w *Worker) Intercept(ctx context.Context, req *Request) (resp *Response, err error) {
	defer w.recoverEvent(EventFetch, &err)

	if err := w.dispatch(EventFetch); err != nil {
		return nil, err
	}

	if req.Method != http.MethodGet || w.isBypassed(req.URL) {
		return w.fetcher.Fetch(ctx, req)
	}

	bucket, err := w.currentBucket(ctx)
	if err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"action": "intercept",
			"bucket": w.CacheName(),
		}).Warn("open bucket failed")
		return w.fetcher.Fetch(ctx, req)
	}

	key := storage.Key{Method: http.MethodGet, URL: req.URL}
	snapshot, err := bucket.Match(ctx, key)
	switch {
	case err == nil:
		w.logger.WithFields(logging.InterceptFields(req.Method, req.URL, true)).Debug("served from cache")
		return responseFromSnapshot(snapshot), nil
	case errors.Is(err, storage.ErrNotFound):
		// miss, continue
	default:
		w.logger.WithError(err).WithFields(logging.InterceptFields(req.Method, req.URL, false)).
			Warn("cache match failed")
	}

	netResp, netErr := w.fetcher.Fetch(ctx, req)
	if netErr != nil {
		if fallback := w.fallbackDocument(ctx, bucket, req); fallback != nil {
			return fallback, nil
		}
		return nil, netErr
	}

	if netResp.Status != http.StatusOK || netResp.Type != storage.TypeBasic {
		return netResp, nil
	}

	if err := bucket.Put(ctx, key, snapshotFromResponse(netResp)); err != nil {
		w.logger.WithError(err).WithFields(logging.InterceptFields(req.Method, req.URL, false)).
			Warn("lazy cache write failed")
	}

	w.logger.WithFields(logging.InterceptFields(req.Method, req.URL, false)).Debug("served from network")
	return netResp, nil
}

// fallbackDocument 在网络失败时为 HTML 导航请求取出兜底文档。
// 非文档请求或兜底缺失时返回 nil，调用方照常抛出网络错误。
func (w *Worker) fallbackDocument(ctx context.Context, bucket storage.Bucket, req *Request) *Response {
	if !acceptsHTML(req.Header) {
		return nil
	}

	key := storage.Key{Method: http.MethodGet, URL: w.resolveURL(w.fallback)}
	snapshot, err := bucket.Match(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"action": "offline_fallback",
				"url":    req.URL,
			}).Warn("fallback lookup failed")
		}
		return nil
	}

	w.logger.WithFields(logrus.Fields{
		"action": "offline_fallback",
		"url":    req.URL,
	}).Info("serving offline shell")
	return responseFromSnapshot(snapshot)
}
