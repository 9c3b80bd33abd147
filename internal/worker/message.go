package worker

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// 页面 ↔ Worker 消息协议支持的类型。三种消息彼此独立，没有顺序依赖。
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageGetVersion  = "GET_VERSION"
	MessageCacheURLs   = "CACHE_URLS"
)

// MessagePayload 承载消息的可选负载字段。
type MessagePayload struct {
	Text string   `json:"text,omitempty"`
	URLs []string `json:"urls,omitempty"`
}

// Message 是宿主页面投递给 Worker 的一条消息。GET_VERSION 需要携带
// Reply 通道，Worker 恰好回复一次后不再触碰该通道。
type Message struct {
	Type    string
	Payload MessagePayload
	Reply   chan<- string
}

// ErrReplyChannelRequired 表示 GET_VERSION 消息缺少回复通道。
var ErrReplyChannelRequired = errors.New("reply channel required")

// HandleMessage 处理 message 事件。未知类型只记日志，不算错误。
func (w *Worker) HandleMessage(ctx context.Context, msg Message) (err error) {
	defer w.recoverEvent(EventMessage, &err)

	if err := w.dispatch(EventMessage); err != nil {
		return err
	}

	switch msg.Type {
	case MessageSkipWaiting:
		return w.handleSkipWaiting(ctx)
	case MessageGetVersion:
		if msg.Reply == nil {
			return ErrReplyChannelRequired
		}
		msg.Reply <- w.version
		return nil
	case MessageCacheURLs:
		return w.handleCacheURLs(ctx, msg.Payload.URLs)
	default:
		w.logger.WithFields(logrus.Fields{
			"action": "message",
			"type":   msg.Type,
		}).Warn("unknown message type ignored")
		return nil
	}
}

// handleSkipWaiting 强制立即激活。已激活或尚未安装完成时是无害的 no-op。
func (w *Worker) handleSkipWaiting(ctx context.Context) error {
	if w.State() != StateInstalled {
		w.logger.WithFields(logrus.Fields{
			"action": "message",
			"type":   MessageSkipWaiting,
			"state":  string(w.State()),
		}).Debug("skip waiting ignored")
		return nil
	}
	return w.Activate(ctx)
}

// handleCacheURLs 把页面追加的 URL 列表补进当前桶，填充策略与安装期一致：
// 尽力而为，逐条失败只记日志。
func (w *Worker) handleCacheURLs(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	bucket, err := w.currentBucket(ctx)
	if err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_urls",
			"bucket": w.CacheName(),
		}).Warn("open bucket failed")
		return nil
	}

	report := w.populate(ctx, bucket, urls)
	for _, failure := range report.Failures() {
		w.logger.WithError(failure.Err).WithFields(logrus.Fields{
			"action": "cache_urls",
			"bucket": w.CacheName(),
			"url":    failure.URL,
		}).Warn("late precache entry failed")
	}
	w.logger.WithFields(logrus.Fields{
		"action":    "cache_urls",
		"bucket":    w.CacheName(),
		"total":     len(report.Results),
		"succeeded": report.Succeeded(),
	}).Info("late precache complete")
	return nil
}
