package worker

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// 推送通知的固定外观。正文来自推送负载，缺失时使用固定兜底文案。
const (
	notificationIcon  = "/images/icons/icon-192.png"
	notificationBadge = "/images/icons/badge.png"
	fallbackPushBody  = "站点内容已更新，点击查看。"

	ActionExplore = "explore"
	ActionClose   = "close"
)

// NotificationAction 是通知上的一个按钮。
type NotificationAction struct {
	Action string
	Title  string
}

// Notification 描述一条用户可见的通知。
type Notification struct {
	Title   string
	Body    string
	Icon    string
	Badge   string
	Actions []NotificationAction
}

// Notifier 是通知展示端口。宿主不支持通知时可以不注入，推送事件降级为
// 带日志的 no-op。
type Notifier interface {
	Show(ctx context.Context, n Notification) error
}

// Clients 是客户端控制端口：激活期接管所有打开的页面，通知点击时打开或
// 聚焦站点首页。
type Clients interface {
	Claim(ctx context.Context) error
	OpenWindow(ctx context.Context, url string) error
}

// HandlePush 处理 push 事件：用负载文本（或兜底文案）展示固定外观的通知。
// 展示失败与未注入 Notifier 都只记日志，不向宿主抛错。
func (w *Worker) HandlePush(ctx context.Context, payload []byte) (err error) {
	defer w.recoverEvent(EventPush, &err)

	if err := w.dispatch(EventPush); err != nil {
		return err
	}

	body := strings.TrimSpace(string(payload))
	if body == "" {
		body = fallbackPushBody
	}

	if w.notifier == nil {
		w.logger.WithFields(logrus.Fields{
			"action": "push",
			"body":   body,
		}).Debug("no notifier wired, push ignored")
		return nil
	}

	notification := Notification{
		Title: w.appName,
		Body:  body,
		Icon:  notificationIcon,
		Badge: notificationBadge,
		Actions: []NotificationAction{
			{Action: ActionExplore, Title: "立即查看"},
			{Action: ActionClose, Title: "关闭"},
		},
	}
	if err := w.notifier.Show(ctx, notification); err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"action": "push",
		}).Warn("show notification failed")
	}
	return nil
}

// HandleNotificationClick 处理通知点击：close 仅关闭通知，其余动作打开或
// 聚焦站点首页。
func (w *Worker) HandleNotificationClick(ctx context.Context, action string) (err error) {
	defer w.recoverEvent(EventNotificationClick, &err)

	if err := w.dispatch(EventNotificationClick); err != nil {
		return err
	}

	if action == ActionClose {
		return nil
	}

	if w.clients == nil {
		w.logger.WithFields(logrus.Fields{
			"action": "notification_click",
			"button": action,
		}).Debug("no clients wired, click ignored")
		return nil
	}

	if err := w.clients.OpenWindow(ctx, w.resolveURL("/")); err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"action": "notification_click",
			"button": action,
		}).Warn("open window failed")
	}
	return nil
}

// HandleSync 处理 sync 事件。当前没有需要补偿的后台任务，只记一条日志。
func (w *Worker) HandleSync(ctx context.Context, tag string) (err error) {
	defer w.recoverEvent(EventSync, &err)

	if err := w.dispatch(EventSync); err != nil {
		return err
	}

	w.logger.WithFields(logrus.Fields{
		"action": "sync",
		"tag":    tag,
	}).Debug("sync event acknowledged")
	return nil
}
