package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/offline-hub/offline-hub/internal/logging"
	"github.com/offline-hub/offline-hub/internal/storage"
)

// State 是生命周期状态机的命名状态。
type State string

const (
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActive     State = "active"
)

// EventType 标识宿主环境投递给 Worker 的事件。
type EventType string

const (
	EventInstall           EventType = "install"
	EventActivate          EventType = "activate"
	EventFetch             EventType = "fetch"
	EventMessage           EventType = "message"
	EventPush              EventType = "push"
	EventNotificationClick EventType = "notificationclick"
	EventSync              EventType = "sync"
)

// dispatchTable 将事件静态绑定到允许接收它的状态。绑定关系不随运行时变化，
// 任何状态外投递都会得到 ErrEventNotAllowed。
var dispatchTable = map[EventType][]State{
	EventInstall:           {StateInstalling},
	EventActivate:          {StateInstalled, StateActivating},
	EventFetch:             {StateActive},
	EventMessage:           {StateInstalling, StateInstalled, StateActivating, StateActive},
	EventPush:              {StateActive},
	EventNotificationClick: {StateActive},
	EventSync:              {StateActive},
}

// ErrEventNotAllowed 表示事件在当前状态下不可处理。
var ErrEventNotAllowed = errors.New("event not allowed in current state")

// Options 聚合 Worker 的全部依赖与部署期常量。Storage/Fetcher/Logger 必填，
// Clients 与 Notifier 可空（对应能力降级为带日志的 no-op）。
type Options struct {
	AppName          string
	Version          string
	Origin           string
	Manifest         []string
	Bypass           []string
	FallbackDocument string

	Storage  storage.Storage
	Fetcher  Fetcher
	Clients  Clients
	Notifier Notifier
	Logger   *logrus.Logger
}

// Worker 实现离线缓存管理器：拥有一个版本化缓存桶，安装期按清单填充，
// 激活期清理旧版本桶，拦截期按 cache-first 提供响应。
type Worker struct {
	appName  string
	version  string
	origin   *url.URL
	manifest []string
	bypass   []string
	fallback string

	storage  storage.Storage
	fetcher  Fetcher
	clients  Clients
	notifier Notifier
	logger   *logrus.Logger

	mu     sync.RWMutex
	state  State
	bucket storage.Bucket
}

// New 构建处于 installing 状态的 Worker。宿主随后必须依次投递
// install 与 activate 事件才能开始拦截请求。
func New(opts Options) (*Worker, error) {
	if opts.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(opts.AppName) == "" || strings.TrimSpace(opts.Version) == "" {
		return nil, errors.New("app name and version are required")
	}

	origin, err := url.Parse(strings.TrimRight(opts.Origin, "/"))
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin: %s", opts.Origin)
	}

	fallback := opts.FallbackDocument
	if fallback == "" {
		fallback = "/index.html"
	}

	return &Worker{
		appName:  opts.AppName,
		version:  opts.Version,
		origin:   origin,
		manifest: append([]string(nil), opts.Manifest...),
		bypass:   append([]string(nil), opts.Bypass...),
		fallback: fallback,
		storage:  opts.Storage,
		fetcher:  opts.Fetcher,
		clients:  opts.Clients,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		state:    StateInstalling,
	}, nil
}

// CacheName 返回当前版本的桶名，格式固定为 <AppName>-v<Version>。
func (w *Worker) CacheName() string {
	return fmt.Sprintf("%s-v%s", w.appName, w.version)
}

// Version 返回部署版本号，GET_VERSION 消息回复的就是该值。
func (w *Worker) Version() string {
	return w.version
}

// State 返回当前生命周期状态。
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(next State) {
	w.mu.Lock()
	prev := w.state
	w.state = next
	w.mu.Unlock()

	w.logger.WithFields(logging.LifecycleFields(w.CacheName(), string(next))).
		WithField("action", "state_transition").
		WithField("from", string(prev)).
		Info("worker state changed")
}

// dispatch 按 dispatchTable 校验事件在当前状态下是否可接收。
func (w *Worker) dispatch(event EventType) error {
	state := w.State()
	for _, allowed := range dispatchTable[event] {
		if allowed == state {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in %s", ErrEventNotAllowed, event, state)
}

// recoverEvent 捕获事件处理中的 panic 并记录日志，Worker 本身永不崩溃。
func (w *Worker) recoverEvent(event EventType, err *error) {
	if r := recover(); r != nil {
		w.logger.WithFields(logrus.Fields{
			"action": "event_panic",
			"event":  string(event),
			"bucket": w.CacheName(),
			"panic":  fmt.Sprint(r),
		}).Error("unhandled panic in event handler")
		if err != nil {
			*err = fmt.Errorf("%s event panic: %v", event, r)
		}
	}
}

// currentBucket 返回安装期打开的桶；进程重启等场景下按名字补开。
func (w *Worker) currentBucket(ctx context.Context) (storage.Bucket, error) {
	w.mu.RLock()
	bucket := w.bucket
	w.mu.RUnlock()
	if bucket != nil {
		return bucket, nil
	}

	bucket, err := w.storage.OpenBucket(ctx, w.CacheName())
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.bucket = bucket
	w.mu.Unlock()
	return bucket, nil
}

// resolveURL 将本地路径解析为 Origin 下的绝对 URL；绝对 URL 原样返回。
// 缓存键始终使用解析后的形式，保证安装期与拦截期落在同一个键上。
func (w *Worker) resolveURL(raw string) string {
	if strings.HasPrefix(raw, "/") {
		return w.origin.String() + raw
	}
	return raw
}

// isExternal 判断 URL 相对部署 Origin 是否跨源。本地路径一律同源。
func (w *Worker) isExternal(raw string) bool {
	if strings.HasPrefix(raw, "/") {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return true
	}
	return !strings.EqualFold(parsed.Scheme, w.origin.Scheme) ||
		!strings.EqualFold(parsed.Host, w.origin.Host)
}

// isBypassed 判断请求 URL 是否命中直通前缀（例如外部地图链接）。
// 命中的请求既不读缓存也不写缓存。
func (w *Worker) isBypassed(rawURL string) bool {
	for _, prefix := range w.bypass {
		if strings.HasPrefix(rawURL, prefix) {
			return true
		}
	}
	return false
}
