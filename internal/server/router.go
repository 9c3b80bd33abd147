package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/offline-hub/offline-hub/internal/worker"
)

// Gateway describes the component that resolves inbound requests, either from
// the cache bucket or from the network. It allows injecting fake workers
// during tests.
type Gateway interface {
	Intercept(ctx context.Context, req *worker.Request) (*worker.Response, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req *worker.Request) (*worker.Response, error)

// Intercept makes GatewayFunc satisfy Gateway.
func (f GatewayFunc) Intercept(ctx context.Context, req *worker.Request) (*worker.Response, error) {
	return f(ctx, req)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Gateway    Gateway
	Origin     string
	ListenPort int
}

const contextKeyRequestID = "_offlinehub_request_id"

// NewApp builds a Fiber application that funnels every non-control request
// through the worker's intercept operation.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}
	origin := strings.TrimRight(opts.Origin, "/")
	if origin == "" {
		return nil, errors.New("origin is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if isControlPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return serveIntercepted(c, opts.Logger, opts.Gateway, origin)
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成 ID，响应头与日志共用。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// serveIntercepted 把 Fiber 请求翻译为 Worker 请求，再把快照/网络响应写回。
func serveIntercepted(c fiber.Ctx, logger *logrus.Logger, gateway Gateway, origin string) error {
	target := origin + string(c.Request().URI().Path())
	if query := string(c.Request().URI().QueryString()); query != "" {
		target += "?" + query
	}

	header := make(http.Header)
	for key, values := range c.GetReqHeaders() {
		for _, value := range values {
			header.Add(key, value)
		}
	}

	req := &worker.Request{
		Method: c.Method(),
		URL:    target,
		Header: header,
		Mode:   worker.ModeCORS,
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := gateway.Intercept(ctx, req)
	if err != nil {
		return renderInterceptError(c, logger, req, err)
	}

	for key, values := range resp.Header {
		if isHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
	c.Response().Header.SetContentLength(len(resp.Body))
	c.Status(resp.Status)

	if c.Method() == http.MethodHead {
		return nil
	}
	return c.Send(resp.Body)
}

func renderInterceptError(c fiber.Ctx, logger *logrus.Logger, req *worker.Request, err error) error {
	fields := logrus.Fields{
		"action":     "intercept",
		"method":     req.Method,
		"url":        req.URL,
		"request_id": RequestID(c),
	}

	if errors.Is(err, worker.ErrEventNotAllowed) {
		logger.WithError(err).WithFields(fields).Warn("worker not active")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "worker_not_active",
		})
	}

	logger.WithError(err).WithFields(fields).Warn("upstream failed")
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error": "upstream_failed",
	})
}

// RequestID returns the request identifier stored by the middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isControlPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
