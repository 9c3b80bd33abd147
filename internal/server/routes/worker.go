package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/offline-hub/offline-hub/internal/worker"
)

// Control describes the worker surface the control routes need: the message
// protocol, push injection and lifecycle introspection.
type Control interface {
	HandleMessage(ctx context.Context, msg worker.Message) error
	HandlePush(ctx context.Context, payload []byte) error
	State() worker.State
	CacheName() string
	Version() string
}

// messageRequest 是 POST /-/worker/message 的请求体。
type messageRequest struct {
	Type    string                `json:"type"`
	Payload worker.MessagePayload `json:"payload"`
}

// RegisterWorkerRoutes 暴露 /-/worker 控制接口：页面消息协议、推送注入与
// 生命周期诊断。
func RegisterWorkerRoutes(app *fiber.App, control Control) {
	if app == nil || control == nil {
		return
	}

	app.Get("/-/worker/state", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"state":   string(control.State()),
			"bucket":  control.CacheName(),
			"version": control.Version(),
		})
	})

	app.Post("/-/worker/message", func(c fiber.Ctx) error {
		var body messageRequest
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_message_body"})
		}
		if body.Type == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message_type_required"})
		}

		msg := worker.Message{Type: body.Type, Payload: body.Payload}

		// GET_VERSION 需要回复通道；Worker 在返回前恰好回复一次
		var reply chan string
		if body.Type == worker.MessageGetVersion {
			reply = make(chan string, 1)
			msg.Reply = reply
		}

		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := control.HandleMessage(ctx, msg); err != nil {
			return renderMessageError(c, err)
		}

		if reply != nil {
			return c.JSON(fiber.Map{"version": <-reply})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/-/worker/push", func(c fiber.Ctx) error {
		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := control.HandlePush(ctx, c.Body()); err != nil {
			return renderMessageError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	})
}

func renderMessageError(c fiber.Ctx, err error) error {
	if errors.Is(err, worker.ErrEventNotAllowed) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "worker_state_conflict"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "message_failed"})
}
