package server

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger *logrus.Logger
	// SPAOrigin 是允许跨域读取文件的前端来源，为空时不启用 CORS。
	SPAOrigin  string
	ListenPort int
}

const contextKeyRequestID = "_hatch_request_id"

// 浏览器端 JS 需要读取的自定义响应头。
var exposedHeaders = []string{"Response-Id", "File-Id", "Release-Id", "Location"}

// NewApp builds a Fiber application with request-id, CORS and recover
// middlewares, and structured error rendering.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		UnescapePath:  true,
		ErrorHandler:  errorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())
	if opts.SPAOrigin != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     []string{opts.SPAOrigin},
			AllowMethods:     []string{fiber.MethodGet, fiber.MethodHead, fiber.MethodPost},
			AllowHeaders:     []string{fiber.HeaderAuthorization, fiber.HeaderContentType},
			ExposeHeaders:    exposedHeaders,
			AllowCredentials: false,
			MaxAge:           3200,
		}))
	}

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
