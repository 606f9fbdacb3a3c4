package server

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/opensafely-core/release-hatch/internal/jobserver"
	"github.com/opensafely-core/release-hatch/internal/release"
	"github.com/opensafely-core/release-hatch/internal/token"
)

// HTTPError 携带状态码与 detail，handler 直接返回即可。
type HTTPError struct {
	Status int
	Detail interface{}
}

func (e *HTTPError) Error() string {
	if s, ok := e.Detail.(string); ok {
		return s
	}
	return http.StatusText(e.Status)
}

// NewHTTPError 构造 HTTPError。
func NewHTTPError(status int, detail interface{}) *HTTPError {
	return &HTTPError{Status: status, Detail: detail}
}

// NotFound 返回 404。
func NotFound(detail string) *HTTPError {
	return NewHTTPError(fiber.StatusNotFound, detail)
}

// BadRequest 返回 400。
func BadRequest(detail interface{}) *HTTPError {
	return NewHTTPError(fiber.StatusBadRequest, detail)
}

// errorHandler 把各层错误映射为 HTTP 响应。鉴权失败只返回通用文案，细节已记录在日志中。
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var (
			httpErr     *HTTPError
			tokenErr    *token.Error
			integrity   *release.IntegrityError
			upstreamErr *jobserver.UpstreamError
			fiberErr    *fiber.Error
		)
		switch {
		case errors.As(err, &httpErr):
			return renderDetail(c, httpErr.Status, httpErr.Detail)
		case errors.Is(err, ErrMissingCredentials):
			return renderDetail(c, fiber.StatusUnauthorized, "Unauthorized")
		case errors.As(err, &tokenErr):
			if tokenErr.Kind == token.KindExpired {
				return renderDetail(c, fiber.StatusUnauthorized, "Unauthorized")
			}
			return renderDetail(c, fiber.StatusForbidden, "Forbidden")
		case errors.As(err, &integrity):
			return renderDetail(c, fiber.StatusBadRequest, integrity.Problems)
		case errors.As(err, &upstreamErr):
			CopyHeaders(c, upstreamErr.Header)
			return renderDetail(c, upstreamErr.StatusCode, upstreamErr.Detail())
		case errors.Is(err, jobserver.ErrMissingReleaseID), errors.Is(err, release.ErrInvalidReleaseID):
			logFailure(c, logger, err)
			return renderDetail(c, fiber.StatusBadGateway, "Invalid response from job-server")
		case errors.Is(err, release.ErrReleaseExists):
			logFailure(c, logger, err)
			return renderDetail(c, fiber.StatusConflict, "Release already exists")
		case errors.As(err, &fiberErr):
			return renderDetail(c, fiberErr.Code, fiberErr.Message)
		default:
			logFailure(c, logger, err)
			return renderDetail(c, fiber.StatusInternalServerError, "Internal Server Error")
		}
	}
}

func renderDetail(c fiber.Ctx, status int, detail interface{}) error {
	return c.Status(status).JSON(fiber.Map{"detail": detail})
}

func logFailure(c fiber.Ctx, logger *logrus.Logger, err error) {
	logger.WithFields(logrus.Fields{
		"action":     "request_failed",
		"method":     c.Method(),
		"path":       string(c.Request().URI().Path()),
		"request_id": RequestID(c),
	}).WithError(err).Error("request failed")
}

// CopyHeaders 把已清洗的上游响应头写入 Fiber 响应。
func CopyHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if jobserver.IsHopByHopHeader(key) {
			continue
		}
		c.Response().Header.Del(key)
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}

// SendUpstream 把登记服务的成功响应原样回传给客户端。
func SendUpstream(c fiber.Ctx, resp *jobserver.Response) error {
	CopyHeaders(c, resp.Header)
	c.Status(resp.StatusCode)
	return c.Send(resp.Body)
}
