package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/opensafely-core/release-hatch/internal/logging"
	"github.com/opensafely-core/release-hatch/internal/token"
)

const contextKeyToken = "_hatch_token"

// ErrMissingCredentials 表示请求没有携带 Authorization 头。
var ErrMissingCredentials = errors.New("missing Authorization header")

// Authenticator 在任何业务逻辑之前校验 capability token：签名、有效期、URL 绑定与 scope。
type Authenticator struct {
	codec  *token.Codec
	hosts  token.HostSet
	logger *logrus.Logger
}

// NewAuthenticator 创建鉴权器，hosts 是 token URL 允许出现的 hostname。
func NewAuthenticator(codec *token.Codec, hosts token.HostSet, logger *logrus.Logger) (*Authenticator, error) {
	if codec == nil {
		return nil, errors.New("token codec is required")
	}
	if len(hosts) == 0 {
		return nil, errors.New("host allow-list is empty")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Authenticator{codec: codec, hosts: hosts, logger: logger}, nil
}

// Require 返回要求 scope 的中间件；required 为空时任何有效 scope 都可通过。
func (a *Authenticator) Require(required token.Scope) fiber.Handler {
	return func(c fiber.Ctx) error {
		tok, err := a.authenticate(c, required)
		if err != nil {
			a.logFailure(c, err)
			return err
		}
		c.Locals(contextKeyToken, tok)
		return c.Next()
	}
}

func (a *Authenticator) authenticate(c fiber.Ctx, required token.Scope) (token.Token, error) {
	raw := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if raw == "" {
		return token.Token{}, ErrMissingCredentials
	}
	tok, err := a.codec.Verify(raw)
	if err != nil {
		return token.Token{}, err
	}
	if err := token.CheckBinding(tok, a.hosts, string(c.Request().URI().Path())); err != nil {
		return token.Token{}, err
	}
	if err := token.RequireScope(tok, required); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}

func (a *Authenticator) logFailure(c fiber.Ctx, err error) {
	fields := logging.RequestFields(c.Params("workspace"), "", "", RequestID(c))
	fields["action"] = "auth"
	fields["path"] = string(c.Request().URI().Path())
	if kind := token.KindOf(err); kind != "" {
		fields["kind"] = string(kind)
	}
	a.logger.WithFields(fields).WithError(err).Info("auth failed")
}

// TokenFromContext 返回鉴权中间件保存的 token。
func TokenFromContext(c fiber.Ctx) (token.Token, bool) {
	if value := c.Locals(contextKeyToken); value != nil {
		if tok, ok := value.(token.Token); ok {
			return tok, true
		}
	}
	return token.Token{}, false
}
