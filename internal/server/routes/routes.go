package routes

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/opensafely-core/release-hatch/internal/config"
	"github.com/opensafely-core/release-hatch/internal/index"
	"github.com/opensafely-core/release-hatch/internal/jobserver"
	"github.com/opensafely-core/release-hatch/internal/release"
	"github.com/opensafely-core/release-hatch/internal/server"
	"github.com/opensafely-core/release-hatch/internal/token"
)

// Uploader 转发发布文件与审核结果，jobserver.Client 实现该接口。
type Uploader interface {
	UploadFile(ctx context.Context, releaseID, name, filePath, user string) (*jobserver.Response, error)
	UploadReview(ctx context.Context, releaseID string, body []byte, user string) (*jobserver.Response, error)
}

// Dependencies 汇总路由所需的组件。
type Dependencies struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Auth     *server.Authenticator
	Indexer  *index.Indexer
	Stager   *release.Stager
	Uploader Uploader
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("config is required")
	case d.Logger == nil:
		return errors.New("logger is required")
	case d.Auth == nil:
		return errors.New("authenticator is required")
	case d.Indexer == nil:
		return errors.New("indexer is required")
	case d.Stager == nil:
		return errors.New("stager is required")
	case d.Uploader == nil:
		return errors.New("uploader is required")
	}
	return nil
}

// Register 挂载全部 HTTP 接口。读接口要求 view，创建发布要求 release，上传要求 upload，
// 提交审核只要求 token 有效且覆盖请求路径。
func Register(app *fiber.App, deps Dependencies) error {
	if app == nil {
		return errors.New("app is required")
	}
	if err := deps.validate(); err != nil {
		return err
	}
	h := &handlers{deps: deps}
	auth := deps.Auth

	app.Get("/", h.banner)

	app.Get("/workspace/:workspace/current", auth.Require(token.ScopeView), h.workspaceIndex)
	app.Get("/workspace/:workspace/current/*", auth.Require(token.ScopeView), h.workspaceFile)
	app.Post("/workspace/:workspace/release", auth.Require(token.ScopeRelease), h.createRelease)

	app.Get("/workspace/:workspace/release/:release", auth.Require(token.ScopeView), h.releaseIndex)
	app.Get("/workspace/:workspace/release/:release/*", auth.Require(token.ScopeView), h.releaseFile)
	app.Post("/workspace/:workspace/release/:release/reviews", auth.Require(""), h.submitReview)
	app.Post("/workspace/:workspace/release/:release", auth.Require(token.ScopeUpload), h.uploadFile)
	return nil
}

type handlers struct {
	deps Dependencies
}

func (h *handlers) banner(c fiber.Ctx) error {
	svc := h.deps.Config.Service
	c.Type("txt")
	return c.SendString(fmt.Sprintf("OpenSAFELY backend %s release-hatch at %s", svc.Backend, svc.ReleaseHost))
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

func (h *handlers) requestLogger(c fiber.Ctx, action string) *logrus.Entry {
	tok, _ := server.TokenFromContext(c)
	fields := logrusFields(c, tok)
	fields["action"] = action
	return h.deps.Logger.WithFields(fields)
}
