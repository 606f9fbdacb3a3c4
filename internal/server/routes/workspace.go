package routes

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"

	"github.com/opensafely-core/release-hatch/internal/jobserver"
	"github.com/opensafely-core/release-hatch/internal/release"
	"github.com/opensafely-core/release-hatch/internal/schema"
	"github.com/opensafely-core/release-hatch/internal/server"
)

// workspaceIndex 返回工作区当前文件索引。
func (h *handlers) workspaceIndex(c fiber.Ctx) error {
	workspace := c.Params("workspace")
	dir, err := h.workspaceDir(workspace)
	if err != nil {
		return err
	}
	list, err := h.deps.Indexer.Build(requestContext(c), dir, urlBuilder(c, "", "workspace", workspace, "current"))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// workspaceFile 返回工作区中的单个文件。
func (h *handlers) workspaceFile(c fiber.Ctx) error {
	workspace := c.Params("workspace")
	name := c.Params("*")
	dir, err := h.workspaceDir(workspace)
	if err != nil {
		return err
	}
	abs, ok := fileIn(dir, name)
	if !ok {
		return server.NotFound(fmt.Sprintf("File %s not found in workspace %s", name, workspace))
	}
	return sendFile(c, abs, h.deps.Config.Service.SPAOrigin)
}

// createRelease 校验清单、暂存文件、在 job-server 登记并提交发布目录。
// 成功时回传 job-server 的响应，Location 改写为本服务的上传地址。
func (h *handlers) createRelease(c fiber.Ctx) error {
	workspace := c.Params("workspace")
	dir, err := h.workspaceDir(workspace)
	if err != nil {
		return err
	}
	body := append([]byte(nil), c.Body()...)
	req, err := schema.ParseReleaseRequest(body)
	if err != nil {
		return server.BadRequest(err.Error())
	}
	if len(req.Manifest) == 0 {
		return server.BadRequest("release must contain at least one file")
	}

	tok, _ := server.TokenFromContext(c)
	result, err := h.deps.Stager.Create(requestContext(c), release.Request{
		Workspace: workspace,
		Root:      dir,
		Manifest:  req.Manifest,
		Body:      body,
		User:      tok.User(),
	})
	if err != nil {
		var integrity *release.IntegrityError
		if errors.As(err, &integrity) {
			h.requestLogger(c, "release_rejected").WithField("problems", integrity.Problems).Info("release integrity check failed")
		}
		return err
	}

	location := c.BaseURL() + escapePath("", "workspace", workspace, "release", result.ReleaseID)
	resp := &jobserver.Response{
		StatusCode: result.Response.StatusCode,
		Header:     result.Response.Header.Clone(),
		Body:       result.Response.Body,
	}
	resp.Header.Set("Location", location)
	h.requestLogger(c, "release_created").WithField("release_id", result.ReleaseID).Info("release created")
	return server.SendUpstream(c, resp)
}
