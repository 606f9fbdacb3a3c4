package routes

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/opensafely-core/release-hatch/internal/schema"
	"github.com/opensafely-core/release-hatch/internal/server"
)

// releaseIndex 返回发布快照的文件索引。
func (h *handlers) releaseIndex(c fiber.Ctx) error {
	workspace := c.Params("workspace")
	releaseID := c.Params("release")
	wsDir, err := h.workspaceDir(workspace)
	if err != nil {
		return err
	}
	dir, err := releaseDir(wsDir, releaseID)
	if err != nil {
		return err
	}
	list, err := h.deps.Indexer.Build(requestContext(c), dir, urlBuilder(c, "", "workspace", workspace, "release", releaseID))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// releaseFile 返回发布快照中的单个文件。
func (h *handlers) releaseFile(c fiber.Ctx) error {
	workspace := c.Params("workspace")
	releaseID := c.Params("release")
	name := c.Params("*")
	wsDir, err := h.workspaceDir(workspace)
	if err != nil {
		return err
	}
	dir, err := releaseDir(wsDir, releaseID)
	if err != nil {
		return err
	}
	abs, ok := fileIn(dir, name)
	if !ok {
		return server.NotFound(fmt.Sprintf("File %s not found in release %s", name, releaseID))
	}
	return sendFile(c, abs, h.deps.Config.Service.APIServer)
}

// uploadFile 把发布中的一个文件上传到 job-server，并回传其响应。
func (h *handlers) uploadFile(c fiber.Ctx) error {
	workspace := c.Params("workspace")
	releaseID := c.Params("release")
	var payload schema.ReleaseFile
	if err := c.Bind().JSON(&payload); err != nil {
		return server.BadRequest(err.Error())
	}
	wsDir, err := h.workspaceDir(workspace)
	if err != nil {
		return err
	}
	dir, err := releaseDir(wsDir, releaseID)
	if err != nil {
		return err
	}
	abs, ok := fileIn(dir, payload.Name)
	if !ok {
		return server.NotFound(fmt.Sprintf("File %s not found in release %s", payload.Name, releaseID))
	}

	tok, _ := server.TokenFromContext(c)
	resp, err := h.deps.Uploader.UploadFile(requestContext(c), releaseID, payload.Name, abs, tok.User())
	if err != nil {
		return err
	}
	h.requestLogger(c, "release_file_uploaded").WithFields(logrus.Fields{
		"release_id": releaseID,
		"file":       payload.Name,
	}).Info("release file uploaded")
	return server.SendUpstream(c, resp)
}

// submitReview 校验审核结果后转发到 job-server。
func (h *handlers) submitReview(c fiber.Ctx) error {
	workspace := c.Params("workspace")
	releaseID := c.Params("release")
	body := append([]byte(nil), c.Body()...)
	var list schema.FileList
	if err := c.Bind().JSON(&list); err != nil {
		return server.BadRequest(err.Error())
	}
	wsDir, err := h.workspaceDir(workspace)
	if err != nil {
		return err
	}
	dir, err := releaseDir(wsDir, releaseID)
	if err != nil {
		return err
	}

	problems, err := h.deps.Stager.Validate(requestContext(c), workspace, dir, list.Manifest())
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return server.BadRequest(problems)
	}
	if problems := schema.ValidateReviews(list); len(problems) > 0 {
		return server.BadRequest(problems)
	}

	tok, _ := server.TokenFromContext(c)
	resp, err := h.deps.Uploader.UploadReview(requestContext(c), releaseID, body, tok.User())
	if err != nil {
		return err
	}
	h.requestLogger(c, "release_reviewed").WithField("release_id", releaseID).Info("release review submitted")
	return server.SendUpstream(c, resp)
}
