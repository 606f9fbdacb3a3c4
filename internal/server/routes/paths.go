package routes

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/opensafely-core/release-hatch/internal/index"
	"github.com/opensafely-core/release-hatch/internal/logging"
	"github.com/opensafely-core/release-hatch/internal/server"
	"github.com/opensafely-core/release-hatch/internal/token"
)

// workspaceDir 返回工作区目录，不存在时返回 404。
func (h *handlers) workspaceDir(workspace string) (string, error) {
	if !index.ValidSegment(workspace) {
		return "", server.NotFound(fmt.Sprintf("Workspace %s not found", workspace))
	}
	dir := filepath.Join(h.deps.Config.Global.WorkspacesPath, workspace)
	if !isDir(dir) || h.holdsBookkeeping(dir) {
		return "", server.NotFound(fmt.Sprintf("Workspace %s not found", workspace))
	}
	return dir, nil
}

// holdsBookkeeping 判断 dir 是否为缓存/暂存目录本身或其上级目录。
// 默认布局下缓存位于 <WorkspacesPath>/cache，不能被当作工作区访问。
func (h *handlers) holdsBookkeeping(dir string) bool {
	g := h.deps.Config.Global
	for _, p := range []string{g.CachePath, g.StagingPath} {
		if p != "" && within(dir, p) {
			return true
		}
	}
	return false
}

// within 判断 p 是否等于 root 或位于 root 之下。
func within(root, p string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// releaseDir 返回发布目录，不存在时返回 404。
func releaseDir(workspaceDir, releaseID string) (string, error) {
	if !index.ValidSegment(releaseID) {
		return "", server.NotFound(fmt.Sprintf("Release %s not found", releaseID))
	}
	dir := filepath.Join(workspaceDir, index.ReleasesDir, releaseID)
	if !isDir(dir) {
		return "", server.NotFound(fmt.Sprintf("Release %s not found", releaseID))
	}
	return dir, nil
}

// fileIn 在 root 下解析客户端给出的相对路径，只接受普通文件。
func fileIn(root, name string) (string, bool) {
	abs, err := index.SafeJoin(root, name)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return abs, true
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// urlBuilder 以当前请求的 scheme/host 为基准生成文件 URL。
func urlBuilder(c fiber.Ctx, segments ...string) index.URLBuilder {
	base := c.BaseURL() + escapePath(segments...)
	return func(name string) string {
		return base + "/" + escapePath(strings.Split(name, "/")...)
	}
}

func escapePath(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return strings.Join(escaped, "/")
}

// sendFile 以流方式返回文件内容，并附带 frame-src 限制。
func sendFile(c fiber.Ctx, abs, frameSrc string) error {
	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if ext := filepath.Ext(abs); ext != "" {
		c.Type(ext)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	c.Set("Content-Security-Policy", fmt.Sprintf("frame-src: %s;", frameSrc))
	c.Set(fiber.HeaderLastModified, info.ModTime().UTC().Format(http.TimeFormat))
	return c.SendStream(f, int(info.Size()))
}

func logrusFields(c fiber.Ctx, tok token.Token) logrus.Fields {
	return logging.RequestFields(c.Params("workspace"), tok.User(), string(tok.Scope()), server.RequestID(c))
}
