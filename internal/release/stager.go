package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/opensafely-core/release-hatch/internal/index"
	"github.com/opensafely-core/release-hatch/internal/jobserver"
	"github.com/opensafely-core/release-hatch/internal/schema"
)

// State 标记一次发布尝试所处的阶段。
type State int

const (
	StateValidating State = iota
	StateStaging
	StateRegistering
	StateCommitting
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateStaging:
		return "staging"
	case StateRegistering:
		return "registering"
	case StateCommitting:
		return "committing"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Registrar 在远端登记服务中创建发布并返回其标识，jobserver.Client 实现该接口。
type Registrar interface {
	CreateRelease(ctx context.Context, workspace string, body []byte, user string) (*jobserver.Response, error)
}

// Request 描述一次发布请求。
type Request struct {
	Workspace string
	// Root 是工作区目录。
	Root     string
	Manifest schema.Manifest
	// Body 是转发给登记服务的原始请求体。
	Body []byte
	User string
}

// Result 是成功提交后的发布信息。
type Result struct {
	ReleaseID string
	Dir       string
	Response  *jobserver.Response
}

// Stager 负责校验、暂存、登记与提交。
type Stager struct {
	hashes      index.Hasher
	registrar   Registrar
	stagingRoot string
	logger      *logrus.Logger
	rename      func(oldpath, newpath string) error
}

// NewStager 创建 Stager；stagingRoot 必须与工作区位于同一文件系统，启动时由 config.PrepareDirectories 检查。
func NewStager(hashes index.Hasher, registrar Registrar, stagingRoot string, logger *logrus.Logger) (*Stager, error) {
	if hashes == nil {
		return nil, errors.New("stager requires a hasher")
	}
	if registrar == nil {
		return nil, errors.New("stager requires a registrar")
	}
	if stagingRoot == "" {
		return nil, errors.New("stager requires a staging root")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Stager{hashes: hashes, registrar: registrar, stagingRoot: stagingRoot, logger: logger, rename: os.Rename}, nil
}

// Validate 检查清单中的每个文件都存在于 root 且摘要一致，返回全部问题。
func (s *Stager) Validate(ctx context.Context, workspace, root string, manifest schema.Manifest) ([]string, error) {
	var problems []string
	for _, name := range manifest.Names() {
		expected := manifest[name]
		abs, err := index.SafeJoin(root, name)
		if err != nil || !isRegularFile(abs) {
			problems = append(problems, fmt.Sprintf("File %s not found in workspace %s", name, workspace))
			continue
		}
		digest, err := s.hashes.GetOrCompute(ctx, abs)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", name, err)
		}
		if digest != expected {
			problems = append(problems, fmt.Sprintf("File %s does not match sha of '%s'", name, expected))
		}
	}
	return problems, nil
}

// Create 执行完整的发布流程。返回错误时暂存目录已被删除，releases/ 下不留下任何内容。
func (s *Stager) Create(ctx context.Context, req Request) (*Result, error) {
	attempt := &attempt{stager: s, req: req, state: StateValidating}
	result, err := attempt.run(ctx)
	if err != nil {
		attempt.transition(StateRolledBack)
		return nil, err
	}
	return result, nil
}

type attempt struct {
	stager *Stager
	req    Request
	state  State
}

func (a *attempt) transition(next State) {
	a.stager.logger.WithFields(logrus.Fields{
		"action":    "release_state",
		"workspace": a.req.Workspace,
		"user":      a.req.User,
		"from":      a.state.String(),
		"to":        next.String(),
	}).Debug("release state change")
	a.state = next
}

func (a *attempt) run(ctx context.Context) (*Result, error) {
	problems, err := a.stager.Validate(ctx, a.req.Workspace, a.req.Root, a.req.Manifest)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, &IntegrityError{Problems: problems}
	}

	a.transition(StateStaging)
	dir, err := os.MkdirTemp(a.stager.stagingRoot, ".stage-*")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			a.stager.logger.WithError(rmErr).WithField("staging_dir", dir).Warn("release_cleanup_failed")
		}
	}()

	for _, name := range a.req.Manifest.Names() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := index.SafeJoin(a.req.Root, name)
		if err != nil {
			return nil, err
		}
		dst, err := index.SafeJoin(dir, name)
		if err != nil {
			return nil, err
		}
		if err := copyFile(ctx, src, dst); err != nil {
			return nil, fmt.Errorf("stage %s: %w", name, err)
		}
	}

	a.transition(StateRegistering)
	resp, err := a.stager.registrar.CreateRelease(ctx, a.req.Workspace, a.req.Body, a.req.User)
	if err != nil {
		return nil, err
	}
	releaseID := resp.ReleaseID()
	if !index.ValidSegment(releaseID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReleaseID, releaseID)
	}

	a.transition(StateCommitting)
	releasesDir := filepath.Join(a.req.Root, index.ReleasesDir)
	target := filepath.Join(releasesDir, releaseID)
	if _, err := os.Lstat(target); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrReleaseExists, releaseID)
	}
	if err := os.Chmod(dir, 0o755); err != nil {
		return nil, err
	}
	createdReleases := false
	if _, err := os.Lstat(releasesDir); errors.Is(err, fs.ErrNotExist) {
		switch err := os.Mkdir(releasesDir, 0o755); {
		case err == nil:
			createdReleases = true
		case !errors.Is(err, fs.ErrExist):
			return nil, fmt.Errorf("create releases dir: %w", err)
		}
	}
	if err := a.stager.rename(dir, target); err != nil {
		if createdReleases {
			// 只删除空目录；并发提交已写入的 releases/ 不受影响。
			_ = os.Remove(releasesDir)
		}
		return nil, fmt.Errorf("commit release %s: %w", releaseID, err)
	}
	committed = true
	a.transition(StateCommitted)

	a.stager.logger.WithFields(logrus.Fields{
		"action":     "release_created",
		"workspace":  a.req.Workspace,
		"user":       a.req.User,
		"release_id": releaseID,
		"files":      len(a.req.Manifest),
	}).Info("release committed")
	return &Result{ReleaseID: releaseID, Dir: target, Response: resp}, nil
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func copyFile(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, &ctxReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
