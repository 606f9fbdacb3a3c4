package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/sha256-simd"
	"github.com/sirupsen/logrus"
)

// HashCache 计算并缓存文件的 sha256。大工作区的索引需要对每个文件求摘要，
// 缓存按源文件相对 sourceRoot 的路径镜像存放在 Store 中。
type HashCache struct {
	store      Store
	sourceRoot string
	logger     *logrus.Logger
}

// NewHashCache 绑定一个 Store 与源文件根目录；所有待计算文件必须位于 sourceRoot 之下。
func NewHashCache(store Store, sourceRoot string, logger *logrus.Logger) (*HashCache, error) {
	if store == nil {
		return nil, errors.New("cache store required")
	}
	abs, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve source root: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HashCache{store: store, sourceRoot: abs, logger: logger}, nil
}

// GetOrCompute 返回文件内容的十六进制 sha256。
//
// 缓存条目的修改时间不早于源文件修改时间时直接复用；否则重新计算并覆盖缓存。
// 新条目的时间戳取计算前观测到的源文件修改时间，计算期间发生的写入会让条目立即过期。
func (h *HashCache) GetOrCompute(ctx context.Context, filePath string) (string, error) {
	locator, err := h.locate(filePath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", filePath)
	}

	fields := logrus.Fields{"action": "hash_cache", "path": locator.Path}
	cached, err := h.store.Get(ctx, locator)
	switch {
	case err == nil:
		if !cached.Entry.ModTime.Before(info.ModTime()) {
			digest, readErr := readDigest(cached.Reader)
			cached.Reader.Close()
			if readErr == nil {
				h.logger.WithFields(fields).Debug("hash_cache_hit")
				return digest, nil
			}
			h.logger.WithFields(fields).WithError(readErr).Warn("hash_cache_corrupt")
		} else {
			cached.Reader.Close()
			h.logger.WithFields(fields).Debug("hash_cache_stale")
		}
	case errors.Is(err, ErrNotFound):
		h.logger.WithFields(fields).Debug("hash_cache_miss")
	default:
		h.logger.WithFields(fields).WithError(err).Warn("hash_cache_get_failed")
	}

	digest, err := HashFile(filePath)
	if err != nil {
		return "", err
	}
	if _, err := h.store.Put(ctx, locator, strings.NewReader(digest), PutOptions{ModTime: info.ModTime()}); err != nil {
		h.logger.WithFields(fields).WithError(err).Warn("hash_cache_put_failed")
	}
	return digest, nil
}

func (h *HashCache) locate(filePath string) (Locator, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return Locator{}, err
	}
	rel, err := filepath.Rel(h.sourceRoot, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Locator{}, fmt.Errorf("%s is outside %s", filePath, h.sourceRoot)
	}
	return Locator{Path: filepath.ToSlash(rel)}, nil
}

// HashFile 流式计算文件的 sha256。
func HashFile(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", filePath, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func readDigest(r io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, 2*sha256.Size+1))
	if err != nil {
		return "", err
	}
	digest := strings.TrimSpace(string(raw))
	if len(digest) != 2*sha256.Size {
		return "", fmt.Errorf("unexpected digest length %d", len(digest))
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", err
	}
	return digest, nil
}
