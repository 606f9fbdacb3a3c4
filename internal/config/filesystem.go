package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// PrepareDirectories 确认工作区存在，创建缓存/暂存目录，并确保暂存目录与工作区位于同一文件系统。
//
// 发布提交依赖 os.Rename 将暂存目录原子地移动到 <workspace>/releases/<id>，
// 跨文件系统时 rename 会失败，因此在启动阶段直接报错而不是等到第一次发布。
// 探测只覆盖 WorkspacesPath 根目录；单独挂载的工作区要到提交时才会暴露问题。
func PrepareDirectories(g GlobalConfig) error {
	info, err := os.Stat(g.WorkspacesPath)
	if err != nil {
		return newFieldError("WorkspacesPath", fmt.Sprintf("无法访问: %v", err))
	}
	if !info.IsDir() {
		return newFieldError("WorkspacesPath", "必须是目录")
	}

	for field, dir := range map[string]string{"CachePath": g.CachePath, "StagingPath": g.StagingPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return newFieldError(field, fmt.Sprintf("创建目录失败: %v", err))
		}
	}

	if err := probeSameFilesystem(g.StagingPath, g.WorkspacesPath); err != nil {
		return newFieldError("StagingPath", err.Error())
	}
	return nil
}

// probeSameFilesystem 在 src 中创建临时文件并尝试 rename 到 dst，跨设备时返回错误。
func probeSameFilesystem(src, dst string) error {
	probe, err := os.CreateTemp(src, ".fsprobe-*")
	if err != nil {
		return fmt.Errorf("创建探测文件失败: %w", err)
	}
	probeName := probe.Name()
	probe.Close()
	defer os.Remove(probeName)

	target := filepath.Join(dst, filepath.Base(probeName))
	if err := os.Rename(probeName, target); err != nil {
		return renameProbeError(err)
	}
	return os.Remove(target)
}

// renameProbeError 只把 EXDEV 解释为跨文件系统，其余错误包装后返回。
func renameProbeError(err error) error {
	if errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("与 WorkspacesPath 不在同一文件系统，无法原子提交发布: %w", err)
	}
	return fmt.Errorf("探测 rename 失败: %w", err)
}
