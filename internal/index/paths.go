package index

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot 表示相对路径试图逃离根目录。
var ErrOutsideRoot = errors.New("path escapes root")

// SafeJoin 把客户端提供的斜杠相对路径拼接到 root 下，拒绝绝对路径与 ".." 逃逸。
func SafeJoin(root, rel string) (string, error) {
	rel = strings.ReplaceAll(rel, "\\", "/")
	if rel == "" || strings.HasPrefix(rel, "/") {
		return "", ErrOutsideRoot
	}
	joined := filepath.Join(root, filepath.FromSlash(rel))
	within, err := filepath.Rel(root, joined)
	if err != nil || within == "." || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return joined, nil
}

// ValidSegment 判断 name 能否作为单个路径段（工作区名、发布标识）使用。
func ValidSegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}
