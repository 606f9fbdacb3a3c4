// Package index enumerates the files of a workspace or release directory and
// describes them as a schema.FileList.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opensafely-core/release-hatch/internal/schema"
)

// 工作区顶层保留目录：发布快照与审核元数据，不属于工作区文件。
const (
	ReleasesDir = "releases"
	MetadataDir = "metadata"
)

var reservedTopLevel = map[string]struct{}{
	ReleasesDir: {},
	MetadataDir: {},
}

// Hasher 返回文件内容摘要，通常由 cache.HashCache 提供。
type Hasher interface {
	GetOrCompute(ctx context.Context, path string) (string, error)
}

// URLBuilder 为相对路径生成可访问的 URL；为 nil 时索引中不包含 url。
type URLBuilder func(name string) string

// Indexer 结合 Hasher 构建文件索引。
type Indexer struct {
	hashes Hasher
}

// New 创建 Indexer。
func New(hashes Hasher) *Indexer {
	return &Indexer{hashes: hashes}
}

// List 递归列出 root 下的普通文件，返回排序后的斜杠相对路径。
// 任何以 "." 开头的路径段以及顶层 releases/、metadata/ 子树都会被排除。
func List(root string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if excluded(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			names = append(names, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func excluded(rel string, isDir bool) bool {
	if strings.HasPrefix(path.Base(rel), ".") {
		return true
	}
	if isDir && !strings.Contains(rel, "/") {
		_, reserved := reservedTopLevel[rel]
		return reserved
	}
	return false
}

// Build 为 root 下的每个文件生成 FileMetadata：大小与修改时间来自 stat，摘要来自 Hasher。
func (ix *Indexer) Build(ctx context.Context, root string, urls URLBuilder) (*schema.FileList, error) {
	if ix == nil || ix.hashes == nil {
		return nil, errors.New("indexer requires a hasher")
	}
	names, err := List(root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	files := make([]schema.FileMetadata, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		abs := filepath.Join(root, filepath.FromSlash(name))
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		digest, err := ix.hashes.GetOrCompute(ctx, abs)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", name, err)
		}
		entry := schema.FileMetadata{
			Name:   name,
			Size:   uint64(info.Size()),
			SHA256: digest,
			Date:   info.ModTime().UTC(),
		}
		if urls != nil {
			entry.URL = urls(name)
		}
		files = append(files, entry)
	}
	return &schema.FileList{Files: files}, nil
}
