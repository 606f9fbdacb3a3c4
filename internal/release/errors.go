package release

import (
	"errors"
	"strings"
)

// IntegrityError 汇总清单校验发现的全部问题。
type IntegrityError struct {
	Problems []string
}

func (e *IntegrityError) Error() string {
	return "release integrity check failed: " + strings.Join(e.Problems, "; ")
}

var (
	// ErrInvalidReleaseID 表示登记服务返回的发布标识不能作为目录名。
	ErrInvalidReleaseID = errors.New("invalid release id")
	// ErrReleaseExists 表示目标发布目录已存在。
	ErrReleaseExists = errors.New("release directory already exists")
)
