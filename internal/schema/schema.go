// Package schema holds the JSON documents exchanged with clients and with the
// release registration service: file indexes, release manifests and reviews.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// NormalizeName 将文件名中的反斜杠统一为正斜杠。
func NormalizeName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

// ReviewStatus 是单个文件的审核结论。
type ReviewStatus string

const (
	ReviewApproved ReviewStatus = "APPROVED"
	ReviewRejected ReviewStatus = "REJECTED"
)

// UnmarshalJSON 只接受 APPROVED/REJECTED。
func (s *ReviewStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch ReviewStatus(raw) {
	case ReviewApproved, ReviewRejected:
		*s = ReviewStatus(raw)
		return nil
	default:
		return fmt.Errorf("invalid review status %q", raw)
	}
}

// FileReview 记录审核结论与审核意见。
type FileReview struct {
	Status   ReviewStatus           `json:"status"`
	Comments map[string]interface{} `json:"comments"`
}

// FileMetadata 描述工作区或发布目录中的一个文件。
type FileMetadata struct {
	Name     string                 `json:"name"`
	URL      string                 `json:"url,omitempty"`
	Size     uint64                 `json:"size"`
	SHA256   string                 `json:"sha256"`
	Date     time.Time              `json:"date"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Review   *FileReview            `json:"review,omitempty"`
}

// UnmarshalJSON 规范化 name 与 url 中的路径分隔符。
func (f *FileMetadata) UnmarshalJSON(data []byte) error {
	type plain FileMetadata
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	decoded.Name = NormalizeName(decoded.Name)
	decoded.URL = NormalizeName(decoded.URL)
	*f = FileMetadata(decoded)
	return nil
}

// FileList 是 SPA 使用的文件索引格式，同时也是新版发布请求体。
type FileList struct {
	Files    []FileMetadata         `json:"files"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Review   map[string]interface{} `json:"review,omitempty"`
}

// Manifest 将 FileList 转换为 name -> sha256 清单。
func (l FileList) Manifest() Manifest {
	m := make(Manifest, len(l.Files))
	for _, f := range l.Files {
		m[f.Name] = f.SHA256
	}
	return m
}

// Release 是 osrelease 使用的旧版发布请求：{"files": {"name": "sha256"}}。
type Release struct {
	Files Manifest `json:"files"`
}

// Manifest 是待发布文件到客户端所见 sha256 的映射。
type Manifest map[string]string

// UnmarshalJSON 规范化清单中的文件名。
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Manifest, len(raw))
	for name, sha := range raw {
		out[NormalizeName(name)] = sha
	}
	*m = out
	return nil
}

// Names 返回排序后的文件名，保证错误与日志输出稳定。
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReleaseFile 是旧版上传接口的请求体。
type ReleaseFile struct {
	Name string `json:"name"`
}

// UnmarshalJSON 规范化 name 并要求其非空。
func (r *ReleaseFile) UnmarshalJSON(data []byte) error {
	type plain ReleaseFile
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	decoded.Name = NormalizeName(decoded.Name)
	if decoded.Name == "" {
		return errors.New("name is required")
	}
	*r = ReleaseFile(decoded)
	return nil
}

// ReleaseRequest 同时承载两种发布请求格式，Body 保留客户端原始 JSON 以便转发。
type ReleaseRequest struct {
	Manifest Manifest
	FileList *FileList
	Body     []byte
}

// ParseReleaseRequest 根据 files 字段的形态（对象或数组）识别请求格式。
func ParseReleaseRequest(body []byte) (*ReleaseRequest, error) {
	var probe struct {
		Files json.RawMessage `json:"files"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("invalid release request: %w", err)
	}
	trimmed := strings.TrimSpace(string(probe.Files))
	switch {
	case strings.HasPrefix(trimmed, "{"):
		var release Release
		if err := json.Unmarshal(body, &release); err != nil {
			return nil, fmt.Errorf("invalid release request: %w", err)
		}
		return &ReleaseRequest{Manifest: release.Files, Body: body}, nil
	case strings.HasPrefix(trimmed, "["):
		var list FileList
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("invalid release request: %w", err)
		}
		return &ReleaseRequest{Manifest: list.Manifest(), FileList: &list, Body: body}, nil
	default:
		return nil, errors.New("invalid release request: files must be an object or a list")
	}
}

// ValidateReviews 要求每个文件都有审核结论，REJECTED 的文件必须附带意见。
func ValidateReviews(list FileList) []string {
	var problems []string
	for _, f := range list.Files {
		switch {
		case f.Review == nil:
			problems = append(problems, fmt.Sprintf("missing review for file %s", f.Name))
		case f.Review.Status == ReviewRejected && len(f.Review.Comments) == 0:
			problems = append(problems, fmt.Sprintf("missing comments for rejected file %s", f.Name))
		}
	}
	return problems
}
