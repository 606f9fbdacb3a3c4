package jobserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opensafely-core/release-hatch/internal/config"
)

// ReleaseIDHeader 是登记服务返回新发布标识所用的响应头。
const ReleaseIDHeader = "Release-Id"

// 日志中上游响应体的最大长度。
const maxLoggedBody = 2048

// ErrMissingReleaseID 表示登记成功的响应缺少 Release-Id。
var ErrMissingReleaseID = errors.New("job-server response missing Release-Id header")

// Response 是登记服务的成功响应，Header 已清洗，可直接回传给客户端。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ReleaseID 返回响应中的发布标识。
func (r *Response) ReleaseID() string {
	if r == nil {
		return ""
	}
	return r.Header.Get(ReleaseIDHeader)
}

// Client 调用 job-server 的 releases API。
type Client struct {
	endpoint string
	token    string
	via      string
	http     *http.Client
	logger   *logrus.Logger
}

// NewClient 基于配置创建客户端；httpClient 为 nil 时使用 NewUpstreamClient。
func NewClient(cfg *config.Config, httpClient *http.Client, logger *logrus.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if httpClient == nil {
		httpClient = NewUpstreamClient(cfg)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		endpoint: cfg.APIEndpoint(),
		token:    cfg.Service.APIToken,
		via:      cfg.Service.ReleaseHost,
		http:     httpClient,
		logger:   logger,
	}, nil
}

// CreateRelease 在登记服务中为 workspace 创建发布，body 为客户端提交的原始 JSON。期望 201。
func (c *Client) CreateRelease(ctx context.Context, workspace string, body []byte, user string) (*Response, error) {
	path := "/releases/workspace/" + url.PathEscape(workspace)
	header := http.Header{"Content-Type": []string{"application/json"}}
	resp, err := c.do(ctx, path, bytes.NewReader(body), int64(len(body)), header, user, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	if resp.ReleaseID() == "" {
		return nil, ErrMissingReleaseID
	}
	return resp, nil
}

// UploadFile 以流的方式把发布目录中的文件上传到登记服务。期望 201。
func (c *Client) UploadFile(ctx context.Context, releaseID, name, filePath, user string) (*Response, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	path := "/releases/release/" + url.PathEscape(releaseID)
	header := http.Header{
		"Content-Type":        []string{"application/octet-stream"},
		"Content-Disposition": []string{fmt.Sprintf("attachment; filename=%q", name)},
	}
	return c.do(ctx, path, file, info.Size(), header, user, http.StatusCreated)
}

// UploadReview 把审核结果提交给登记服务。期望 200。
func (c *Client) UploadReview(ctx context.Context, releaseID string, body []byte, user string) (*Response, error) {
	path := "/releases/release/" + url.PathEscape(releaseID) + "/reviews"
	header := http.Header{"Content-Type": []string{"application/json"}}
	return c.do(ctx, path, bytes.NewReader(body), int64(len(body)), header, user, http.StatusOK)
}

func (c *Client) do(ctx context.Context, path string, body io.Reader, size int64, header http.Header, user string, expected int) (*Response, error) {
	target := strings.TrimRight(c.endpoint, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	for key, values := range header {
		req.Header[key] = values
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("OS-User", user)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("job-server request %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read job-server response: %w", err)
	}
	c.logResponse(req, resp, payload)

	sanitized := SanitizeHeaders(resp.Header, c.via)
	if resp.StatusCode != expected {
		c.logger.WithFields(logrus.Fields{
			"action":  "jobserver_error",
			"url":     target,
			"status":  resp.StatusCode,
			"headers": formatHeaders(resp.Header),
			"body":    truncate(string(payload), maxLoggedBody),
		}).Error("job-server returned unexpected status")
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: payload, Header: sanitized}
	}
	return &Response{StatusCode: resp.StatusCode, Header: sanitized, Body: payload}, nil
}

func (c *Client) logResponse(req *http.Request, resp *http.Response, payload []byte) {
	fields := logrus.Fields{
		"action": "jobserver_request",
		"method": req.Method,
		"url":    req.URL.String(),
		"status": resp.StatusCode,
		"size":   len(payload),
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		fields["type"] = ct
	}
	c.logger.WithFields(fields).Info("job-server response")
}

func formatHeaders(h http.Header) string {
	parts := make([]string, 0, len(h))
	for key, values := range h {
		parts = append(parts, key+"="+strings.Join(values, ","))
	}
	return strings.Join(parts, " ")
}
