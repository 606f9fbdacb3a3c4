package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/opensafely-core/release-hatch/internal/jobserver"
	"github.com/opensafely-core/release-hatch/internal/schema"
)

func (s *session) workspaceURL() string {
	return strings.TrimRight(s.cfg.Service.ReleaseHost, "/") + "/workspace/" + url.PathEscape(s.opts.workspace)
}

func (s *session) indexURL(releaseID string) string {
	if releaseID != "" {
		return s.workspaceURL() + "/release/" + url.PathEscape(releaseID)
	}
	return s.workspaceURL() + "/current"
}

func (s *session) httpClient() *http.Client {
	return jobserver.NewUpstreamClient(s.cfg)
}

// fetch 以 token 发起 GET 请求。
func (s *session) fetch(target, auth string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", auth)
	_, body, err := s.do(req)
	return body, err
}

func (s *session) post(target, auth string, payload []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

// do 读取完整响应，非 2xx 时返回包含响应体的错误。
func (s *session) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode/100 != 2 {
		return resp, body, fmt.Errorf("%s %s: %s: %s", req.Method, req.URL, resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, body, nil
}

func (s *session) fetchIndex(auth, releaseID string) (*schema.FileList, error) {
	body, err := s.fetch(s.indexURL(releaseID), auth)
	if err != nil {
		return nil, err
	}
	var list schema.FileList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return &list, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
