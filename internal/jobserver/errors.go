package jobserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// UpstreamError 表示登记服务返回了非预期状态码，状态码、响应体与清洗后的响应头原样回传给客户端。
type UpstreamError struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("job-server responded %d: %s", e.StatusCode, truncate(strings.TrimSpace(string(e.Body)), 200))
}

// Detail 返回上游错误详情：JSON 响应体按 JSON 解码，否则作为文本。
// job-server 本身返回 JSON，前置 nginx 返回 HTML。
func (e *UpstreamError) Detail() interface{} {
	var decoded interface{}
	if len(e.Body) > 0 && json.Unmarshal(e.Body, &decoded) == nil {
		return decoded
	}
	return string(e.Body)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
