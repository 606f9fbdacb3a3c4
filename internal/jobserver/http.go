package jobserver

import (
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/opensafely-core/release-hatch/internal/config"
)

// Shared HTTP transport tunings，复用到 job-server 的长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          20,
	MaxIdleConnsPerHost:   20,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回访问登记服务使用的 http.Client。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}

// hopByHopHeaders 定义 RFC 7230 中禁止代理转发的头部。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Proxy-Connection":    {}, // 非标准字段，但部分代理仍使用
}

// 除逐跳字段外，回传响应时还需去掉的头：Server 属于上游自身，长度由本服务重新计算。
var droppedHeaders = map[string]struct{}{
	"Server":         {},
	"Content-Length": {},
}

// IsHopByHopHeader reports whether the header should be stripped by proxies.
func IsHopByHopHeader(key string) bool {
	_, ok := hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}

// SanitizeHeaders 复制 src 中可以转发的头，并以 via 作为 Via 标记。
func SanitizeHeaders(src http.Header, via string) http.Header {
	dst := make(http.Header, len(src)+1)
	for key, values := range src {
		canonical := textproto.CanonicalMIMEHeaderKey(key)
		if IsHopByHopHeader(canonical) {
			continue
		}
		if _, drop := droppedHeaders[canonical]; drop {
			continue
		}
		for _, value := range values {
			dst.Add(canonical, value)
		}
	}
	if via != "" {
		dst.Set("Via", via)
	}
	return dst
}
