package config

import (
	"errors"
	"net/url"
	"strings"
)

// minSigningMaterial 对应 sha256 的摘要长度，密钥与上下文拼接后的长度必须严格大于它。
const minSigningMaterial = 32

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.WorkspacesPath) == "" {
		return newFieldError("WorkspacesPath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("UpstreamTimeout", "必须大于 0")
	}

	s := c.Service
	if err := validateAbsoluteURL(s.ReleaseHost); err != nil {
		return newFieldError("ReleaseHost", err.Error())
	}
	if err := validateAbsoluteURL(s.APIServer); err != nil {
		return newFieldError("APIServer", err.Error())
	}
	if s.SigningKey == "" {
		return newFieldError("SigningKey", "不能为空")
	}
	if len(s.SigningKey)+len(s.SigningContext) <= minSigningMaterial {
		return newFieldError("SigningKey", "SigningKey+SigningContext 长度必须大于 32 字节")
	}
	for _, host := range s.AllowedHosts {
		if strings.ContainsAny(host, "/: ") {
			return newFieldError("AllowedHosts", "只能包含 hostname: "+host)
		}
	}

	return nil
}

func validateAbsoluteURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.New("无效的 URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("仅支持 http/https")
	}
	if parsed.Host == "" {
		return errors.New("缺少主机名")
	}
	return nil
}
