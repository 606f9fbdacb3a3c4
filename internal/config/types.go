package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数：监听端口、日志输出以及磁盘布局。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	WorkspacesPath  string   `mapstructure:"WorkspacesPath"`
	CachePath       string   `mapstructure:"CachePath"`
	StagingPath     string   `mapstructure:"StagingPath"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// ServiceConfig 描述本服务对外的身份以及与 job-server 协作所需的凭证。
type ServiceConfig struct {
	// ReleaseHost 是本服务的绝对 URL，其 hostname 会进入 token 的 host 白名单。
	ReleaseHost string `mapstructure:"ReleaseHost"`
	// AllowedHosts 额外允许出现在 token URL 中的 hostname。
	AllowedHosts []string `mapstructure:"AllowedHosts"`
	// SigningKey 是签发/校验 capability token 的服务端密钥。
	SigningKey string `mapstructure:"SigningKey"`
	// SigningContext 为签名划分用途，同一个密钥在不同用途间的签名不可互换。
	SigningContext string `mapstructure:"SigningContext"`
	Backend        string `mapstructure:"Backend"`
	APIServer      string `mapstructure:"APIServer"`
	APIToken       string `mapstructure:"APIToken"`
	SPAOrigin      string `mapstructure:"SPAOrigin"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig  `mapstructure:",squash"`
	Service ServiceConfig `mapstructure:",squash"`
}

// ReleaseHostname 返回 ReleaseHost 的 hostname（小写、无端口）。
func (c *Config) ReleaseHostname() string {
	if c == nil {
		return ""
	}
	u, err := url.Parse(c.Service.ReleaseHost)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// HostAllowList 汇总 token 可以绑定的 hostname：ReleaseHost、localhost 以及 AllowedHosts。
func (c *Config) HostAllowList() []string {
	if c == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var hosts []string
	add := func(h string) {
		h = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(h), "."))
		if h == "" {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		hosts = append(hosts, h)
	}
	add(c.ReleaseHostname())
	add("localhost")
	for _, h := range c.Service.AllowedHosts {
		add(h)
	}
	return hosts
}

// APIEndpoint 返回 job-server API 的根路径。
func (c *Config) APIEndpoint() string {
	if c == nil {
		return ""
	}
	return strings.TrimRight(c.Service.APIServer, "/") + "/api/v2"
}
