package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 是覆盖配置项时使用的环境变量前缀，例如 HATCH_SIGNINGKEY。
const EnvPrefix = "HATCH"

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyServiceDefaults(&cfg.Service)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := resolvePaths(&cfg.Global); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8001)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("WorkspacesPath", "./workspaces")
	v.SetDefault("CachePath", "")
	v.SetDefault("StagingPath", "")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("ReleaseHost", "")
	v.SetDefault("AllowedHosts", []string{})
	v.SetDefault("SigningKey", "")
	v.SetDefault("SigningContext", "hatch")
	v.SetDefault("Backend", "test-backend")
	v.SetDefault("APIServer", "https://jobs.opensafely.org")
	v.SetDefault("APIToken", "")
	v.SetDefault("SPAOrigin", "")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8001
	}
	if strings.TrimSpace(g.LogLevel) == "" {
		g.LogLevel = "info"
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
}

func applyServiceDefaults(s *ServiceConfig) {
	if strings.TrimSpace(s.SigningContext) == "" {
		s.SigningContext = "hatch"
	}
	if strings.TrimSpace(s.APIToken) == "" {
		s.APIToken = s.SigningKey
	}
	if strings.TrimSpace(s.SPAOrigin) == "" {
		s.SPAOrigin = s.APIServer
	}
}

// resolvePaths 将工作区/缓存/暂存目录统一转换为绝对路径，缓存默认位于工作区下的 cache。
func resolvePaths(g *GlobalConfig) error {
	workspaces, err := filepath.Abs(g.WorkspacesPath)
	if err != nil {
		return fmt.Errorf("无法解析工作区目录: %w", err)
	}
	g.WorkspacesPath = workspaces

	if strings.TrimSpace(g.CachePath) == "" {
		g.CachePath = filepath.Join(workspaces, "cache")
	}
	cachePath, err := filepath.Abs(g.CachePath)
	if err != nil {
		return fmt.Errorf("无法解析缓存目录: %w", err)
	}
	g.CachePath = cachePath

	if strings.TrimSpace(g.StagingPath) == "" {
		g.StagingPath = cachePath
	}
	staging, err := filepath.Abs(g.StagingPath)
	if err != nil {
		return fmt.Errorf("无法解析暂存目录: %w", err)
	}
	g.StagingPath = staging
	return nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
