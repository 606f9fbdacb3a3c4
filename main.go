package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/opensafely-core/release-hatch/internal/cache"
	"github.com/opensafely-core/release-hatch/internal/config"
	"github.com/opensafely-core/release-hatch/internal/index"
	"github.com/opensafely-core/release-hatch/internal/jobserver"
	"github.com/opensafely-core/release-hatch/internal/logging"
	"github.com/opensafely-core/release-hatch/internal/release"
	"github.com/opensafely-core/release-hatch/internal/server"
	"github.com/opensafely-core/release-hatch/internal/server/routes"
	"github.com/opensafely-core/release-hatch/internal/token"
	"github.com/opensafely-core/release-hatch/internal/version"
)

// configEnvVar 覆盖默认配置文件路径。
const configEnvVar = "RELEASE_HATCH_CONFIG"

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["workspaces"] = cfg.Global.WorkspacesPath
		fields["hosts"] = cfg.HostAllowList()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	app, err := buildApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["release_host"] = cfg.Service.ReleaseHost
	fields["backend"] = cfg.Service.Backend
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(app, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildApp 按“目录检查 → 摘要缓存 → 索引/发布 → token 校验 → Fiber 路由”的顺序组装服务。
func buildApp(cfg *config.Config, logger *logrus.Logger) (*fiber.App, error) {
	if err := config.PrepareDirectories(cfg.Global); err != nil {
		return nil, err
	}

	store, err := cache.NewStore(cfg.Global.CachePath)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}
	hashes, err := cache.NewHashCache(store, cfg.Global.WorkspacesPath, logger)
	if err != nil {
		return nil, err
	}

	client, err := jobserver.NewClient(cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	stager, err := release.NewStager(hashes, client, cfg.Global.StagingPath, logger)
	if err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(token.Options{
		Key:     cfg.Service.SigningKey,
		Context: cfg.Service.SigningContext,
	})
	if err != nil {
		return nil, err
	}
	auth, err := server.NewAuthenticator(codec, token.NewHostSet(cfg.HostAllowList()...), logger)
	if err != nil {
		return nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		SPAOrigin:  cfg.Service.SPAOrigin,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	if err := routes.Register(app, routes.Dependencies{
		Config:   cfg,
		Logger:   logger,
		Auth:     auth,
		Indexer:  index.New(hashes),
		Stager:   stager,
		Uploader: client,
	}); err != nil {
		return nil, err
	}
	return app, nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("release-hatch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 "+configEnvVar+" 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv(configEnvVar)
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(app *fiber.App, port int, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
