package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/offline-hub/offline-hub/internal/config"
	"github.com/offline-hub/offline-hub/internal/logging"
	"github.com/offline-hub/offline-hub/internal/server"
	"github.com/offline-hub/offline-hub/internal/server/routes"
	"github.com/offline-hub/offline-hub/internal/storage"
	"github.com/offline-hub/offline-hub/internal/version"
	"github.com/offline-hub/offline-hub/internal/worker"
)

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
		fields["bucket"] = cfg.Global.CacheName()
		fields["manifest"] = len(cfg.Manifest)
		fields["bypass"] = len(cfg.Bypass)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	store, err := buildStorage(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存存储失败: %v\n", err)
		return 1
	}

	httpClient := server.NewUpstreamClient(cfg)
	fetcher, err := server.NewOriginFetcher(httpClient, cfg.Global.Origin)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化回源客户端失败: %v\n", err)
		return 1
	}

	w, err := worker.New(worker.Options{
		AppName:          cfg.Global.AppName,
		Version:          cfg.Global.Version,
		Origin:           cfg.Global.Origin,
		Manifest:         cfg.Manifest,
		Bypass:           cfg.Bypass,
		FallbackDocument: cfg.Global.FallbackDocument,
		Storage:          store,
		Fetcher:          fetcher,
		Logger:           logger,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Worker 失败: %v\n", err)
		return 1
	}

	// 启动遵循“配置 → 存储 → install → activate → Fiber server”顺序，
	// 监听开始前 Worker 必须已经接管缓存桶。
	ctx := context.Background()
	report, err := w.Install(ctx)
	if err != nil {
		fmt.Fprintf(stdErr, "Worker 安装失败: %v\n", err)
		return 1
	}
	if err := w.Activate(ctx); err != nil {
		fmt.Fprintf(stdErr, "Worker 激活失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["bucket"] = w.CacheName()
	fields["precached"] = report.Succeeded()
	fields["precache_failed"] = len(report.Failures())
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("Worker 已激活")

	if err := startHTTPServer(cfg, w, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

func buildStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.Global.IsMemoryDriver() {
		return storage.NewMemoryStorage(), nil
	}
	return storage.NewDiskStorage(cfg.Global.StoragePath)
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("offline-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 OFFLINE_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("OFFLINE_HUB_CONFIG")
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

func startHTTPServer(cfg *config.Config, w *worker.Worker, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Gateway:    w,
		Origin:     cfg.Global.Origin,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterWorkerRoutes(app, w)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
