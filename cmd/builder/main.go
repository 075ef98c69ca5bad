package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"portfolio-metrics/internal/app"
	"portfolio-metrics/internal/config"
	"portfolio-metrics/internal/log"
	"portfolio-metrics/internal/store"
)

func main() {
	var (
		configPath string
		once       bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.BoolVar(&once, "once", false, "只构建一次后退出")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if once {
		cfg.Scheduler.RunOnce = true
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	runErr := app.New(cfg, logger, sqliteStore).Run(ctx)
	stop()
	if closeErr := sqliteStore.Close(); closeErr != nil {
		logger.Warn("关闭数据库失败", zap.Error(closeErr))
	}
	if runErr != nil {
		logger.Error("构建失败", zap.Error(runErr))
		_ = logger.Sync()
		os.Exit(1)
	}

	logger.Info("系统已安全退出")
}
