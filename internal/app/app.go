package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"portfolio-metrics/internal/config"
	"portfolio-metrics/internal/marketdata"
	"portfolio-metrics/internal/monitor"
	"portfolio-metrics/internal/performance"
	"portfolio-metrics/internal/report"
	"portfolio-metrics/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 立即执行一次构建，之后按 scheduler.interval 周期执行，直至 ctx 结束；
// 配置 run_once 时只执行一次并返回该次构建的错误。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("绩效数据构建服务已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Strings("tickers", a.cfg.Watchlist.Tickers),
		zap.String("benchmark", a.cfg.Watchlist.Benchmark),
		zap.String("source", a.cfg.Watchlist.Source),
	)

	builder, monitorSvc, err := a.newBuilder()
	if err != nil {
		return err
	}

	if a.cfg.Scheduler.RunOnce {
		_, err := builder.Build(ctx)
		return err
	}

	if a.cfg.Monitor.Enabled && monitorSvc != nil {
		if err := startMonitorServer(ctx, monitorSvc, a.cfg.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	if a.cfg.Scheduler.Cron != "" {
		return a.runCron(ctx, builder)
	}

	interval := a.cfg.Scheduler.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	if _, err = builder.Build(ctx); err != nil {
		a.logger.Error("首次构建存在失败", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
			if _, err = builder.Build(ctx); err != nil {
				a.logger.Error("周期构建存在失败", zap.Error(err))
			}
		}
	}
}

// runCron 先执行一次构建，之后按 cron 表达式触发；上一次未结束时跳过本次。
func (a *App) runCron(ctx context.Context, builder *Builder) error {
	if _, err := builder.Build(ctx); err != nil {
		a.logger.Error("首次构建存在失败", zap.Error(err))
	}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(a.cfg.Scheduler.Cron, func() {
		if _, err := builder.Build(ctx); err != nil {
			a.logger.Error("定时构建存在失败", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("注册定时任务失败: %w", err)
	}

	c.Start()
	a.logger.Info("定时构建已启动", zap.String("cron", a.cfg.Scheduler.Cron))

	<-ctx.Done()
	<-c.Stop().Done()
	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}

func (a *App) newBuilder() (*Builder, *monitor.Service, error) {
	provider, err := newProvider(a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}

	summarizer, err := performance.NewSummarizer(performance.Config{PeriodsPerYear: a.cfg.Metrics.PeriodsPerYear})
	if err != nil {
		return nil, nil, fmt.Errorf("初始化绩效计算失败: %w", err)
	}

	writer, err := report.NewWriter(a.cfg.Output, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化输出失败: %w", err)
	}

	var monitorSvc *monitor.Service
	if a.store != nil {
		monitorSvc, err = monitor.NewService(a.store, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("初始化监控服务失败: %w", err)
		}
	}

	builder, err := NewBuilder(a.cfg.Watchlist, BuilderDeps{
		Provider:   provider,
		Summarizer: summarizer,
		Writer:     writer,
		Store:      a.store,
		Monitor:    monitorSvc,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return builder, monitorSvc, nil
}

// newProvider 按 watchlist.source 组装行情源路由。
func newProvider(cfg *config.Config, logger *zap.Logger) (*marketdata.Router, error) {
	var (
		equities  marketdata.Provider
		exchanges marketdata.Provider
	)
	source := strings.ToLower(strings.TrimSpace(cfg.Watchlist.Source))

	if source != config.SourceExchange {
		yahoo, err := marketdata.NewYahooProvider(cfg.Yahoo, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("初始化 Yahoo 行情失败: %w", err)
		}
		equities = yahoo
	}

	if source != config.SourceYahoo {
		ex, err := marketdata.NewExchangeProvider(cfg.Exchange, logger)
		if err != nil {
			if source == config.SourceExchange {
				return nil, fmt.Errorf("初始化交易所行情失败: %w", err)
			}
			logger.Warn("交易所行情不可用，加密标的将无法计算", zap.Error(err))
		} else {
			exchanges = ex
		}
	}

	router, err := marketdata.NewRouter(source, equities, exchanges)
	if err != nil {
		return nil, fmt.Errorf("初始化行情路由失败: %w", err)
	}
	return router, nil
}
