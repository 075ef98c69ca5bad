package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"portfolio-metrics/internal/config"
	"portfolio-metrics/internal/indicator"
	"portfolio-metrics/internal/marketdata"
	"portfolio-metrics/internal/monitor"
	"portfolio-metrics/internal/performance"
	"portfolio-metrics/internal/report"
	"portfolio-metrics/internal/store"
)

const sourceCache = "cache"

// 构建阶段，用于监控事件。
const (
	stageFetch     = "fetch"
	stageSummarize = "summarize"
	stageIndicator = "indicator"
	stageWrite     = "write"
)

// Result 为一次构建的结果。
type Result struct {
	RunID    string
	Tickers  []report.TickerPayload
	Failures map[string]string
	Duration time.Duration
}

// Builder 拉取观察列表行情、计算绩效并写出结果文件。
type Builder struct {
	watchlist  config.WatchlistConfig
	provider   marketdata.Provider
	summarizer performance.Summarizer
	writer     *report.Writer
	store      *store.Store
	monitor    *monitor.Service
	logger     *zap.Logger
	now        func() time.Time
}

// BuilderDeps 为 Builder 的依赖，store 与 monitor 可为空。
type BuilderDeps struct {
	Provider   marketdata.Provider
	Summarizer performance.Summarizer
	Writer     *report.Writer
	Store      *store.Store
	Monitor    *monitor.Service
	Logger     *zap.Logger
}

// NewBuilder 创建构建器。
func NewBuilder(watchlist config.WatchlistConfig, deps BuilderDeps) (*Builder, error) {
	if deps.Provider == nil {
		return nil, errors.New("app: 行情源不能为空")
	}
	if deps.Writer == nil {
		return nil, errors.New("app: 输出器不能为空")
	}
	if len(watchlist.Tickers) == 0 {
		return nil, errors.New("app: 观察列表为空")
	}
	if watchlist.Concurrency <= 0 {
		watchlist.Concurrency = 1
	}
	if deps.Summarizer.PeriodsPerYear() <= 0 {
		summarizer, err := performance.NewSummarizer(performance.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("app: 初始化绩效计算失败: %w", err)
		}
		deps.Summarizer = summarizer
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Builder{
		watchlist:  watchlist,
		provider:   deps.Provider,
		summarizer: deps.Summarizer,
		writer:     deps.Writer,
		store:      deps.Store,
		monitor:    deps.Monitor,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Build 执行一次完整构建。单个标的失败不会中断其他标的，
// 失败原因写入 watchlist.json 的 failures，并以聚合错误返回。
func (b *Builder) Build(ctx context.Context) (Result, error) {
	started := b.now()
	runID := uuid.NewString()
	req := marketdata.Request{Period: b.watchlist.Period, Interval: b.watchlist.Interval}

	var (
		mu       sync.Mutex
		failures = make(map[string]string)
		errs     error
	)
	fail := func(symbol, stage string, err error) {
		mu.Lock()
		failures[symbol] = err.Error()
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", symbol, err))
		mu.Unlock()

		b.logger.Error("标的构建失败",
			zap.String("run_id", runID),
			zap.String("ticker", symbol),
			zap.String("stage", stage),
			zap.Error(err),
		)
		if b.monitor != nil {
			b.monitor.RecordError(ctx, runID, symbol, stage, err)
		}
	}

	payloads := make([]*report.TickerPayload, len(b.watchlist.Tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.watchlist.Concurrency)

	// 基准与各标的同时拉取，标的在计算 beta 前等待基准就绪。
	var benchmark *performance.PriceSeries
	benchmarkReady := make(chan struct{})
	g.Go(func() error {
		defer close(benchmarkReady)
		if b.watchlist.Benchmark == "" {
			return nil
		}
		series, _, err := b.loadSeries(gctx, b.watchlist.Benchmark, req, started)
		if err != nil {
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// 基准缺失时各标的 beta 为 null，其余指标照常计算。
			fail(b.watchlist.Benchmark, stageFetch, err)
			return nil
		}
		benchmark = &series
		return nil
	})
	waitBenchmark := func(ctx context.Context) (*performance.PriceSeries, error) {
		select {
		case <-benchmarkReady:
			return benchmark, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for i, ticker := range b.watchlist.Tickers {
		g.Go(func() error {
			payload, stage, err := b.buildTicker(gctx, runID, ticker, waitBenchmark, req, started)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				fail(ticker, stage, err)
				if rmErr := b.writer.RemoveTicker(ticker); rmErr != nil {
					b.logger.Warn("清理过期标的文件失败", zap.String("ticker", ticker), zap.Error(rmErr))
				}
				return nil
			}
			payloads[i] = &payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("app: 构建被中断: %w", err)
	}

	result := Result{RunID: runID, Failures: failures}
	for _, p := range payloads {
		if p != nil {
			result.Tickers = append(result.Tickers, *p)
		}
	}

	watchlist := report.NewWatchlistPayload(b.watchlist.Tickers, b.watchlist.Benchmark, result.Tickers, failures, started)
	if err := b.writer.WriteWatchlist(watchlist); err != nil {
		errs = multierr.Append(errs, err)
	}

	result.Duration = b.now().Sub(started)
	if b.monitor != nil {
		b.monitor.RecordComplete(ctx, monitor.BuildCompletePayload{
			RunID:     runID,
			Tickers:   b.watchlist.Tickers,
			Succeeded: len(result.Tickers),
			Failed:    len(b.watchlist.Tickers) - len(result.Tickers),
			Duration:  result.Duration,
		})
	}

	b.logger.Info("构建完成",
		zap.String("run_id", runID),
		zap.Int("succeeded", len(result.Tickers)),
		zap.Int("failed", len(failures)),
		zap.Duration("duration", result.Duration),
	)
	return result, errs
}

func (b *Builder) buildTicker(ctx context.Context, runID, ticker string, waitBenchmark func(context.Context) (*performance.PriceSeries, error), req marketdata.Request, now time.Time) (report.TickerPayload, string, error) {
	prices, source, err := b.loadSeries(ctx, ticker, req, now)
	if err != nil {
		return report.TickerPayload{}, stageFetch, err
	}

	benchmark, err := waitBenchmark(ctx)
	if err != nil {
		return report.TickerPayload{}, stageFetch, err
	}

	summary, err := b.summarizer.SummarizeSeries(prices, benchmark)
	if err != nil && benchmark != nil && (errors.Is(err, performance.ErrInsufficientOverlap) || errors.Is(err, performance.ErrUndefinedBeta)) {
		b.logger.Warn("beta 无法计算，按无基准输出",
			zap.String("ticker", ticker),
			zap.String("benchmark", b.watchlist.Benchmark),
			zap.Error(err),
		)
		summary, err = b.summarizer.SummarizeSeries(prices, nil)
	}
	if err != nil {
		return report.TickerPayload{}, stageSummarize, err
	}

	ind, err := indicator.Compute(prices.Values())
	if err != nil {
		return report.TickerPayload{}, stageIndicator, err
	}

	payload := report.NewTickerPayload(ticker, b.watchlist.Benchmark, prices, summary, ind, now)
	if err := b.writer.WriteTicker(payload); err != nil {
		return report.TickerPayload{}, stageWrite, err
	}

	if b.writer.ChartsEnabled() {
		png, chartErr := report.RenderChart(ticker, payload, ind.Overlays)
		if chartErr == nil {
			chartErr = b.writer.WriteChart(ticker, png)
		}
		if chartErr != nil {
			// 图表仅用于展示，失败不影响指标输出。
			b.logger.Warn("绘制图表失败", zap.String("ticker", ticker), zap.Error(chartErr))
		}
	}

	if b.monitor != nil {
		b.monitor.RecordSummary(ctx, monitor.TickerSummaryPayload{
			RunID:     runID,
			Ticker:    ticker,
			Benchmark: b.watchlist.Benchmark,
			Source:    source,
			Points:    prices.Len(),
			LastClose: prices.Last(),
			Summary:   summary,
		})
	}

	b.logger.Info("标的绩效已更新",
		zap.String("ticker", ticker),
		zap.String("source", source),
		zap.Int("points", prices.Len()),
		zap.Float64("cumulative_return", summary.CumulativeReturn),
		zap.Float64("max_drawdown", summary.MaxDrawdown),
		zap.Float64("volatility", summary.AnnualizedVolatility),
		zap.Stringer("beta", summary.Beta),
	)
	return payload, "", nil
}

// loadSeries 拉取并规范化收盘价，成功时写入缓存；拉取失败时回退到缓存中
// 与 req.Period 相同窗口的价格。
func (b *Builder) loadSeries(ctx context.Context, symbol string, req marketdata.Request, now time.Time) (performance.PriceSeries, string, error) {
	source := b.sourceName(symbol)

	raw, fetchErr := b.provider.FetchCloses(ctx, symbol, req)
	if fetchErr == nil {
		prices, err := performance.Normalize(raw)
		if err != nil {
			return performance.PriceSeries{}, source, err
		}
		b.cache(ctx, symbol, source, prices)
		return prices, source, nil
	}

	if b.store == nil || ctx.Err() != nil {
		return performance.PriceSeries{}, source, fetchErr
	}

	period := req.Period
	if period == "" {
		period = marketdata.DefaultRequest().Period
	}
	since, err := marketdata.PeriodStart(period, now)
	if err != nil {
		return performance.PriceSeries{}, source, multierr.Append(fetchErr, err)
	}
	points, err := b.store.LoadPrices(ctx, symbol, since)
	if err != nil || len(points) < performance.MinPoints {
		return performance.PriceSeries{}, source, fetchErr
	}

	times := make([]time.Time, len(points))
	closes := make([]float64, len(points))
	for i, p := range points {
		times[i] = p.Time
		closes[i] = p.Close
	}
	prices, err := performance.Normalize(performance.Timed(times, closes))
	if err != nil {
		return performance.PriceSeries{}, sourceCache, multierr.Append(fetchErr, err)
	}

	b.logger.Warn("行情拉取失败，使用缓存价格",
		zap.String("ticker", symbol),
		zap.Time("since", since),
		zap.Int("points", prices.Len()),
		zap.Error(fetchErr),
	)
	return prices, sourceCache, nil
}

func (b *Builder) cache(ctx context.Context, symbol, source string, prices performance.PriceSeries) {
	if b.store == nil || prices.Axis() != performance.AxisTime {
		return
	}

	times := prices.Times()
	values := prices.Values()
	points := make([]store.PricePoint, len(values))
	for i := range values {
		points[i] = store.PricePoint{Time: times[i], Close: values[i]}
	}
	if err := b.store.SavePrices(ctx, symbol, source, points); err != nil {
		b.logger.Warn("缓存价格失败", zap.String("ticker", symbol), zap.Error(err))
	}
}

func (b *Builder) sourceName(symbol string) string {
	if r, ok := b.provider.(interface {
		Resolve(string) (marketdata.Provider, error)
	}); ok {
		if p, err := r.Resolve(symbol); err == nil {
			return p.Name()
		}
	}
	return b.provider.Name()
}
