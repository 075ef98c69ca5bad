package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"portfolio-metrics/internal/config"
	"portfolio-metrics/internal/performance"
)

// SourceExchange 为交易所行情源名称。
const SourceExchange = "exchange"

// ExchangeProvider 通过 ccxt 拉取加密资产K线收盘价。
type ExchangeProvider struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewExchangeProvider 构造 Binance USDⓈ-M 行情源。
func NewExchangeProvider(cfg config.ExchangeConfig, logger *zap.Logger) (*ExchangeProvider, error) {
	if !strings.EqualFold(cfg.Name, "binanceusdm") {
		return nil, fmt.Errorf("marketdata: 暂不支持交易所 %q", cfg.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &ExchangeProvider{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}, nil
}

// Name 返回行情源名称。
func (p *ExchangeProvider) Name() string {
	return SourceExchange
}

// FetchCloses 拉取最近 candle_limit 根K线的收盘价，req.Period 对交易所不生效。
func (p *ExchangeProvider) FetchCloses(ctx context.Context, symbol string, req Request) (performance.RawSeries, error) {
	req = req.withDefaults()
	limit := int64(p.cfg.CandleLimit)
	if limit <= 1 {
		limit = 365
	}

	if err := p.ensureMarketsLoaded(ctx); err != nil {
		return performance.RawSeries{}, fmt.Errorf("marketdata: 加载市场失败: %w", err)
	}

	raw, err := callWithRetry(ctx, p.cfg.Retry, p.logger, "fetch_ohlcv_"+req.Interval, classifyExchangeError, func() ([]ccxt.OHLCV, error) {
		return p.exchange.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(req.Interval),
			ccxt.WithFetchOHLCVLimit(limit),
		)
	})
	if err != nil {
		return performance.RawSeries{}, fmt.Errorf("marketdata: 拉取 %s K线失败: %w", symbol, err)
	}

	times := make([]time.Time, 0, len(raw))
	closes := make([]float64, 0, len(raw))
	for _, item := range raw {
		times = append(times, time.UnixMilli(item.Timestamp).UTC())
		closes = append(closes, item.Close)
	}

	series, err := Squeeze(times, [][]float64{closes})
	if err != nil {
		return performance.RawSeries{}, fmt.Errorf("marketdata: 解析 %s K线失败: %w", symbol, err)
	}
	return series, nil
}

func (p *ExchangeProvider) ensureMarketsLoaded(ctx context.Context) error {
	p.marketsMu.Lock()
	defer p.marketsMu.Unlock()

	if p.marketsLoaded {
		return nil
	}

	_, err := callWithRetry(ctx, p.cfg.Retry, p.logger, "load_markets", classifyExchangeError, func() (struct{}, error) {
		_, err := p.exchange.LoadMarkets()
		return struct{}{}, err
	})
	if err != nil {
		return err
	}

	p.marketsLoaded = true
	p.logger.Info("已完成市场元数据加载", zap.String("exchange", p.cfg.Name))
	return nil
}

// classifyExchangeError 区分可重试的 ccxt 错误，维护状态转为 ErrMaintenance 且不重试。
func classifyExchangeError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}
