package marketdata

import (
	"context"
	"fmt"
	"strings"

	"portfolio-metrics/internal/config"
	"portfolio-metrics/internal/performance"
)

// Router 按配置的行情源为每个标的选择 Provider。
type Router struct {
	source    string
	equities  Provider
	exchanges Provider
}

// NewRouter 创建路由。auto 模式下含 "/" 的标的（如 BTC/USDT:USDT）走交易所，其余走股票行情源。
func NewRouter(source string, equities, exchanges Provider) (*Router, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	switch source {
	case config.SourceYahoo:
		if equities == nil {
			return nil, fmt.Errorf("marketdata: source=%s 需要股票行情源", source)
		}
	case config.SourceExchange:
		if exchanges == nil {
			return nil, fmt.Errorf("marketdata: source=%s 需要交易所行情源", source)
		}
	case config.SourceAuto:
		if equities == nil && exchanges == nil {
			return nil, fmt.Errorf("marketdata: source=%s 至少需要一个行情源", source)
		}
	default:
		return nil, fmt.Errorf("marketdata: 未知行情源 %q", source)
	}
	return &Router{source: source, equities: equities, exchanges: exchanges}, nil
}

// Resolve 返回负责该标的的 Provider。
func (r *Router) Resolve(symbol string) (Provider, error) {
	var p Provider
	switch r.source {
	case config.SourceYahoo:
		p = r.equities
	case config.SourceExchange:
		p = r.exchanges
	default:
		if strings.Contains(symbol, "/") {
			p = r.exchanges
		} else {
			p = r.equities
		}
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, symbol)
	}
	return p, nil
}

// Name 返回路由模式。
func (r *Router) Name() string {
	return r.source
}

// FetchCloses 将请求转发给对应的 Provider。
func (r *Router) FetchCloses(ctx context.Context, symbol string, req Request) (performance.RawSeries, error) {
	p, err := r.Resolve(symbol)
	if err != nil {
		return performance.RawSeries{}, err
	}
	return p.FetchCloses(ctx, symbol, req)
}
