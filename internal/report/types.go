package report

import (
	"strconv"
	"time"

	"portfolio-metrics/internal/indicator"
	"portfolio-metrics/internal/performance"
)

const (
	dateLayout  = "2006-01-02"
	stampLayout = "2006-01-02T15:04:05Z"
)

// Metrics 为前端展示的绩效指标。
type Metrics struct {
	CumulativeReturn     float64                   `json:"cumulativeReturn"`
	MaxDrawdown          float64                   `json:"maxDrawdown"`
	AnnualizedVolatility float64                   `json:"annualizedVolatility"`
	BetaVsBenchmark      performance.OptionalFloat `json:"betaVsBenchmark"`
	LastClose            float64                   `json:"lastClose"`
}

// Indicators 为技术指标快照，数据不足时为 null。
type Indicators struct {
	SMA20 *float64 `json:"sma20"`
	SMA50 *float64 `json:"sma50"`
	RSI14 *float64 `json:"rsi14"`
}

// PricePoint 为价格走势中的单个点。
type PricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// TickerPayload 对应 tickers/<T>.json。
type TickerPayload struct {
	Ticker      string       `json:"ticker"`
	Benchmark   string       `json:"benchmark,omitempty"`
	AsOf        string       `json:"asOf"`
	Metrics     Metrics      `json:"metrics"`
	Indicators  Indicators   `json:"indicators"`
	PriceSeries []PricePoint `json:"priceSeries"`
}

// WatchlistRow 为首页表格的一行。
type WatchlistRow struct {
	Ticker               string                    `json:"ticker"`
	LastClose            float64                   `json:"lastClose"`
	CumulativeReturn     float64                   `json:"cumulativeReturn"`
	MaxDrawdown          float64                   `json:"maxDrawdown"`
	AnnualizedVolatility float64                   `json:"annualizedVolatility"`
	BetaVsBenchmark      performance.OptionalFloat `json:"betaVsBenchmark"`
	AsOf                 string                    `json:"asOf"`
}

// WatchlistPayload 对应 watchlist.json。
type WatchlistPayload struct {
	Watchlist   []WatchlistRow    `json:"watchlist"`
	GeneratedAt string            `json:"generatedAt"`
	Tickers     []string          `json:"tickers"`
	Benchmark   string            `json:"benchmark,omitempty"`
	Failures    map[string]string `json:"failures,omitempty"`
}

// NewTickerPayload 组装单个标的的输出。
func NewTickerPayload(ticker, benchmark string, prices performance.PriceSeries, summary performance.Summary, ind indicator.Result, now time.Time) TickerPayload {
	return TickerPayload{
		Ticker:    ticker,
		Benchmark: benchmark,
		AsOf:      now.UTC().Format(stampLayout),
		Metrics: Metrics{
			CumulativeReturn:     summary.CumulativeReturn,
			MaxDrawdown:          summary.MaxDrawdown,
			AnnualizedVolatility: summary.AnnualizedVolatility,
			BetaVsBenchmark:      summary.Beta,
			LastClose:            prices.Last(),
		},
		Indicators: Indicators{
			SMA20: indicator.Finite(ind.SMA20),
			SMA50: indicator.Finite(ind.SMA50),
			RSI14: indicator.Finite(ind.RSI14),
		},
		PriceSeries: pricePoints(prices),
	}
}

// NewWatchlistPayload 由各标的输出汇总首页数据，行顺序与 payloads 一致。
func NewWatchlistPayload(tickers []string, benchmark string, payloads []TickerPayload, failures map[string]string, now time.Time) WatchlistPayload {
	rows := make([]WatchlistRow, 0, len(payloads))
	for _, p := range payloads {
		rows = append(rows, WatchlistRow{
			Ticker:               p.Ticker,
			LastClose:            p.Metrics.LastClose,
			CumulativeReturn:     p.Metrics.CumulativeReturn,
			MaxDrawdown:          p.Metrics.MaxDrawdown,
			AnnualizedVolatility: p.Metrics.AnnualizedVolatility,
			BetaVsBenchmark:      p.Metrics.BetaVsBenchmark,
			AsOf:                 p.AsOf,
		})
	}

	var failed map[string]string
	if len(failures) > 0 {
		failed = make(map[string]string, len(failures))
		for k, v := range failures {
			failed[k] = v
		}
	}

	return WatchlistPayload{
		Watchlist:   rows,
		GeneratedAt: now.UTC().Format(stampLayout),
		Tickers:     append([]string(nil), tickers...),
		Benchmark:   benchmark,
		Failures:    failed,
	}
}

// pricePoints 时间轴输出日期，位置轴输出序号。
func pricePoints(prices performance.PriceSeries) []PricePoint {
	values := prices.Values()
	points := make([]PricePoint, len(values))

	if prices.Axis() == performance.AxisTime {
		times := prices.Times()
		for i, v := range values {
			points[i] = PricePoint{Date: times[i].Format(dateLayout), Close: v}
		}
		return points
	}

	keys := prices.Keys()
	for i, v := range values {
		points[i] = PricePoint{Date: strconv.FormatInt(keys[i], 10), Close: v}
	}
	return points
}
