package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"portfolio-metrics/internal/config"
	"portfolio-metrics/internal/performance"
)

// SourceYahoo 为 Yahoo 行情源名称。
const SourceYahoo = "yahoo"

// yahooChartResp 对应 Yahoo v8 chart 接口，仅保留需要的字段。
type yahooChartResp struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol   string `json:"symbol"`
				Currency string `json:"currency"`
				Timezone string `json:"timezone"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// httpStatusError 保留状态码以便判断是否重试。
type httpStatusError struct {
	host   string
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("yahoo %s 返回 %d: %s", e.host, e.status, e.body)
}

// YahooProvider 从 Yahoo chart 接口拉取日线收盘价，多个主机依次回退。
type YahooProvider struct {
	cfg     config.YahooConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewYahooProvider 创建 Yahoo 行情源。client 为 nil 时按配置超时创建。
func NewYahooProvider(cfg config.YahooConfig, client *http.Client, logger *zap.Logger) (*YahooProvider, error) {
	if len(cfg.BaseURLs) == 0 {
		return nil, errors.New("marketdata: yahoo base_urls 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := int(math.Ceil(cfg.RateLimit))
	if burst < 1 {
		burst = 1
	}

	return &YahooProvider{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

// Name 返回行情源名称。
func (p *YahooProvider) Name() string {
	return SourceYahoo
}

// FetchCloses 拉取标的收盘价。缺失的收盘价保留为 NaN，由规范化阶段丢弃。
func (p *YahooProvider) FetchCloses(ctx context.Context, symbol string, req Request) (performance.RawSeries, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return performance.RawSeries{}, fmt.Errorf("%w: 标的为空", ErrUnsupportedSymbol)
	}
	req = req.withDefaults()

	resp, err := callWithRetry(ctx, p.cfg.Retry, p.logger, "yahoo_chart_"+symbol, classifyHTTPError, func() (yahooChartResp, error) {
		return p.fetchAnyHost(ctx, symbol, req)
	})
	if err != nil {
		return performance.RawSeries{}, fmt.Errorf("marketdata: 拉取 %s 行情失败: %w", symbol, err)
	}

	series, err := convertChart(resp)
	if err != nil {
		return performance.RawSeries{}, fmt.Errorf("marketdata: 解析 %s 行情失败: %w", symbol, err)
	}

	p.logger.Debug("行情拉取完成",
		zap.String("symbol", symbol),
		zap.String("period", req.Period),
		zap.Int("points", series.Len()),
	)
	return series, nil
}

// fetchAnyHost 依次尝试每个主机，返回第一个成功结果或最后一个错误。
func (p *YahooProvider) fetchAnyHost(ctx context.Context, symbol string, req Request) (yahooChartResp, error) {
	var lastErr error
	for _, base := range p.cfg.BaseURLs {
		resp, err := p.fetch(ctx, base, symbol, req)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return yahooChartResp{}, ctxErr
		}
		lastErr = err
	}
	return yahooChartResp{}, lastErr
}

func (p *YahooProvider) fetch(ctx context.Context, base, symbol string, req Request) (yahooChartResp, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return yahooChartResp{}, err
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s", strings.TrimRight(base, "/"), url.PathEscape(symbol))
	query := url.Values{}
	query.Set("range", req.Period)
	query.Set("interval", req.Interval)
	query.Set("includePrePost", "false")
	query.Set("events", "div,splits")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return yahooChartResp{}, err
	}
	if p.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return yahooChartResp{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return yahooChartResp{}, fmt.Errorf("读取 yahoo 响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return yahooChartResp{}, &httpStatusError{host: httpReq.URL.Host, status: resp.StatusCode, body: preview(body)}
	}

	var out yahooChartResp
	if err := json.Unmarshal(body, &out); err != nil {
		return yahooChartResp{}, fmt.Errorf("解析 yahoo json 失败: %w; body: %s", err, preview(body))
	}
	return out, nil
}

func convertChart(resp yahooChartResp) (performance.RawSeries, error) {
	if e := resp.Chart.Error; e != nil {
		return performance.RawSeries{}, fmt.Errorf("%w: %s %s", ErrNoData, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return performance.RawSeries{}, ErrNoData
	}

	result := resp.Chart.Result[0]
	times := make([]time.Time, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		times[i] = time.Unix(ts, 0).UTC()
	}

	columns := make([][]float64, 0, len(result.Indicators.Quote))
	for _, quote := range result.Indicators.Quote {
		closes := make([]float64, len(quote.Close))
		for i, c := range quote.Close {
			if c == nil {
				closes[i] = math.NaN()
				continue
			}
			closes[i] = *c
		}
		columns = append(columns, closes)
	}

	return Squeeze(times, columns)
}

// classifyHTTPError 限流、服务端错误与网络错误可重试，其余为永久错误。
func classifyHTTPError(err error) (error, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return err, statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		// 限流时 Yahoo 偶尔返回 HTML 页面。
		return err, true
	}

	return err, false
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
