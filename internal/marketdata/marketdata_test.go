package marketdata

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-metrics/internal/config"
	"portfolio-metrics/internal/performance"
)

const chartBody = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "AAPL", "currency": "USD", "timezone": "EST"},
      "timestamp": [1704153600, 1704240000, 1704326400, 1704412800],
      "indicators": {"quote": [{"close": [185.64, null, 181.91, 181.18]}]}
    }],
    "error": null
  }
}`

func testYahooConfig(urls ...string) config.YahooConfig {
	return config.YahooConfig{
		BaseURLs:  urls,
		Timeout:   time.Second,
		UserAgent: "test-agent",
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			MinDelay:    time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
	}
}

func TestYahooProvider_FetchCloses(t *testing.T) {
	var gotPath, gotRange, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	p, err := NewYahooProvider(testYahooConfig(srv.URL), srv.Client(), nil)
	require.NoError(t, err)

	raw, err := p.FetchCloses(context.Background(), "aapl", Request{Period: "6mo"})
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/AAPL", gotPath)
	assert.Equal(t, "6mo", gotRange)
	assert.Equal(t, "test-agent", gotAgent)
	require.Equal(t, 4, raw.Len())
	assert.True(t, math.IsNaN(raw.Values[1]))
	assert.Equal(t, time.Unix(1704153600, 0).UTC(), raw.Times[0])

	prices, err := performance.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, []float64{185.64, 181.91, 181.18}, prices.Values())
}

func TestYahooProvider_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "Edge: Too Many Requests", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	p, err := NewYahooProvider(testYahooConfig(srv.URL), srv.Client(), nil)
	require.NoError(t, err)

	raw, err := p.FetchCloses(context.Background(), "AAPL", DefaultRequest())
	require.NoError(t, err)
	assert.Equal(t, 4, raw.Len())
	assert.Equal(t, int32(2), calls.Load())
}

func TestYahooProvider_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	p, err := NewYahooProvider(testYahooConfig(srv.URL), srv.Client(), nil)
	require.NoError(t, err)

	_, err = p.FetchCloses(context.Background(), "NOPE", DefaultRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestYahooProvider_FallsBackToSecondHost(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chartBody))
	}))
	defer up.Close()

	p, err := NewYahooProvider(testYahooConfig(down.URL, up.URL), nil, nil)
	require.NoError(t, err)

	raw, err := p.FetchCloses(context.Background(), "AAPL", DefaultRequest())
	require.NoError(t, err)
	assert.Equal(t, 4, raw.Len())
}

func TestYahooProvider_ChartError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[],"error":{"code":"Bad Request","description":"invalid range"}}}`))
	}))
	defer srv.Close()

	p, err := NewYahooProvider(testYahooConfig(srv.URL), srv.Client(), nil)
	require.NoError(t, err)

	_, err = p.FetchCloses(context.Background(), "AAPL", DefaultRequest())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSqueeze(t *testing.T) {
	times := []time.Time{time.Unix(0, 0), time.Unix(86400, 0)}

	raw, err := Squeeze(times, [][]float64{{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, 2, raw.Len())

	_, err = Squeeze(times, [][]float64{{1, 2}, {3, 4}})
	assert.ErrorIs(t, err, performance.ErrShapeMismatch)

	_, err = Squeeze(times, [][]float64{{1}})
	assert.ErrorIs(t, err, performance.ErrShapeMismatch)

	_, err = Squeeze(nil, nil)
	assert.ErrorIs(t, err, ErrNoData)
}

type fakeProvider struct {
	name  string
	calls []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchCloses(_ context.Context, symbol string, _ Request) (performance.RawSeries, error) {
	f.calls = append(f.calls, symbol)
	return performance.Values(1, 2), nil
}

func TestRouter_Auto(t *testing.T) {
	equities := &fakeProvider{name: SourceYahoo}
	crypto := &fakeProvider{name: SourceExchange}

	r, err := NewRouter(config.SourceAuto, equities, crypto)
	require.NoError(t, err)

	_, err = r.FetchCloses(context.Background(), "AAPL", DefaultRequest())
	require.NoError(t, err)
	_, err = r.FetchCloses(context.Background(), "BTC/USDT:USDT", DefaultRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL"}, equities.calls)
	assert.Equal(t, []string{"BTC/USDT:USDT"}, crypto.calls)
}

func TestRouter_MissingProvider(t *testing.T) {
	r, err := NewRouter(config.SourceAuto, &fakeProvider{name: SourceYahoo}, nil)
	require.NoError(t, err)

	_, err = r.Resolve("ETH/USDT:USDT")
	assert.ErrorIs(t, err, ErrUnsupportedSymbol)

	_, err = NewRouter(config.SourceExchange, &fakeProvider{}, nil)
	assert.Error(t, err)

	_, err = NewRouter("bloomberg", &fakeProvider{}, nil)
	assert.Error(t, err)
}

func TestClassifyExchangeError(t *testing.T) {
	_, retry := classifyExchangeError(&ccxt.Error{Type: ccxt.RateLimitExceededErrType, Message: "slow down"})
	assert.True(t, retry)

	err, retry := classifyExchangeError(&ccxt.Error{Type: ccxt.OnMaintenanceErrType})
	assert.False(t, retry)
	assert.ErrorIs(t, err, ErrMaintenance)

	_, retry = classifyExchangeError(errors.New("boom"))
	assert.False(t, retry)

	_, retry = classifyExchangeError(context.Canceled)
	assert.False(t, retry)
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2025, 3, 14, 21, 0, 0, 0, time.UTC)

	cases := map[string]time.Time{
		"1y":  time.Date(2024, 3, 14, 21, 0, 0, 0, time.UTC),
		"6mo": time.Date(2024, 9, 14, 21, 0, 0, 0, time.UTC),
		"5d":  time.Date(2025, 3, 9, 21, 0, 0, 0, time.UTC),
		"2wk": time.Date(2025, 2, 28, 21, 0, 0, 0, time.UTC),
		"YTD": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"max": {},
	}
	for period, want := range cases {
		got, err := PeriodStart(period, now)
		require.NoError(t, err, period)
		assert.Equal(t, want, got, period)
	}

	for _, bad := range []string{"", "y", "0y", "-1mo", "forever"} {
		_, err := PeriodStart(bad, now)
		assert.Error(t, err, bad)
	}
}
