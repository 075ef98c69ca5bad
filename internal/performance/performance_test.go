package performance

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-12

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func mustNormalize(t *testing.T, raw RawSeries) PriceSeries {
	t.Helper()
	prices, err := Normalize(raw)
	require.NoError(t, err)
	return prices
}

func mustReturns(t *testing.T, raw RawSeries) ReturnsSeries {
	t.Helper()
	returns, err := ReturnsOf(raw)
	require.NoError(t, err)
	return returns
}

func TestNormalize_DropsMissingAndKeepsOrder(t *testing.T) {
	prices := mustNormalize(t, Values(100, math.NaN(), 110, 121))

	assert.Equal(t, AxisPosition, prices.Axis())
	assert.Equal(t, []float64{100, 110, 121}, prices.Values())
	assert.Equal(t, []int64{0, 2, 3}, prices.Keys())
	assert.Nil(t, prices.Times())
}

func TestNormalize_SortsByTime(t *testing.T) {
	raw := Timed(
		[]time.Time{day(2), day(0), time.Time{}, day(1)},
		[]float64{121, 100, 999, 110},
	)
	prices := mustNormalize(t, raw)

	assert.Equal(t, AxisTime, prices.Axis())
	assert.Equal(t, []float64{100, 110, 121}, prices.Values())
	assert.Equal(t, []time.Time{day(0), day(1), day(2)}, prices.Times())
}

func TestNormalize_Errors(t *testing.T) {
	cases := []struct {
		name string
		raw  RawSeries
		want error
	}{
		{"single point", Values(100), ErrInsufficientData},
		{"empty", Values(), ErrInsufficientData},
		{"all missing but one", Values(math.NaN(), 100, math.NaN()), ErrInsufficientData},
		{"shape mismatch", Timed([]time.Time{day(0)}, []float64{100, 101}), ErrShapeMismatch},
		{"duplicate timestamp", Timed([]time.Time{day(0), day(0)}, []float64{100, 101}), ErrDuplicateTimestamp},
		{"infinite price", Values(100, math.Inf(1)), ErrInvalidPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.raw)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestReturns_Simple(t *testing.T) {
	returns := mustReturns(t, Values(100, 110, 121))

	values := returns.Values()
	require.Len(t, values, 2)
	assert.InDelta(t, 0.10, values[0], tolerance)
	assert.InDelta(t, 0.10, values[1], tolerance)
	assert.Equal(t, []int64{1, 2}, returns.Keys())
}

func TestReturns_LengthAndReconstruction(t *testing.T) {
	raw := []float64{100, 103.5, 99.2, 101.7, 108.3, 107.9, 111.1}
	prices := mustNormalize(t, Values(raw...))

	returns, err := Returns(prices)
	require.NoError(t, err)
	require.Equal(t, prices.Len()-1, returns.Len())

	rebuilt := []float64{prices.First()}
	for _, r := range returns.Values() {
		rebuilt = append(rebuilt, rebuilt[len(rebuilt)-1]*(1+r))
	}
	require.Len(t, rebuilt, len(raw))
	for i := range raw {
		assert.InDelta(t, raw[i], rebuilt[i], 1e-9)
	}
}

func TestReturns_Errors(t *testing.T) {
	_, err := ReturnsOf(Values(100))
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Returns(PriceSeries{})
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = ReturnsOf(Values(100, 0, 110))
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = ReturnsOf(Values(100, -5))
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestCumulativeReturn(t *testing.T) {
	got, err := CumulativeReturnOf(Values(100, 125))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got, tolerance)

	series := []float64{42, 40.5, 47.25, 39, 51.75}
	got, err = CumulativeReturnOf(Values(series...))
	require.NoError(t, err)
	assert.InDelta(t, series[len(series)-1]/series[0]-1, got, tolerance)

	_, err = CumulativeReturnOf(Values(100))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestMaxDrawdown(t *testing.T) {
	got, err := MaxDrawdownOf(Values(100, 120, 110, 90, 95))
	require.NoError(t, err)
	assert.InDelta(t, -0.25, got, tolerance)
}

func TestMaxDrawdown_NonDecreasingIsZero(t *testing.T) {
	for _, raw := range [][]float64{
		{100, 100},
		{100, 101, 101, 150, 1000},
		{1, 2, 3, 4, 5, 6},
	} {
		got, err := MaxDrawdownOf(Values(raw...))
		require.NoError(t, err)
		assert.Equal(t, 0.0, got)
	}
}

func TestAnnualizedVolatility(t *testing.T) {
	constant, err := NewReturns(Values(0.01, 0.01, 0.01, 0.01))
	require.NoError(t, err)
	got, err := AnnualizedVolatility(constant, DefaultPeriodsPerYear)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	// 样本方差：均值0，平方和 0.0002，除以 n-1=3。
	returns, err := NewReturns(Values(0.01, -0.01, 0.01, -0.01))
	require.NoError(t, err)
	got, err = AnnualizedVolatility(returns, DefaultPeriodsPerYear)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(0.0004/3)*math.Sqrt(252), got, tolerance)

	got, err = AnnualizedVolatility(returns, 12)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(0.0004/3)*math.Sqrt(12), got, tolerance)
}

func TestAnnualizedVolatility_Errors(t *testing.T) {
	short, err := NewReturns(Values(0.01))
	require.NoError(t, err)
	_, err = AnnualizedVolatility(short, DefaultPeriodsPerYear)
	assert.ErrorIs(t, err, ErrInsufficientData)

	returns, err := NewReturns(Values(0.01, 0.02))
	require.NoError(t, err)
	_, err = AnnualizedVolatility(returns, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestBeta_ScaledBenchmark(t *testing.T) {
	bench, err := NewReturns(Values(0.01, -0.02, 0.03, 0.005))
	require.NoError(t, err)
	asset, err := NewReturns(Values(0.02, -0.04, 0.06, 0.01))
	require.NoError(t, err)

	got, err := Beta(asset, bench)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-9)
}

func TestBeta_NotSymmetric(t *testing.T) {
	asset := mustReturns(t, Values(100, 102, 101, 105, 107, 104))
	bench := mustReturns(t, Values(100, 101, 100.5, 102, 103, 102.5))

	ab, err := Beta(asset, bench)
	require.NoError(t, err)
	ba, err := Beta(bench, asset)
	require.NoError(t, err)
	assert.Greater(t, math.Abs(ab-ba), 1e-6)
}

func TestBeta_AlignsByTimestamp(t *testing.T) {
	// 资产缺少第3天，基准缺少第5天，只有第1、2、4天的收益率共同存在。
	asset := mustReturns(t, Timed(
		[]time.Time{day(0), day(1), day(2), day(4), day(5)},
		[]float64{100, 102, 99, 104, 103},
	))
	bench := mustReturns(t, Timed(
		[]time.Time{day(0), day(1), day(2), day(3), day(4)},
		[]float64{200, 202, 199, 201, 205},
	))

	got, err := Beta(asset, bench)
	require.NoError(t, err)

	a := []float64{102.0/100 - 1, 99.0/102 - 1, 104.0/99 - 1}
	b := []float64{202.0/200 - 1, 199.0/202 - 1, 205.0/201 - 1}
	assert.InDelta(t, manualBeta(a, b), got, 1e-9)
}

func TestBeta_Errors(t *testing.T) {
	asset := mustReturns(t, Timed([]time.Time{day(0), day(1), day(2)}, []float64{100, 101, 102}))
	bench := mustReturns(t, Timed([]time.Time{day(5), day(6), day(7)}, []float64{100, 101, 102}))
	_, err := Beta(asset, bench)
	assert.ErrorIs(t, err, ErrInsufficientOverlap)

	positional := mustReturns(t, Values(100, 101, 102))
	_, err = Beta(asset, positional)
	assert.ErrorIs(t, err, ErrInsufficientOverlap)

	flat := mustReturns(t, Values(200, 200, 200, 200))
	_, err = Beta(mustReturns(t, Values(100, 110, 105, 115)), flat)
	assert.ErrorIs(t, err, ErrUndefinedBeta)
}

func TestSummarize_WithoutBenchmark(t *testing.T) {
	summary, err := Summarize(Values(100, 110, 105, 115), nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.15, summary.CumulativeReturn, tolerance)
	assert.InDelta(t, 105.0/110-1, summary.MaxDrawdown, tolerance)
	assert.Greater(t, summary.AnnualizedVolatility, 0.0)
	assert.False(t, summary.Beta.Valid())
}

func TestSummarize_WithBenchmark(t *testing.T) {
	prices := Values(100, 110, 105, 115, 120)
	bench := Values(50, 54, 53, 56, 57)

	summary, err := Summarize(prices, &bench)
	require.NoError(t, err)

	beta, ok := summary.Beta.Get()
	require.True(t, ok)
	expected, err := Beta(mustReturns(t, prices), mustReturns(t, bench))
	require.NoError(t, err)
	assert.InDelta(t, expected, beta, tolerance)
}

func TestSummarize_PropagatesFailures(t *testing.T) {
	_, err := Summarize(Values(100), nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	// 两个价格只产生一个收益率，波动率无定义。
	_, err = Summarize(Values(100, 125), nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	flat := Values(200, 200, 200, 200)
	_, err = Summarize(Values(100, 110, 105, 115), &flat)
	assert.ErrorIs(t, err, ErrUndefinedBeta)

	short := Values(1)
	_, err = Summarize(Values(100, 110, 105, 115), &short)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestNewSummarizer(t *testing.T) {
	s, err := NewSummarizer(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPeriodsPerYear, s.PeriodsPerYear())

	monthly, err := NewSummarizer(Config{PeriodsPerYear: 12})
	require.NoError(t, err)
	daily, err := NewSummarizer(DefaultConfig())
	require.NoError(t, err)

	raw := Values(100, 104, 101, 107, 103)
	m, err := monthly.Summarize(raw, nil)
	require.NoError(t, err)
	d, err := daily.Summarize(raw, nil)
	require.NoError(t, err)
	assert.InDelta(t, d.AnnualizedVolatility*math.Sqrt(12.0/252), m.AnnualizedVolatility, tolerance)

	_, err = NewSummarizer(Config{PeriodsPerYear: -1})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestOptionalFloat_JSON(t *testing.T) {
	absent, err := json.Marshal(Summary{})
	require.NoError(t, err)
	assert.Contains(t, string(absent), `"betaVsBenchmark":null`)

	zero, err := json.Marshal(Summary{Beta: Some(0)})
	require.NoError(t, err)
	assert.Contains(t, string(zero), `"betaVsBenchmark":0`)

	var decoded Summary
	require.NoError(t, json.Unmarshal(zero, &decoded))
	v, ok := decoded.Beta.Get()
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)

	require.NoError(t, json.Unmarshal(absent, &decoded))
	assert.False(t, decoded.Beta.Valid())
}

func manualBeta(a, b []float64) float64 {
	n := float64(len(a))
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= n
	meanB /= n
	var cov, varB float64
	for i := range a {
		cov += (a[i] - meanA) * (b[i] - meanB)
		varB += (b[i] - meanB) * (b[i] - meanB)
	}
	return cov / varB
}
