package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"portfolio-metrics/internal/performance"
)

var (
	// ErrNoData 表示行情源没有返回任何收盘价。
	ErrNoData = errors.New("no price data")
	// ErrUnsupportedSymbol 表示没有行情源可以处理该标的。
	ErrUnsupportedSymbol = errors.New("unsupported symbol")
	// ErrMaintenance 表示交易所处于维护状态。
	ErrMaintenance = errors.New("exchange on maintenance")
)

// Request 控制一次收盘价拉取。
type Request struct {
	Period   string // 如 1y、6mo
	Interval string // 如 1d
}

// DefaultRequest 返回一年日线。
func DefaultRequest() Request {
	return Request{Period: "1y", Interval: "1d"}
}

func (r Request) withDefaults() Request {
	def := DefaultRequest()
	if r.Period == "" {
		r.Period = def.Period
	}
	if r.Interval == "" {
		r.Interval = def.Interval
	}
	return r
}

// PeriodStart 返回 period 覆盖窗口的起点，用于从缓存中截取同一窗口。
// max 返回零值时间；无法识别的 period 返回错误。
func PeriodStart(period string, now time.Time) (time.Time, error) {
	period = strings.ToLower(strings.TrimSpace(period))
	now = now.UTC()

	switch period {
	case "max":
		return time.Time{}, nil
	case "ytd":
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), nil
	}

	for _, unit := range []string{"mo", "wk", "d", "y"} {
		digits, ok := strings.CutSuffix(period, unit)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n <= 0 {
			break
		}
		switch unit {
		case "mo":
			return now.AddDate(0, -n, 0), nil
		case "wk":
			return now.AddDate(0, 0, -7*n), nil
		case "d":
			return now.AddDate(0, 0, -n), nil
		default:
			return now.AddDate(-n, 0, 0), nil
		}
	}
	return time.Time{}, fmt.Errorf("marketdata: 无法识别的 period %q", period)
}

// Provider 按标的提供按时间排序的收盘价序列。
type Provider interface {
	Name() string
	FetchCloses(ctx context.Context, symbol string, req Request) (performance.RawSeries, error)
}

// Squeeze 将单列收盘价表压缩为原始序列；多列或列长度与时间索引不符时直接失败。
func Squeeze(times []time.Time, columns [][]float64) (performance.RawSeries, error) {
	switch len(columns) {
	case 0:
		return performance.RawSeries{}, ErrNoData
	case 1:
	default:
		return performance.RawSeries{}, fmt.Errorf("%w: 期望1列收盘价，实际 %d 列", performance.ErrShapeMismatch, len(columns))
	}

	closes := columns[0]
	if len(times) != len(closes) {
		return performance.RawSeries{}, fmt.Errorf("%w: 时间 %d 个，收盘价 %d 个", performance.ErrShapeMismatch, len(times), len(closes))
	}
	if len(closes) == 0 {
		return performance.RawSeries{}, ErrNoData
	}
	return performance.Timed(times, closes), nil
}
