package indicator

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

const (
	shortWindow = 20
	longWindow  = 50
	rsiWindow   = 14
)

// Overlay 为图表叠加线，未到窗口长度的位置为 NaN。
type Overlay struct {
	Name   string
	Values []float64
}

// Result 为一次指标计算的汇总。
type Result struct {
	SMA20    float64
	SMA50    float64
	RSI14    float64
	Overlays []Overlay
}

// Compute 依据收盘价计算前端展示用的均线与 RSI。
// 数据不足某个窗口时对应指标为 NaN，不视为错误。
func Compute(closes []float64) (Result, error) {
	if len(closes) == 0 {
		return Result{}, fmt.Errorf("计算指标失败: 输入收盘价为空")
	}

	sma20 := movingAverage(closes, shortWindow)
	sma50 := movingAverage(closes, longWindow)

	rsi := math.NaN()
	if len(closes) > rsiWindow {
		rsi = Last(talib.Rsi(closes, rsiWindow))
	}

	return Result{
		SMA20: Last(sma20),
		SMA50: Last(sma50),
		RSI14: rsi,
		Overlays: []Overlay{
			{Name: fmt.Sprintf("SMA%d", shortWindow), Values: sma20},
			{Name: fmt.Sprintf("SMA%d", longWindow), Values: sma50},
		},
	}, nil
}

// movingAverage 包装 talib.Sma，把预热期的0替换为 NaN。
func movingAverage(closes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) < window {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	sma := talib.Sma(closes, window)
	for i := range out {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sma[i]
	}
	return out
}
