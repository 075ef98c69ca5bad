package performance

import (
	"fmt"
	"slices"
)

// Returns 计算简单收益率 p[t]/p[t-1] - 1，输出长度为输入长度减1。
func Returns(prices PriceSeries) (ReturnsSeries, error) {
	if err := checkPrices(prices); err != nil {
		return ReturnsSeries{}, err
	}

	n := prices.Len()
	out := series{
		axis:   prices.axis,
		keys:   slices.Clone(prices.keys[1:]),
		values: make([]float64, n-1),
	}
	for t := 1; t < n; t++ {
		out.values[t-1] = prices.values[t]/prices.values[t-1] - 1
	}
	return ReturnsSeries{series: out}, nil
}

// ReturnsOf 先规范化原始输入，再计算收益率。
func ReturnsOf(raw RawSeries) (ReturnsSeries, error) {
	prices, err := Normalize(raw)
	if err != nil {
		return ReturnsSeries{}, err
	}
	return Returns(prices)
}

// CumulativeReturn 计算整个窗口的累计收益 last/first - 1。
func CumulativeReturn(prices PriceSeries) (float64, error) {
	if err := checkPrices(prices); err != nil {
		return 0, err
	}
	return prices.Last()/prices.First() - 1, nil
}

// CumulativeReturnOf 先规范化原始输入，再计算累计收益。
func CumulativeReturnOf(raw RawSeries) (float64, error) {
	prices, err := Normalize(raw)
	if err != nil {
		return 0, err
	}
	return CumulativeReturn(prices)
}

// checkPrices 校验长度并拒绝非正价格，零价格会导致除零。
func checkPrices(prices PriceSeries) error {
	if prices.Len() < MinPoints {
		return fmt.Errorf("%w: 需要至少 %d 个价格点，实际 %d 个", ErrInsufficientData, MinPoints, prices.Len())
	}
	for i, p := range prices.values {
		if p <= 0 {
			return fmt.Errorf("%w: 第 %d 个价格为 %g，价格必须为正", ErrInvalidPrice, i, p)
		}
	}
	return nil
}
