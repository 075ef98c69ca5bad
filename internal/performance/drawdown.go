package performance

// MaxDrawdown 计算最大回撤：相对历史峰值的最大跌幅，结果始终 <= 0。
func MaxDrawdown(prices PriceSeries) (float64, error) {
	if err := checkPrices(prices); err != nil {
		return 0, err
	}

	peak := prices.values[0]
	maxDD := 0.0
	for _, v := range prices.values {
		if v > peak {
			peak = v
		}
		dd := v/peak - 1
		if dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD, nil
}

// MaxDrawdownOf 先规范化原始输入，再计算最大回撤。
func MaxDrawdownOf(raw RawSeries) (float64, error) {
	prices, err := Normalize(raw)
	if err != nil {
		return 0, err
	}
	return MaxDrawdown(prices)
}
