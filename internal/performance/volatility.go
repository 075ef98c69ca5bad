package performance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultPeriodsPerYear 为默认的年化周期数（交易日）。
const DefaultPeriodsPerYear = 252

// AnnualizedVolatility 计算年化波动率：样本标准差（n-1）乘以 sqrt(periodsPerYear)。
func AnnualizedVolatility(returns ReturnsSeries, periodsPerYear int) (float64, error) {
	if periodsPerYear <= 0 {
		return 0, fmt.Errorf("%w: periodsPerYear 必须大于0，实际 %d", ErrInvalidParameter, periodsPerYear)
	}
	if returns.Len() < MinPoints {
		return 0, fmt.Errorf("%w: 需要至少 %d 个收益率点，实际 %d 个", ErrInsufficientData, MinPoints, returns.Len())
	}
	return math.Sqrt(sampleVariance(returns.values)) * math.Sqrt(float64(periodsPerYear)), nil
}

// sampleVariance 返回无偏样本方差；常数序列精确返回0，不受均值舍入误差影响。
func sampleVariance(x []float64) float64 {
	if isConstant(x) {
		return 0
	}
	return stat.Variance(x, nil)
}

func isConstant(x []float64) bool {
	if len(x) == 0 {
		return true
	}
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}
