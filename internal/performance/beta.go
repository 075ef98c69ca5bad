package performance

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Beta 计算资产相对基准的贝塔：Cov(asset, benchmark) / Var(benchmark)。
// 两条序列先按时间键内连接，只使用共同时间点。
func Beta(asset, benchmark ReturnsSeries) (float64, error) {
	a, b := align(asset.series, benchmark.series)
	if len(a) < MinPoints {
		return 0, fmt.Errorf("%w: 共同时间点 %d 个，需要至少 %d 个", ErrInsufficientOverlap, len(a), MinPoints)
	}

	varB := sampleVariance(b)
	if varB == 0 {
		return 0, fmt.Errorf("%w: 基准收益率样本方差为0", ErrUndefinedBeta)
	}
	return stat.Covariance(a, b, nil) / varB, nil
}

// align 对两条按键升序的序列做内连接，不同时间轴的序列没有共同键。
func align(a, b series) ([]float64, []float64) {
	if a.axis != b.axis {
		return nil, nil
	}

	n := min(len(a.keys), len(b.keys))
	outA := make([]float64, 0, n)
	outB := make([]float64, 0, n)
	i, j := 0, 0
	for i < len(a.keys) && j < len(b.keys) {
		switch {
		case a.keys[i] < b.keys[j]:
			i++
		case a.keys[i] > b.keys[j]:
			j++
		default:
			outA = append(outA, a.values[i])
			outB = append(outB, b.values[j])
			i++
			j++
		}
	}
	return outA, outB
}
