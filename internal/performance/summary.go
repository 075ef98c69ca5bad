package performance

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OptionalFloat 为带存在标记的浮点数。缺失与0是两种不同的状态，
// JSON 中分别编码为 null 与数值。
type OptionalFloat struct {
	value float64
	valid bool
}

// Some 返回一个存在的值。
func Some(v float64) OptionalFloat {
	return OptionalFloat{value: v, valid: true}
}

// None 返回缺失值。
func None() OptionalFloat {
	return OptionalFloat{}
}

// Get 返回值及其是否存在。
func (o OptionalFloat) Get() (float64, bool) {
	return o.value, o.valid
}

// Valid 报告值是否存在。
func (o OptionalFloat) Valid() bool {
	return o.valid
}

func (o OptionalFloat) String() string {
	if !o.valid {
		return "<none>"
	}
	return fmt.Sprintf("%g", o.value)
}

func (o OptionalFloat) MarshalJSON() ([]byte, error) {
	if !o.valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// Summary 汇总一条价格序列的绩效指标。按值传递，构造后不再修改，
// 也不持有输入序列的引用。
type Summary struct {
	CumulativeReturn     float64       `json:"cumulativeReturn"`
	MaxDrawdown          float64       `json:"maxDrawdown"`
	AnnualizedVolatility float64       `json:"annualizedVolatility"`
	Beta                 OptionalFloat `json:"betaVsBenchmark"`
}

// Config 定义绩效计算参数。
type Config struct {
	PeriodsPerYear int // 年化周期数，0 表示使用 DefaultPeriodsPerYear
}

// DefaultConfig 返回默认参数。
func DefaultConfig() Config {
	return Config{PeriodsPerYear: DefaultPeriodsPerYear}
}

// Summarizer 串联规范化、收益率、回撤、波动率与贝塔计算。零值不可用，需通过 NewSummarizer 创建。
type Summarizer struct {
	periodsPerYear int
}

// NewSummarizer 根据配置创建 Summarizer。
func NewSummarizer(cfg Config) (Summarizer, error) {
	if cfg.PeriodsPerYear == 0 {
		cfg.PeriodsPerYear = DefaultPeriodsPerYear
	}
	if cfg.PeriodsPerYear < 0 {
		return Summarizer{}, fmt.Errorf("%w: periodsPerYear 必须大于0，实际 %d", ErrInvalidParameter, cfg.PeriodsPerYear)
	}
	return Summarizer{periodsPerYear: cfg.PeriodsPerYear}, nil
}

// PeriodsPerYear 返回使用的年化周期数。
func (s Summarizer) PeriodsPerYear() int {
	return s.periodsPerYear
}

// Summarize 计算原始价格输入的绩效汇总；benchmark 为 nil 时贝塔缺失。
// 任一步骤失败即返回该错误，不返回部分结果。
func (s Summarizer) Summarize(prices RawSeries, benchmark *RawSeries) (Summary, error) {
	asset, err := Normalize(prices)
	if err != nil {
		return Summary{}, err
	}

	var bench *PriceSeries
	if benchmark != nil {
		b, err := Normalize(*benchmark)
		if err != nil {
			return Summary{}, err
		}
		bench = &b
	}

	return s.SummarizeSeries(asset, bench)
}

// SummarizeSeries 与 Summarize 相同，但接受已规范化的序列。
func (s Summarizer) SummarizeSeries(prices PriceSeries, benchmark *PriceSeries) (Summary, error) {
	periods := s.periodsPerYear
	if periods == 0 {
		periods = DefaultPeriodsPerYear
	}

	returns, err := Returns(prices)
	if err != nil {
		return Summary{}, err
	}
	cumulative, err := CumulativeReturn(prices)
	if err != nil {
		return Summary{}, err
	}
	drawdown, err := MaxDrawdown(prices)
	if err != nil {
		return Summary{}, err
	}
	volatility, err := AnnualizedVolatility(returns, periods)
	if err != nil {
		return Summary{}, err
	}

	beta := None()
	if benchmark != nil {
		benchReturns, err := Returns(*benchmark)
		if err != nil {
			return Summary{}, err
		}
		value, err := Beta(returns, benchReturns)
		if err != nil {
			return Summary{}, err
		}
		beta = Some(value)
	}

	return Summary{
		CumulativeReturn:     cumulative,
		MaxDrawdown:          drawdown,
		AnnualizedVolatility: volatility,
		Beta:                 beta,
	}, nil
}

// Summarize 使用默认参数计算绩效汇总。
func Summarize(prices RawSeries, benchmark *RawSeries) (Summary, error) {
	return Summarizer{periodsPerYear: DefaultPeriodsPerYear}.Summarize(prices, benchmark)
}
