package performance

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"
)

// MinPoints 为任何一项计算所需的最少数据点数量。
const MinPoints = 2

// Axis 表示序列的时间轴类型。
type Axis int

const (
	// AxisPosition 使用输入中的原始位置作为隐式时间轴。
	AxisPosition Axis = iota
	// AxisTime 使用显式时间戳。
	AxisTime
)

func (a Axis) String() string {
	if a == AxisTime {
		return "time"
	}
	return "position"
}

// RawSeries 是唯一接受的原始输入形状：一列数值，加上可选的等长时间索引。
// 缺失值以 NaN 表示；时间索引中的零值时间同样视为缺失。
type RawSeries struct {
	Values []float64
	Times  []time.Time
}

// Values 构造不带时间索引的原始序列，保持输入顺序。
func Values(values ...float64) RawSeries {
	return RawSeries{Values: values}
}

// Timed 构造带时间索引的原始序列。
func Timed(times []time.Time, values []float64) RawSeries {
	if times == nil {
		times = []time.Time{}
	}
	return RawSeries{Values: values, Times: times}
}

// Len 返回原始输入的条目数，包括缺失值。
func (r RawSeries) Len() int {
	return len(r.Values)
}

// series 以列方式保存有序的键值对，键为原始位置或 UnixNano。
type series struct {
	axis   Axis
	keys   []int64
	values []float64
}

// Len 返回序列长度。
func (s series) Len() int {
	return len(s.values)
}

// Axis 返回序列的时间轴类型。
func (s series) Axis() Axis {
	return s.axis
}

// Values 返回数值副本。
func (s series) Values() []float64 {
	return slices.Clone(s.values)
}

// Keys 返回对齐键的副本。
func (s series) Keys() []int64 {
	return slices.Clone(s.keys)
}

// Times 返回时间戳副本；位置轴序列返回 nil。
func (s series) Times() []time.Time {
	if s.axis != AxisTime {
		return nil
	}
	out := make([]time.Time, len(s.keys))
	for i, k := range s.keys {
		out[i] = time.Unix(0, k).UTC()
	}
	return out
}

// PriceSeries 为经过校验的价格序列：严格按时间升序、无重复、无缺失，长度至少为2。
// 只能通过 Normalize 构造。
type PriceSeries struct {
	series
}

// First 返回第一个价格。
func (p PriceSeries) First() float64 {
	if len(p.values) == 0 {
		return math.NaN()
	}
	return p.values[0]
}

// Last 返回最后一个价格。
func (p PriceSeries) Last() float64 {
	if len(p.values) == 0 {
		return math.NaN()
	}
	return p.values[len(p.values)-1]
}

// ReturnsSeries 为简单收益率序列，键是来源价格序列除首个以外的键。
type ReturnsSeries struct {
	series
}

// Normalize 校验并规范化原始价格输入。
func Normalize(raw RawSeries) (PriceSeries, error) {
	s, err := build(raw, "价格", ErrInvalidPrice)
	if err != nil {
		return PriceSeries{}, err
	}
	if s.Len() < MinPoints {
		return PriceSeries{}, fmt.Errorf("%w: 有效价格点不足，需要至少 %d 个，实际 %d 个", ErrInsufficientData, MinPoints, s.Len())
	}
	return PriceSeries{series: s}, nil
}

// NewReturns 从已有的收益率数据构造 ReturnsSeries，规则与 Normalize 相同但不限制长度。
func NewReturns(raw RawSeries) (ReturnsSeries, error) {
	s, err := build(raw, "收益率", ErrInvalidParameter)
	if err != nil {
		return ReturnsSeries{}, err
	}
	return ReturnsSeries{series: s}, nil
}

type entry struct {
	key   int64
	value float64
}

func build(raw RawSeries, label string, invalid error) (series, error) {
	timed := raw.Times != nil
	if timed && len(raw.Times) != len(raw.Values) {
		return series{}, fmt.Errorf("%w: 时间索引长度 %d 与%s数量 %d 不一致", ErrShapeMismatch, len(raw.Times), label, len(raw.Values))
	}

	entries := make([]entry, 0, len(raw.Values))
	for i, v := range raw.Values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsInf(v, 0) {
			return series{}, fmt.Errorf("%w: 第 %d 个%s为无穷值", invalid, i, label)
		}
		key := int64(i)
		if timed {
			if raw.Times[i].IsZero() {
				continue
			}
			key = raw.Times[i].UnixNano()
		}
		entries = append(entries, entry{key: key, value: v})
	}

	axis := AxisPosition
	if timed {
		axis = AxisTime
		slices.SortStableFunc(entries, func(a, b entry) int {
			return cmp.Compare(a.key, b.key)
		})
		for i := 1; i < len(entries); i++ {
			if entries[i].key == entries[i-1].key {
				return series{}, fmt.Errorf("%w: %s", ErrDuplicateTimestamp, time.Unix(0, entries[i].key).UTC().Format(time.RFC3339))
			}
		}
	}

	s := series{
		axis:   axis,
		keys:   make([]int64, len(entries)),
		values: make([]float64, len(entries)),
	}
	for i, e := range entries {
		s.keys[i] = e.key
		s.values[i] = e.value
	}
	return s, nil
}
