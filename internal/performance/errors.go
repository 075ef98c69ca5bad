package performance

import "errors"

var (
	// ErrInsufficientData 表示数据点数量不足以完成计算。
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidPrice 表示价格非正或非有限值，收益率无定义。
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInsufficientOverlap 表示两条收益率序列的共同时间点少于2个。
	ErrInsufficientOverlap = errors.New("insufficient overlap")
	// ErrUndefinedBeta 表示基准收益率样本方差为0。
	ErrUndefinedBeta = errors.New("undefined beta")

	// ErrShapeMismatch 表示原始输入的形状不被接受。
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrDuplicateTimestamp 表示原始输入包含重复时间戳。
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
	// ErrInvalidParameter 表示计算参数非法。
	ErrInvalidParameter = errors.New("invalid parameter")
)
