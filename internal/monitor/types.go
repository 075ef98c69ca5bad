package monitor

import (
	"time"

	"portfolio-metrics/internal/performance"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventTickerSummary EventType = "ticker_summary"
	EventBuildError    EventType = "build_error"
	EventBuildComplete EventType = "build_complete"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TickerSummaryPayload 记录单个标的的计算结果。
type TickerSummaryPayload struct {
	RunID     string              `json:"runId"`
	Ticker    string              `json:"ticker"`
	Benchmark string              `json:"benchmark,omitempty"`
	Source    string              `json:"source"`
	Points    int                 `json:"points"`
	LastClose float64             `json:"lastClose"`
	Summary   performance.Summary `json:"summary"`
}

// BuildErrorPayload 记录单个标的的失败原因。
type BuildErrorPayload struct {
	RunID   string `json:"runId"`
	Ticker  string `json:"ticker"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// BuildCompletePayload 记录一次构建的概况。
type BuildCompletePayload struct {
	RunID     string        `json:"runId"`
	Tickers   []string      `json:"tickers"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}
