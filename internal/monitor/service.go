package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"portfolio-metrics/internal/store"
)

// Service 负责持久化构建事件。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// RecordSummary 记录标的绩效汇总，失败只记日志。
func (s *Service) RecordSummary(ctx context.Context, payload TickerSummaryPayload) {
	if err := s.Record(ctx, Event{Type: EventTickerSummary, Payload: payload}); err != nil {
		s.logger.Warn("记录绩效事件失败", zap.String("ticker", payload.Ticker), zap.Error(err))
	}
}

// RecordError 记录标的构建失败。
func (s *Service) RecordError(ctx context.Context, runID, ticker, stage string, err error) {
	payload := BuildErrorPayload{
		RunID:   runID,
		Ticker:  ticker,
		Stage:   stage,
		Message: err.Error(),
	}
	if recErr := s.Record(ctx, Event{Type: EventBuildError, Payload: payload}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.String("ticker", ticker), zap.Error(recErr))
	}
}

// RecordComplete 记录一次构建结束。
func (s *Service) RecordComplete(ctx context.Context, payload BuildCompletePayload) {
	if err := s.Record(ctx, Event{Type: EventBuildComplete, Payload: payload}); err != nil {
		s.logger.Warn("记录构建事件失败", zap.Error(err))
	}
}

// ListEvents 按类型检索最近事件，eventType 为空时返回全部类型。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM monitor_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			s.logger.Warn("事件时间格式异常", zap.String("created_at", created), zap.Error(parseErr))
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}
