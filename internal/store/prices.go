package store

import (
	"context"
	"fmt"
	"time"
)

// PricePoint 为缓存的单个收盘价。
type PricePoint struct {
	Time  time.Time
	Close float64
}

func (s *Store) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS prices (
			symbol TEXT NOT NULL,
			ts INTEGER NOT NULL,
			close REAL NOT NULL,
			source TEXT NOT NULL,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (symbol, ts)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_prices_symbol_ts ON prices(symbol, ts);`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: 初始化表结构失败: %w", err)
		}
	}
	return nil
}

// SavePrices 写入或覆盖某个标的的收盘价。
func (s *Store) SavePrices(ctx context.Context, symbol, source string, points []PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: 开启事务失败: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO prices (symbol, ts, close, source, fetched_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(symbol, ts) DO UPDATE SET close = excluded.close, source = excluded.source, fetched_at = excluded.fetched_at`)
	if err != nil {
		return fmt.Errorf("store: 预编译写入语句失败: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, symbol, p.Time.UTC().Unix(), p.Close, source, now); err != nil {
			return fmt.Errorf("store: 写入 %s 价格失败: %w", symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: 提交事务失败: %w", err)
	}
	return nil
}

// LoadPrices 按时间升序读取某个标的在 since 之后的收盘价，since 为零值时读取全部。
func (s *Store) LoadPrices(ctx context.Context, symbol string, since time.Time) ([]PricePoint, error) {
	var sinceUnix int64
	if !since.IsZero() {
		sinceUnix = since.UTC().Unix()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, close FROM prices WHERE symbol = ? AND ts >= ? ORDER BY ts ASC`,
		symbol, sinceUnix,
	)
	if err != nil {
		return nil, fmt.Errorf("store: 查询 %s 价格失败: %w", symbol, err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var (
			ts    int64
			price float64
		)
		if err := rows.Scan(&ts, &price); err != nil {
			return nil, fmt.Errorf("store: 解析价格失败: %w", err)
		}
		points = append(points, PricePoint{Time: time.Unix(ts, 0).UTC(), Close: price})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 读取价格失败: %w", err)
	}
	return points, nil
}
