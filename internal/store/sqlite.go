package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"portfolio-metrics/internal/config"
)

const memoryDSN = ":memory:"

// Store 封装价格缓存与监控事件所用的 SQLite 连接。
type Store struct {
	db *sql.DB
}

// NewSQLite 打开数据库、配置连接池并建表。
// 内存库的每个连接各自独立，因此强制单连接。
func NewSQLite(cfg config.DatabaseConfig) (*Store, error) {
	if cfg.InMemory {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	} else if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("store: 打开 SQLite 失败: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("store: 连接 SQLite 失败: %w", err)
	}

	s := &Store{db: conn}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// buildDSN 通过 go-sqlite3 的连接参数设置 pragma，使连接池中的每个连接保持一致。
// 文件库启用 WAL；内存库不支持 WAL。
func buildDSN(cfg config.DatabaseConfig) string {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	params.Set("_synchronous", "NORMAL")

	if cfg.InMemory {
		return memoryDSN + "?" + params.Encode()
	}
	params.Set("_journal_mode", "WAL")
	return cfg.Path + "?" + params.Encode()
}

// DB 返回底层连接，供同库的其他表使用。
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("store: 创建目录 %q 失败: %w", path, err)
	}
	return nil
}
