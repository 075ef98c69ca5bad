package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"portfolio-metrics/internal/config"
)

// Writer 将结果写入输出目录，所有文件先写临时文件再重命名。
type Writer struct {
	dir    string
	indent bool
	charts bool
	logger *zap.Logger
}

// NewWriter 创建输出器。
func NewWriter(cfg config.OutputConfig, logger *zap.Logger) (*Writer, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("report: 输出目录不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		dir:    cfg.Dir,
		indent: cfg.Indent,
		charts: cfg.Charts,
		logger: logger,
	}, nil
}

// ChartsEnabled 表示是否输出图表。
func (w *Writer) ChartsEnabled() bool {
	return w.charts
}

// TickerPath 返回标的 JSON 路径。
func (w *Writer) TickerPath(ticker string) string {
	return filepath.Join(w.dir, "tickers", fileName(ticker)+".json")
}

// ChartPath 返回标的图表路径。
func (w *Writer) ChartPath(ticker string) string {
	return filepath.Join(w.dir, "charts", fileName(ticker)+".png")
}

// WatchlistPath 返回首页汇总路径。
func (w *Writer) WatchlistPath() string {
	return filepath.Join(w.dir, "watchlist.json")
}

// WriteTicker 写入 tickers/<T>.json。
func (w *Writer) WriteTicker(payload TickerPayload) error {
	path := w.TickerPath(payload.Ticker)
	if err := w.writeJSON(path, payload); err != nil {
		return fmt.Errorf("report: 写入 %s 失败: %w", payload.Ticker, err)
	}
	w.logger.Debug("已写入标的数据", zap.String("ticker", payload.Ticker), zap.String("path", path))
	return nil
}

// WriteWatchlist 写入 watchlist.json。
func (w *Writer) WriteWatchlist(payload WatchlistPayload) error {
	path := w.WatchlistPath()
	if err := w.writeJSON(path, payload); err != nil {
		return fmt.Errorf("report: 写入汇总失败: %w", err)
	}
	w.logger.Info("已写入汇总数据",
		zap.String("path", path),
		zap.Int("rows", len(payload.Watchlist)),
		zap.Int("failures", len(payload.Failures)),
	)
	return nil
}

// WriteChart 写入 charts/<T>.png。
func (w *Writer) WriteChart(ticker string, png []byte) error {
	if err := writeAtomic(w.ChartPath(ticker), png); err != nil {
		return fmt.Errorf("report: 写入 %s 图表失败: %w", ticker, err)
	}
	return nil
}

// RemoveTicker 删除标的的 JSON 与图表文件，文件不存在时不报错。
func (w *Writer) RemoveTicker(ticker string) error {
	for _, path := range []string{w.TickerPath(ticker), w.ChartPath(ticker)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("report: 删除 %s 失败: %w", path, err)
		}
	}
	return nil
}

func (w *Writer) writeJSON(path string, v interface{}) error {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("重命名文件失败: %w", err)
	}
	return nil
}

// fileName 将 BTC/USDT:USDT 之类的符号转为安全文件名。
func fileName(ticker string) string {
	replacer := strings.NewReplacer("/", "-", ":", "-", "\\", "-", " ", "")
	return replacer.Replace(strings.ToUpper(strings.TrimSpace(ticker)))
}
