package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
)

// 行情来源。
const (
	SourceYahoo    = "yahoo"
	SourceExchange = "exchange"
	SourceAuto     = "auto"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Watchlist WatchlistConfig `mapstructure:"watchlist"`
	Yahoo     YahooConfig     `mapstructure:"yahoo"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Output    OutputConfig    `mapstructure:"output"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// MetricsConfig 控制绩效指标计算。
type MetricsConfig struct {
	PeriodsPerYear int `mapstructure:"periods_per_year"`
}

// WatchlistConfig 描述需要计算的标的与基准。
type WatchlistConfig struct {
	Tickers     []string `mapstructure:"tickers"`
	Benchmark   string   `mapstructure:"benchmark"`
	Source      string   `mapstructure:"source"`
	Period      string   `mapstructure:"period"`
	Interval    string   `mapstructure:"interval"`
	Concurrency int      `mapstructure:"concurrency"`
}

// YahooConfig 描述 Yahoo 行情接口。
type YahooConfig struct {
	BaseURLs  []string      `mapstructure:"base_urls"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	UserAgent string        `mapstructure:"user_agent"`
	Retry     RetryConfig   `mapstructure:"retry"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name        string      `mapstructure:"name"`
	APIKey      string      `mapstructure:"api_key"`
	APISecret   string      `mapstructure:"api_secret"`
	UseSandbox  bool        `mapstructure:"use_sandbox"`
	CandleLimit int         `mapstructure:"candle_limit"`
	Retry       RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OutputConfig 控制结果文件输出。
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Charts bool   `mapstructure:"charts"`
	Indent bool   `mapstructure:"indent"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制构建节奏。
// Cron 非空时按 cron 表达式（UTC，五段格式）调度，忽略 Interval。
type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Cron     string        `mapstructure:"cron"`
	RunOnce  bool          `mapstructure:"run_once"`
}

// MonitorConfig 控制监控接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Metrics.PeriodsPerYear <= 0 {
		err = multierr.Append(err, errors.New("metrics.periods_per_year 必须大于0"))
	}
	if len(c.Watchlist.Tickers) == 0 {
		err = multierr.Append(err, errors.New("watchlist.tickers 至少包含一个标的"))
	}
	for i, ticker := range c.Watchlist.Tickers {
		if strings.TrimSpace(ticker) == "" {
			err = multierr.Append(err, fmt.Errorf("watchlist.tickers[%d] 不能为空", i))
		}
	}
	switch strings.ToLower(c.Watchlist.Source) {
	case SourceYahoo, SourceExchange, SourceAuto:
	default:
		err = multierr.Append(err, fmt.Errorf("watchlist.source 不支持 %q", c.Watchlist.Source))
	}
	if c.Watchlist.Period == "" {
		err = multierr.Append(err, errors.New("watchlist.period 不能为空"))
	}
	if c.Watchlist.Interval == "" {
		err = multierr.Append(err, errors.New("watchlist.interval 不能为空"))
	}
	if c.Watchlist.Concurrency <= 0 {
		err = multierr.Append(err, errors.New("watchlist.concurrency 必须大于0"))
	}
	if len(c.Yahoo.BaseURLs) == 0 {
		err = multierr.Append(err, errors.New("yahoo.base_urls 至少包含一个地址"))
	}
	if c.Yahoo.Timeout <= 0 {
		err = multierr.Append(err, errors.New("yahoo.timeout 必须大于0"))
	}
	if c.Yahoo.RateLimit <= 0 {
		err = multierr.Append(err, errors.New("yahoo.rate_limit 必须大于0"))
	}
	err = multierr.Append(err, c.Yahoo.Retry.validate("yahoo.retry"))
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.CandleLimit <= 1 {
		err = multierr.Append(err, errors.New("exchange.candle_limit 必须大于1"))
	}
	err = multierr.Append(err, c.Exchange.Retry.validate("exchange.retry"))
	if c.Output.Dir == "" {
		err = multierr.Append(err, errors.New("output.dir 不能为空"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.Cron != "" {
		if _, cronErr := cron.ParseStandard(c.Scheduler.Cron); cronErr != nil {
			err = multierr.Append(err, fmt.Errorf("scheduler.cron 无效: %w", cronErr))
		}
	} else if !c.Scheduler.RunOnce && c.Scheduler.Interval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.interval 必须大于0"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于[1,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

func (r RetryConfig) validate(prefix string) error {
	var err error
	if r.MaxAttempts <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.max_attempts 必须大于0", prefix))
	}
	if r.MinDelay <= 0 || r.MaxDelay <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.delay 必须为正", prefix))
	}
	if r.MinDelay > r.MaxDelay {
		err = multierr.Append(err, fmt.Errorf("%s.min_delay 不能大于 max_delay", prefix))
	}
	return err
}
