package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "portfolio"
)

// Load 读取配置文件并结合环境变量返回 Config。
// path 为空且默认配置文件不存在时，仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := newViper()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	if _, statErr := os.Stat(path); statErr == nil || explicit {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
			}
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	return decode(v)
}

// Default 返回仅由默认值与环境变量构成的配置。
func Default() (*Config, error) {
	return decode(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.Watchlist.Source = strings.ToLower(strings.TrimSpace(cfg.Watchlist.Source))
	for i, ticker := range cfg.Watchlist.Tickers {
		cfg.Watchlist.Tickers[i] = strings.ToUpper(strings.TrimSpace(ticker))
	}
	cfg.Watchlist.Benchmark = strings.ToUpper(strings.TrimSpace(cfg.Watchlist.Benchmark))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("metrics.periods_per_year", 252)

	v.SetDefault("watchlist.tickers", []string{"AAPL", "MSFT", "NVDA", "TSLA"})
	v.SetDefault("watchlist.benchmark", "SPY")
	v.SetDefault("watchlist.source", SourceAuto)
	v.SetDefault("watchlist.period", "1y")
	v.SetDefault("watchlist.interval", "1d")
	v.SetDefault("watchlist.concurrency", 4)

	v.SetDefault("yahoo.base_urls", []string{"https://query1.finance.yahoo.com", "https://query2.finance.yahoo.com"})
	v.SetDefault("yahoo.timeout", "15s")
	v.SetDefault("yahoo.rate_limit", 2)
	v.SetDefault("yahoo.user_agent", "Mozilla/5.0 (compatible; portfolio-metrics/1.0)")
	v.SetDefault("yahoo.retry.max_attempts", 4)
	v.SetDefault("yahoo.retry.min_delay", "500ms")
	v.SetDefault("yahoo.retry.max_delay", "5s")

	v.SetDefault("exchange.name", "binanceusdm")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.candle_limit", 365)
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("output.dir", "public/data")
	v.SetDefault("output.charts", true)
	v.SetDefault("output.indent", true)

	v.SetDefault("database.path", "data/portfolio_metrics.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.cron", "")
	v.SetDefault("scheduler.run_once", false)

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.port", 8088)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
