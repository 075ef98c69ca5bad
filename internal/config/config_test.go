package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
watchlist:
  tickers: [aapl, " msft "]
  benchmark: spy
database:
  in_memory: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Watchlist.Tickers)
	assert.Equal(t, "SPY", cfg.Watchlist.Benchmark)
	assert.Equal(t, SourceAuto, cfg.Watchlist.Source)
	assert.Equal(t, 252, cfg.Metrics.PeriodsPerYear)
	assert.Equal(t, 15*time.Second, cfg.Yahoo.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Exchange.Retry.MinDelay)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.Interval)
	assert.Len(t, cfg.Yahoo.BaseURLs, 2)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORTFOLIO_METRICS_PERIODS_PER_YEAR", "52")
	t.Setenv("PORTFOLIO_WATCHLIST_TICKERS", "QQQ,IWM")

	cfg, err := Load(writeConfig(t, "app:\n  environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 52, cfg.Metrics.PeriodsPerYear)
	assert.Equal(t, []string{"QQQ", "IWM"}, cfg.Watchlist.Tickers)
	assert.Equal(t, "test", cfg.App.Environment)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "未找到配置文件")
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "SPY", cfg.Watchlist.Benchmark)
	assert.Equal(t, "binanceusdm", cfg.Exchange.Name)
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	cfg.Metrics.PeriodsPerYear = 0
	cfg.Watchlist.Source = "bloomberg"
	cfg.Yahoo.Retry.MinDelay = 10 * time.Second
	cfg.Output.Dir = ""

	err = cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"metrics.periods_per_year",
		"watchlist.source",
		"yahoo.retry.min_delay",
		"output.dir",
	} {
		assert.True(t, strings.Contains(msg, want), "missing %q in %s", want, msg)
	}
}

func TestValidate_Cron(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	cfg.Scheduler.Interval = 0
	cfg.Scheduler.Cron = "30 22 * * 1-5"
	assert.NoError(t, cfg.Validate())

	cfg.Scheduler.Cron = "every day"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.cron")
}
