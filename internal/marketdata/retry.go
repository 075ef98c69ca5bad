package marketdata

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"portfolio-metrics/internal/config"
)

// classifier 规整错误并判断是否值得重试。
type classifier func(err error) (error, bool)

// callWithRetry 以指数退避重试 fn，不可重试的错误立即返回。
func callWithRetry[T any](ctx context.Context, cfg config.RetryConfig, logger *zap.Logger, operation string, classify classifier, fn func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	if cfg.MinDelay > 0 {
		policy.InitialInterval = cfg.MinDelay
	}
	if cfg.MaxDelay > 0 {
		policy.MaxInterval = cfg.MaxDelay
	}
	maxTries := uint(1)
	if cfg.MaxAttempts > 0 {
		maxTries = uint(cfg.MaxAttempts)
	}

	attempt := 0
	start := time.Now()
	op := func() (T, error) {
		attempt++
		result, err := fn()
		if err == nil {
			return result, nil
		}
		normalized, retry := classify(err)
		if !retry {
			return result, backoff.Permanent(normalized)
		}
		return result, normalized
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("行情调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(notify),
	)
	if err != nil {
		logger.Error("行情调用失败",
			zap.String("operation", operation),
			zap.Int("attempts", attempt),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
		return result, err
	}
	if attempt > 1 {
		logger.Info("行情调用重试后成功",
			zap.String("operation", operation),
			zap.Int("attempts", attempt),
			zap.Duration("latency", time.Since(start)),
		)
	}
	return result, nil
}
