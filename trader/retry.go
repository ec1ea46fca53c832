package trader

import (
	"fmt"
	"log"
	"time"
)

// RetryPolicy 线性退避重试策略
// 第 n 次失败后等待 BaseDelay*n 再试（0.5s, 1.0s, 1.5s ...）
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	sleep func(time.Duration) // 测试注入点
}

// NewRetryPolicy 创建重试策略
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		sleep:       time.Sleep,
	}
}

// Do 执行 fn，失败则按策略重试
// name 仅用于日志，返回最后一次的错误
func (r *RetryPolicy) Do(name string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		log.Printf("⚠️ %s 第%d/%d次尝试失败: %v", name, attempt, r.MaxAttempts, lastErr)
		if attempt < r.MaxAttempts {
			r.sleep(r.BaseDelay * time.Duration(attempt))
		}
	}
	return fmt.Errorf("%s 重试%d次后仍失败: %w", name, r.MaxAttempts, lastErr)
}
