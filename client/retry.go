package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/weisyn/ptx-sdk-go/types"
)

// RetryConfig 重试配置
type RetryConfig struct {
	// MaxRetries 最大重试次数
	MaxRetries int
	// InitialDelay 初始延迟（毫秒）
	InitialDelay int
	// MaxDelay 最大延迟（毫秒）
	MaxDelay int
	// BackoffMultiplier 退避倍数
	BackoffMultiplier float64
	// Retryable 判断错误是否可重试的函数
	Retryable func(error) bool
	// OnRetry 重试前的回调函数
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      200,
		MaxDelay:          5000,
		BackoffMultiplier: 2.0,
		Retryable:         isRetryableError,
	}
}

type noRetryKey struct{}

// WithoutRetry 标记该上下文中的调用不做传输层重试
//
// 交易执行必须使用：同一笔交易被盲目重发时，网络可能已经执行过它
func WithoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

func retryDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noRetryKey{}).(bool)
	return v
}

// isRetryableError 判断错误是否可重试（只针对连接层故障）
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	if _, ok := types.AsError(err); ok {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var clientErr *Error
	if errors.As(err, &clientErr) && clientErr.Code == ErrCodeHTTPStatus {
		return isRetryableHTTPError(clientErr.Status)
	}
	if errors.As(err, &clientErr) && clientErr.Code == ErrCodeNetwork {
		return true
	}

	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"EOF",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// isRetryableHTTPError 判断 HTTP 状态码是否可重试（5xx / 429）
func isRetryableHTTPError(statusCode int) bool {
	return (statusCode >= 500 && statusCode < 600) || statusCode == 429
}

// calculateBackoffDelay 计算退避延迟
func calculateBackoffDelay(attempt int, config *RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiplier, float64(attempt))
	if max := float64(config.MaxDelay); delay > max {
		delay = max
	}
	return time.Duration(delay) * time.Millisecond
}

// withRetry 带重试的函数执行器
func withRetry(ctx context.Context, fn func() error, config *RetryConfig) error {
	if config == nil || retryDisabled(ctx) {
		return fn()
	}

	retryable := config.Retryable
	if retryable == nil {
		retryable = isRetryableError
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= config.MaxRetries || !retryable(err) {
			break
		}

		delay := calculateBackoffDelay(attempt, config)
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if config.MaxRetries == 0 || !retryable(lastErr) {
		return lastErr
	}
	return fmt.Errorf("retry failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}
