package client

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// Config 客户端配置
type Config struct {
	// Endpoint 节点端点地址
	Endpoint string

	// Protocol 协议类型
	Protocol Protocol

	// Timeout 单次请求超时时间（秒）
	Timeout int

	// TLS 配置
	TLS *TLSConfig

	// 调试模式（记录请求/响应体）
	Debug bool

	// 日志器（可选）
	Logger Logger

	// Retry 读请求的重试策略，nil 使用默认策略
	Retry *RetryConfig
}

// Protocol 协议类型
type Protocol string

const (
	ProtocolHTTP      Protocol = "http"
	ProtocolGRPC      Protocol = "grpc"
	ProtocolWebSocket Protocol = "websocket"
)

// TLSConfig TLS 配置
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
	Insecure bool // 跳过 TLS 验证（仅用于开发）
}

// Logger 日志接口（*slog.Logger 满足该接口）
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// NopLogger 丢弃所有日志
func NopLogger() Logger { return nopLogger{} }

// LoggerOrNop 未配置日志器时返回 NopLogger
func LoggerOrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Endpoint: "http://127.0.0.1:9000",
		Protocol: ProtocolHTTP,
		Timeout:  30,
		Debug:    false,
	}
}

func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// tlsConfig 根据 TLSConfig 构建 *tls.Config，未配置时返回 nil
func (c *Config) tlsConfig() (*tls.Config, error) {
	if c.TLS == nil {
		return nil, nil
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.TLS.Insecure,
	}
	if c.TLS.CAFile != "" {
		pem, err := os.ReadFile(c.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.TLS.CAFile)
		}
		cfg.RootCAs = pool
	}
	if c.TLS.CertFile != "" || c.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
