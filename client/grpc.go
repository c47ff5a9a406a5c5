package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// gRPC 上的 JSON-RPC 桥接：单个一元方法，消息体为 JSON-RPC 请求/响应，使用 JSON 编解码器
const (
	grpcServiceName = "ptx.rpc.v1.JSONRPC"
	grpcCallMethod  = "/" + grpcServiceName + "/Call"
	jsonCodecName   = "json"
)

// jsonCodec gRPC JSON 编解码器
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// grpcClient gRPC 客户端实现
type grpcClient struct {
	conn     *grpc.ClientConn
	endpoint string
	nextID   atomic.Uint64
	retry    *RetryConfig
	logger   Logger
	debug    bool
}

// NewGRPCClient 创建 gRPC 客户端
func NewGRPCClient(config *Config) (Client, error) {
	return dialGRPC(config)
}

// dialGRPC 建立连接（extra 用于注入自定义拨号器）
func dialGRPC(config *Config, extra ...grpc.DialOption) (*grpcClient, error) {
	if config == nil {
		config = DefaultConfig()
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(config.Endpoint, "http://"), "https://")

	tlsCfg, err := config.tlsConfig()
	if err != nil {
		return nil, err
	}
	creds := insecure.NewCredentials()
	if tlsCfg != nil {
		creds = credentials.NewTLS(tlsCfg)
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	}, extra...)

	// 非阻塞拨号，连接在首次调用时建立
	conn, err := grpc.DialContext(context.Background(), endpoint, opts...)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("dial gRPC: %w", err))
	}

	logger := LoggerOrNop(config.Logger)
	retryConfig := config.Retry
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
		retryConfig.OnRetry = func(attempt int, err error) {
			logger.Warn("Retrying request", "attempt", attempt, "error", err)
		}
	}

	return &grpcClient{
		conn:     conn,
		endpoint: endpoint,
		retry:    retryConfig,
		logger:   logger,
		debug:    config.Debug,
	}, nil
}

// Call 调用 JSON-RPC 方法（通过 gRPC 一元调用）
func (c *grpcClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	req := &jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	if c.debug {
		c.logger.Debug("gRPC JSON-RPC request", "method", method, "id", req.ID)
	}

	var result json.RawMessage
	err := withRetry(ctx, func() error {
		var resp jsonRPCResponse
		if err := c.conn.Invoke(ctx, grpcCallMethod, req, &resp); err != nil {
			return grpcError(ctx, err)
		}
		var callErr error
		result, callErr = resp.result()
		return callErr
	}, c.retry)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// grpcError 将 gRPC 状态映射为传输层错误
func grpcError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	st, ok := status.FromError(err)
	if !ok {
		return NewNetworkError(err)
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return NewTimeoutError()
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return NewNetworkError(err)
	case codes.Canceled:
		return context.Canceled
	default:
		return NewInvalidResponseError("gRPC call failed", errors.New(st.Message()))
	}
}

// Close 关闭连接
func (c *grpcClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
