// Package client 节点 JSON-RPC 客户端
//
// 支持 HTTP / WebSocket / gRPC 三种传输，NodeClient 在其上提供类型化的账本读取与交易执行接口。
package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// Client 底层 JSON-RPC 通道
type Client interface {
	// Call 调用 JSON-RPC 方法，返回原始 result
	Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error)

	// Close 关闭连接
	Close() error
}

// NewClient 按配置的协议创建客户端
func NewClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Protocol {
	case ProtocolHTTP, "":
		return NewHTTPClient(config)
	case ProtocolGRPC:
		return NewGRPCClient(config)
	case ProtocolWebSocket:
		return NewWebSocketClient(config)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", config.Protocol)
	}
}

// jsonRPCRequest JSON-RPC 请求
type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      uint64      `json:"id"`
}

// jsonRPCResponse JSON-RPC 响应
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

// result 取出结果或错误
func (r *jsonRPCResponse) result() (json.RawMessage, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	return r.Result, nil
}
