package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// websocketClient WebSocket 客户端实现
//
// 单连接多路复用：请求按 ID 登记响应通道，由 readLoop 分发
type websocketClient struct {
	endpoint string
	conn     *websocket.Conn
	writeMu  sync.Mutex
	closed   atomic.Bool
	nextID   atomic.Uint64
	requests map[uint64]chan *jsonRPCResponse
	muReq    sync.Mutex
	timeout  time.Duration
	logger   Logger
	debug    bool
	done     chan struct{}
}

// NewWebSocketClient 创建 WebSocket 客户端
func NewWebSocketClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	endpoint := websocketURL(config.Endpoint)

	tlsCfg, err := config.tlsConfig()
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  tlsCfg,
	}

	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("dial websocket: %w", err))
	}

	client := &websocketClient{
		endpoint: endpoint,
		conn:     conn,
		requests: make(map[uint64]chan *jsonRPCResponse),
		timeout:  config.timeout(),
		logger:   LoggerOrNop(config.Logger),
		debug:    config.Debug,
		done:     make(chan struct{}),
	}

	go client.readLoop()

	return client, nil
}

// websocketURL 将 http(s):// 转换为 ws(s)://
func websocketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "ws://"), strings.HasPrefix(endpoint, "wss://"):
		return endpoint
	default:
		return "ws://" + endpoint
	}
}

// readLoop 消息读取循环
func (c *websocketClient) readLoop() {
	defer func() {
		c.closed.Store(true)
		close(c.done)
	}()

	for {
		var resp jsonRPCResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			if !c.closed.Load() {
				c.logger.Warn("WebSocket read failed", "endpoint", c.endpoint, "error", err)
			}
			return
		}

		if c.debug {
			c.logger.Debug("JSON-RPC response", "id", resp.ID, "body", string(resp.Result))
		}

		c.muReq.Lock()
		ch, exists := c.requests[resp.ID]
		if exists {
			delete(c.requests, resp.ID)
		}
		c.muReq.Unlock()

		if exists {
			ch <- &resp
		}
	}
}

func (c *websocketClient) forget(id uint64) {
	c.muReq.Lock()
	delete(c.requests, id)
	c.muReq.Unlock()
}

// Call 调用 JSON-RPC 方法
func (c *websocketClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, &Error{Code: ErrCodeClosed, Message: "websocket client is closed"}
	}

	reqID := c.nextID.Add(1)
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      reqID,
	}

	respCh := make(chan *jsonRPCResponse, 1)
	c.muReq.Lock()
	c.requests[reqID] = respCh
	c.muReq.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(reqID)
		return nil, NewNetworkError(fmt.Errorf("write request: %w", err))
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		return resp.result()

	case <-c.done:
		c.forget(reqID)
		return nil, NewNetworkError(fmt.Errorf("websocket connection closed"))

	case <-ctx.Done():
		c.forget(reqID)
		return nil, ctx.Err()

	case <-timer.C:
		c.forget(reqID)
		return nil, NewTimeoutError()
	}
}

// Close 关闭连接
func (c *websocketClient) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		return c.conn.Close()
	}
	return nil
}
