package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/weisyn/ptx-sdk-go/types"
)

// httpClient HTTP 客户端实现
type httpClient struct {
	endpoint string
	client   *http.Client
	logger   Logger
	debug    bool
	nextID   atomic.Uint64
	retry    *RetryConfig
}

// NewHTTPClient 创建 HTTP 客户端
func NewHTTPClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	httpCli := &http.Client{
		Timeout: config.timeout(),
	}

	tlsCfg, err := config.tlsConfig()
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		httpCli.Transport = &http.Transport{TLSClientConfig: tlsCfg}
	}

	logger := LoggerOrNop(config.Logger)
	retryConfig := config.Retry
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
		retryConfig.OnRetry = func(attempt int, err error) {
			logger.Warn("Retrying request", "attempt", attempt, "error", err)
		}
	}

	return &httpClient{
		endpoint: config.Endpoint,
		client:   httpCli,
		logger:   logger,
		debug:    config.Debug,
		retry:    retryConfig,
	}, nil
}

// Call 调用 JSON-RPC 方法
func (c *httpClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	req := &jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	if c.debug {
		c.logger.Debug("JSON-RPC request", "method", method, "body", string(reqBody))
	}

	var result json.RawMessage
	err = withRetry(ctx, func() error {
		var callErr error
		result, callErr = c.post(ctx, reqBody)
		return callErr
	}, c.retry)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// post 发送一次请求（Body 只能读取一次，每次重试重新构建）
func (c *httpClient) post(ctx context.Context, reqBody []byte) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewNetworkError(err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("read response failed: %w", err))
	}

	if c.debug {
		c.logger.Debug("JSON-RPC response", "status", resp.StatusCode, "body", string(respBody))
	}

	if resp.StatusCode != http.StatusOK {
		// 网关可能以 application/problem+json 返回结构化错误
		if strings.Contains(resp.Header.Get("Content-Type"), "json") {
			var data map[string]interface{}
			if json.Unmarshal(respBody, &data) == nil {
				if sdkErr, ok := types.ParseProblemDetails(data); ok {
					return nil, sdkErr
				}
			}
		}
		return nil, NewHTTPStatusError(resp.StatusCode, string(respBody))
	}

	var jsonResp jsonRPCResponse
	if err := json.Unmarshal(respBody, &jsonResp); err != nil {
		return nil, NewInvalidResponseError("unmarshal response failed", err)
	}
	return jsonResp.result()
}

// Close 关闭空闲连接
func (c *httpClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
