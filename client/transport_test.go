package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/weisyn/ptx-sdk-go/types"
)

// echoHandler 测试用分发器
func echoHandler() RPCHandler {
	return RPCHandlerFunc(func(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
		switch method {
		case "echo":
			var args []string
			if err := json.Unmarshal(params, &args); err != nil {
				return nil, NewInvalidParamsError(err)
			}
			return map[string]interface{}{"args": args}, nil
		case "stale":
			return nil, types.NewError(types.KindSubmission, types.CodeStaleObject, "object 0x5 is at version 4")
		default:
			return nil, NewMethodNotFoundError(method)
		}
	})
}

// startTransports 以三种协议启动同一个分发器
func startTransports(t *testing.T, h RPCHandler) map[Protocol]Client {
	t.Helper()
	clients := make(map[Protocol]Client)

	httpSrv := httptest.NewServer(NewHTTPHandler(h))
	t.Cleanup(httpSrv.Close)
	hc, err := NewHTTPClient(&Config{Endpoint: httpSrv.URL, Timeout: 5})
	require.NoError(t, err)
	clients[ProtocolHTTP] = hc

	wsSrv := httptest.NewServer(NewWebSocketHandler(h))
	t.Cleanup(wsSrv.Close)
	wc, err := NewWebSocketClient(&Config{Endpoint: wsSrv.URL, Timeout: 5})
	require.NoError(t, err)
	clients[ProtocolWebSocket] = wc

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterGRPCHandler(gs, h)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)
	gc, err := dialGRPC(&Config{Endpoint: "bufnet", Timeout: 5},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	clients[ProtocolGRPC] = gc

	for _, c := range clients {
		c := c
		t.Cleanup(func() { _ = c.Close() })
	}
	return clients
}

func TestTransportsRoundTrip(t *testing.T) {
	for proto, c := range startTransports(t, echoHandler()) {
		c := c
		t.Run(string(proto), func(t *testing.T) {
			raw, err := c.Call(context.Background(), "echo", []string{"a", "b"})
			require.NoError(t, err)
			assert.JSONEq(t, `{"args":["a","b"]}`, string(raw))

			_, err = c.Call(context.Background(), "nope", []string{})
			var rpcErr *RPCError
			require.True(t, errors.As(err, &rpcErr), "got %v", err)
			assert.Equal(t, RPCCodeMethodNotFound, rpcErr.Code)
		})
	}
}

func TestTransportsCarryStructuredErrors(t *testing.T) {
	for proto, c := range startTransports(t, echoHandler()) {
		c := c
		t.Run(string(proto), func(t *testing.T) {
			node := NewNodeClient(c, nil)
			err := node.call(context.Background(), "stale", []interface{}{}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrStaleObject)
			assert.Equal(t, types.KindSubmission, types.KindOf(err))
		})
	}
}

func TestWebSocketConcurrentCalls(t *testing.T) {
	clients := startTransports(t, echoHandler())
	c := clients[ProtocolWebSocket]

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := c.Call(context.Background(), "echo", []string{"x"})
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestWebSocketClosedClient(t *testing.T) {
	clients := startTransports(t, echoHandler())
	c := clients[ProtocolWebSocket]
	require.NoError(t, c.Close())

	_, err := c.Call(context.Background(), "echo", []string{})
	var clientErr *Error
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, ErrCodeClosed, clientErr.Code)
}

func TestWebSocketURL(t *testing.T) {
	tests := map[string]string{
		"http://node:9000":  "ws://node:9000",
		"https://node:9000": "wss://node:9000",
		"ws://node":         "ws://node",
		"wss://node":        "wss://node",
		"node:9000":         "ws://node:9000",
	}
	for in, want := range tests {
		assert.Equal(t, want, websocketURL(in), in)
	}
}

func TestNewClientRejectsUnknownProtocol(t *testing.T) {
	_, err := NewClient(&Config{Endpoint: "x", Protocol: "carrier-pigeon"})
	assert.Error(t, err)
}
