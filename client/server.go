package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"

	"github.com/weisyn/ptx-sdk-go/types"
)

// RPCHandler JSON-RPC 方法分发器（节点侧或测试网络实现）
type RPCHandler interface {
	HandleRPC(ctx context.Context, method string, params json.RawMessage) (interface{}, error)
}

// RPCHandlerFunc 函数适配器
type RPCHandlerFunc func(ctx context.Context, method string, params json.RawMessage) (interface{}, error)

// HandleRPC 实现 RPCHandler
func (f RPCHandlerFunc) HandleRPC(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	return f(ctx, method, params)
}

// NewMethodNotFoundError 未知方法
func NewMethodNotFoundError(method string) *RPCError {
	return &RPCError{Code: RPCCodeMethodNotFound, Message: fmt.Sprintf("method %q not found", method)}
}

// NewInvalidParamsError 参数无法解析
func NewInvalidParamsError(err error) *RPCError {
	return &RPCError{Code: RPCCodeInvalidParams, Message: "invalid params: " + err.Error()}
}

// serverRequest 服务端收到的请求（params 延迟解析）
type serverRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      uint64          `json:"id"`
}

// dispatch 调用处理器并构造响应
func dispatch(ctx context.Context, h RPCHandler, req *serverRequest) *jsonRPCResponse {
	resp := &jsonRPCResponse{JSONRPC: "2.0", ID: req.ID}

	result, err := h.HandleRPC(ctx, req.Method, req.Params)
	if err != nil {
		resp.Error = toRPCError(err)
		return resp
	}

	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: RPCCodeInternal, Message: "marshal result: " + err.Error()}
		return resp
	}
	resp.Result = raw
	return resp
}

// toRPCError 把处理器错误转换为 JSON-RPC 错误
//
// SDK 错误以 Problem Details 形式放入 data，客户端据此还原错误码
func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if sdkErr, ok := types.AsError(err); ok {
		code := RPCCodeServer
		if sdkErr.Kind == types.KindSubmission {
			code = RPCCodeTxRejected
		}
		data := map[string]interface{}{
			"code":    sdkErr.Code,
			"kind":    string(sdkErr.Kind),
			"message": sdkErr.Message,
			"traceId": sdkErr.TraceID,
		}
		if len(sdkErr.Details) > 0 {
			data["details"] = sdkErr.Details
		}
		return &RPCError{Code: code, Message: sdkErr.Message, Data: data}
	}
	return &RPCError{Code: RPCCodeInternal, Message: err.Error()}
}

// NewHTTPHandler 以 HTTP POST 提供 JSON-RPC
func NewHTTPHandler(h RPCHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req serverRequest
		var resp *jsonRPCResponse
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			resp = &jsonRPCResponse{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: RPCCodeParseError, Message: err.Error()},
			}
		} else {
			resp = dispatch(r.Context(), h, &req)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// NewWebSocketHandler 以 WebSocket 提供 JSON-RPC，同一连接上的请求并发处理
func NewWebSocketHandler(h RPCHandler) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		var (
			writeMu sync.Mutex
			wg      sync.WaitGroup
		)
		defer wg.Wait()

		for {
			var req serverRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			wg.Add(1)
			go func(req serverRequest) {
				defer wg.Done()
				resp := dispatch(ctx, h, &req)
				writeMu.Lock()
				defer writeMu.Unlock()
				_ = conn.WriteJSON(resp)
			}(req)
		}
	})
}

// RegisterGRPCHandler 在 gRPC 服务器上注册 JSON-RPC 桥接服务
func RegisterGRPCHandler(s *grpc.Server, h RPCHandler) {
	s.RegisterService(&jsonRPCServiceDesc, h)
}

var jsonRPCServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*RPCHandler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Call",
			Handler:    grpcCallHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ptx/rpc/v1/jsonrpc.proto",
}

func grpcCallHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(serverRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	h := srv.(RPCHandler)
	if interceptor == nil {
		return dispatch(ctx, h, in), nil
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: grpcCallMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return dispatch(ctx, h, req.(*serverRequest)), nil
	}
	return interceptor(ctx, in, info, handler)
}
