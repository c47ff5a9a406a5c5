package client

import (
	"fmt"
)

// Error 传输层错误（连接失败、HTTP 状态码、响应无法解析）
type Error struct {
	Code    int
	Message string
	Status  int // 仅 ErrCodeHTTPStatus
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("client error [%d]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("client error [%d]: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// 错误码定义
const (
	ErrCodeNetwork         = 1000 // 网络错误
	ErrCodeTimeout         = 1001 // 超时错误
	ErrCodeInvalidResponse = 1002 // 无效响应
	ErrCodeHTTPStatus      = 1003 // 非 200 的 HTTP 状态
	ErrCodeClosed          = 1004 // 连接已关闭
)

// NewNetworkError 创建网络错误
func NewNetworkError(err error) *Error {
	return &Error{
		Code:    ErrCodeNetwork,
		Message: "network error",
		Err:     err,
	}
}

// NewTimeoutError 创建超时错误
func NewTimeoutError() *Error {
	return &Error{
		Code:    ErrCodeTimeout,
		Message: "request timeout",
	}
}

// NewInvalidResponseError 创建无效响应错误
func NewInvalidResponseError(message string, err error) *Error {
	return &Error{
		Code:    ErrCodeInvalidResponse,
		Message: message,
		Err:     err,
	}
}

// NewHTTPStatusError 创建 HTTP 状态错误
func NewHTTPStatusError(status int, body string) *Error {
	return &Error{
		Code:    ErrCodeHTTPStatus,
		Message: fmt.Sprintf("HTTP %d: %s", status, body),
		Status:  status,
	}
}

// RPCError JSON-RPC 错误对象
//
// Data 可能携带 Problem Details（code / kind / message），由 NodeClient 转换为 types.Error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("RPC error [%d]: %s, data: %v", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("RPC error [%d]: %s", e.Code, e.Message)
}

// 标准 JSON-RPC 错误码
const (
	RPCCodeParseError     = -32700
	RPCCodeInvalidRequest = -32600
	RPCCodeMethodNotFound = -32601
	RPCCodeInvalidParams  = -32602
	RPCCodeInternal       = -32603
	RPCCodeServer         = -32000
	RPCCodeTxRejected     = -32002
)
