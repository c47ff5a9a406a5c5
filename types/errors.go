package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrorKind 错误分类（对应流水线阶段）
type ErrorKind string

const (
	KindResolution ErrorKind = "resolution"
	KindBuild      ErrorKind = "build"
	KindSigning    ErrorKind = "signing"
	KindSubmission ErrorKind = "submission"
)

// 错误码常量
const (
	// 解析错误
	CodeObjectNotFound      = "OBJECT_NOT_FOUND"
	CodeNoUsableObject      = "NO_USABLE_OBJECT"
	CodeUnexpectedOwnership = "UNEXPECTED_OWNERSHIP"

	// 构建错误
	CodeDanglingReference = "DANGLING_REFERENCE"
	CodeGraphFrozen       = "GRAPH_FROZEN"
	CodeMalformedPure     = "MALFORMED_PURE"
	CodeConflictingInput  = "CONFLICTING_OBJECT_INPUT"
	CodeInvalidCommand    = "INVALID_COMMAND"
	CodeInvalidPayload    = "INVALID_PAYLOAD"

	// 签名错误
	CodeUnknownAddress  = "UNKNOWN_ADDRESS"
	CodeKeyStoreFailure = "KEYSTORE_FAILURE"

	// 提交错误
	CodeStaleObject            = "STALE_OBJECT_REFERENCE"
	CodeObjectLocked           = "OBJECT_LOCKED"
	CodeInsufficientGas        = "INSUFFICIENT_GAS"
	CodeInsufficientGasPrice   = "INSUFFICIENT_GAS_PRICE"
	CodeMalformedTransaction   = "MALFORMED_TRANSACTION"
	CodeNetworkTimeout         = "NETWORK_TIMEOUT"
	CodeNetworkUnavailable     = "NETWORK_UNAVAILABLE"
	CodeRejected               = "TRANSACTION_REJECTED"
	CodeInvalidConsistencyMode = "INVALID_CONSISTENCY_MODE"
	CodeDigestMismatch         = "DIGEST_MISMATCH"
	CodeAlreadyExecuted        = "TRANSACTION_ALREADY_EXECUTED"
	CodeTransactionNotFound    = "TRANSACTION_NOT_FOUND"
)

// Error SDK 统一错误类型（基于 Problem Details 思路：code + kind + traceId）
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]interface{}
	TraceID string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error [%s]: %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error [%s]: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误码匹配，使 errors.Is(err, ErrDanglingReference) 对任意实例生效
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return t.Code == e.Code
}

// 哨兵错误（仅用于 errors.Is 比较，不要直接返回）
var (
	ErrObjectNotFound      = &Error{Kind: KindResolution, Code: CodeObjectNotFound, Message: "object not found"}
	ErrNoUsableObject      = &Error{Kind: KindResolution, Code: CodeNoUsableObject, Message: "no usable object"}
	ErrUnexpectedOwnership = &Error{Kind: KindResolution, Code: CodeUnexpectedOwnership, Message: "unexpected ownership"}

	ErrDanglingReference = &Error{Kind: KindBuild, Code: CodeDanglingReference, Message: "dangling reference"}
	ErrGraphFrozen       = &Error{Kind: KindBuild, Code: CodeGraphFrozen, Message: "command graph is frozen"}
	ErrMalformedPure     = &Error{Kind: KindBuild, Code: CodeMalformedPure, Message: "malformed pure value"}
	ErrConflictingInput  = &Error{Kind: KindBuild, Code: CodeConflictingInput, Message: "conflicting object input"}
	ErrInvalidCommand    = &Error{Kind: KindBuild, Code: CodeInvalidCommand, Message: "invalid command"}
	ErrInvalidPayload    = &Error{Kind: KindBuild, Code: CodeInvalidPayload, Message: "invalid payload"}

	ErrUnknownAddress  = &Error{Kind: KindSigning, Code: CodeUnknownAddress, Message: "unknown address"}
	ErrKeyStoreFailure = &Error{Kind: KindSigning, Code: CodeKeyStoreFailure, Message: "key store failure"}

	ErrStaleObject            = &Error{Kind: KindSubmission, Code: CodeStaleObject, Message: "stale object reference"}
	ErrObjectLocked           = &Error{Kind: KindSubmission, Code: CodeObjectLocked, Message: "object locked by another transaction"}
	ErrInsufficientGas        = &Error{Kind: KindSubmission, Code: CodeInsufficientGas, Message: "insufficient gas"}
	ErrInsufficientGasPrice   = &Error{Kind: KindSubmission, Code: CodeInsufficientGasPrice, Message: "insufficient gas price"}
	ErrMalformedTransaction   = &Error{Kind: KindSubmission, Code: CodeMalformedTransaction, Message: "malformed transaction"}
	ErrNetworkTimeout         = &Error{Kind: KindSubmission, Code: CodeNetworkTimeout, Message: "network timeout"}
	ErrNetworkUnavailable     = &Error{Kind: KindSubmission, Code: CodeNetworkUnavailable, Message: "network unavailable"}
	ErrRejected               = &Error{Kind: KindSubmission, Code: CodeRejected, Message: "transaction rejected"}
	ErrInvalidConsistencyMode = &Error{Kind: KindSubmission, Code: CodeInvalidConsistencyMode, Message: "invalid consistency mode"}
	ErrDigestMismatch         = &Error{Kind: KindSubmission, Code: CodeDigestMismatch, Message: "digest mismatch"}
	ErrAlreadyExecuted        = &Error{Kind: KindSubmission, Code: CodeAlreadyExecuted, Message: "transaction already executed"}
	ErrTransactionNotFound    = &Error{Kind: KindSubmission, Code: CodeTransactionNotFound, Message: "transaction not found"}
)

// NewError 创建带 traceId 的错误
func NewError(kind ErrorKind, code string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		TraceID: uuid.New().String(),
	}
}

// Wrap 以哨兵错误的 kind/code 包装底层错误
func Wrap(sentinel *Error, cause error, format string, args ...interface{}) *Error {
	e := NewError(sentinel.Kind, sentinel.Code, format, args...)
	e.Cause = cause
	return e
}

// WithDetail 附加结构化详情
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// AsError 从错误链中提取 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf 返回错误分类，非 SDK 错误返回空串
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// ParseProblemDetails 从 JSON-RPC 错误的 data 字段解析结构化错误
//
// data 需包含 code；kind 缺省为 submission（网关返回的错误）
func ParseProblemDetails(data interface{}) (*Error, bool) {
	dataMap, ok := data.(map[string]interface{})
	if !ok {
		return nil, false
	}

	code, _ := dataMap["code"].(string)
	if code == "" {
		return nil, false
	}

	kind := KindSubmission
	if k, ok := dataMap["kind"].(string); ok && k != "" {
		kind = ErrorKind(k)
	}

	message, _ := dataMap["message"].(string)
	if message == "" {
		message, _ = dataMap["detail"].(string)
	}

	traceID, _ := dataMap["traceId"].(string)
	if traceID == "" {
		traceID = uuid.New().String()
	}

	details, _ := dataMap["details"].(map[string]interface{})
	if details == nil {
		details = make(map[string]interface{})
	}
	if _, ok := details["timestamp"]; !ok {
		details["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}

	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Details: details,
		TraceID: traceID,
	}, true
}
