package client

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/weisyn/ptx-sdk-go/types"
)

// rejectionRule 节点错误信息到 SDK 错误码的映射（按顺序匹配，gas price 须先于 gas）
type rejectionRule struct {
	needles  []string
	sentinel *types.Error
}

var rejectionRules = []rejectionRule{
	{[]string{"already executed"}, types.ErrAlreadyExecuted},
	{[]string{"equivocat", "objectlockconflict", "locked"}, types.ErrObjectLocked},
	{[]string{"objectversionunavailableforconsumption", "stale"}, types.ErrStaleObject},
	{[]string{"gaspriceunderrgp", "gas price"}, types.ErrInsufficientGasPrice},
	{[]string{"insufficientgas", "gasbalancetoolow", "insufficient gas"}, types.ErrInsufficientGas},
	{[]string{"deserializ", "malformed", "invalid params"}, types.ErrMalformedTransaction},
	{[]string{"could not find the referenced transaction"}, types.ErrTransactionNotFound},
}

// classifyError 把传输层/节点错误映射为 SDK 错误
func classifyError(method string, err error) error {
	if err == nil {
		return nil
	}

	// 1. 已是 SDK 错误（如 HTTP Problem Details）
	if _, ok := types.AsError(err); ok {
		return err
	}

	// 2. 节点返回的 JSON-RPC 错误
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return classifyRPCError(method, rpcErr)
	}

	// 3. 超时
	if errors.Is(err, context.DeadlineExceeded) {
		return types.Wrap(types.ErrNetworkTimeout, err, "%s timed out", method)
	}
	var clientErr *Error
	if errors.As(err, &clientErr) && clientErr.Code == ErrCodeTimeout {
		return types.Wrap(types.ErrNetworkTimeout, err, "%s timed out", method)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.Wrap(types.ErrNetworkTimeout, err, "%s timed out", method)
	}

	// 4. 其余均视为网络不可用
	return types.Wrap(types.ErrNetworkUnavailable, err, "%s failed", method)
}

func classifyRPCError(method string, rpcErr *RPCError) error {
	if sdkErr, ok := types.ParseProblemDetails(rpcErr.Data); ok {
		sdkErr.Cause = rpcErr
		return sdkErr
	}

	msg := strings.ToLower(rpcErr.Message)
	for _, rule := range rejectionRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return types.Wrap(rule.sentinel, rpcErr, "%s", rpcErr.Message)
			}
		}
	}

	if method == MethodExecuteTransaction {
		return types.Wrap(types.ErrRejected, rpcErr, "%s", rpcErr.Message)
	}
	return types.Wrap(types.ErrNetworkUnavailable, rpcErr, "%s: %s", method, rpcErr.Message)
}
