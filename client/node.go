package client

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/weisyn/ptx-sdk-go/tx"
	"github.com/weisyn/ptx-sdk-go/types"
	"github.com/weisyn/ptx-sdk-go/utils"
)

const (
	// ownedObjectsPageSize 分页查询每页数量
	ownedObjectsPageSize = 50
	// multiGetChunkSize 批量读取每批数量
	multiGetChunkSize = 50
	// multiGetConcurrency 批量读取并发批次数
	multiGetConcurrency = 5
)

// NodeClient 类型化的节点客户端
//
// 账本读取（可重试）+ 交易执行（不重试）。实现 resolver.LedgerReader、
// tx.GasPriceSource 以及提交驱动所需的网关接口。
type NodeClient struct {
	rpc    Client
	logger Logger
}

// NewNodeClient 包装底层 JSON-RPC 客户端
func NewNodeClient(c Client, logger Logger) *NodeClient {
	return &NodeClient{rpc: c, logger: LoggerOrNop(logger)}
}

// Dial 按配置建立连接
func Dial(config *Config) (*NodeClient, error) {
	if config == nil {
		config = DefaultConfig()
	}
	c, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	return NewNodeClient(c, config.Logger), nil
}

// call 调用并解析结果，错误统一映射为 SDK 错误
func (n *NodeClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	raw, err := n.rpc.Call(ctx, method, params)
	if err != nil {
		return classifyError(method, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return types.Wrap(types.ErrNetworkUnavailable, err, "%s: decode result", method)
	}
	return nil
}

// GetObject 读取对象最新状态
func (n *NodeClient) GetObject(ctx context.Context, id types.ObjectID) (*types.ObjectInfo, error) {
	var resp ObjectResponse
	if err := n.call(ctx, MethodGetObject, []interface{}{id, fullObjectOptions}, &resp); err != nil {
		return nil, err
	}
	return objectFromResponse(id, &resp)
}

func objectFromResponse(id types.ObjectID, resp *ObjectResponse) (*types.ObjectInfo, error) {
	if resp.Error != nil || resp.Data == nil {
		code := ObjectErrorNotExists
		if resp.Error != nil {
			code = resp.Error.Code
		}
		return nil, types.NewError(types.KindResolution, types.CodeObjectNotFound,
			"object %s not found", id).WithDetail("reason", code)
	}
	info, err := resp.Data.ToInfo()
	if err != nil {
		return nil, types.Wrap(types.ErrNetworkUnavailable, err, "decode object %s", id)
	}
	return info, nil
}

// MultiGetObjects 批量读取对象，结果顺序与 ids 一致；任一对象不存在即失败
func (n *NodeClient) MultiGetObjects(ctx context.Context, ids []types.ObjectID) ([]*types.ObjectInfo, error) {
	return utils.BatchQuery(ctx, ids, func(ctx context.Context, chunk []types.ObjectID, _ int) ([]*types.ObjectInfo, error) {
		var resp []ObjectResponse
		if err := n.call(ctx, MethodMultiGetObjects, []interface{}{chunk, fullObjectOptions}, &resp); err != nil {
			return nil, err
		}
		if len(resp) != len(chunk) {
			return nil, types.NewError(types.KindSubmission, types.CodeNetworkUnavailable,
				"%s returned %d objects for %d ids", MethodMultiGetObjects, len(resp), len(chunk))
		}
		out := make([]*types.ObjectInfo, len(resp))
		for i := range resp {
			info, err := objectFromResponse(chunk[i], &resp[i])
			if err != nil {
				return nil, err
			}
			out[i] = info
		}
		return out, nil
	}, &utils.BatchConfig{BatchSize: multiGetChunkSize, Concurrency: multiGetConcurrency})
}

// GetOwnedObjects 读取地址持有的全部对象（自动翻页）
func (n *NodeClient) GetOwnedObjects(ctx context.Context, owner types.Address, filter *types.ObjectFilter) ([]*types.ObjectInfo, error) {
	query := OwnedObjectsQuery{Options: fullObjectOptions}
	if filter != nil && filter.StructType != "" {
		query.Filter = &OwnedObjectsFilter{StructType: filter.StructType}
	}

	var (
		out    []*types.ObjectInfo
		cursor *types.ObjectID
	)
	for {
		var page OwnedObjectsPage
		params := []interface{}{owner, query, cursor, ownedObjectsPageSize}
		if err := n.call(ctx, MethodGetOwnedObjects, params, &page); err != nil {
			return nil, err
		}

		for i := range page.Data {
			if page.Data[i].Data == nil {
				continue
			}
			info, err := page.Data[i].Data.ToInfo()
			if err != nil {
				return nil, types.Wrap(types.ErrNetworkUnavailable, err, "decode owned object")
			}
			out = append(out, info)
		}

		if !page.HasNextPage || page.NextCursor == nil {
			return out, nil
		}
		if cursor != nil && *cursor == *page.NextCursor {
			return nil, types.NewError(types.KindSubmission, types.CodeNetworkUnavailable,
				"%s: cursor did not advance", MethodGetOwnedObjects)
		}
		cursor = page.NextCursor
	}
}

// GetReferenceGasPrice 当前参考 gas 价格
func (n *NodeClient) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	var price Uint64String
	if err := n.call(ctx, MethodGetReferenceGasPrice, []interface{}{}, &price); err != nil {
		return 0, err
	}
	return uint64(price), nil
}

// ExecuteTransaction 提交已签名交易
//
// 不做传输层重试：重发的决定交给上层（按摘要幂等）
func (n *NodeClient) ExecuteTransaction(ctx context.Context, signed *tx.SignedTransaction, mode types.ConsistencyMode) (*types.ExecutionResult, error) {
	if !mode.Valid() {
		return nil, types.NewError(types.KindSubmission, types.CodeInvalidConsistencyMode, "unknown consistency mode %q", mode)
	}

	sigs := signed.Signatures()
	encodedSigs := make([]string, len(sigs))
	for i, sig := range sigs {
		encodedSigs[i] = sig.Base64()
	}
	params := []interface{}{
		base64.StdEncoding.EncodeToString(signed.Payload().Bytes()),
		encodedSigs,
		ExecuteOptions{ShowEffects: true},
		mode,
	}

	n.logger.Debug("Executing transaction", "digest", signed.Digest().String(), "mode", string(mode))

	var resp TransactionBlockResponse
	if err := n.call(WithoutRetry(ctx), MethodExecuteTransaction, params, &resp); err != nil {
		return nil, err
	}

	if resp.Digest != signed.Digest() {
		return nil, types.NewError(types.KindSubmission, types.CodeDigestMismatch,
			"node returned digest %s for transaction %s", resp.Digest, signed.Digest())
	}
	result, err := resp.ToResult(mode)
	if err != nil {
		return nil, types.Wrap(types.ErrNetworkUnavailable, err, "decode execution result")
	}
	return result, nil
}

// GetTransaction 查询已执行交易的 effects；能查到即说明本节点已执行
func (n *NodeClient) GetTransaction(ctx context.Context, digest types.Digest) (*types.ExecutionResult, error) {
	var resp TransactionBlockResponse
	params := []interface{}{digest, ExecuteOptions{ShowEffects: true}}
	if err := n.call(ctx, MethodGetTransaction, params, &resp); err != nil {
		return nil, err
	}
	if resp.Digest != digest {
		return nil, types.NewError(types.KindSubmission, types.CodeDigestMismatch,
			"node returned digest %s for query %s", resp.Digest, digest)
	}
	result, err := resp.ToResult(types.WaitForLocalExecution)
	if err != nil {
		return nil, types.Wrap(types.ErrNetworkUnavailable, err, "decode transaction %s", digest)
	}
	result.ConfirmedLocalExecution = true
	return result, nil
}

// Close 关闭底层连接
func (n *NodeClient) Close() error {
	return n.rpc.Close()
}
