package simnet

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/weisyn/ptx-sdk-go/client"
	"github.com/weisyn/ptx-sdk-go/types"
	"github.com/weisyn/ptx-sdk-go/wallet"
)

var _ client.RPCHandler = (*Network)(nil)

// decodeParams 按位置解析参数，缺省的尾部参数保持零值
func decodeParams(raw json.RawMessage, targets ...interface{}) error {
	var params []json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return client.NewInvalidParamsError(err)
		}
	}
	if len(params) > len(targets) {
		return client.NewInvalidParamsError(fmt.Errorf("expected at most %d params, got %d", len(targets), len(params)))
	}
	for i, p := range params {
		if err := json.Unmarshal(p, targets[i]); err != nil {
			return client.NewInvalidParamsError(fmt.Errorf("param %d: %w", i, err))
		}
	}
	return nil
}

// HandleRPC 以节点 JSON-RPC 方法提供账本与网关
func (n *Network) HandleRPC(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case client.MethodGetObject:
		var id types.ObjectID
		var opts client.ObjectDataOptions
		if err := decodeParams(params, &id, &opts); err != nil {
			return nil, err
		}
		return n.objectResponse(ctx, id)

	case client.MethodMultiGetObjects:
		var ids []types.ObjectID
		var opts client.ObjectDataOptions
		if err := decodeParams(params, &ids, &opts); err != nil {
			return nil, err
		}
		out := make([]client.ObjectResponse, 0, len(ids))
		for _, id := range ids {
			resp, err := n.objectResponse(ctx, id)
			if err != nil {
				return nil, err
			}
			out = append(out, *resp)
		}
		return out, nil

	case client.MethodGetOwnedObjects:
		var (
			owner  types.Address
			query  client.OwnedObjectsQuery
			cursor *types.ObjectID
			limit  int
		)
		if err := decodeParams(params, &owner, &query, &cursor, &limit); err != nil {
			return nil, err
		}
		return n.ownedPage(ctx, owner, query, cursor, limit)

	case client.MethodGetReferenceGasPrice:
		price, err := n.GetReferenceGasPrice(ctx)
		if err != nil {
			return nil, err
		}
		return client.Uint64String(price), nil

	case client.MethodExecuteTransaction:
		var (
			txB64   string
			sigsB64 []string
			opts    client.ExecuteOptions
			mode    types.ConsistencyMode
		)
		if err := decodeParams(params, &txB64, &sigsB64, &opts, &mode); err != nil {
			return nil, err
		}
		txBytes, err := base64.StdEncoding.DecodeString(txB64)
		if err != nil {
			return nil, types.Wrap(types.ErrMalformedTransaction, err, "transaction bytes are not base64")
		}
		sigs := make([]wallet.Signature, 0, len(sigsB64))
		for i, s := range sigsB64 {
			sig, err := wallet.ParseSignature(s)
			if err != nil {
				return nil, types.Wrap(types.ErrMalformedTransaction, err, "signature %d", i)
			}
			sigs = append(sigs, sig)
		}
		if mode == "" {
			mode = types.WaitForEffectsCert
		}
		res, err := n.Execute(ctx, txBytes, sigs, mode)
		if err != nil {
			return nil, err
		}
		var confirmed *bool
		if mode == types.WaitForLocalExecution {
			confirmed = &res.ConfirmedLocalExecution
		}
		return client.NewTransactionBlockResponse(res, confirmed), nil

	case client.MethodGetTransaction:
		var digest types.Digest
		var opts client.ExecuteOptions
		if err := decodeParams(params, &digest, &opts); err != nil {
			return nil, err
		}
		res, err := n.GetTransaction(ctx, digest)
		if err != nil {
			return nil, err
		}
		return client.NewTransactionBlockResponse(res, nil), nil

	default:
		return nil, client.NewMethodNotFoundError(method)
	}
}

func (n *Network) objectResponse(ctx context.Context, id types.ObjectID) (*client.ObjectResponse, error) {
	info, err := n.GetObject(ctx, id)
	if err != nil {
		if types.KindOf(err) == types.KindResolution {
			return &client.ObjectResponse{Error: &client.ObjectResponseError{Code: client.ObjectErrorNotExists, ObjectID: &id}}, nil
		}
		return nil, err
	}
	return &client.ObjectResponse{Data: client.ObjectDataFromInfo(info)}, nil
}

func (n *Network) ownedPage(ctx context.Context, owner types.Address, query client.OwnedObjectsQuery, cursor *types.ObjectID, limit int) (*client.OwnedObjectsPage, error) {
	var filter *types.ObjectFilter
	if query.Filter != nil {
		filter = &types.ObjectFilter{StructType: query.Filter.StructType}
	}
	all, err := n.GetOwnedObjects(ctx, owner, filter)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	start := 0
	if cursor != nil {
		for i, o := range all {
			if o.Ref.ObjectID.Compare(*cursor) > 0 {
				start = i
				break
			}
			start = i + 1
		}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	page := &client.OwnedObjectsPage{Data: []client.ObjectResponse{}}
	for _, o := range all[start:end] {
		page.Data = append(page.Data, client.ObjectResponse{Data: client.ObjectDataFromInfo(o)})
	}
	if end < len(all) {
		next := all[end-1].Ref.ObjectID
		page.NextCursor = &next
		page.HasNextPage = true
	}
	return page, nil
}
