package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/weisyn/ptx-sdk-go/types"
)

// 节点 JSON-RPC 方法名
const (
	MethodGetObject            = "sui_getObject"
	MethodMultiGetObjects      = "sui_multiGetObjects"
	MethodGetOwnedObjects      = "suix_getOwnedObjects"
	MethodGetReferenceGasPrice = "suix_getReferenceGasPrice"
	MethodExecuteTransaction   = "sui_executeTransactionBlock"
	MethodGetTransaction       = "sui_getTransactionBlock"
)

// 对象读取错误码
const (
	ObjectErrorNotExists = "notExists"
	ObjectErrorDeleted   = "deleted"
)

// Uint64String 以十进制字符串编码的 uint64（兼容数字形式）
type Uint64String uint64

func (u Uint64String) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u *Uint64String) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %s: %w", data, err)
	}
	*u = Uint64String(v)
	return nil
}

// OwnerJSON 所有权的 JSON 形式
//
//	{"AddressOwner":"0x.."} | {"Shared":{"initial_shared_version":N}} | "Immutable"
type OwnerJSON struct {
	Owner types.Owner
}

type sharedJSON struct {
	InitialSharedVersion Uint64String `json:"initial_shared_version"`
}

type ownerObjectJSON struct {
	AddressOwner *types.Address `json:"AddressOwner,omitempty"`
	Shared       *sharedJSON    `json:"Shared,omitempty"`
}

func (o OwnerJSON) MarshalJSON() ([]byte, error) {
	switch owner := o.Owner.(type) {
	case types.AddressOwner:
		return json.Marshal(ownerObjectJSON{AddressOwner: &owner.Address})
	case types.SharedOwner:
		return json.Marshal(ownerObjectJSON{Shared: &sharedJSON{InitialSharedVersion: Uint64String(owner.InitialSharedVersion)}})
	case types.ImmutableOwner:
		return json.Marshal("Immutable")
	default:
		return nil, fmt.Errorf("unsupported owner %T", o.Owner)
	}
}

func (o *OwnerJSON) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "Immutable" {
			return fmt.Errorf("unsupported owner %q", s)
		}
		o.Owner = types.ImmutableOwner{}
		return nil
	}

	var obj ownerObjectJSON
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	switch {
	case obj.AddressOwner != nil:
		o.Owner = types.AddressOwner{Address: *obj.AddressOwner}
	case obj.Shared != nil:
		o.Owner = types.SharedOwner{InitialSharedVersion: uint64(obj.Shared.InitialSharedVersion)}
	default:
		return fmt.Errorf("unsupported owner %s", data)
	}
	return nil
}

// ObjectDataOptions 对象读取选项
type ObjectDataOptions struct {
	ShowType    bool `json:"showType,omitempty"`
	ShowOwner   bool `json:"showOwner,omitempty"`
	ShowContent bool `json:"showContent,omitempty"`
}

// fullObjectOptions SDK 解析所需的全部字段
var fullObjectOptions = &ObjectDataOptions{ShowType: true, ShowOwner: true, ShowContent: true}

// MoveContent 对象内容（仅解析 Coin 余额）
type MoveContent struct {
	DataType string                 `json:"dataType"`
	Type     string                 `json:"type"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

// ObjectData 对象数据
type ObjectData struct {
	ObjectID types.ObjectID `json:"objectId"`
	Version  Uint64String   `json:"version"`
	Digest   types.Digest   `json:"digest"`
	Type     string         `json:"type,omitempty"`
	Owner    *OwnerJSON     `json:"owner,omitempty"`
	Content  *MoveContent   `json:"content,omitempty"`
}

// ObjectDataFromInfo 构造对象数据
func ObjectDataFromInfo(info *types.ObjectInfo) *ObjectData {
	d := &ObjectData{
		ObjectID: info.Ref.ObjectID,
		Version:  Uint64String(info.Ref.Version),
		Digest:   info.Ref.Digest,
		Type:     info.Type,
	}
	if info.Owner != nil {
		d.Owner = &OwnerJSON{Owner: info.Owner}
	}
	if info.Type != "" {
		d.Content = &MoveContent{DataType: "moveObject", Type: info.Type}
		if info.Balance != nil {
			d.Content.Fields = map[string]interface{}{
				"balance": strconv.FormatUint(*info.Balance, 10),
			}
		}
	}
	return d
}

// ToInfo 转换为 SDK 对象信息
func (d *ObjectData) ToInfo() (*types.ObjectInfo, error) {
	info := &types.ObjectInfo{
		Ref: types.ObjectRef{
			ObjectID: d.ObjectID,
			Version:  uint64(d.Version),
			Digest:   d.Digest,
		},
		Type: d.Type,
	}
	if d.Owner != nil {
		info.Owner = d.Owner.Owner
	}
	if d.Content != nil && d.Content.Fields != nil {
		if raw, ok := d.Content.Fields["balance"]; ok {
			balance, err := parseBalance(raw)
			if err != nil {
				return nil, fmt.Errorf("object %s: %w", d.ObjectID, err)
			}
			info.Balance = &balance
		}
	}
	return info, nil
}

func parseBalance(raw interface{}) (uint64, error) {
	switch v := raw.(type) {
	case string:
		return strconv.ParseUint(v, 10, 64)
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("negative balance %v", v)
		}
		return uint64(v), nil
	default:
		return 0, fmt.Errorf("unexpected balance type %T", raw)
	}
}

// ObjectResponseError 对象读取错误
type ObjectResponseError struct {
	Code     string          `json:"code"`
	ObjectID *types.ObjectID `json:"object_id,omitempty"`
}

// ObjectResponse 单个对象读取结果
type ObjectResponse struct {
	Data  *ObjectData          `json:"data,omitempty"`
	Error *ObjectResponseError `json:"error,omitempty"`
}

// OwnedObjectsFilter 按类型过滤
type OwnedObjectsFilter struct {
	StructType string `json:"StructType,omitempty"`
}

// OwnedObjectsQuery 所有者对象查询
type OwnedObjectsQuery struct {
	Filter  *OwnedObjectsFilter `json:"filter,omitempty"`
	Options *ObjectDataOptions  `json:"options,omitempty"`
}

// OwnedObjectsPage 分页结果
type OwnedObjectsPage struct {
	Data        []ObjectResponse `json:"data"`
	NextCursor  *types.ObjectID  `json:"nextCursor"`
	HasNextPage bool             `json:"hasNextPage"`
}

// ExecuteOptions 执行响应选项
type ExecuteOptions struct {
	ShowEffects bool `json:"showEffects"`
}

// ObjectRefJSON 对象引用
type ObjectRefJSON struct {
	ObjectID types.ObjectID `json:"objectId"`
	Version  Uint64String   `json:"version"`
	Digest   types.Digest   `json:"digest"`
}

func (r ObjectRefJSON) ref() types.ObjectRef {
	return types.ObjectRef{ObjectID: r.ObjectID, Version: uint64(r.Version), Digest: r.Digest}
}

// OwnedObjectRef effects 中的对象变更
type OwnedObjectRef struct {
	Owner     *OwnerJSON    `json:"owner,omitempty"`
	Reference ObjectRefJSON `json:"reference"`
}

// ExecutionStatusJSON 执行状态
type ExecutionStatusJSON struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// GasCostSummaryJSON gas 消耗
type GasCostSummaryJSON struct {
	ComputationCost Uint64String `json:"computationCost"`
	StorageCost     Uint64String `json:"storageCost"`
	StorageRebate   Uint64String `json:"storageRebate"`
}

// EffectsJSON 交易 effects
type EffectsJSON struct {
	Status            ExecutionStatusJSON `json:"status"`
	GasUsed           GasCostSummaryJSON  `json:"gasUsed"`
	Mutated           []OwnedObjectRef    `json:"mutated,omitempty"`
	Created           []OwnedObjectRef    `json:"created,omitempty"`
	TransactionDigest types.Digest        `json:"transactionDigest"`
}

// TransactionBlockResponse 执行/查询交易的响应
type TransactionBlockResponse struct {
	Digest                  types.Digest `json:"digest"`
	Effects                 *EffectsJSON `json:"effects,omitempty"`
	ConfirmedLocalExecution *bool        `json:"confirmedLocalExecution,omitempty"`
}

// NewTransactionBlockResponse 由执行结果构造响应
func NewTransactionBlockResponse(r *types.ExecutionResult, confirmed *bool) *TransactionBlockResponse {
	effects := &EffectsJSON{
		Status: ExecutionStatusJSON{Status: string(r.Status), Error: r.Error},
		GasUsed: GasCostSummaryJSON{
			ComputationCost: Uint64String(r.GasUsed.ComputationCost),
			StorageCost:     Uint64String(r.GasUsed.StorageCost),
			StorageRebate:   Uint64String(r.GasUsed.StorageRebate),
		},
		TransactionDigest: r.Digest,
	}
	for _, ref := range r.Mutated {
		effects.Mutated = append(effects.Mutated, OwnedObjectRef{Reference: refJSON(ref)})
	}
	for _, ref := range r.Created {
		effects.Created = append(effects.Created, OwnedObjectRef{Reference: refJSON(ref)})
	}
	return &TransactionBlockResponse{
		Digest:                  r.Digest,
		Effects:                 effects,
		ConfirmedLocalExecution: confirmed,
	}
}

func refJSON(ref types.ObjectRef) ObjectRefJSON {
	return ObjectRefJSON{ObjectID: ref.ObjectID, Version: Uint64String(ref.Version), Digest: ref.Digest}
}

// ToResult 转换为执行结果
func (r *TransactionBlockResponse) ToResult(mode types.ConsistencyMode) (*types.ExecutionResult, error) {
	if r.Effects == nil {
		return nil, fmt.Errorf("transaction %s: response has no effects", r.Digest)
	}

	status := types.ExecutionStatus(r.Effects.Status.Status)
	if status != types.ExecutionSuccess && status != types.ExecutionFailure {
		return nil, fmt.Errorf("transaction %s: unknown status %q", r.Digest, r.Effects.Status.Status)
	}

	result := &types.ExecutionResult{
		Digest: r.Digest,
		Status: status,
		Error:  r.Effects.Status.Error,
		GasUsed: types.GasSummary{
			ComputationCost: uint64(r.Effects.GasUsed.ComputationCost),
			StorageCost:     uint64(r.Effects.GasUsed.StorageCost),
			StorageRebate:   uint64(r.Effects.GasUsed.StorageRebate),
		},
		Mode: mode,
	}
	if r.ConfirmedLocalExecution != nil {
		result.ConfirmedLocalExecution = *r.ConfirmedLocalExecution
	}
	for _, o := range r.Effects.Mutated {
		result.Mutated = append(result.Mutated, o.Reference.ref())
	}
	for _, o := range r.Effects.Created {
		result.Created = append(result.Created, o.Reference.ref())
	}
	return result, nil
}
