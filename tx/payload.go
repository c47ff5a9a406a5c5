// Package tx 交易组装与签名
//
// Payload 在组装时一次性完成 BCS 序列化和摘要计算，之后只读；
// SignedTransaction 是独立的不可变值，签名后无法再修改交易内容。
package tx

import (
	"golang.org/x/crypto/blake2b"

	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/types"
)

// digestPrefix 交易摘要的类型前缀
const digestPrefix = "TransactionData::"

// Payload 待签名的交易（sender + gas + 命令图）
type Payload struct {
	sender     types.Address
	gasPayment []types.ObjectRef
	gasPrice   uint64
	gasBudget  uint64
	pt         *ptb.ProgrammableTransaction

	bytes  []byte
	digest types.Digest
}

// NewPayload 组装交易
//
// gas 由 sender 支付；同一 gas 对象不能重复，也不能同时作为命令输入（命令中用 GasCoin 引用）
func NewPayload(sender types.Address, gas []types.ObjectRef, pt *ptb.ProgrammableTransaction, gasPrice, gasBudget uint64) (*Payload, error) {
	// 1. 参数校验
	if sender.IsZero() {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidPayload, "sender is required")
	}
	if pt == nil {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidPayload, "programmable transaction is required")
	}
	if len(gas) == 0 {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidPayload, "at least one gas payment object is required")
	}
	if gasPrice == 0 {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidPayload, "gas price must be positive")
	}
	if gasBudget == 0 {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidPayload, "gas budget must be positive")
	}

	// 2. gas 对象去重，且不得出现在参数池
	inputs := make(map[types.ObjectID]struct{})
	for _, id := range pt.ObjectIDs() {
		inputs[id] = struct{}{}
	}
	seen := make(map[types.ObjectID]struct{}, len(gas))
	for _, ref := range gas {
		if _, dup := seen[ref.ObjectID]; dup {
			return nil, types.NewError(types.KindBuild, types.CodeInvalidPayload, "gas object %s listed twice", ref.ObjectID)
		}
		seen[ref.ObjectID] = struct{}{}
		if _, used := inputs[ref.ObjectID]; used {
			return nil, types.NewError(types.KindBuild, types.CodeInvalidPayload,
				"gas object %s is also a command input, use the gas coin argument instead", ref.ObjectID)
		}
	}

	// 3. 一次性序列化
	gasCopy := append([]types.ObjectRef(nil), gas...)
	encoded, err := encodeTransactionData(sender, gasCopy, gasPrice, gasBudget, pt)
	if err != nil {
		return nil, types.Wrap(types.ErrInvalidPayload, err, "serialize transaction")
	}

	return &Payload{
		sender:     sender,
		gasPayment: gasCopy,
		gasPrice:   gasPrice,
		gasBudget:  gasBudget,
		pt:         pt,
		bytes:      encoded,
		digest:     TransactionDigest(encoded),
	}, nil
}

// TransactionDigest blake2b-256("TransactionData::" || bytes)，即交易的幂等键
func TransactionDigest(txBytes []byte) types.Digest {
	buf := make([]byte, 0, len(digestPrefix)+len(txBytes))
	buf = append(buf, digestPrefix...)
	buf = append(buf, txBytes...)
	return types.Digest(blake2b.Sum256(buf))
}

// Sender 发送者
func (p *Payload) Sender() types.Address { return p.sender }

// GasOwner gas 支付者（与发送者相同）
func (p *Payload) GasOwner() types.Address { return p.sender }

// GasPayment gas 对象副本
func (p *Payload) GasPayment() []types.ObjectRef {
	return append([]types.ObjectRef(nil), p.gasPayment...)
}

// GasPrice 单价
func (p *Payload) GasPrice() uint64 { return p.gasPrice }

// GasBudget 预算上限
func (p *Payload) GasBudget() uint64 { return p.gasBudget }

// Transaction 冻结的命令图
func (p *Payload) Transaction() *ptb.ProgrammableTransaction { return p.pt }

// Bytes BCS 字节副本
func (p *Payload) Bytes() []byte { return append([]byte(nil), p.bytes...) }

// Digest 交易摘要
func (p *Payload) Digest() types.Digest { return p.digest }
