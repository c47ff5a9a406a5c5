// Package ptb 可编程交易的参数池与命令图构建器
//
// 参数池（inputs）与命令列表都是只追加的 arena，命令之间通过 u16 下标引用，
// 只允许引用更早的输入或命令结果，因此命令图天然是只有后向边的 DAG。
package ptb

import (
	"fmt"

	"github.com/weisyn/ptx-sdk-go/types"
)

// Argument 命令参数（封闭的标签联合：GasCoin | Input | Result | NestedResult）
type Argument interface {
	isArgument()
	String() string
}

// GasCoin 交易的 gas 币
type GasCoin struct{}

// Input 参数池中的第 Index 个输入
type Input struct {
	Index uint16
}

// Result 第 Index 个命令的（唯一）结果
type Result struct {
	Index uint16
}

// NestedResult 第 Index 个命令的第 ResultIndex 个结果
type NestedResult struct {
	Index       uint16
	ResultIndex uint16
}

func (GasCoin) isArgument()      {}
func (Input) isArgument()        {}
func (Result) isArgument()       {}
func (NestedResult) isArgument() {}

func (GasCoin) String() string  { return "GasCoin" }
func (a Input) String() string  { return fmt.Sprintf("Input(%d)", a.Index) }
func (a Result) String() string { return fmt.Sprintf("Result(%d)", a.Index) }
func (a NestedResult) String() string {
	return fmt.Sprintf("NestedResult(%d,%d)", a.Index, a.ResultIndex)
}

// CallArg 参数池条目（PureInput | ObjectInput）
type CallArg interface {
	isCallArg()
}

// PureInput 已 BCS 编码的纯值
type PureInput struct {
	Bytes []byte
}

// ObjectInput 对象输入
type ObjectInput struct {
	Object ObjectArg
}

func (PureInput) isCallArg()   {}
func (ObjectInput) isCallArg() {}

// ObjectArg 对象输入的引用方式（OwnedObject | SharedObject | ReceivingObject）
type ObjectArg interface {
	isObjectArg()
	ID() types.ObjectID
}

// OwnedObject 独占或不可变对象，按完整引用 (id, version, digest) 使用
type OwnedObject struct {
	Ref types.ObjectRef
}

// SharedObject 共享对象，只携带初始共享版本和访问意图
type SharedObject struct {
	ObjectID             types.ObjectID
	InitialSharedVersion uint64
	Mutable              bool
}

// ReceivingObject 发送给另一个对象、在本交易中接收的对象
type ReceivingObject struct {
	Ref types.ObjectRef
}

func (OwnedObject) isObjectArg()     {}
func (SharedObject) isObjectArg()    {}
func (ReceivingObject) isObjectArg() {}

func (o OwnedObject) ID() types.ObjectID     { return o.Ref.ObjectID }
func (o SharedObject) ID() types.ObjectID    { return o.ObjectID }
func (o ReceivingObject) ID() types.ObjectID { return o.Ref.ObjectID }

// ObjectArgFor 按所有权把已解析的引用转换为对象输入
//
// mutable 只对共享对象有意义；是否与被调用函数的实际访问方式一致由网络校验
func ObjectArgFor(ref types.ObjectRef, owner types.Owner, mutable bool) (ObjectArg, error) {
	switch o := owner.(type) {
	case types.AddressOwner, types.ImmutableOwner:
		return OwnedObject{Ref: ref}, nil
	case types.SharedOwner:
		return SharedObject{
			ObjectID:             ref.ObjectID,
			InitialSharedVersion: o.InitialSharedVersion,
			Mutable:              mutable,
		}, nil
	case nil:
		return nil, types.NewError(types.KindResolution, types.CodeUnexpectedOwnership,
			"object %s has no ownership information", ref.ObjectID)
	default:
		return nil, types.NewError(types.KindResolution, types.CodeUnexpectedOwnership,
			"object %s has unsupported ownership %T", ref.ObjectID, owner)
	}
}
