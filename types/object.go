package types

import "fmt"

// GasCoinType 原生 gas 币的对象类型
const GasCoinType = "0x2::coin::Coin<0x2::sui::SUI>"

// ObjectRef 对象引用：(ID, 版本, 内容摘要)
//
// 引用仅对解析时账本上存在的那一对 (version, digest) 有效，过期引用会被网络拒绝
type ObjectRef struct {
	ObjectID ObjectID `json:"objectId"`
	Version  uint64   `json:"version"`
	Digest   Digest   `json:"digest"`
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s@%d#%s", r.ObjectID, r.Version, r.Digest)
}

// Owner 对象所有权（封闭的标签联合：AddressOwner | SharedOwner | ImmutableOwner）
type Owner interface {
	isOwner()
	String() string
}

// AddressOwner 由地址独占持有
type AddressOwner struct {
	Address Address
}

// SharedOwner 共享对象，只需初始共享版本即可引用
type SharedOwner struct {
	InitialSharedVersion uint64
}

// ImmutableOwner 不可变对象
type ImmutableOwner struct{}

func (AddressOwner) isOwner()   {}
func (SharedOwner) isOwner()    {}
func (ImmutableOwner) isOwner() {}

func (o AddressOwner) String() string { return "owned(" + o.Address.String() + ")" }
func (o SharedOwner) String() string {
	return fmt.Sprintf("shared(initial_version=%d)", o.InitialSharedVersion)
}
func (ImmutableOwner) String() string { return "immutable" }

// ObjectInfo 账本读服务返回的对象信息
type ObjectInfo struct {
	Ref     ObjectRef
	Owner   Owner
	Type    string  // Move 类型，如 0x2::coin::Coin<0x2::sui::SUI>
	Balance *uint64 // 仅 Coin 类型对象有值
}

// IsGasCoin 是否为原生 gas 币
func (o *ObjectInfo) IsGasCoin() bool {
	return o != nil && o.Type == GasCoinType
}

// OwnedBy 是否由指定地址独占持有
func (o *ObjectInfo) OwnedBy(addr Address) bool {
	if o == nil {
		return false
	}
	owner, ok := o.Owner.(AddressOwner)
	return ok && owner.Address == addr
}

// ObjectFilter 按所有者查询对象时的过滤条件
type ObjectFilter struct {
	StructType string // 为空表示不过滤
}
