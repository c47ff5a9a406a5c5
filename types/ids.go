package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// IDLength 对象 ID / 地址 / 摘要的固定字节长度
const IDLength = 32

// ObjectID 链上对象标识（32 字节，全局唯一，分配后不可变）
type ObjectID [IDLength]byte

// Address 账户地址（32 字节）
type Address [IDLength]byte

// Digest 内容摘要 / 交易摘要（32 字节，Base58 展示）
type Digest [IDLength]byte

// ParseObjectID 解析十六进制对象 ID
//
// 支持短格式（如 "0x6"），不足 32 字节时左侧补零
func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID
	b, err := decodePaddedHex(s)
	if err != nil {
		return id, fmt.Errorf("invalid object id %q: %w", s, err)
	}
	copy(id[:], b)
	return id, nil
}

// MustObjectID 解析对象 ID，失败时 panic（仅用于常量）
func MustObjectID(s string) ObjectID {
	id, err := ParseObjectID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseAddress 解析十六进制地址
func ParseAddress(s string) (Address, error) {
	var addr Address
	b, err := decodePaddedHex(s)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(addr[:], b)
	return addr, nil
}

// MustAddress 解析地址，失败时 panic（仅用于常量）
func MustAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// ParseDigest 解析 Base58 编码的摘要
func ParseDigest(s string) (Digest, error) {
	var d Digest
	decoded := base58.Decode(s)
	if len(decoded) != IDLength {
		return d, fmt.Errorf("invalid digest %q: expected %d bytes after Base58 decode, got %d", s, IDLength, len(decoded))
	}
	copy(d[:], decoded)
	return d, nil
}

// decodePaddedHex 解码可带 0x 前缀的十六进制串，并左侧补零到 32 字节
func decodePaddedHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, fmt.Errorf("empty hex string")
	}
	if len(s) > IDLength*2 {
		return nil, fmt.Errorf("too long: %d hex characters", len(s))
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	out := make([]byte, IDLength)
	copy(out[IDLength-len(raw):], raw)
	return out, nil
}

func (id ObjectID) String() string { return "0x" + hex.EncodeToString(id[:]) }

// IsZero 是否为零值
func (id ObjectID) IsZero() bool { return id == ObjectID{} }

// Compare 字节序比较，用于确定性排序
func (id ObjectID) Compare(other ObjectID) int { return bytes.Compare(id[:], other[:]) }

func (id ObjectID) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }

func (id *ObjectID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseObjectID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// IsZero 是否为零值
func (a Address) IsZero() bool { return a == Address{} }

func (a Address) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (d Digest) String() string { return base58.Encode(d[:]) }

// IsZero 是否为零值
func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Digest) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDigest(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
