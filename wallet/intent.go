package wallet

import (
	"golang.org/x/crypto/blake2b"
)

// IntentScope 签名用途
type IntentScope uint8

const (
	ScopeTransactionData    IntentScope = 0
	ScopeTransactionEffects IntentScope = 1
	ScopeCheckpointSummary  IntentScope = 2
	ScopePersonalMessage    IntentScope = 3
)

// Intent 混入签名消息的意图前缀 [scope, version, app_id]
//
// 同一段字节在不同 scope 下得到不同的签名摘要，签名无法被挪作他用
type Intent struct {
	Scope   IntentScope
	Version uint8
	AppID   uint8
}

// TransactionIntent 交易签名意图 [0, 0, 0]
func TransactionIntent() Intent {
	return Intent{Scope: ScopeTransactionData}
}

// PersonalMessageIntent 个人消息签名意图 [3, 0, 0]
func PersonalMessageIntent() Intent {
	return Intent{Scope: ScopePersonalMessage}
}

// Bytes 三字节编码
func (i Intent) Bytes() []byte {
	return []byte{byte(i.Scope), i.Version, i.AppID}
}

// IntentDigest 签名摘要 blake2b-256(intent || msg)
func IntentDigest(intent Intent, msg []byte) [32]byte {
	buf := make([]byte, 0, 3+len(msg))
	buf = append(buf, intent.Bytes()...)
	buf = append(buf, msg...)
	return blake2b.Sum256(buf)
}
