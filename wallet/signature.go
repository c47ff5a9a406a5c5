package wallet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/weisyn/ptx-sdk-go/types"
)

const rawSignatureSize = 64

// ErrInvalidSignature 签名与消息不匹配
var ErrInvalidSignature = errors.New("invalid signature")

// Signature 序列化签名：flag || 原始签名 || 公钥
type Signature []byte

// NewSignature 组装序列化签名
func NewSignature(scheme Scheme, raw, publicKey []byte) Signature {
	sig := make(Signature, 0, 1+len(raw)+len(publicKey))
	sig = append(sig, byte(scheme))
	sig = append(sig, raw...)
	return append(sig, publicKey...)
}

// Scheme 签名方案
func (s Signature) Scheme() Scheme {
	if len(s) == 0 {
		return 0xff
	}
	return Scheme(s[0])
}

func (s Signature) validate() error {
	size := s.Scheme().publicKeySize()
	if size == 0 {
		return fmt.Errorf("unknown signature scheme flag 0x%02x", uint8(s.Scheme()))
	}
	if len(s) != 1+rawSignatureSize+size {
		return fmt.Errorf("invalid %s signature length %d", s.Scheme(), len(s))
	}
	return nil
}

// Raw 原始签名部分
func (s Signature) Raw() []byte {
	if s.validate() != nil {
		return nil
	}
	return s[1 : 1+rawSignatureSize]
}

// PublicKey 公钥部分
func (s Signature) PublicKey() []byte {
	if s.validate() != nil {
		return nil
	}
	return s[1+rawSignatureSize:]
}

// Signer 由签名内公钥派生的地址
func (s Signature) Signer() (types.Address, error) {
	if err := s.validate(); err != nil {
		return types.Address{}, err
	}
	return DeriveAddress(s.Scheme(), s.PublicKey()), nil
}

// Base64 网关要求的签名编码
func (s Signature) Base64() string {
	return base64.StdEncoding.EncodeToString(s)
}

// ParseSignature 解析 Base64 签名
func ParseSignature(encoded string) (Signature, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	sig := Signature(raw)
	if err := sig.validate(); err != nil {
		return nil, err
	}
	return sig, nil
}

// VerifySignature 校验签名是否覆盖 intent || msg
func VerifySignature(sig Signature, msg []byte, intent Intent) error {
	if err := sig.validate(); err != nil {
		return err
	}
	digest := IntentDigest(intent, msg)

	switch sig.Scheme() {
	case Ed25519:
		if !ed25519.Verify(ed25519.PublicKey(sig.PublicKey()), digest[:], sig.Raw()) {
			return ErrInvalidSignature
		}
	case Secp256k1:
		hash := sha256.Sum256(digest[:])
		if !ethcrypto.VerifySignature(sig.PublicKey(), hash[:], sig.Raw()) {
			return ErrInvalidSignature
		}
	}
	return nil
}

// SignWith 用单个密钥对 intent || msg 签名
func SignWith(kp Keypair, msg []byte, intent Intent) (Signature, error) {
	raw, err := kp.SignDigest(IntentDigest(intent, msg))
	if err != nil {
		return nil, err
	}
	return NewSignature(kp.Scheme(), raw, kp.PublicKey()), nil
}
