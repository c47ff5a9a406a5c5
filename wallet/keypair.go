package wallet

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"

	"github.com/weisyn/ptx-sdk-go/types"
)

// Scheme 签名方案，取值即签名与地址派生中使用的标志字节
type Scheme uint8

const (
	Ed25519   Scheme = 0x00
	Secp256k1 Scheme = 0x01
)

func (s Scheme) String() string {
	switch s {
	case Ed25519:
		return "ed25519"
	case Secp256k1:
		return "secp256k1"
	default:
		return fmt.Sprintf("scheme(0x%02x)", uint8(s))
	}
}

// ParseScheme 解析方案名
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(name) {
	case "ed25519", "":
		return Ed25519, nil
	case "secp256k1":
		return Secp256k1, nil
	default:
		return 0, fmt.Errorf("unknown signature scheme %q", name)
	}
}

func (s Scheme) publicKeySize() int {
	switch s {
	case Ed25519:
		return ed25519.PublicKeySize
	case Secp256k1:
		return 33
	default:
		return 0
	}
}

// Keypair 本地持有的签名密钥
type Keypair interface {
	// Scheme 签名方案
	Scheme() Scheme

	// PublicKey 公钥（secp256k1 为 33 字节压缩格式）
	PublicKey() []byte

	// Address 由 blake2b-256(flag || pubkey) 派生的地址
	Address() types.Address

	// SignDigest 对 32 字节意图摘要签名，返回原始签名（64 字节）
	SignDigest(digest [32]byte) ([]byte, error)

	// PrivateKey 导出私钥（谨慎使用）
	PrivateKey() []byte
}

// NewKeypair 生成新密钥
func NewKeypair(scheme Scheme) (Keypair, error) {
	switch scheme {
	case Ed25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate ed25519 key: %w", err)
		}
		return &ed25519Keypair{priv: priv}, nil
	case Secp256k1:
		// 与链上使用的曲线保持一致
		priv, err := ethcrypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate secp256k1 key: %w", err)
		}
		return &secp256k1Keypair{priv: priv}, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %s", scheme)
	}
}

// KeypairFromPrivateKey 从 32 字节私钥恢复密钥（ed25519 为种子）
func KeypairFromPrivateKey(scheme Scheme, privateKey []byte) (Keypair, error) {
	if len(privateKey) != 32 {
		return nil, fmt.Errorf("invalid private key length: expected 32 bytes, got %d", len(privateKey))
	}
	switch scheme {
	case Ed25519:
		return &ed25519Keypair{priv: ed25519.NewKeyFromSeed(privateKey)}, nil
	case Secp256k1:
		priv, err := ethcrypto.ToECDSA(privateKey)
		if err != nil {
			return nil, fmt.Errorf("parse secp256k1 private key failed: %w", err)
		}
		return &secp256k1Keypair{priv: priv}, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %s", scheme)
	}
}

// KeypairFromHex 从十六进制私钥恢复密钥（可带 0x 前缀）
func KeypairFromHex(scheme Scheme, privateKeyHex string) (Keypair, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return KeypairFromPrivateKey(scheme, raw)
}

// DeriveAddress 地址 = blake2b-256(flag || pubkey)
func DeriveAddress(scheme Scheme, publicKey []byte) types.Address {
	buf := make([]byte, 0, 1+len(publicKey))
	buf = append(buf, byte(scheme))
	buf = append(buf, publicKey...)
	return types.Address(blake2b.Sum256(buf))
}

type ed25519Keypair struct {
	priv ed25519.PrivateKey
}

func (k *ed25519Keypair) Scheme() Scheme { return Ed25519 }

func (k *ed25519Keypair) PublicKey() []byte {
	return append([]byte(nil), k.priv.Public().(ed25519.PublicKey)...)
}

func (k *ed25519Keypair) Address() types.Address { return DeriveAddress(Ed25519, k.PublicKey()) }

func (k *ed25519Keypair) SignDigest(digest [32]byte) ([]byte, error) {
	return ed25519.Sign(k.priv, digest[:]), nil
}

func (k *ed25519Keypair) PrivateKey() []byte { return append([]byte(nil), k.priv.Seed()...) }

type secp256k1Keypair struct {
	priv *ecdsa.PrivateKey
}

func (k *secp256k1Keypair) Scheme() Scheme { return Secp256k1 }

func (k *secp256k1Keypair) PublicKey() []byte { return ethcrypto.CompressPubkey(&k.priv.PublicKey) }

func (k *secp256k1Keypair) Address() types.Address { return DeriveAddress(Secp256k1, k.PublicKey()) }

// SignDigest secp256k1 对 sha256(digest) 做确定性签名，去掉恢复位后为 r || s
func (k *secp256k1Keypair) SignDigest(digest [32]byte) ([]byte, error) {
	hash := sha256.Sum256(digest[:])
	sig, err := ethcrypto.Sign(hash[:], k.priv)
	if err != nil {
		return nil, fmt.Errorf("secp256k1 sign: %w", err)
	}
	return sig[:64], nil
}

func (k *secp256k1Keypair) PrivateKey() []byte { return ethcrypto.FromECDSA(k.priv) }
