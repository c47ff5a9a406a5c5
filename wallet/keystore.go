package wallet

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"github.com/weisyn/ptx-sdk-go/types"
)

// ErrNoSuchKey 密钥库中没有该地址的密钥
var ErrNoSuchKey = errors.New("no such key")

// KeyStore 签名能力接口
//
// 只暴露“持有哪些地址”和“为某地址签名”，硬件钱包、远程签名服务等后端实现同一接口即可
type KeyStore interface {
	// Addresses 持有密钥的地址（按字节序排序）
	Addresses() []types.Address

	// Sign 以 intent 为前缀对 msg 签名；地址无密钥时返回 ErrNoSuchKey
	Sign(addr types.Address, msg []byte, intent Intent) (Signature, error)
}

func sortAddresses(addrs []types.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}

// MemoryKeyStore 内存密钥库（测试与短生命周期进程）
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[types.Address]Keypair
}

// NewMemoryKeyStore 创建内存密钥库
func NewMemoryKeyStore(keys ...Keypair) *MemoryKeyStore {
	ks := &MemoryKeyStore{keys: make(map[types.Address]Keypair)}
	for _, kp := range keys {
		ks.Add(kp)
	}
	return ks
}

// Add 加入密钥，返回其地址
func (ks *MemoryKeyStore) Add(kp Keypair) types.Address {
	addr := kp.Address()
	ks.mu.Lock()
	ks.keys[addr] = kp
	ks.mu.Unlock()
	return addr
}

// Generate 生成并加入新密钥
func (ks *MemoryKeyStore) Generate(scheme Scheme) (types.Address, error) {
	kp, err := NewKeypair(scheme)
	if err != nil {
		return types.Address{}, err
	}
	return ks.Add(kp), nil
}

func (ks *MemoryKeyStore) Addresses() []types.Address {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	out := make([]types.Address, 0, len(ks.keys))
	for addr := range ks.keys {
		out = append(out, addr)
	}
	sortAddresses(out)
	return out
}

func (ks *MemoryKeyStore) Sign(addr types.Address, msg []byte, intent Intent) (Signature, error) {
	ks.mu.RLock()
	kp, ok := ks.keys[addr]
	ks.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchKey, addr)
	}
	return SignWith(kp, msg, intent)
}

// DefaultKDFIterations 文件密钥库默认 PBKDF2 迭代次数
const DefaultKDFIterations = 262144

// keyFile 密钥文件结构
type keyFile struct {
	Version int        `json:"version"`
	ID      string     `json:"id"`
	Address string     `json:"address"`
	Scheme  string     `json:"scheme"`
	Crypto  cryptoJSON `json:"crypto"`
}

// cryptoJSON 加密信息
type cryptoJSON struct {
	Cipher       string           `json:"cipher"`
	CipherText   string           `json:"ciphertext"`
	CipherParams cipherParamsJSON `json:"cipherparams"`
	KDF          string           `json:"kdf"`
	KDFParams    kdfParamsJSON    `json:"kdfparams"`
	MAC          string           `json:"mac"`
}

type cipherParamsJSON struct {
	IV string `json:"iv"`
}

type kdfParamsJSON struct {
	C     int    `json:"c"`
	DKLen int    `json:"dklen"`
	PRF   string `json:"prf"`
	Salt  string `json:"salt"`
}

// FileKeyStore 目录密钥库：每个地址一个加密 JSON 文件（<address>.json）
//
// 私钥用 PBKDF2-HMAC-SHA256 派生的密钥以 AES-128-CTR 加密，签名时按需解密
type FileKeyStore struct {
	dir        string
	password   string
	iterations int

	mu    sync.RWMutex
	index map[types.Address]string // 地址 -> 文件路径
}

// FileKeyStoreOption 文件密钥库选项
type FileKeyStoreOption func(*FileKeyStore)

// WithKDFIterations 设置新写入文件的 PBKDF2 迭代次数
func WithKDFIterations(n int) FileKeyStoreOption {
	return func(ks *FileKeyStore) {
		if n > 0 {
			ks.iterations = n
		}
	}
}

// NewFileKeyStore 打开（必要时创建）密钥目录并建立地址索引
func NewFileKeyStore(dir, password string, opts ...FileKeyStoreOption) (*FileKeyStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	ks := &FileKeyStore{
		dir:        dir,
		password:   password,
		iterations: DefaultKDFIterations,
		index:      make(map[types.Address]string),
	}
	for _, opt := range opts {
		opt(ks)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		addr, err := types.ParseAddress(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		ks.index[addr] = filepath.Join(dir, e.Name())
	}
	return ks, nil
}

func (ks *FileKeyStore) Addresses() []types.Address {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	out := make([]types.Address, 0, len(ks.index))
	for addr := range ks.index {
		out = append(out, addr)
	}
	sortAddresses(out)
	return out
}

// Import 加密保存密钥，返回文件路径
func (ks *FileKeyStore) Import(kp Keypair) (string, error) {
	// 1. 生成随机 salt 和 IV
	salt := make([]byte, 32)
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	// 2. 派生密钥
	derived := deriveKey(ks.password, salt, ks.iterations)

	// 3. 加密私钥
	ciphertext, err := aesCTR(derived[:16], kp.PrivateKey(), iv)
	if err != nil {
		return "", fmt.Errorf("encrypt private key: %w", err)
	}

	// 4. 组装并写入文件
	addr := kp.Address()
	file := keyFile{
		Version: 1,
		ID:      uuid.New().String(),
		Address: addr.String(),
		Scheme:  kp.Scheme().String(),
		Crypto: cryptoJSON{
			Cipher:       "aes-128-ctr",
			CipherText:   hex.EncodeToString(ciphertext),
			CipherParams: cipherParamsJSON{IV: hex.EncodeToString(iv)},
			KDF:          "pbkdf2",
			KDFParams: kdfParamsJSON{
				C:     ks.iterations,
				DKLen: 32,
				PRF:   "hmac-sha256",
				Salt:  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(computeMAC(derived, ciphertext)),
		},
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode keystore: %w", err)
	}

	path := filepath.Join(ks.dir, addr.String()+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write keystore file: %w", err)
	}

	ks.mu.Lock()
	ks.index[addr] = path
	ks.mu.Unlock()
	return path, nil
}

// Load 解密并返回地址对应的密钥
func (ks *FileKeyStore) Load(addr types.Address) (Keypair, error) {
	ks.mu.RLock()
	path, ok := ks.index[addr]
	ks.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchKey, addr)
	}

	// 1. 读取文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	var file keyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}

	// 2. 提取参数
	salt, err := hex.DecodeString(file.Crypto.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	iv, err := hex.DecodeString(file.Crypto.CipherParams.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(file.Crypto.CipherText)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	mac, err := hex.DecodeString(file.Crypto.MAC)
	if err != nil {
		return nil, fmt.Errorf("decode mac: %w", err)
	}

	// 3. 派生密钥并校验 MAC
	derived := deriveKey(ks.password, salt, file.Crypto.KDFParams.C)
	if subtle.ConstantTimeCompare(computeMAC(derived, ciphertext), mac) != 1 {
		return nil, fmt.Errorf("invalid password")
	}

	// 4. 解密私钥
	priv, err := aesCTR(derived[:16], ciphertext, iv)
	if err != nil {
		return nil, fmt.Errorf("decrypt private key: %w", err)
	}
	scheme, err := ParseScheme(file.Scheme)
	if err != nil {
		return nil, err
	}
	kp, err := KeypairFromPrivateKey(scheme, priv)
	if err != nil {
		return nil, err
	}
	if kp.Address() != addr {
		return nil, fmt.Errorf("keystore file %s holds key for %s", path, kp.Address())
	}
	return kp, nil
}

func (ks *FileKeyStore) Sign(addr types.Address, msg []byte, intent Intent) (Signature, error) {
	kp, err := ks.Load(addr)
	if err != nil {
		return nil, err
	}
	return SignWith(kp, msg, intent)
}

// deriveKey PBKDF2-HMAC-SHA256，输出 32 字节：前 16 字节加密，后 16 字节参与 MAC
func deriveKey(password string, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	return pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New)
}

// aesCTR AES-CTR 加解密（对称）
func aesCTR(key, in, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(in))
	stream.XORKeyStream(out, in)
	return out, nil
}

// computeMAC sha256(derived[16:32] || ciphertext)
func computeMAC(derived, ciphertext []byte) []byte {
	buf := make([]byte, 0, 16+len(ciphertext))
	buf = append(buf, derived[16:32]...)
	buf = append(buf, ciphertext...)
	sum := sha256.Sum256(buf)
	return sum[:]
}
