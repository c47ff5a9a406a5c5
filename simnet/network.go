// Package simnet 内存中的对象账本与验证者网关
//
// 供测试和本地演练使用：带版本的对象、独占对象锁（防双花）、共享对象、参考 gas 价格、
// gas 扣费、按摘要去重，以及可编排的中止和“会修改共享对象”的函数。
// Network 同时实现账本读服务、交易网关和 JSON-RPC 处理器，可直接挂到 client 的三种传输上。
package simnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/weisyn/ptx-sdk-go/client"
	"github.com/weisyn/ptx-sdk-go/types"
)

// 默认参数
const (
	DefaultReferenceGasPrice uint64 = 1000
	// ComputationUnitsPerCommand 每条命令消耗的计算单位
	ComputationUnitsPerCommand uint64 = 1000
	// StorageUnitsPerObject 每个新建对象消耗的存储单位
	StorageUnitsPerObject uint64 = 100
)

// ClockObjectID 系统时钟
var ClockObjectID = types.MustObjectID("0x6")

// ClockType 时钟对象类型
const ClockType = "0x2::clock::Clock"

// object 账本上的对象
type object struct {
	info types.ObjectInfo
}

func (o *object) clone() *object {
	c := *o
	if o.info.Balance != nil {
		b := *o.info.Balance
		c.info.Balance = &b
	}
	return &c
}

// Network 模拟网络
type Network struct {
	mu       sync.Mutex
	objects  map[types.ObjectID]*object
	locks    map[types.ObjectRef]types.Digest
	executed map[types.Digest]*types.ExecutionResult
	pending  map[types.Digest]chan struct{}
	aborts   map[string]string
	mutating map[string]bool
	gasPrice uint64
	latency  time.Duration
	nextID   uint64
	execs    int
	logger   client.Logger
}

// Option 配置项
type Option func(*Network)

// WithReferenceGasPrice 设置参考 gas 价格
func WithReferenceGasPrice(price uint64) Option {
	return func(n *Network) { n.gasPrice = price }
}

// WithLatency 设置每次网关调用的延迟
func WithLatency(d time.Duration) Option {
	return func(n *Network) { n.latency = d }
}

// WithLogger 设置日志器
func WithLogger(l client.Logger) Option {
	return func(n *Network) { n.logger = client.LoggerOrNop(l) }
}

// New 创建模拟网络，自带时钟共享对象 0x6（初始共享版本 1）
func New(opts ...Option) *Network {
	n := &Network{
		objects:  make(map[types.ObjectID]*object),
		locks:    make(map[types.ObjectRef]types.Digest),
		executed: make(map[types.Digest]*types.ExecutionResult),
		pending:  make(map[types.Digest]chan struct{}),
		aborts:   make(map[string]string),
		mutating: make(map[string]bool),
		gasPrice: DefaultReferenceGasPrice,
		nextID:   0x1000,
		logger:   client.NopLogger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.put(ClockObjectID, 1, types.SharedOwner{InitialSharedVersion: 1}, ClockType, nil)
	return n
}

// objectDigest 对象内容摘要（由 ID 与版本决定）
func objectDigest(id types.ObjectID, version uint64) types.Digest {
	var buf [types.IDLength + 8]byte
	copy(buf[:], id[:])
	binary.BigEndian.PutUint64(buf[types.IDLength:], version)
	return blake2b.Sum256(buf[:])
}

func (n *Network) allocateID() types.ObjectID {
	n.nextID++
	var id types.ObjectID
	binary.BigEndian.PutUint64(id[types.IDLength-8:], n.nextID)
	return id
}

func (n *Network) put(id types.ObjectID, version uint64, owner types.Owner, typ string, balance *uint64) types.ObjectRef {
	ref := types.ObjectRef{ObjectID: id, Version: version, Digest: objectDigest(id, version)}
	n.objects[id] = &object{info: types.ObjectInfo{Ref: ref, Owner: owner, Type: typ, Balance: balance}}
	return ref
}

// AddGasCoin 为 owner 铸造一枚 gas 币
func (n *Network) AddGasCoin(owner types.Address, balance uint64) types.ObjectRef {
	n.mu.Lock()
	defer n.mu.Unlock()
	b := balance
	return n.put(n.allocateID(), 1, types.AddressOwner{Address: owner}, types.GasCoinType, &b)
}

// AddObject 创建独占或不可变对象
func (n *Network) AddObject(owner types.Owner, typ string) types.ObjectRef {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.put(n.allocateID(), 1, owner, typ, nil)
}

// AddShared 创建共享对象，返回 ID 与初始共享版本
func (n *Network) AddShared(typ string) (types.ObjectID, uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.allocateID()
	n.put(id, 1, types.SharedOwner{InitialSharedVersion: 1}, typ, nil)
	return id, 1
}

// SetReferenceGasPrice 修改参考 gas 价格
func (n *Network) SetReferenceGasPrice(price uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gasPrice = price
}

func functionKey(pkg types.ObjectID, module, function string) string {
	return fmt.Sprintf("%s::%s::%s", pkg, module, function)
}

// RegisterAbort 调用该函数时执行中止（交易仍被最终确认，状态为 failure）
func (n *Network) RegisterAbort(pkg types.ObjectID, module, function, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.aborts[functionKey(pkg, module, function)] = reason
}

// RegisterMutating 声明该函数会修改传入的共享对象：以只读方式传入共享对象会被拒绝
func (n *Network) RegisterMutating(pkg types.ObjectID, module, function string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mutating[functionKey(pkg, module, function)] = true
}

// Executions 已执行（非去重）的交易数
func (n *Network) Executions() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.execs
}

// Object 读取对象快照（测试用）
func (n *Network) Object(id types.ObjectID) (*types.ObjectInfo, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	o, ok := n.objects[id]
	if !ok {
		return nil, false
	}
	info := o.clone().info
	return &info, true
}

func (n *Network) wait(ctx context.Context) error {
	if n.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return types.Wrap(types.ErrNetworkTimeout, ctx.Err(), "simnet call interrupted")
	case <-time.After(n.latency):
		return nil
	}
}

// GetObject 实现账本读服务
func (n *Network) GetObject(ctx context.Context, id types.ObjectID) (*types.ObjectInfo, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	info, ok := n.Object(id)
	if !ok {
		return nil, types.NewError(types.KindResolution, types.CodeObjectNotFound, "object %s not found", id)
	}
	return info, nil
}

// GetOwnedObjects 实现账本读服务，按对象 ID 排序
func (n *Network) GetOwnedObjects(ctx context.Context, owner types.Address, filter *types.ObjectFilter) ([]*types.ObjectInfo, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []*types.ObjectInfo
	for _, o := range n.objects {
		if !o.info.OwnedBy(owner) {
			continue
		}
		if filter != nil && filter.StructType != "" && o.info.Type != filter.StructType {
			continue
		}
		info := o.clone().info
		out = append(out, &info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Ref.ObjectID.Compare(out[j].Ref.ObjectID) < 0
	})
	return out, nil
}

// GetReferenceGasPrice 实现账本读服务
func (n *Network) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	if err := n.wait(ctx); err != nil {
		return 0, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gasPrice, nil
}

// GetTransaction 查询已执行交易
func (n *Network) GetTransaction(ctx context.Context, digest types.Digest) (*types.ExecutionResult, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	res, ok := n.executed[digest]
	if !ok {
		return nil, types.NewError(types.KindSubmission, types.CodeTransactionNotFound,
			"could not find the referenced transaction %s", digest)
	}
	out := res.Clone()
	out.ConfirmedLocalExecution = true
	return out, nil
}
