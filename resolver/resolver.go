// Package resolver 对象引用解析
//
// 把逻辑上的对象标识转换为交易可用的输入：独占对象取账本上的最新 (version, digest)，
// 共享对象只需初始共享版本。解析是只读查询，可并发、可重复调用。
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/types"
	"github.com/weisyn/ptx-sdk-go/utils"
)

// ClockObjectID 系统时钟共享对象
var ClockObjectID = types.MustObjectID("0x6")

// ClockInitialSharedVersion 时钟对象的初始共享版本
const ClockInitialSharedVersion uint64 = 1

// DefaultConcurrency ResolveAll 默认并发数
const DefaultConcurrency = 8

// LedgerReader 账本读服务
type LedgerReader interface {
	// GetObject 按 ID 读取对象；不存在时返回 OBJECT_NOT_FOUND
	GetObject(ctx context.Context, id types.ObjectID) (*types.ObjectInfo, error)

	// GetOwnedObjects 读取地址持有的对象，filter 可为 nil
	GetOwnedObjects(ctx context.Context, owner types.Address, filter *types.ObjectFilter) ([]*types.ObjectInfo, error)

	// GetReferenceGasPrice 当前参考 gas 价格
	GetReferenceGasPrice(ctx context.Context) (uint64, error)
}

// Resolver 对象引用解析器
type Resolver struct {
	reader      LedgerReader
	concurrency int
}

// New 创建解析器
func New(reader LedgerReader) *Resolver {
	return &Resolver{reader: reader, concurrency: DefaultConcurrency}
}

// WithConcurrency 设置 ResolveAll 的并发上限
func (r *Resolver) WithConcurrency(n int) *Resolver {
	if n > 0 {
		r.concurrency = n
	}
	return r
}

// Reader 底层账本读服务
func (r *Resolver) Reader() LedgerReader { return r.reader }

// Owned 解析独占（或不可变）对象的当前引用
func (r *Resolver) Owned(ctx context.Context, id types.ObjectID) (types.ObjectRef, error) {
	info, err := r.reader.GetObject(ctx, id)
	if err != nil {
		return types.ObjectRef{}, fmt.Errorf("resolve owned object %s: %w", id, err)
	}
	switch info.Owner.(type) {
	case types.AddressOwner, types.ImmutableOwner:
		return info.Ref, nil
	default:
		return types.ObjectRef{}, types.NewError(types.KindResolution, types.CodeUnexpectedOwnership,
			"object %s is %v, expected an owned object", id, info.Owner)
	}
}

// Shared 解析共享对象：只需要初始共享版本，当前版本由网络排序决定
//
// mutable 是调用方声明的访问意图，与被调用函数不一致时由网络拒绝
func (r *Resolver) Shared(ctx context.Context, id types.ObjectID, mutable bool) (ptb.SharedObject, error) {
	info, err := r.reader.GetObject(ctx, id)
	if err != nil {
		return ptb.SharedObject{}, fmt.Errorf("resolve shared object %s: %w", id, err)
	}
	owner, ok := info.Owner.(types.SharedOwner)
	if !ok {
		return ptb.SharedObject{}, types.NewError(types.KindResolution, types.CodeUnexpectedOwnership,
			"object %s is %v, expected a shared object", id, info.Owner)
	}
	return ptb.SharedObject{
		ObjectID:             id,
		InitialSharedVersion: owner.InitialSharedVersion,
		Mutable:              mutable,
	}, nil
}

// Clock 系统时钟（初始版本固定，无需读账本）
func (r *Resolver) Clock(mutable bool) ptb.SharedObject {
	return ptb.SharedObject{
		ObjectID:             ClockObjectID,
		InitialSharedVersion: ClockInitialSharedVersion,
		Mutable:              mutable,
	}
}

// Input 按账本上的所有权解析任意对象输入
func (r *Resolver) Input(ctx context.Context, id types.ObjectID, mutable bool) (ptb.ObjectArg, error) {
	info, err := r.reader.GetObject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve object %s: %w", id, err)
	}
	return ptb.ObjectArgFor(info.Ref, info.Owner, mutable)
}

// Request 批量解析请求
type Request struct {
	ID      types.ObjectID
	Mutable bool
}

// ResolveAll 并发解析多个对象，结果顺序与请求一致；任一失败则整体失败
func (r *Resolver) ResolveAll(ctx context.Context, reqs []Request) ([]ptb.ObjectArg, error) {
	return utils.ParallelExecute(ctx, reqs, func(ctx context.Context, req Request) (ptb.ObjectArg, error) {
		return r.Input(ctx, req.ID, req.Mutable)
	}, r.concurrency)
}

// GasOptions gas 币选择条件
type GasOptions struct {
	// MinBalance 最低余额（通常为 gas 预算），0 表示不限制
	MinBalance uint64
	// Exclude 不可选的对象（已被同进程其他交易占用、或作为命令输入）
	Exclude []types.ObjectID
}

// SelectGas 为 owner 选择一个 gas 币
//
// 候选集为空时返回 NO_USABLE_OBJECT。在余额满足条件的候选中取余额最大者，
// 余额相同按对象 ID 排序，保证结果确定。
func (r *Resolver) SelectGas(ctx context.Context, owner types.Address, opts GasOptions) (types.ObjectRef, error) {
	coins, err := r.GasCoins(ctx, owner, opts)
	if err != nil {
		return types.ObjectRef{}, err
	}
	if len(coins) == 0 {
		return types.ObjectRef{}, types.NewError(types.KindResolution, types.CodeNoUsableObject,
			"no usable gas coin for %s (min balance %d, %d excluded)", owner, opts.MinBalance, len(opts.Exclude))
	}
	return coins[0].Ref, nil
}

// GasCoins 列出满足条件的 gas 币，按余额降序
func (r *Resolver) GasCoins(ctx context.Context, owner types.Address, opts GasOptions) ([]*types.ObjectInfo, error) {
	objects, err := r.reader.GetOwnedObjects(ctx, owner, &types.ObjectFilter{StructType: types.GasCoinType})
	if err != nil {
		return nil, fmt.Errorf("list gas coins of %s: %w", owner, err)
	}

	excluded := make(map[types.ObjectID]struct{}, len(opts.Exclude))
	for _, id := range opts.Exclude {
		excluded[id] = struct{}{}
	}

	var candidates []*types.ObjectInfo
	for _, obj := range objects {
		if !obj.IsGasCoin() || !obj.OwnedBy(owner) {
			continue
		}
		if _, skip := excluded[obj.Ref.ObjectID]; skip {
			continue
		}
		if opts.MinBalance > 0 && (obj.Balance == nil || *obj.Balance < opts.MinBalance) {
			continue
		}
		candidates = append(candidates, obj)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		bi, bj := balanceOf(candidates[i]), balanceOf(candidates[j])
		if bi != bj {
			return bi > bj
		}
		return candidates[i].Ref.ObjectID.Compare(candidates[j].Ref.ObjectID) < 0
	})
	return candidates, nil
}

func balanceOf(o *types.ObjectInfo) uint64 {
	if o.Balance == nil {
		return 0
	}
	return *o.Balance
}
