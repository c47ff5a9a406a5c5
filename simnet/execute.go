package simnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/fardream/go-bcs/bcs"
	"golang.org/x/crypto/blake2b"

	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/tx"
	"github.com/weisyn/ptx-sdk-go/types"
	"github.com/weisyn/ptx-sdk-go/wallet"
)

// ExecuteTransaction 实现提交网关
func (n *Network) ExecuteTransaction(ctx context.Context, signed *tx.SignedTransaction, mode types.ConsistencyMode) (*types.ExecutionResult, error) {
	return n.Execute(ctx, signed.Payload().Bytes(), signed.Signatures(), mode)
}

// Execute 校验并执行原始交易字节
//
// 校验通过后先锁定独占输入（认证阶段），经过一次网络延迟再执行（执行阶段）；
// 进入执行阶段后取消 ctx 只会停止等待，交易仍会执行。同一摘要只执行一次，重复提交返回原 effects。
func (n *Network) Execute(ctx context.Context, txBytes []byte, sigs []wallet.Signature, mode types.ConsistencyMode) (*types.ExecutionResult, error) {
	if !mode.Valid() {
		return nil, types.NewError(types.KindSubmission, types.CodeInvalidConsistencyMode, "unknown consistency mode %q", mode)
	}
	if err := n.wait(ctx); err != nil {
		return nil, err
	}

	// 1. 解码并校验签名
	digest := tx.TransactionDigest(txBytes)
	data, err := tx.DecodeTransactionData(txBytes)
	if err != nil {
		return nil, err
	}
	if err := verifySignatures(data.Sender, txBytes, sigs); err != nil {
		return nil, err
	}

	// 2. 按摘要去重；已在执行中的同一交易直接等待其结果
	n.mu.Lock()
	if res, ok := n.executed[digest]; ok {
		n.mu.Unlock()
		return withMode(res, mode), nil
	}
	done, inflight := n.pending[digest]
	if !inflight {
		// 3. 输入校验与加锁
		if err := n.validate(digest, data); err != nil {
			n.mu.Unlock()
			n.logger.Warn("Transaction rejected", "digest", digest.String(), "error", err)
			return nil, err
		}
		for _, ref := range lockedRefs(data) {
			n.locks[ref] = digest
		}
		done = make(chan struct{})
		n.pending[digest] = done
		go n.certifyAndApply(digest, data, done)
	}
	n.mu.Unlock()

	// 4. 等待执行完成
	select {
	case <-done:
	case <-ctx.Done():
		return nil, types.Wrap(types.ErrNetworkTimeout, ctx.Err(), "stopped waiting for transaction %s", digest)
	}

	n.mu.Lock()
	res := n.executed[digest]
	n.mu.Unlock()
	return withMode(res, mode), nil
}

// certifyAndApply 模拟认证延迟后执行
func (n *Network) certifyAndApply(digest types.Digest, data *tx.TransactionData, done chan struct{}) {
	if n.latency > 0 {
		time.Sleep(n.latency)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	res := n.apply(digest, data)
	n.executed[digest] = res
	n.execs++
	delete(n.pending, digest)
	close(done)
	n.logger.Debug("Transaction executed", "digest", digest.String(), "status", string(res.Status))
}

func withMode(res *types.ExecutionResult, mode types.ConsistencyMode) *types.ExecutionResult {
	out := res.Clone()
	out.Mode = mode
	out.ConfirmedLocalExecution = mode == types.WaitForLocalExecution
	return out
}

func verifySignatures(sender types.Address, txBytes []byte, sigs []wallet.Signature) error {
	senderSigned := false
	for i, sig := range sigs {
		if err := wallet.VerifySignature(sig, txBytes, wallet.TransactionIntent()); err != nil {
			return types.Wrap(types.ErrRejected, err, "signature %d is invalid", i)
		}
		signer, err := sig.Signer()
		if err != nil {
			return types.Wrap(types.ErrRejected, err, "signature %d is invalid", i)
		}
		if signer == sender {
			senderSigned = true
		}
	}
	if !senderSigned {
		return types.NewError(types.KindSubmission, types.CodeRejected, "transaction is not signed by sender %s", sender)
	}
	return nil
}

// lockedRefs 需要加锁的独占对象引用（gas + 独占输入，不含不可变对象）
func lockedRefs(data *tx.TransactionData) []types.ObjectRef {
	refs := append([]types.ObjectRef(nil), data.GasPayment...)
	for _, in := range data.ObjectInputs() {
		if o, ok := in.(ptb.OwnedObject); ok {
			refs = append(refs, o.Ref)
		}
	}
	return refs
}

func (n *Network) validate(digest types.Digest, data *tx.TransactionData) error {
	if data.GasOwner != data.Sender {
		return types.NewError(types.KindSubmission, types.CodeRejected, "sponsored transactions are not supported")
	}
	if data.GasPrice < n.gasPrice {
		return types.NewError(types.KindSubmission, types.CodeInsufficientGasPrice,
			"gas price %d is under reference gas price %d", data.GasPrice, n.gasPrice)
	}
	if len(data.GasPayment) == 0 {
		return types.NewError(types.KindSubmission, types.CodeMalformedTransaction, "no gas payment")
	}

	// 1. gas 币
	var gasBalance uint64
	seen := make(map[types.ObjectID]bool, len(data.GasPayment))
	for _, ref := range data.GasPayment {
		if seen[ref.ObjectID] {
			return types.NewError(types.KindSubmission, types.CodeMalformedTransaction, "duplicate gas object %s", ref.ObjectID)
		}
		seen[ref.ObjectID] = true
		o, err := n.checkOwned(digest, ref, data.Sender)
		if err != nil {
			return err
		}
		if !o.info.IsGasCoin() || o.info.Balance == nil {
			return types.NewError(types.KindSubmission, types.CodeRejected, "gas object %s is not a gas coin", ref.ObjectID)
		}
		gasBalance += *o.info.Balance
	}

	// 2. 对象输入
	for i, in := range data.ObjectInputs() {
		switch o := in.(type) {
		case ptb.OwnedObject:
			if _, err := n.checkOwned(digest, o.Ref, data.Sender); err != nil {
				return err
			}
		case ptb.SharedObject:
			obj, ok := n.objects[o.ObjectID]
			if !ok {
				return types.NewError(types.KindSubmission, types.CodeRejected, "shared object %s not found", o.ObjectID)
			}
			owner, shared := obj.info.Owner.(types.SharedOwner)
			if !shared {
				return types.NewError(types.KindSubmission, types.CodeRejected, "object %s is not shared", o.ObjectID)
			}
			if owner.InitialSharedVersion != o.InitialSharedVersion {
				return types.NewError(types.KindSubmission, types.CodeRejected,
					"shared object %s has initial version %d, not %d", o.ObjectID, owner.InitialSharedVersion, o.InitialSharedVersion)
			}
		case ptb.ReceivingObject:
			return types.NewError(types.KindSubmission, types.CodeRejected, "receiving object input %d is not supported", i)
		}
	}

	// 3. 共享对象的可变性由被调用函数决定
	for _, cmd := range data.Commands {
		call, ok := cmd.(ptb.MoveCall)
		if !ok || !n.mutating[functionKey(call.Package, call.Module, call.Function)] {
			continue
		}
		for _, arg := range call.Arguments {
			in, ok := arg.(ptb.Input)
			if !ok || int(in.Index) >= len(data.Inputs) {
				continue
			}
			if obj, ok := data.Inputs[in.Index].(ptb.ObjectInput); ok {
				if shared, ok := obj.Object.(ptb.SharedObject); ok && !shared.Mutable {
					return types.NewError(types.KindSubmission, types.CodeRejected,
						"shared object %s is passed immutably to %s::%s, which mutates it", shared.ObjectID, call.Module, call.Function)
				}
			}
		}
	}

	// 4. gas 余额
	if gasBalance < data.GasBudget {
		return types.NewError(types.KindSubmission, types.CodeInsufficientGas,
			"gas balance %d is below budget %d", gasBalance, data.GasBudget)
	}
	return nil
}

// checkOwned 校验独占对象引用
//
// 引用已被消费（版本落后）为过期；引用仍是最新版本但已被另一笔交易锁定为冲突（双花）
func (n *Network) checkOwned(digest types.Digest, ref types.ObjectRef, sender types.Address) (*object, error) {
	o, ok := n.objects[ref.ObjectID]
	if !ok {
		return nil, types.NewError(types.KindSubmission, types.CodeStaleObject, "object %s no longer exists", ref.ObjectID)
	}
	if o.info.Ref != ref {
		return nil, types.NewError(types.KindSubmission, types.CodeStaleObject,
			"object %s is at version %d, transaction uses version %d", ref.ObjectID, o.info.Ref.Version, ref.Version)
	}
	if holder, ok := n.locks[ref]; ok && holder != digest {
		return nil, types.NewError(types.KindSubmission, types.CodeObjectLocked,
			"object %s is locked by transaction %s", ref, holder).WithDetail("lockedBy", holder.String())
	}
	switch owner := o.info.Owner.(type) {
	case types.AddressOwner:
		if owner.Address != sender {
			return nil, types.NewError(types.KindSubmission, types.CodeRejected, "object %s is not owned by %s", ref.ObjectID, sender)
		}
	case types.ImmutableOwner:
	default:
		return nil, types.NewError(types.KindSubmission, types.CodeRejected, "object %s is %s, not owned", ref.ObjectID, o.info.Owner)
	}
	return o, nil
}

// execution 一次执行的暂存状态
type execution struct {
	n       *Network
	digest  types.Digest
	data    *tx.TransactionData
	staged  map[types.ObjectID]*object
	deleted map[types.ObjectID]bool
	created []types.ObjectID
	results [][]types.ObjectID
	gas     types.ObjectID
}

func (n *Network) newExecution(digest types.Digest, data *tx.TransactionData) *execution {
	e := &execution{
		n:       n,
		digest:  digest,
		data:    data,
		staged:  make(map[types.ObjectID]*object),
		deleted: make(map[types.ObjectID]bool),
		gas:     data.GasPayment[0].ObjectID,
	}

	// 所有可变输入都会获得新版本，无论执行成功与否
	for _, ref := range data.GasPayment {
		e.stage(ref.ObjectID)
	}
	for _, in := range data.ObjectInputs() {
		switch o := in.(type) {
		case ptb.OwnedObject:
			if _, immutable := n.objects[o.Ref.ObjectID].info.Owner.(types.ImmutableOwner); !immutable {
				e.stage(o.Ref.ObjectID)
			}
		case ptb.SharedObject:
			if o.Mutable {
				e.stage(o.ObjectID)
			}
		}
	}

	// 多枚 gas 币合并到第一枚
	primary := e.staged[e.gas]
	for _, ref := range data.GasPayment[1:] {
		*primary.info.Balance += *e.staged[ref.ObjectID].info.Balance
		e.deleted[ref.ObjectID] = true
	}
	return e
}

func (e *execution) stage(id types.ObjectID) *object {
	if o, ok := e.staged[id]; ok {
		return o
	}
	o := e.n.objects[id].clone()
	e.staged[id] = o
	return o
}

func (e *execution) create(owner types.Owner, typ string, balance *uint64) types.ObjectID {
	var buf [types.IDLength + 4]byte
	copy(buf[:], e.digest[:])
	binary.BigEndian.PutUint32(buf[types.IDLength:], uint32(len(e.created)))
	id := types.ObjectID(blake2b.Sum256(buf[:]))

	e.staged[id] = &object{info: types.ObjectInfo{
		Ref:     types.ObjectRef{ObjectID: id},
		Owner:   owner,
		Type:    typ,
		Balance: balance,
	}}
	e.created = append(e.created, id)
	return id
}

// abort 中止原因
type abort string

func (e *execution) pure(arg ptb.Argument, v interface{}) error {
	in, ok := arg.(ptb.Input)
	if !ok || int(in.Index) >= len(e.data.Inputs) {
		return fmt.Errorf("argument %s is not a pure input", arg)
	}
	p, ok := e.data.Inputs[in.Index].(ptb.PureInput)
	if !ok {
		return fmt.Errorf("argument %s is not a pure input", arg)
	}
	if _, err := bcs.Unmarshal(p.Bytes, v); err != nil {
		return fmt.Errorf("decode %s: %w", arg, err)
	}
	return nil
}

// object 解析对象参数；Move 调用的返回值不被跟踪，返回 ok=false
func (e *execution) object(arg ptb.Argument) (types.ObjectID, bool, error) {
	switch a := arg.(type) {
	case ptb.GasCoin:
		return e.gas, true, nil
	case ptb.Input:
		if int(a.Index) < len(e.data.Inputs) {
			if obj, ok := e.data.Inputs[a.Index].(ptb.ObjectInput); ok {
				return obj.Object.ID(), true, nil
			}
		}
		return types.ObjectID{}, false, fmt.Errorf("argument %s is not an object", arg)
	case ptb.Result:
		if int(a.Index) >= len(e.results) {
			return types.ObjectID{}, false, fmt.Errorf("argument %s refers to a later command", arg)
		}
		if ids := e.results[a.Index]; len(ids) == 1 {
			return ids[0], true, nil
		}
		return types.ObjectID{}, false, nil
	case ptb.NestedResult:
		if int(a.Index) >= len(e.results) {
			return types.ObjectID{}, false, fmt.Errorf("argument %s refers to a later command", arg)
		}
		if ids := e.results[a.Index]; int(a.ResultIndex) < len(ids) {
			return ids[a.ResultIndex], true, nil
		}
		return types.ObjectID{}, false, nil
	}
	return types.ObjectID{}, false, fmt.Errorf("unknown argument %T", arg)
}

func (e *execution) coin(arg ptb.Argument) (*object, error) {
	id, ok, err := e.object(arg)
	if err != nil {
		return nil, err
	}
	if !ok || e.deleted[id] {
		return nil, fmt.Errorf("argument %s is not a coin", arg)
	}
	o := e.stage(id)
	if o.info.Balance == nil {
		return nil, fmt.Errorf("object %s is not a coin", id)
	}
	return o, nil
}

// run 依次执行命令，返回中止原因（空表示成功）
func (e *execution) run() (reason abort) {
	sender := types.AddressOwner{Address: e.data.Sender}
	for i, cmd := range e.data.Commands {
		var out []types.ObjectID
		fail := func(err error) abort { return abort(fmt.Sprintf("command %d: %v", i, err)) }

		switch c := cmd.(type) {
		case ptb.MoveCall:
			if why, ok := e.n.aborts[functionKey(c.Package, c.Module, c.Function)]; ok {
				return abort(fmt.Sprintf("MoveAbort in command %d (%s::%s): %s", i, c.Module, c.Function, why))
			}
		case ptb.SplitCoins:
			src, err := e.coin(c.Coin)
			if err != nil {
				return fail(err)
			}
			for _, a := range c.Amounts {
				var amount uint64
				if err := e.pure(a, &amount); err != nil {
					return fail(err)
				}
				if *src.info.Balance < amount {
					return fail(fmt.Errorf("InsufficientCoinBalance"))
				}
				*src.info.Balance -= amount
				b := amount
				out = append(out, e.create(sender, src.info.Type, &b))
			}
		case ptb.MergeCoins:
			dst, err := e.coin(c.Destination)
			if err != nil {
				return fail(err)
			}
			for _, s := range c.Sources {
				if _, gas := s.(ptb.GasCoin); gas {
					return fail(fmt.Errorf("gas coin cannot be merged into another coin"))
				}
				src, err := e.coin(s)
				if err != nil {
					return fail(err)
				}
				*dst.info.Balance += *src.info.Balance
				e.deleted[src.info.Ref.ObjectID] = true
			}
		case ptb.TransferObjects:
			var recipient [types.IDLength]byte
			if err := e.pure(c.Address, &recipient); err != nil {
				return fail(err)
			}
			for _, a := range c.Objects {
				id, ok, err := e.object(a)
				if err != nil {
					return fail(err)
				}
				if !ok {
					continue
				}
				e.stage(id).info.Owner = types.AddressOwner{Address: recipient}
			}
		case ptb.Publish:
			e.create(types.ImmutableOwner{}, "package", nil)
			out = append(out, e.create(sender, "0x2::package::UpgradeCap", nil))
		case ptb.MakeMoveVec:
		}
		e.results = append(e.results, out)
	}
	return ""
}

// apply 执行交易并写回账本；调用方持有锁
func (n *Network) apply(digest types.Digest, data *tx.TransactionData) *types.ExecutionResult {
	price := data.GasPrice
	computation := ComputationUnitsPerCommand * uint64(len(data.Commands)) * price

	e := n.newExecution(digest, data)
	reason := e.run()
	storage := StorageUnitsPerObject * uint64(len(e.created)) * price

	if reason == "" && computation+storage > data.GasBudget {
		reason = "InsufficientGas"
	}
	if reason == "" && *e.staged[e.gas].info.Balance < computation+storage {
		reason = "InsufficientGas"
	}

	res := &types.ExecutionResult{Digest: digest, Status: types.ExecutionSuccess}
	if reason != "" {
		// 回滚命令效果，仅保留 gas 扣费与版本递增
		e = n.newExecution(digest, data)
		storage = 0
		if computation > data.GasBudget {
			computation = data.GasBudget
		}
		res.Status = types.ExecutionFailure
		res.Error = string(reason)
	}

	gas := e.staged[e.gas]
	charge := computation + storage
	if charge > *gas.info.Balance {
		charge = *gas.info.Balance
	}
	*gas.info.Balance -= charge
	res.GasUsed = types.GasSummary{ComputationCost: computation, StorageCost: storage}

	res.Mutated, res.Created = n.commit(e, data)
	return res
}

// commit 以 Lamport 版本写回暂存对象
func (n *Network) commit(e *execution, data *tx.TransactionData) (mutated, created []types.ObjectRef) {
	var version uint64
	for _, ref := range data.GasPayment {
		if ref.Version > version {
			version = ref.Version
		}
	}
	for id := range e.staged {
		if o, ok := n.objects[id]; ok && o.info.Ref.Version > version {
			version = o.info.Ref.Version
		}
	}
	version++

	isCreated := make(map[types.ObjectID]bool, len(e.created))
	for _, id := range e.created {
		isCreated[id] = true
	}

	for id, o := range e.staged {
		if e.deleted[id] {
			delete(n.objects, id)
			continue
		}
		o.info.Ref = types.ObjectRef{ObjectID: id, Version: version, Digest: objectDigest(id, version)}
		n.objects[id] = o
		if isCreated[id] {
			continue
		}
		mutated = append(mutated, o.info.Ref)
	}
	for _, id := range e.created {
		if !e.deleted[id] {
			created = append(created, n.objects[id].info.Ref)
		}
	}

	sort.Slice(mutated, func(i, j int) bool {
		return mutated[i].ObjectID.Compare(mutated[j].ObjectID) < 0
	})
	return mutated, created
}
