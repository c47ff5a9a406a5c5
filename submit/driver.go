// Package submit 交易提交驱动
//
// 把已签名交易交给网关，按一致性模式等待结果，并以交易摘要作为幂等键：
// 已最终确认的摘要再次提交时直接返回原结果。驱动从不自动重发交易。
//
// 调用方取消 ctx 只结束自己的等待；广播在独立的上下文中继续，受 Config.Timeout 约束。
package submit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weisyn/ptx-sdk-go/client"
	"github.com/weisyn/ptx-sdk-go/tx"
	"github.com/weisyn/ptx-sdk-go/types"
)

// State 提交状态
type State string

const (
	StateBuilt          State = "Built"
	StateBroadcast      State = "Broadcast"
	StateQuorumReached  State = "QuorumReached"
	StateExecuting      State = "Executing"
	StateFinalized      State = "Finalized"
	StateRejected       State = "Rejected"
	StateNetworkTimeout State = "NetworkTimeout"
)

// Terminal 是否为终态
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateRejected || s == StateNetworkTimeout
}

// Gateway 交易执行网关
type Gateway interface {
	ExecuteTransaction(ctx context.Context, signed *tx.SignedTransaction, mode types.ConsistencyMode) (*types.ExecutionResult, error)
}

// TransactionReader 按摘要查询已执行交易
type TransactionReader interface {
	GetTransaction(ctx context.Context, digest types.Digest) (*types.ExecutionResult, error)
}

// Config 驱动配置
type Config struct {
	// Timeout 单次提交（广播到法定数量认证）的超时，默认 60s
	Timeout time.Duration

	// LocalExecutionTimeout WaitForLocalExecution 模式下等待本地执行的超时，默认 30s
	LocalExecutionTimeout time.Duration

	// PollInterval 轮询本地执行结果的间隔，默认 200ms
	PollInterval time.Duration

	// Reader 可选；用于确认本地执行以及取回已执行交易的结果
	Reader TransactionReader

	// Logger 可选
	Logger client.Logger

	// OnStateChange 可选的状态观察者（同步调用，不要阻塞）
	OnStateChange func(digest types.Digest, from, to State)

	// MaxTracked 最多记录的摘要数，超出时按先进先出淘汰已到终态的摘要，默认 4096
	//
	// 被淘汰的摘要再次提交会重新广播，由网络按摘要去重
	MaxTracked int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:               60 * time.Second,
		LocalExecutionTimeout: 30 * time.Second,
		PollInterval:          200 * time.Millisecond,
		MaxTracked:            4096,
	}
}

// Driver 提交驱动，可被多个 goroutine 并发使用
type Driver struct {
	gateway Gateway
	config  Config
	logger  client.Logger

	flight singleflight.Group

	mu        sync.Mutex
	states    map[types.Digest]State
	finalized map[types.Digest]*types.ExecutionResult
	order     []types.Digest // 首次记录顺序，用于淘汰
}

// NewDriver 创建提交驱动
func NewDriver(gateway Gateway, config *Config) *Driver {
	cfg := *DefaultConfig()
	if config != nil {
		if config.Timeout > 0 {
			cfg.Timeout = config.Timeout
		}
		if config.LocalExecutionTimeout > 0 {
			cfg.LocalExecutionTimeout = config.LocalExecutionTimeout
		}
		if config.PollInterval > 0 {
			cfg.PollInterval = config.PollInterval
		}
		if config.MaxTracked > 0 {
			cfg.MaxTracked = config.MaxTracked
		}
		cfg.Reader = config.Reader
		cfg.Logger = config.Logger
		cfg.OnStateChange = config.OnStateChange
	}
	return &Driver{
		gateway:   gateway,
		config:    cfg,
		logger:    client.LoggerOrNop(cfg.Logger),
		states:    make(map[types.Digest]State),
		finalized: make(map[types.Digest]*types.ExecutionResult),
	}
}

// State 查询摘要当前状态
func (d *Driver) State(digest types.Digest) (State, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[digest]
	return s, ok
}

// Submit 提交交易并等待最终结果
//
// 链上中止（Status == failure）同样是最终结果，返回 nil 错误。
// 同一摘要的并发提交合并为一次广播；已确认的摘要不再访问网络。
// ctx 结束时返回 NETWORK_TIMEOUT，但不影响共享的广播和其他等待者。
func (d *Driver) Submit(ctx context.Context, signed *tx.SignedTransaction, mode types.ConsistencyMode) (*types.ExecutionResult, error) {
	if !mode.Valid() {
		return nil, types.NewError(types.KindSubmission, types.CodeInvalidConsistencyMode, "unknown consistency mode %q", mode)
	}
	if signed == nil {
		return nil, types.NewError(types.KindSubmission, types.CodeMalformedTransaction, "signed transaction is nil")
	}

	digest := signed.Digest()
	if res, ok := d.cached(digest, mode); ok {
		d.logger.Debug("Transaction already finalized", "digest", digest.String())
		return res, nil
	}

	// 广播不随任何一个调用方取消
	flightCtx := context.WithoutCancel(ctx)
	ch := d.flight.DoChan(digest.String()+"/"+string(mode), func() (interface{}, error) {
		if res, ok := d.cached(digest, mode); ok {
			return res, nil
		}
		return d.submit(flightCtx, signed, mode)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*types.ExecutionResult).Clone(), nil
	case <-ctx.Done():
		d.logger.Debug("Stopped waiting for transaction", "digest", digest.String(), "error", ctx.Err())
		return nil, types.Wrap(types.ErrNetworkTimeout, ctx.Err(),
			"stopped waiting for transaction %s, outcome unknown", digest)
	}
}

// cached 返回满足所需模式的已确认结果
func (d *Driver) cached(digest types.Digest, mode types.ConsistencyMode) (*types.ExecutionResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, ok := d.finalized[digest]
	if !ok {
		return nil, false
	}
	if mode == types.WaitForLocalExecution && !res.ConfirmedLocalExecution {
		return nil, false
	}
	return res.Clone(), true
}

func (d *Driver) submit(ctx context.Context, signed *tx.SignedTransaction, mode types.ConsistencyMode) (*types.ExecutionResult, error) {
	digest := signed.Digest()

	// 已按较弱模式确认：只需补上本地执行确认，不重新广播
	if prev, ok := d.finalizedResult(digest); ok {
		return d.upgrade(ctx, prev, mode)
	}

	d.transition(digest, StateBuilt)
	d.transition(digest, StateBroadcast)

	// 1. 广播，等待法定数量认证
	res, err := d.broadcast(ctx, signed, mode)
	if err != nil {
		return nil, d.fail(digest, err)
	}
	if res.Digest != digest {
		return nil, d.fail(digest, types.NewError(types.KindSubmission, types.CodeDigestMismatch,
			"gateway returned digest %s", res.Digest))
	}
	d.transition(digest, StateQuorumReached)

	// 2. 本地执行确认
	if mode == types.WaitForLocalExecution {
		d.transition(digest, StateExecuting)
		if !res.ConfirmedLocalExecution {
			if err := d.awaitLocalExecution(ctx, digest); err != nil {
				return nil, d.fail(digest, err)
			}
			res.ConfirmedLocalExecution = true
		}
	}

	// 3. 最终确认
	res.Mode = mode
	d.mu.Lock()
	if prev, ok := d.finalized[digest]; !ok || !prev.ConfirmedLocalExecution {
		d.finalized[digest] = res.Clone()
	}
	d.mu.Unlock()
	d.transition(digest, StateFinalized)

	if !res.Succeeded() {
		d.logger.Info("Transaction finalized with execution failure", "digest", digest.String(), "error", res.Error)
	}
	return res, nil
}

// broadcast 在 Config.Timeout 内把交易交给网关
func (d *Driver) broadcast(ctx context.Context, signed *tx.SignedTransaction, mode types.ConsistencyMode) (*types.ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	res, err := d.gateway.ExecuteTransaction(ctx, signed, mode)
	if err != nil && errors.Is(err, types.ErrAlreadyExecuted) && d.config.Reader != nil {
		// 网络已执行过该摘要：取回原结果
		res, err = d.config.Reader.GetTransaction(ctx, signed.Digest())
	}
	if err != nil && ctx.Err() != nil && !errors.Is(err, types.ErrNetworkTimeout) {
		err = types.Wrap(types.ErrNetworkTimeout, err, "no certificate for transaction %s within %s", signed.Digest(), d.config.Timeout)
	}
	return res, err
}

// upgrade 已确认交易改用更强的模式提交：从缓存结果直接进入 Executing
//
// 等待失败时返回错误，但状态保持 Finalized
func (d *Driver) upgrade(ctx context.Context, prev *types.ExecutionResult, mode types.ConsistencyMode) (*types.ExecutionResult, error) {
	digest := prev.Digest
	d.transition(digest, StateExecuting)
	if err := d.awaitLocalExecution(ctx, digest); err != nil {
		return nil, d.fail(digest, err)
	}

	res := prev.Clone()
	res.ConfirmedLocalExecution = true
	res.Mode = mode
	d.mu.Lock()
	d.finalized[digest] = res.Clone()
	d.mu.Unlock()
	d.transition(digest, StateFinalized)
	return res, nil
}

// finalizedResult 返回已确认结果（不论模式）
func (d *Driver) finalizedResult(digest types.Digest) (*types.ExecutionResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, ok := d.finalized[digest]
	if !ok {
		return nil, false
	}
	return res.Clone(), true
}

// awaitLocalExecution 轮询直到交易可在节点上查询到
func (d *Driver) awaitLocalExecution(ctx context.Context, digest types.Digest) error {
	if d.config.Reader == nil {
		d.logger.Warn("Local execution not confirmed and no reader configured", "digest", digest.String())
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.LocalExecutionTimeout)
	defer cancel()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		_, err := d.config.Reader.GetTransaction(ctx, digest)
		if err == nil {
			return nil
		}
		if !errors.Is(err, types.ErrTransactionNotFound) {
			d.logger.Debug("Polling transaction failed", "digest", digest.String(), "error", err)
		}

		select {
		case <-ctx.Done():
			return types.Wrap(types.ErrNetworkTimeout, ctx.Err(),
				"transaction %s certified but not executed locally in time", digest)
		case <-ticker.C:
		}
	}
}

// fail 记录失败终态
//
// 超时与网络不可用时交易结果未知（可能已执行），状态记为 NetworkTimeout；其余为 Rejected。
// 已确认的摘要保持 Finalized。
func (d *Driver) fail(digest types.Digest, err error) error {
	if _, ok := types.AsError(err); !ok {
		err = types.Wrap(types.ErrNetworkUnavailable, err, "submit transaction %s", digest)
	}

	if _, ok := d.finalizedResult(digest); ok {
		d.transition(digest, StateFinalized)
		d.logger.Warn("Stronger confirmation failed for finalized transaction", "digest", digest.String(), "error", err)
		return err
	}

	if errors.Is(err, types.ErrNetworkTimeout) || errors.Is(err, types.ErrNetworkUnavailable) {
		d.transition(digest, StateNetworkTimeout)
		d.logger.Warn("Transaction outcome unknown", "digest", digest.String(), "error", err)
		return err
	}

	d.transition(digest, StateRejected)
	d.logger.Warn("Transaction rejected", "digest", digest.String(), "error", err)
	return err
}

func (d *Driver) transition(digest types.Digest, to State) {
	d.mu.Lock()
	from, tracked := d.states[digest]
	d.states[digest] = to
	if !tracked {
		d.order = append(d.order, digest)
	}
	d.evictLocked()
	d.mu.Unlock()

	d.logger.Debug("Transaction state changed", "digest", digest.String(), "from", string(from), "to", string(to))
	if d.config.OnStateChange != nil {
		d.config.OnStateChange(digest, from, to)
	}
}

// evictLocked 超出 MaxTracked 时按记录顺序淘汰终态摘要，进行中的摘要移到队尾
func (d *Driver) evictLocked() {
	for n := len(d.order); n > 0 && len(d.states) > d.config.MaxTracked; n-- {
		digest := d.order[0]
		d.order = d.order[1:]
		if s, ok := d.states[digest]; ok && !s.Terminal() {
			d.order = append(d.order, digest)
			continue
		}
		delete(d.states, digest)
		delete(d.finalized, digest)
	}
}
