// Package transaction 声明式交易服务
//
// 把命名输入与命令组成的 Request 依次交给解析器、构建器、组装器、签名器和提交驱动。
// 请求在任何网络调用之前完成结构校验。
package transaction

import (
	"context"
	"fmt"

	"github.com/weisyn/ptx-sdk-go/client"
	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/resolver"
	"github.com/weisyn/ptx-sdk-go/submit"
	"github.com/weisyn/ptx-sdk-go/tx"
	"github.com/weisyn/ptx-sdk-go/types"
	"github.com/weisyn/ptx-sdk-go/wallet"
)

// DefaultGasBudget 默认 gas 预算（基础单位）
const DefaultGasBudget uint64 = 5_000_000

// Ledger 服务依赖的节点能力：账本读、交易执行、按摘要查询
//
// client.NodeClient 与 simnet.Network 都满足该接口。
type Ledger interface {
	resolver.LedgerReader
	submit.Gateway
	submit.TransactionReader
}

// Service 交易业务服务接口
type Service interface {
	// Build 校验请求、解析对象、构建命令图并组装交易
	Build(ctx context.Context, req *Request) (*tx.Payload, error)

	// Sign 用发送方密钥签名
	Sign(payload *tx.Payload) (*tx.SignedTransaction, error)

	// Submit 提交已签名交易并按一致性模式等待
	Submit(ctx context.Context, signed *tx.SignedTransaction, mode types.ConsistencyMode) (*types.ExecutionResult, error)

	// Execute Build + Sign + Submit
	Execute(ctx context.Context, req *Request, mode types.ConsistencyMode) (*types.ExecutionResult, error)

	// Sender 发送方地址
	Sender() types.Address
}

// Config 服务配置
type Config struct {
	// Sender 发送方地址，必须在 KeyStore 中
	Sender types.Address

	// GasBudget 默认 gas 预算，0 表示 DefaultGasBudget
	GasBudget uint64

	// GasExclude 自动选择 gas 时排除的对象（例如被同进程其他交易占用的币）
	GasExclude []types.ObjectID

	// Submit 提交驱动配置，可为 nil
	Submit *submit.Config

	// Logger 可选
	Logger client.Logger
}

// transactionService 交易服务实现
type transactionService struct {
	resolver  *resolver.Resolver
	assembler *tx.Assembler
	driver    *submit.Driver
	keys      wallet.KeyStore
	config    Config
	logger    client.Logger
}

// NewService 创建交易服务
func NewService(ledger Ledger, keys wallet.KeyStore, config *Config) (Service, error) {
	if ledger == nil || keys == nil {
		return nil, fmt.Errorf("ledger and key store are required")
	}
	if config == nil || config.Sender.IsZero() {
		return nil, fmt.Errorf("sender is required")
	}

	cfg := *config
	if cfg.GasBudget == 0 {
		cfg.GasBudget = DefaultGasBudget
	}
	logger := client.LoggerOrNop(cfg.Logger)

	driverCfg := submit.DefaultConfig()
	if cfg.Submit != nil {
		c := *cfg.Submit
		driverCfg = &c
	}
	if driverCfg.Reader == nil {
		driverCfg.Reader = ledger
	}
	if driverCfg.Logger == nil {
		driverCfg.Logger = cfg.Logger
	}

	return &transactionService{
		resolver:  resolver.New(ledger),
		assembler: tx.NewAssembler(ledger),
		driver:    submit.NewDriver(ledger, driverCfg),
		keys:      keys,
		config:    cfg,
		logger:    logger,
	}, nil
}

func (s *transactionService) Sender() types.Address { return s.config.Sender }

// Build 构建交易
func (s *transactionService) Build(ctx context.Context, req *Request) (*tx.Payload, error) {
	// 1. 结构校验（不访问网络）
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// 2. 解析对象输入
	objects, err := s.resolveObjects(ctx, req.Inputs)
	if err != nil {
		return nil, err
	}

	// 3. 构建命令图
	b := ptb.NewBuilder()
	inputs := make(map[string]ptb.Argument, len(req.Inputs))
	for _, in := range req.Inputs {
		var arg ptb.Argument
		switch in.Kind {
		case InputPure:
			v, err := pureValue(in.Type, in.Value)
			if err != nil {
				return nil, types.Wrap(types.ErrMalformedPure, err, "input %q", in.Name)
			}
			arg, err = b.Pure(v)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", in.Name, err)
			}
		default:
			arg, err = b.Object(objects[in.Name])
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", in.Name, err)
			}
		}
		inputs[in.Name] = arg
	}

	cb := &commandBuilder{b: b, sender: s.config.Sender, inputs: inputs, results: make(map[string]uint16)}
	for i, cmd := range req.Commands {
		if err := cb.add(cmd); err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, cmd.Kind, err)
		}
	}
	pt, err := b.Finish()
	if err != nil {
		return nil, err
	}

	// 4. 选择 gas 并组装
	budget := req.GasBudget
	if budget == 0 {
		budget = s.config.GasBudget
	}
	gas, err := s.selectGas(ctx, req.GasCoin, budget, pt)
	if err != nil {
		return nil, err
	}
	payload, err := s.assembler.Assemble(ctx, s.config.Sender, []types.ObjectRef{gas}, pt, budget)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Transaction built",
		"digest", payload.Digest().String(),
		"inputs", len(pt.Inputs()),
		"commands", len(pt.Commands()),
		"gas", gas.String(),
		"gasPrice", payload.GasPrice())
	return payload, nil
}

// resolveObjects 并发解析全部对象输入
func (s *transactionService) resolveObjects(ctx context.Context, inputs []Input) (map[string]ptb.ObjectArg, error) {
	out := make(map[string]ptb.ObjectArg)
	var (
		names []string
		reqs  []resolver.Request
	)
	for _, in := range inputs {
		switch in.Kind {
		case InputClock:
			out[in.Name] = s.resolver.Clock(in.Mutable)
		case InputObject:
			names = append(names, in.Name)
			reqs = append(reqs, resolver.Request{ID: in.ObjectID, Mutable: in.Mutable})
		}
	}
	if len(reqs) == 0 {
		return out, nil
	}

	args, err := s.resolver.ResolveAll(ctx, reqs)
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		out[name] = args[i]
	}
	return out, nil
}

// selectGas 显式指定时读取最新引用，否则自动选择（排除作为命令输入的独占对象）
func (s *transactionService) selectGas(ctx context.Context, explicit *types.ObjectID, budget uint64, pt *ptb.ProgrammableTransaction) (types.ObjectRef, error) {
	if explicit != nil {
		return s.resolver.Owned(ctx, *explicit)
	}
	exclude := append([]types.ObjectID(nil), s.config.GasExclude...)
	for _, ref := range pt.OwnedRefs() {
		exclude = append(exclude, ref.ObjectID)
	}
	return s.resolver.SelectGas(ctx, s.config.Sender, resolver.GasOptions{MinBalance: budget, Exclude: exclude})
}

// Sign 签名
func (s *transactionService) Sign(payload *tx.Payload) (*tx.SignedTransaction, error) {
	if payload == nil {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidPayload, "payload is nil")
	}
	if payload.Sender() != s.config.Sender {
		return nil, types.NewError(types.KindSigning, types.CodeUnknownAddress,
			"payload sender %s is not the service sender %s", payload.Sender(), s.config.Sender)
	}
	return tx.Sign(s.keys, payload)
}

// Submit 提交
func (s *transactionService) Submit(ctx context.Context, signed *tx.SignedTransaction, mode types.ConsistencyMode) (*types.ExecutionResult, error) {
	res, err := s.driver.Submit(ctx, signed, mode)
	if err != nil {
		return nil, err
	}
	if !res.Succeeded() {
		s.logger.Warn("Transaction finalized with failure", "digest", res.Digest.String(), "error", res.Error)
	}
	return res, nil
}

// Execute 构建、签名并提交
func (s *transactionService) Execute(ctx context.Context, req *Request, mode types.ConsistencyMode) (*types.ExecutionResult, error) {
	payload, err := s.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	signed, err := s.Sign(payload)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, signed, mode)
}
