package tx

import (
	"context"
	"fmt"

	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/types"
)

// GasPriceSource 参考 gas 价格来源（账本读服务）
type GasPriceSource interface {
	GetReferenceGasPrice(ctx context.Context) (uint64, error)
}

// Assembler 组装器：每次组装前都重新查询参考 gas 价格
type Assembler struct {
	prices GasPriceSource
}

// NewAssembler 创建组装器
func NewAssembler(prices GasPriceSource) *Assembler {
	return &Assembler{prices: prices}
}

// Assemble 查询当前参考价格并组装交易
func (a *Assembler) Assemble(ctx context.Context, sender types.Address, gas []types.ObjectRef, pt *ptb.ProgrammableTransaction, gasBudget uint64) (*Payload, error) {
	price, err := a.prices.GetReferenceGasPrice(ctx)
	if err != nil {
		if _, ok := types.AsError(err); ok {
			return nil, fmt.Errorf("get reference gas price: %w", err)
		}
		return nil, types.Wrap(types.ErrNetworkUnavailable, err, "get reference gas price")
	}
	return NewPayload(sender, gas, pt, price, gasBudget)
}
