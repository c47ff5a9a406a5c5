package types

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// CoinDecimals 原生币精度（1 币 = 10^9 基础单位）
const CoinDecimals = 9

var coinScale = decimal.New(1, CoinDecimals)

// FormatAmount 将基础单位格式化为币单位（去除多余的尾随零）
func FormatAmount(base uint64) string {
	return fromUint64(base).Div(coinScale).String()
}

// ParseAmount 将币单位的十进制串解析为基础单位
//
// 超出精度的小数位或负数会被拒绝，不做静默截断
func ParseAmount(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid amount %q: negative", s)
	}
	base := d.Mul(coinScale)
	if !base.Equal(base.Truncate(0)) {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimal places", s, CoinDecimals)
	}
	if base.GreaterThan(fromUint64(^uint64(0))) {
		return 0, fmt.Errorf("invalid amount %q: overflows uint64", s)
	}
	return base.BigInt().Uint64(), nil
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
