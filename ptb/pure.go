package ptb

import (
	"crypto/sha256"
	"fmt"
	"reflect"

	"github.com/fardream/go-bcs/bcs"

	"github.com/weisyn/ptx-sdk-go/types"
)

// EncodePure 将 Go 值按 BCS 编码为纯值参数
//
// 支持的类型：bool、uint8/16/32/64、string、固定长度字节数组（地址、对象 ID）
// 以及它们的切片（vector<T>）。有符号整数、浮点、map、结构体等没有对应的
// Move 纯值类型，返回 MALFORMED_PURE。
func EncodePure(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, types.NewError(types.KindBuild, types.CodeMalformedPure, "pure value is nil")
	}
	if err := checkPureType(reflect.TypeOf(v)); err != nil {
		return nil, types.Wrap(types.ErrMalformedPure, err, "unsupported pure value of type %T", v)
	}
	encoded, err := bcs.Marshal(v)
	if err != nil {
		return nil, types.Wrap(types.ErrMalformedPure, err, "encode pure value of type %T", v)
	}
	return encoded, nil
}

func checkPureType(t reflect.Type) error {
	switch t.Kind() {
	case reflect.Bool, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.String:
		return nil
	case reflect.Array:
		if t.Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("array of %s is not a pure type", t.Elem())
		}
		return nil
	case reflect.Slice:
		return checkPureType(t.Elem())
	default:
		return fmt.Errorf("%s has no pure encoding", t)
	}
}

// SHA256 计算数据的 SHA-256，作为 vector<u8> 纯值传入（文件哈希上链等场景）
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
