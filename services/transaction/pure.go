package transaction

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/types"
)

// pureValue 将文本值转换为可 BCS 编码的 Go 值
func pureValue(typ, value string) (interface{}, error) {
	switch typ {
	case "u8":
		v, err := strconv.ParseUint(value, 10, 8)
		return uint8(v), err
	case "u16":
		v, err := strconv.ParseUint(value, 10, 16)
		return uint16(v), err
	case "u32":
		v, err := strconv.ParseUint(value, 10, 32)
		return uint32(v), err
	case "u64":
		v, err := strconv.ParseUint(value, 10, 64)
		return v, err
	case "bool":
		return strconv.ParseBool(value)
	case "string":
		return value, nil
	case "bytes":
		return hex.DecodeString(strings.TrimPrefix(value, "0x"))
	case "address":
		return types.ParseAddress(value)
	case "id":
		return types.ParseObjectID(value)
	case "sha256":
		// 对内容取 SHA-256，作为 vector<u8>
		return ptb.SHA256([]byte(value)), nil
	default:
		return nil, fmt.Errorf("unknown pure type %q", typ)
	}
}
