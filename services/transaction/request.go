package transaction

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/types"
)

// InputKind 输入类型
type InputKind string

const (
	// InputPure 纯值，按 Type 解析 Value
	InputPure InputKind = "pure"
	// InputObject 账本对象，按链上所有权解析为独占/共享/不可变输入
	InputObject InputKind = "object"
	// InputClock 系统时钟（无需读账本）
	InputClock InputKind = "clock"
)

// CommandKind 命令类型
type CommandKind string

const (
	CommandMoveCall        CommandKind = "move_call"
	CommandTransferObjects CommandKind = "transfer_objects"
	CommandSplitCoins      CommandKind = "split_coins"
	CommandMergeCoins      CommandKind = "merge_coins"
	CommandMakeMoveVec     CommandKind = "make_move_vec"
)

// 参数引用
const (
	RefGas    = "gas"    // gas 币
	RefSender = "sender" // 发送方地址（纯值）
)

// Input 命名输入
type Input struct {
	Name string
	Kind InputKind

	// 纯值：Type 为 u8/u16/u32/u64/bool/string/bytes/address/id/sha256
	Type  string
	Value string

	// 对象
	ObjectID types.ObjectID
	Mutable  bool
}

// Command 命名命令
//
// 参数引用形如 gas、sender、input.<name>、result.<name>、result.<name>.<n>
type Command struct {
	Name string
	Kind CommandKind

	// move_call："0xpkg::module::function"
	Target   string
	TypeArgs []string

	Args []string

	// split_coins：Args[0] 为被拆分的币
	Amounts []uint64

	// transfer_objects：sender 或十六进制地址
	Recipient string

	// make_move_vec：元素类型，可为空
	ElemType string
}

// Request 声明式交易请求
type Request struct {
	Inputs   []Input
	Commands []Command

	// GasBudget 为 0 时使用服务默认预算
	GasBudget uint64
	// GasCoin 显式指定 gas 币，为 nil 时自动选择
	GasCoin *types.ObjectID
}

// ref 解析后的参数引用
type ref struct {
	kind   string // gas | sender | input | result
	name   string
	nested int // -1 表示整个结果
}

func parseRef(s string) (ref, error) {
	switch s {
	case RefGas:
		return ref{kind: RefGas, nested: -1}, nil
	case RefSender:
		return ref{kind: RefSender, nested: -1}, nil
	}

	parts := strings.Split(s, ".")
	switch {
	case len(parts) == 2 && parts[0] == "input" && parts[1] != "":
		return ref{kind: "input", name: parts[1], nested: -1}, nil
	case len(parts) == 2 && parts[0] == "result" && parts[1] != "":
		return ref{kind: "result", name: parts[1], nested: -1}, nil
	case len(parts) == 3 && parts[0] == "result" && parts[1] != "":
		n, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return ref{}, fmt.Errorf("invalid result index in %q", s)
		}
		return ref{kind: "result", name: parts[1], nested: int(n)}, nil
	}
	return ref{}, fmt.Errorf("invalid reference %q", s)
}

// Validate 校验请求的结构，不访问网络
//
// 引用未声明（或尚未声明）的输入或命令结果返回 DANGLING_REFERENCE。
func (r *Request) Validate() error {
	if r == nil {
		return types.NewError(types.KindBuild, types.CodeInvalidCommand, "request is nil")
	}
	if len(r.Commands) == 0 {
		return types.NewError(types.KindBuild, types.CodeInvalidCommand, "request has no commands")
	}

	// 1. 输入
	inputs := make(map[string]bool, len(r.Inputs))
	for i, in := range r.Inputs {
		if in.Name == "" {
			return types.NewError(types.KindBuild, types.CodeInvalidCommand, "input %d has no name", i)
		}
		if inputs[in.Name] {
			return types.NewError(types.KindBuild, types.CodeInvalidCommand, "duplicate input %q", in.Name)
		}
		inputs[in.Name] = true

		switch in.Kind {
		case InputPure:
			if _, err := pureValue(in.Type, in.Value); err != nil {
				return types.Wrap(types.ErrMalformedPure, err, "input %q", in.Name)
			}
		case InputObject:
			if in.ObjectID.IsZero() {
				return types.NewError(types.KindBuild, types.CodeInvalidCommand, "input %q has no object id", in.Name)
			}
		case InputClock:
		default:
			return types.NewError(types.KindBuild, types.CodeInvalidCommand, "input %q has unknown kind %q", in.Name, in.Kind)
		}
	}

	// 2. 命令：只能引用更早声明的结果
	results := make(map[string]bool, len(r.Commands))
	for i, cmd := range r.Commands {
		if err := validateShape(cmd); err != nil {
			return types.Wrap(types.ErrInvalidCommand, err, "command %d (%s)", i, cmd.Kind)
		}
		for _, s := range cmd.Args {
			rf, err := parseRef(s)
			if err != nil {
				return types.Wrap(types.ErrInvalidCommand, err, "command %d (%s)", i, cmd.Kind)
			}
			if rf.kind == "input" && !inputs[rf.name] {
				return types.NewError(types.KindBuild, types.CodeDanglingReference,
					"command %d (%s) references undeclared input %q", i, cmd.Kind, rf.name)
			}
			if rf.kind == "result" && !results[rf.name] {
				return types.NewError(types.KindBuild, types.CodeDanglingReference,
					"command %d (%s) references result %q before it exists", i, cmd.Kind, rf.name)
			}
		}
		if cmd.Name != "" {
			if results[cmd.Name] {
				return types.NewError(types.KindBuild, types.CodeInvalidCommand, "duplicate command name %q", cmd.Name)
			}
			results[cmd.Name] = true
		}
	}
	return nil
}

func validateShape(cmd Command) error {
	switch cmd.Kind {
	case CommandMoveCall:
		if _, _, _, err := parseTarget(cmd.Target); err != nil {
			return err
		}
		for _, t := range cmd.TypeArgs {
			if _, err := ptb.ParseTypeTag(t); err != nil {
				return err
			}
		}
	case CommandTransferObjects:
		if len(cmd.Args) == 0 {
			return fmt.Errorf("nothing to transfer")
		}
		if cmd.Recipient != RefSender {
			if _, err := types.ParseAddress(cmd.Recipient); err != nil {
				return err
			}
		}
	case CommandSplitCoins:
		if len(cmd.Args) != 1 {
			return fmt.Errorf("expected exactly one coin, got %d", len(cmd.Args))
		}
		if len(cmd.Amounts) == 0 {
			return fmt.Errorf("no amounts")
		}
	case CommandMergeCoins:
		if len(cmd.Args) < 2 {
			return fmt.Errorf("expected a destination and at least one source")
		}
	case CommandMakeMoveVec:
		if cmd.ElemType != "" {
			if _, err := ptb.ParseTypeTag(cmd.ElemType); err != nil {
				return err
			}
		} else if len(cmd.Args) == 0 {
			return fmt.Errorf("empty vector needs an element type")
		}
	default:
		return fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
	return nil
}

// parseTarget 解析 "0xpkg::module::function"
func parseTarget(target string) (types.ObjectID, string, string, error) {
	parts := strings.Split(target, "::")
	if len(parts) != 3 {
		return types.ObjectID{}, "", "", fmt.Errorf("invalid move call target %q", target)
	}
	pkg, err := types.ParseObjectID(parts[0])
	if err != nil {
		return types.ObjectID{}, "", "", err
	}
	if !ptb.IsValidIdentifier(parts[1]) || !ptb.IsValidIdentifier(parts[2]) {
		return types.ObjectID{}, "", "", fmt.Errorf("invalid move call target %q", target)
	}
	return pkg, parts[1], parts[2], nil
}
