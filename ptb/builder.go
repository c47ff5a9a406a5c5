package ptb

import (
	"math"

	"github.com/weisyn/ptx-sdk-go/types"
)

// Builder 参数池 + 命令图构建器
//
// 非并发安全：一个 Builder 只服务一次交易构建。Finish 之后任何修改都返回 GRAPH_FROZEN。
type Builder struct {
	inputs   []CallArg
	keys     map[string]uint16 // 结构化去重键 -> 参数池下标
	commands []Command
	arities  []int
	finished bool
}

// NewBuilder 创建空的构建器
func NewBuilder() *Builder {
	return &Builder{
		keys: make(map[string]uint16),
	}
}

// InputCount 参数池大小
func (b *Builder) InputCount() int { return len(b.inputs) }

// CommandCount 已追加的命令数
func (b *Builder) CommandCount() int { return len(b.commands) }

// Finished 是否已冻结
func (b *Builder) Finished() bool { return b.finished }

func (b *Builder) checkOpen(op string) error {
	if b.finished {
		return types.NewError(types.KindBuild, types.CodeGraphFrozen, "%s after finish", op)
	}
	return nil
}

// Pure 编码并加入纯值参数，相同编码只占一个池条目
func (b *Builder) Pure(v interface{}) (Argument, error) {
	if err := b.checkOpen("add pure"); err != nil {
		return nil, err
	}
	encoded, err := EncodePure(v)
	if err != nil {
		return nil, err
	}
	return b.PureBytes(encoded)
}

// PureBytes 加入已 BCS 编码的纯值参数
func (b *Builder) PureBytes(encoded []byte) (Argument, error) {
	if err := b.checkOpen("add pure"); err != nil {
		return nil, err
	}
	if len(encoded) == 0 {
		return nil, types.NewError(types.KindBuild, types.CodeMalformedPure, "pure value has no bytes")
	}

	key := "p:" + string(encoded)
	if idx, ok := b.keys[key]; ok {
		return Input{Index: idx}, nil
	}
	return b.push(key, PureInput{Bytes: append([]byte(nil), encoded...)})
}

// AddObject 按所有权加入已解析的对象引用
func (b *Builder) AddObject(ref types.ObjectRef, owner types.Owner, mutable bool) (Argument, error) {
	if err := b.checkOpen("add object"); err != nil {
		return nil, err
	}
	arg, err := ObjectArgFor(ref, owner, mutable)
	if err != nil {
		return nil, err
	}
	return b.Object(arg)
}

// Object 加入对象输入，按对象 ID 去重
//
// 同一共享对象（相同初始版本）重复加入时合并访问意图：mutable = a || b。
// 同一 ID 的其他不一致组合返回 CONFLICTING_OBJECT_INPUT。
func (b *Builder) Object(arg ObjectArg) (Argument, error) {
	if err := b.checkOpen("add object"); err != nil {
		return nil, err
	}
	if arg == nil {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidCommand, "object argument is nil")
	}

	id := arg.ID()
	key := "o:" + string(id[:])
	idx, ok := b.keys[key]
	if !ok {
		return b.push(key, ObjectInput{Object: arg})
	}

	existing := b.inputs[idx].(ObjectInput).Object
	if existing == arg {
		return Input{Index: idx}, nil
	}
	if prev, ok := existing.(SharedObject); ok {
		if next, ok := arg.(SharedObject); ok && prev.InitialSharedVersion == next.InitialSharedVersion {
			prev.Mutable = prev.Mutable || next.Mutable
			b.inputs[idx] = ObjectInput{Object: prev}
			return Input{Index: idx}, nil
		}
	}
	return nil, types.NewError(types.KindBuild, types.CodeConflictingInput,
		"object %s already added as %T, cannot add again as %T", id, existing, arg)
}

func (b *Builder) push(key string, arg CallArg) (Argument, error) {
	if len(b.inputs) >= math.MaxUint16 {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidCommand, "too many inputs")
	}
	idx := uint16(len(b.inputs))
	b.inputs = append(b.inputs, arg)
	b.keys[key] = idx
	return Input{Index: idx}, nil
}

// Command 追加命令，返回引用其结果的 Result 参数
//
// 命令消费的每个参数都必须已经存在于本图中（更早的输入或命令），否则返回 DANGLING_REFERENCE。
func (b *Builder) Command(cmd Command) (Argument, error) {
	if err := b.checkOpen("append command"); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidCommand, "command is nil")
	}
	if len(b.commands) >= math.MaxUint16 {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidCommand, "too many commands")
	}

	// 1. 命令自身的结构校验
	if err := b.validateShape(cmd); err != nil {
		return nil, err
	}

	// 2. 参数只能指向已有的输入 / 更早的命令
	for _, arg := range cmd.args() {
		if err := b.checkArgument(arg); err != nil {
			return nil, err
		}
	}

	idx := uint16(len(b.commands))
	b.commands = append(b.commands, cloneCommand(cmd))
	b.arities = append(b.arities, cmd.arity())
	return Result{Index: idx}, nil
}

func (b *Builder) validateShape(cmd Command) error {
	switch c := cmd.(type) {
	case MoveCall:
		if !IsValidIdentifier(c.Module) || !IsValidIdentifier(c.Function) {
			return types.NewError(types.KindBuild, types.CodeInvalidCommand,
				"invalid move call target %s::%s::%s", c.Package, c.Module, c.Function)
		}
		for _, t := range c.TypeArguments {
			if t == nil {
				return types.NewError(types.KindBuild, types.CodeInvalidCommand, "nil type argument in %s::%s", c.Module, c.Function)
			}
		}
	case TransferObjects:
		if len(c.Objects) == 0 {
			return types.NewError(types.KindBuild, types.CodeInvalidCommand, "transfer objects without objects")
		}
		if c.Address == nil {
			return types.NewError(types.KindBuild, types.CodeInvalidCommand, "transfer objects without recipient")
		}
		// 接收者必须是纯值（地址），被转移的必须不是纯值
		if in, ok := c.Address.(Input); ok && int(in.Index) < len(b.inputs) {
			if _, pure := b.inputs[in.Index].(PureInput); !pure {
				return types.NewError(types.KindBuild, types.CodeInvalidCommand, "transfer recipient %s is not a pure value", in)
			}
		}
		for _, obj := range c.Objects {
			if in, ok := obj.(Input); ok && int(in.Index) < len(b.inputs) {
				if _, pure := b.inputs[in.Index].(PureInput); pure {
					return types.NewError(types.KindBuild, types.CodeInvalidCommand, "transferred argument %s is a pure value", in)
				}
			}
		}
	case SplitCoins:
		if c.Coin == nil || len(c.Amounts) == 0 {
			return types.NewError(types.KindBuild, types.CodeInvalidCommand, "split coins needs a coin and at least one amount")
		}
	case MergeCoins:
		if c.Destination == nil || len(c.Sources) == 0 {
			return types.NewError(types.KindBuild, types.CodeInvalidCommand, "merge coins needs a destination and at least one source")
		}
	case Publish:
		if len(c.Modules) == 0 {
			return types.NewError(types.KindBuild, types.CodeInvalidCommand, "publish without modules")
		}
	case MakeMoveVec:
		if c.Type == nil && len(c.Elements) == 0 {
			return types.NewError(types.KindBuild, types.CodeInvalidCommand, "empty move vector needs an explicit type")
		}
	default:
		return types.NewError(types.KindBuild, types.CodeInvalidCommand, "unknown command %T", cmd)
	}
	return nil
}

func (b *Builder) checkArgument(arg Argument) error {
	switch a := arg.(type) {
	case GasCoin:
		return nil
	case Input:
		if int(a.Index) >= len(b.inputs) {
			return types.NewError(types.KindBuild, types.CodeDanglingReference,
				"%s not in pool of %d inputs", a, len(b.inputs))
		}
	case Result:
		if int(a.Index) >= len(b.commands) {
			return types.NewError(types.KindBuild, types.CodeDanglingReference,
				"%s refers to a command not yet appended (%d commands)", a, len(b.commands))
		}
		if n := b.arities[a.Index]; n != unknownArity && n != 1 {
			return types.NewError(types.KindBuild, types.CodeInvalidCommand,
				"%s: command has %d results, use NestedResult", a, n)
		}
	case NestedResult:
		if int(a.Index) >= len(b.commands) {
			return types.NewError(types.KindBuild, types.CodeDanglingReference,
				"%s refers to a command not yet appended (%d commands)", a, len(b.commands))
		}
		if n := b.arities[a.Index]; n != unknownArity && int(a.ResultIndex) >= n {
			return types.NewError(types.KindBuild, types.CodeDanglingReference,
				"%s: command has only %d results", a, n)
		}
	case nil:
		return types.NewError(types.KindBuild, types.CodeDanglingReference, "nil argument")
	default:
		return types.NewError(types.KindBuild, types.CodeInvalidCommand, "unknown argument %T", arg)
	}
	return nil
}

// MoveCall 追加 MoveCall 命令
func (b *Builder) MoveCall(pkg types.ObjectID, module, function string, typeArgs []TypeTag, args ...Argument) (Argument, error) {
	return b.Command(MoveCall{
		Package:       pkg,
		Module:        module,
		Function:      function,
		TypeArguments: typeArgs,
		Arguments:     args,
	})
}

// TransferObjects 追加 TransferObjects 命令，recipient 以纯值地址加入参数池
func (b *Builder) TransferObjects(recipient types.Address, objects ...Argument) error {
	addr, err := b.Pure(recipient)
	if err != nil {
		return err
	}
	_, err = b.Command(TransferObjects{Objects: objects, Address: addr})
	return err
}

// SplitCoins 追加 SplitCoins 命令，返回每个新币的 NestedResult
func (b *Builder) SplitCoins(coin Argument, amounts ...uint64) ([]Argument, error) {
	amountArgs := make([]Argument, 0, len(amounts))
	for _, amount := range amounts {
		arg, err := b.Pure(amount)
		if err != nil {
			return nil, err
		}
		amountArgs = append(amountArgs, arg)
	}
	res, err := b.Command(SplitCoins{Coin: coin, Amounts: amountArgs})
	if err != nil {
		return nil, err
	}
	idx := res.(Result).Index
	out := make([]Argument, len(amounts))
	for i := range amounts {
		out[i] = NestedResult{Index: idx, ResultIndex: uint16(i)}
	}
	return out, nil
}

// MergeCoins 追加 MergeCoins 命令
func (b *Builder) MergeCoins(destination Argument, sources ...Argument) error {
	_, err := b.Command(MergeCoins{Destination: destination, Sources: sources})
	return err
}

// Finish 冻结命令图并返回不可变的可编程交易
func (b *Builder) Finish() (*ProgrammableTransaction, error) {
	if err := b.checkOpen("finish"); err != nil {
		return nil, err
	}
	if len(b.commands) == 0 {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidCommand, "transaction has no commands")
	}
	b.finished = true
	return &ProgrammableTransaction{
		inputs:   append([]CallArg(nil), b.inputs...),
		commands: append([]Command(nil), b.commands...),
	}, nil
}
