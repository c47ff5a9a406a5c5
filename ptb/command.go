package ptb

import (
	"github.com/weisyn/ptx-sdk-go/types"
)

// unknownArity 结果个数要到链上执行才能确定（MoveCall）
const unknownArity = -1

// Command 命令（封闭的标签联合）
type Command interface {
	isCommand()
	// args 命令消费的全部参数，按出现顺序
	args() []Argument
	// arity 命令产生的结果个数
	arity() int
}

// MoveCall 调用 Move 函数 package::module::function<TypeArguments>(Arguments)
type MoveCall struct {
	Package       types.ObjectID
	Module        string
	Function      string
	TypeArguments []TypeTag
	Arguments     []Argument
}

// TransferObjects 将一组对象转移给地址（Address 为纯值参数）
type TransferObjects struct {
	Objects []Argument
	Address Argument
}

// SplitCoins 从 Coin 中拆出 len(Amounts) 个新币
type SplitCoins struct {
	Coin    Argument
	Amounts []Argument
}

// MergeCoins 将 Sources 合并进 Destination
type MergeCoins struct {
	Destination Argument
	Sources     []Argument
}

// Publish 发布 Move 包，产生一个 UpgradeCap
type Publish struct {
	Modules      [][]byte
	Dependencies []types.ObjectID
}

// MakeMoveVec 用 Elements 构造 vector<Type>；Type 为 nil 时由元素推断
type MakeMoveVec struct {
	Type     TypeTag
	Elements []Argument
}

func (MoveCall) isCommand()        {}
func (TransferObjects) isCommand() {}
func (SplitCoins) isCommand()      {}
func (MergeCoins) isCommand()      {}
func (Publish) isCommand()         {}
func (MakeMoveVec) isCommand()     {}

func (c MoveCall) args() []Argument { return c.Arguments }
func (c TransferObjects) args() []Argument {
	return append(append([]Argument(nil), c.Objects...), c.Address)
}
func (c SplitCoins) args() []Argument {
	return append([]Argument{c.Coin}, c.Amounts...)
}
func (c MergeCoins) args() []Argument {
	return append([]Argument{c.Destination}, c.Sources...)
}
func (Publish) args() []Argument       { return nil }
func (c MakeMoveVec) args() []Argument { return c.Elements }

func (MoveCall) arity() int        { return unknownArity }
func (TransferObjects) arity() int { return 0 }
func (c SplitCoins) arity() int    { return len(c.Amounts) }
func (MergeCoins) arity() int      { return 0 }
func (Publish) arity() int         { return 1 }
func (MakeMoveVec) arity() int     { return 1 }

// cloneCommand 深拷贝命令中的切片，防止调用方在 finish 之后修改命令图
func cloneCommand(cmd Command) Command {
	switch c := cmd.(type) {
	case MoveCall:
		c.TypeArguments = append([]TypeTag(nil), c.TypeArguments...)
		c.Arguments = append([]Argument(nil), c.Arguments...)
		return c
	case TransferObjects:
		c.Objects = append([]Argument(nil), c.Objects...)
		return c
	case SplitCoins:
		c.Amounts = append([]Argument(nil), c.Amounts...)
		return c
	case MergeCoins:
		c.Sources = append([]Argument(nil), c.Sources...)
		return c
	case Publish:
		modules := make([][]byte, len(c.Modules))
		for i, m := range c.Modules {
			modules[i] = append([]byte(nil), m...)
		}
		c.Modules = modules
		c.Dependencies = append([]types.ObjectID(nil), c.Dependencies...)
		return c
	case MakeMoveVec:
		c.Elements = append([]Argument(nil), c.Elements...)
		return c
	default:
		return cmd
	}
}
