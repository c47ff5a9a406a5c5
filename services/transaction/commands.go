package transaction

import (
	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/types"
)

// commandBuilder 把命名引用翻译为构建器参数
type commandBuilder struct {
	b       *ptb.Builder
	sender  types.Address
	inputs  map[string]ptb.Argument
	results map[string]uint16
}

func (c *commandBuilder) arg(s string) (ptb.Argument, error) {
	rf, err := parseRef(s)
	if err != nil {
		return nil, types.Wrap(types.ErrInvalidCommand, err, "argument %q", s)
	}
	switch rf.kind {
	case RefGas:
		return ptb.GasCoin{}, nil
	case RefSender:
		return c.b.Pure(c.sender)
	case "input":
		if arg, ok := c.inputs[rf.name]; ok {
			return arg, nil
		}
	case "result":
		if idx, ok := c.results[rf.name]; ok {
			if rf.nested < 0 {
				return ptb.Result{Index: idx}, nil
			}
			return ptb.NestedResult{Index: idx, ResultIndex: uint16(rf.nested)}, nil
		}
	}
	return nil, types.NewError(types.KindBuild, types.CodeDanglingReference, "argument %q is not declared", s)
}

func (c *commandBuilder) args(refs []string) ([]ptb.Argument, error) {
	out := make([]ptb.Argument, 0, len(refs))
	for _, s := range refs {
		a, err := c.arg(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// add 追加一条命令并记录其结果名
func (c *commandBuilder) add(cmd Command) error {
	args, err := c.args(cmd.Args)
	if err != nil {
		return err
	}

	switch cmd.Kind {
	case CommandMoveCall:
		pkg, module, function, err := parseTarget(cmd.Target)
		if err != nil {
			return types.Wrap(types.ErrInvalidCommand, err, "move call")
		}
		tags := make([]ptb.TypeTag, 0, len(cmd.TypeArgs))
		for _, t := range cmd.TypeArgs {
			tag, err := ptb.ParseTypeTag(t)
			if err != nil {
				return types.Wrap(types.ErrInvalidCommand, err, "move call type argument")
			}
			tags = append(tags, tag)
		}
		if _, err := c.b.MoveCall(pkg, module, function, tags, args...); err != nil {
			return err
		}

	case CommandTransferObjects:
		recipient := c.sender
		if cmd.Recipient != RefSender {
			if recipient, err = types.ParseAddress(cmd.Recipient); err != nil {
				return types.Wrap(types.ErrInvalidCommand, err, "recipient")
			}
		}
		if err := c.b.TransferObjects(recipient, args...); err != nil {
			return err
		}

	case CommandSplitCoins:
		if len(args) != 1 {
			return types.NewError(types.KindBuild, types.CodeInvalidCommand, "split_coins takes exactly one coin")
		}
		if _, err := c.b.SplitCoins(args[0], cmd.Amounts...); err != nil {
			return err
		}

	case CommandMergeCoins:
		if len(args) < 2 {
			return types.NewError(types.KindBuild, types.CodeInvalidCommand, "merge_coins needs a destination and sources")
		}
		if err := c.b.MergeCoins(args[0], args[1:]...); err != nil {
			return err
		}

	case CommandMakeMoveVec:
		var elem ptb.TypeTag
		if cmd.ElemType != "" {
			if elem, err = ptb.ParseTypeTag(cmd.ElemType); err != nil {
				return types.Wrap(types.ErrInvalidCommand, err, "vector element type")
			}
		}
		if _, err := c.b.Command(ptb.MakeMoveVec{Type: elem, Elements: args}); err != nil {
			return err
		}

	default:
		return types.NewError(types.KindBuild, types.CodeInvalidCommand, "unknown command kind %q", cmd.Kind)
	}

	if cmd.Name != "" {
		c.results[cmd.Name] = uint16(c.b.CommandCount() - 1)
	}
	return nil
}
