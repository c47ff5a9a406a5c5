package tx

import (
	"fmt"

	"github.com/fardream/go-bcs/bcs"

	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/types"
)

// TransactionData 从 BCS 字节还原的交易内容（网关侧校验使用）
type TransactionData struct {
	Sender     types.Address
	GasPayment []types.ObjectRef
	GasOwner   types.Address
	GasPrice   uint64
	GasBudget  uint64
	Inputs     []ptb.CallArg
	Commands   []ptb.Command
}

// ObjectInputs 所有对象输入
func (d *TransactionData) ObjectInputs() []ptb.ObjectArg {
	var out []ptb.ObjectArg
	for _, in := range d.Inputs {
		if o, ok := in.(ptb.ObjectInput); ok {
			out = append(out, o.Object)
		}
	}
	return out
}

// DecodeTransactionData 解码交易字节，尾部有多余字节视为格式错误
func DecodeTransactionData(txBytes []byte) (*TransactionData, error) {
	var data wireTransactionData
	n, err := bcs.Unmarshal(txBytes, &data)
	if err != nil {
		return nil, types.Wrap(types.ErrMalformedTransaction, err, "decode transaction data")
	}
	if n != len(txBytes) {
		return nil, types.NewError(types.KindSubmission, types.CodeMalformedTransaction,
			"%d trailing bytes after transaction data", len(txBytes)-n)
	}
	if data.V1 == nil || data.V1.Kind.ProgrammableTransaction == nil {
		return nil, types.NewError(types.KindSubmission, types.CodeMalformedTransaction, "unsupported transaction kind")
	}

	v1 := data.V1
	out := &TransactionData{
		Sender:    v1.Sender,
		GasOwner:  v1.GasData.Owner,
		GasPrice:  v1.GasData.Price,
		GasBudget: v1.GasData.Budget,
	}
	for _, ref := range v1.GasData.Payment {
		r, err := fromWireRef(ref)
		if err != nil {
			return nil, malformed(err, "gas payment")
		}
		out.GasPayment = append(out.GasPayment, r)
	}

	pt := v1.Kind.ProgrammableTransaction
	for i, in := range pt.Inputs {
		arg, err := fromWireCallArg(in)
		if err != nil {
			return nil, malformed(err, "input %d", i)
		}
		out.Inputs = append(out.Inputs, arg)
	}
	for i, c := range pt.Commands {
		cmd, err := fromWireCommand(c)
		if err != nil {
			return nil, malformed(err, "command %d", i)
		}
		out.Commands = append(out.Commands, cmd)
	}
	return out, nil
}

func malformed(err error, format string, args ...interface{}) error {
	return types.Wrap(types.ErrMalformedTransaction, err, format, args...)
}

func fromWireRef(w wireObjectRef) (types.ObjectRef, error) {
	if len(w.Digest) != types.IDLength {
		return types.ObjectRef{}, fmt.Errorf("object digest has %d bytes", len(w.Digest))
	}
	ref := types.ObjectRef{ObjectID: w.ObjectID, Version: w.Version}
	copy(ref.Digest[:], w.Digest)
	return ref, nil
}

func fromWireCallArg(w wireCallArg) (ptb.CallArg, error) {
	switch {
	case w.Pure != nil:
		return ptb.PureInput{Bytes: append([]byte(nil), (*w.Pure)...)}, nil
	case w.Object != nil:
		o := w.Object
		switch {
		case o.ImmOrOwnedObject != nil:
			ref, err := fromWireRef(*o.ImmOrOwnedObject)
			if err != nil {
				return nil, err
			}
			return ptb.ObjectInput{Object: ptb.OwnedObject{Ref: ref}}, nil
		case o.SharedObject != nil:
			return ptb.ObjectInput{Object: ptb.SharedObject{
				ObjectID:             o.SharedObject.ObjectID,
				InitialSharedVersion: o.SharedObject.InitialSharedVersion,
				Mutable:              o.SharedObject.Mutable,
			}}, nil
		case o.Receiving != nil:
			ref, err := fromWireRef(*o.Receiving)
			if err != nil {
				return nil, err
			}
			return ptb.ObjectInput{Object: ptb.ReceivingObject{Ref: ref}}, nil
		}
	}
	return nil, fmt.Errorf("empty call argument")
}

func fromWireArgument(w wireArgument) (ptb.Argument, error) {
	switch {
	case w.GasCoin != nil:
		return ptb.GasCoin{}, nil
	case w.Input != nil:
		return ptb.Input{Index: *w.Input}, nil
	case w.Result != nil:
		return ptb.Result{Index: *w.Result}, nil
	case w.NestedResult != nil:
		return ptb.NestedResult{Index: w.NestedResult.Index, ResultIndex: w.NestedResult.ResultIndex}, nil
	}
	return nil, fmt.Errorf("empty argument")
}

func fromWireArguments(ws []wireArgument) ([]ptb.Argument, error) {
	out := make([]ptb.Argument, 0, len(ws))
	for _, w := range ws {
		a, err := fromWireArgument(w)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func fromWireTypeTag(w wireTypeTag) (ptb.TypeTag, error) {
	switch {
	case w.Bool != nil:
		return ptb.BoolTag, nil
	case w.U8 != nil:
		return ptb.U8Tag, nil
	case w.U16 != nil:
		return ptb.U16Tag, nil
	case w.U32 != nil:
		return ptb.U32Tag, nil
	case w.U64 != nil:
		return ptb.U64Tag, nil
	case w.U128 != nil:
		return ptb.U128Tag, nil
	case w.U256 != nil:
		return ptb.U256Tag, nil
	case w.Address != nil:
		return ptb.AddressTag, nil
	case w.Signer != nil:
		return ptb.SignerTag, nil
	case w.Vector != nil:
		elem, err := fromWireTypeTag(*w.Vector)
		if err != nil {
			return nil, err
		}
		return ptb.VectorTag{Elem: elem}, nil
	case w.Struct != nil:
		params, err := fromWireTypeTags(w.Struct.TypeParams)
		if err != nil {
			return nil, err
		}
		return ptb.StructTag{
			Address:    w.Struct.Address,
			Module:     w.Struct.Module,
			Name:       w.Struct.Name,
			TypeParams: params,
		}, nil
	}
	return nil, fmt.Errorf("empty type tag")
}

func fromWireTypeTags(ws []wireTypeTag) ([]ptb.TypeTag, error) {
	var out []ptb.TypeTag
	for _, w := range ws {
		t, err := fromWireTypeTag(w)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func fromWireCommand(w wireCommand) (ptb.Command, error) {
	switch {
	case w.MoveCall != nil:
		typeArgs, err := fromWireTypeTags(w.MoveCall.TypeArguments)
		if err != nil {
			return nil, err
		}
		args, err := fromWireArguments(w.MoveCall.Arguments)
		if err != nil {
			return nil, err
		}
		return ptb.MoveCall{
			Package:       w.MoveCall.Package,
			Module:        w.MoveCall.Module,
			Function:      w.MoveCall.Function,
			TypeArguments: typeArgs,
			Arguments:     args,
		}, nil
	case w.TransferObjects != nil:
		objects, err := fromWireArguments(w.TransferObjects.Objects)
		if err != nil {
			return nil, err
		}
		addr, err := fromWireArgument(w.TransferObjects.Address)
		if err != nil {
			return nil, err
		}
		return ptb.TransferObjects{Objects: objects, Address: addr}, nil
	case w.SplitCoins != nil:
		coin, err := fromWireArgument(w.SplitCoins.Coin)
		if err != nil {
			return nil, err
		}
		amounts, err := fromWireArguments(w.SplitCoins.Amounts)
		if err != nil {
			return nil, err
		}
		return ptb.SplitCoins{Coin: coin, Amounts: amounts}, nil
	case w.MergeCoins != nil:
		dst, err := fromWireArgument(w.MergeCoins.Destination)
		if err != nil {
			return nil, err
		}
		sources, err := fromWireArguments(w.MergeCoins.Sources)
		if err != nil {
			return nil, err
		}
		return ptb.MergeCoins{Destination: dst, Sources: sources}, nil
	case w.Publish != nil:
		deps := make([]types.ObjectID, len(w.Publish.Dependencies))
		for i, d := range w.Publish.Dependencies {
			deps[i] = d
		}
		return ptb.Publish{Modules: w.Publish.Modules, Dependencies: deps}, nil
	case w.MakeMoveVec != nil:
		elems, err := fromWireArguments(w.MakeMoveVec.Elements)
		if err != nil {
			return nil, err
		}
		out := ptb.MakeMoveVec{Elements: elems}
		if w.MakeMoveVec.Type != nil {
			tag, err := fromWireTypeTag(*w.MakeMoveVec.Type)
			if err != nil {
				return nil, err
			}
			out.Type = tag
		}
		return out, nil
	}
	return nil, fmt.Errorf("empty command")
}
