package tx

import (
	"fmt"

	"github.com/fardream/go-bcs/bcs"

	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/types"
)

// 以下为 BCS 线上结构。枚举用“全部字段为指针”的结构体表示，
// 恰好一个字段非空，字段顺序即变体下标，不能调整。

type wireObjectRef struct {
	ObjectID [32]byte
	Version  uint64
	Digest   []byte
}

type wireSharedObject struct {
	ObjectID             [32]byte
	InitialSharedVersion uint64
	Mutable              bool
}

type wireObjectArg struct {
	ImmOrOwnedObject *wireObjectRef
	SharedObject     *wireSharedObject
	Receiving        *wireObjectRef
}

func (wireObjectArg) IsBcsEnum() {}

type wireCallArg struct {
	Pure   *[]byte
	Object *wireObjectArg
}

func (wireCallArg) IsBcsEnum() {}

type wireNestedResult struct {
	Index       uint16
	ResultIndex uint16
}

type wireArgument struct {
	GasCoin      *struct{}
	Input        *uint16
	Result       *uint16
	NestedResult *wireNestedResult
}

func (wireArgument) IsBcsEnum() {}

type wireStructTag struct {
	Address    [32]byte
	Module     string
	Name       string
	TypeParams []wireTypeTag
}

type wireTypeTag struct {
	Bool    *struct{}
	U8      *struct{}
	U64     *struct{}
	U128    *struct{}
	Address *struct{}
	Signer  *struct{}
	Vector  *wireTypeTag
	Struct  *wireStructTag
	U16     *struct{}
	U32     *struct{}
	U256    *struct{}
}

func (wireTypeTag) IsBcsEnum() {}

type wireMoveCall struct {
	Package       [32]byte
	Module        string
	Function      string
	TypeArguments []wireTypeTag
	Arguments     []wireArgument
}

type wireTransferObjects struct {
	Objects []wireArgument
	Address wireArgument
}

type wireSplitCoins struct {
	Coin    wireArgument
	Amounts []wireArgument
}

type wireMergeCoins struct {
	Destination wireArgument
	Sources     []wireArgument
}

type wirePublish struct {
	Modules      [][]byte
	Dependencies [][32]byte
}

type wireMakeMoveVec struct {
	Type     *wireTypeTag `bcs:"optional"`
	Elements []wireArgument
}

type wireCommand struct {
	MoveCall        *wireMoveCall
	TransferObjects *wireTransferObjects
	SplitCoins      *wireSplitCoins
	MergeCoins      *wireMergeCoins
	Publish         *wirePublish
	MakeMoveVec     *wireMakeMoveVec
}

func (wireCommand) IsBcsEnum() {}

type wireProgrammableTransaction struct {
	Inputs   []wireCallArg
	Commands []wireCommand
}

type wireTransactionKind struct {
	ProgrammableTransaction *wireProgrammableTransaction
}

func (wireTransactionKind) IsBcsEnum() {}

type wireGasData struct {
	Payment []wireObjectRef
	Owner   [32]byte
	Price   uint64
	Budget  uint64
}

type wireExpiration struct {
	None  *struct{}
	Epoch *uint64
}

func (wireExpiration) IsBcsEnum() {}

type wireTransactionDataV1 struct {
	Kind       wireTransactionKind
	Sender     [32]byte
	GasData    wireGasData
	Expiration wireExpiration
}

type wireTransactionData struct {
	V1 *wireTransactionDataV1
}

func (wireTransactionData) IsBcsEnum() {}

// encodeTransactionData 将交易各部分编码为确定性的 BCS 字节
func encodeTransactionData(sender types.Address, gas []types.ObjectRef, price, budget uint64, pt *ptb.ProgrammableTransaction) ([]byte, error) {
	kind, err := toWireProgrammable(pt)
	if err != nil {
		return nil, err
	}

	payment := make([]wireObjectRef, len(gas))
	for i, ref := range gas {
		payment[i] = toWireRef(ref)
	}

	data := wireTransactionData{
		V1: &wireTransactionDataV1{
			Kind:   wireTransactionKind{ProgrammableTransaction: kind},
			Sender: sender,
			GasData: wireGasData{
				Payment: payment,
				Owner:   sender,
				Price:   price,
				Budget:  budget,
			},
			Expiration: wireExpiration{None: &struct{}{}},
		},
	}
	return bcs.Marshal(data)
}

// EncodeProgrammableTransaction 单独编码命令图（TransactionKind），用于只读的 dry run 类接口
func EncodeProgrammableTransaction(pt *ptb.ProgrammableTransaction) ([]byte, error) {
	kind, err := toWireProgrammable(pt)
	if err != nil {
		return nil, err
	}
	return bcs.Marshal(wireTransactionKind{ProgrammableTransaction: kind})
}

func toWireRef(ref types.ObjectRef) wireObjectRef {
	return wireObjectRef{
		ObjectID: ref.ObjectID,
		Version:  ref.Version,
		Digest:   append([]byte(nil), ref.Digest[:]...),
	}
}

func toWireProgrammable(pt *ptb.ProgrammableTransaction) (*wireProgrammableTransaction, error) {
	out := &wireProgrammableTransaction{}

	for i, in := range pt.Inputs() {
		arg, err := toWireCallArg(in)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out.Inputs = append(out.Inputs, arg)
	}

	for i, c := range pt.Commands() {
		cmd, err := toWireCommand(c)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		out.Commands = append(out.Commands, cmd)
	}
	return out, nil
}

func toWireCallArg(in ptb.CallArg) (wireCallArg, error) {
	switch a := in.(type) {
	case ptb.PureInput:
		b := a.Bytes
		return wireCallArg{Pure: &b}, nil
	case ptb.ObjectInput:
		switch o := a.Object.(type) {
		case ptb.OwnedObject:
			ref := toWireRef(o.Ref)
			return wireCallArg{Object: &wireObjectArg{ImmOrOwnedObject: &ref}}, nil
		case ptb.SharedObject:
			return wireCallArg{Object: &wireObjectArg{SharedObject: &wireSharedObject{
				ObjectID:             o.ObjectID,
				InitialSharedVersion: o.InitialSharedVersion,
				Mutable:              o.Mutable,
			}}}, nil
		case ptb.ReceivingObject:
			ref := toWireRef(o.Ref)
			return wireCallArg{Object: &wireObjectArg{Receiving: &ref}}, nil
		default:
			return wireCallArg{}, fmt.Errorf("unknown object argument %T", a.Object)
		}
	default:
		return wireCallArg{}, fmt.Errorf("unknown call argument %T", in)
	}
}

func toWireArgument(arg ptb.Argument) (wireArgument, error) {
	switch a := arg.(type) {
	case ptb.GasCoin:
		return wireArgument{GasCoin: &struct{}{}}, nil
	case ptb.Input:
		idx := a.Index
		return wireArgument{Input: &idx}, nil
	case ptb.Result:
		idx := a.Index
		return wireArgument{Result: &idx}, nil
	case ptb.NestedResult:
		return wireArgument{NestedResult: &wireNestedResult{Index: a.Index, ResultIndex: a.ResultIndex}}, nil
	default:
		return wireArgument{}, fmt.Errorf("unknown argument %T", arg)
	}
}

func toWireArguments(args []ptb.Argument) ([]wireArgument, error) {
	out := make([]wireArgument, 0, len(args))
	for _, a := range args {
		w, err := toWireArgument(a)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func toWireTypeTag(tag ptb.TypeTag) (wireTypeTag, error) {
	empty := &struct{}{}
	switch t := tag.(type) {
	case ptb.Primitive:
		switch t {
		case ptb.BoolTag:
			return wireTypeTag{Bool: empty}, nil
		case ptb.U8Tag:
			return wireTypeTag{U8: empty}, nil
		case ptb.U16Tag:
			return wireTypeTag{U16: empty}, nil
		case ptb.U32Tag:
			return wireTypeTag{U32: empty}, nil
		case ptb.U64Tag:
			return wireTypeTag{U64: empty}, nil
		case ptb.U128Tag:
			return wireTypeTag{U128: empty}, nil
		case ptb.U256Tag:
			return wireTypeTag{U256: empty}, nil
		case ptb.AddressTag:
			return wireTypeTag{Address: empty}, nil
		case ptb.SignerTag:
			return wireTypeTag{Signer: empty}, nil
		}
		return wireTypeTag{}, fmt.Errorf("unknown primitive type tag %d", uint8(t))
	case ptb.VectorTag:
		elem, err := toWireTypeTag(t.Elem)
		if err != nil {
			return wireTypeTag{}, err
		}
		return wireTypeTag{Vector: &elem}, nil
	case ptb.StructTag:
		params, err := toWireTypeTags(t.TypeParams)
		if err != nil {
			return wireTypeTag{}, err
		}
		return wireTypeTag{Struct: &wireStructTag{
			Address:    t.Address,
			Module:     t.Module,
			Name:       t.Name,
			TypeParams: params,
		}}, nil
	default:
		return wireTypeTag{}, fmt.Errorf("unknown type tag %T", tag)
	}
}

func toWireTypeTags(tags []ptb.TypeTag) ([]wireTypeTag, error) {
	out := make([]wireTypeTag, 0, len(tags))
	for _, t := range tags {
		w, err := toWireTypeTag(t)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func toWireCommand(cmd ptb.Command) (wireCommand, error) {
	switch c := cmd.(type) {
	case ptb.MoveCall:
		typeArgs, err := toWireTypeTags(c.TypeArguments)
		if err != nil {
			return wireCommand{}, err
		}
		args, err := toWireArguments(c.Arguments)
		if err != nil {
			return wireCommand{}, err
		}
		return wireCommand{MoveCall: &wireMoveCall{
			Package:       c.Package,
			Module:        c.Module,
			Function:      c.Function,
			TypeArguments: typeArgs,
			Arguments:     args,
		}}, nil
	case ptb.TransferObjects:
		objects, err := toWireArguments(c.Objects)
		if err != nil {
			return wireCommand{}, err
		}
		addr, err := toWireArgument(c.Address)
		if err != nil {
			return wireCommand{}, err
		}
		return wireCommand{TransferObjects: &wireTransferObjects{Objects: objects, Address: addr}}, nil
	case ptb.SplitCoins:
		coin, err := toWireArgument(c.Coin)
		if err != nil {
			return wireCommand{}, err
		}
		amounts, err := toWireArguments(c.Amounts)
		if err != nil {
			return wireCommand{}, err
		}
		return wireCommand{SplitCoins: &wireSplitCoins{Coin: coin, Amounts: amounts}}, nil
	case ptb.MergeCoins:
		dst, err := toWireArgument(c.Destination)
		if err != nil {
			return wireCommand{}, err
		}
		sources, err := toWireArguments(c.Sources)
		if err != nil {
			return wireCommand{}, err
		}
		return wireCommand{MergeCoins: &wireMergeCoins{Destination: dst, Sources: sources}}, nil
	case ptb.Publish:
		deps := make([][32]byte, len(c.Dependencies))
		for i, d := range c.Dependencies {
			deps[i] = d
		}
		return wireCommand{Publish: &wirePublish{Modules: c.Modules, Dependencies: deps}}, nil
	case ptb.MakeMoveVec:
		elems, err := toWireArguments(c.Elements)
		if err != nil {
			return wireCommand{}, err
		}
		out := &wireMakeMoveVec{Elements: elems}
		if c.Type != nil {
			tag, err := toWireTypeTag(c.Type)
			if err != nil {
				return wireCommand{}, err
			}
			out.Type = &tag
		}
		return wireCommand{MakeMoveVec: out}, nil
	default:
		return wireCommand{}, fmt.Errorf("unknown command %T", cmd)
	}
}
