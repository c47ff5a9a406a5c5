package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ptx-sdk-go/types"
)

func TestRequestValidate(t *testing.T) {
	pure := Input{Name: "amount", Kind: InputPure, Type: "u64", Value: "10"}
	call := Command{Kind: CommandMoveCall, Target: "0x2::coin::value", Args: []string{"input.amount"}}

	tests := []struct {
		name string
		req  *Request
		want *types.Error
	}{
		{name: "nil", req: nil, want: types.ErrInvalidCommand},
		{name: "no commands", req: &Request{Inputs: []Input{pure}}, want: types.ErrInvalidCommand},
		{name: "duplicate input", req: &Request{Inputs: []Input{pure, pure}, Commands: []Command{call}}, want: types.ErrInvalidCommand},
		{name: "unnamed input", req: &Request{Inputs: []Input{{Kind: InputClock}}, Commands: []Command{call}}, want: types.ErrInvalidCommand},
		{name: "unknown input kind", req: &Request{Inputs: []Input{{Name: "x", Kind: "receiving"}}, Commands: []Command{call}}, want: types.ErrInvalidCommand},
		{name: "object without id", req: &Request{Inputs: []Input{{Name: "x", Kind: InputObject}}, Commands: []Command{call}}, want: types.ErrInvalidCommand},
		{
			name: "u8 overflow",
			req:  &Request{Inputs: []Input{{Name: "amount", Kind: InputPure, Type: "u8", Value: "256"}}, Commands: []Command{call}},
			want: types.ErrMalformedPure,
		},
		{
			name: "unknown pure type",
			req:  &Request{Inputs: []Input{{Name: "amount", Kind: InputPure, Type: "i64", Value: "1"}}, Commands: []Command{call}},
			want: types.ErrMalformedPure,
		},
		{name: "undeclared input", req: &Request{Commands: []Command{call}}, want: types.ErrDanglingReference},
		{
			name: "result used before its command",
			req: &Request{Inputs: []Input{pure}, Commands: []Command{
				{Kind: CommandMoveCall, Target: "0x2::coin::value", Args: []string{"result.later"}},
				{Name: "later", Kind: CommandMoveCall, Target: "0x2::coin::zero"},
			}},
			want: types.ErrDanglingReference,
		},
		{
			name: "malformed reference",
			req:  &Request{Commands: []Command{{Kind: CommandMoveCall, Target: "0x2::coin::value", Args: []string{"inputs.amount"}}}},
			want: types.ErrInvalidCommand,
		},
		{name: "bad target", req: &Request{Commands: []Command{{Kind: CommandMoveCall, Target: "coin::value"}}}, want: types.ErrInvalidCommand},
		{name: "bad type argument", req: &Request{Commands: []Command{{Kind: CommandMoveCall, Target: "0x2::coin::zero", TypeArgs: []string{"u65"}}}}, want: types.ErrInvalidCommand},
		{name: "split without amounts", req: &Request{Commands: []Command{{Kind: CommandSplitCoins, Args: []string{RefGas}}}}, want: types.ErrInvalidCommand},
		{name: "transfer to bad address", req: &Request{Commands: []Command{{Kind: CommandTransferObjects, Args: []string{RefGas}, Recipient: "bob"}}}, want: types.ErrInvalidCommand},
		{name: "merge without sources", req: &Request{Commands: []Command{{Kind: CommandMergeCoins, Args: []string{RefGas}}}}, want: types.ErrInvalidCommand},
		{name: "empty untyped vector", req: &Request{Commands: []Command{{Kind: CommandMakeMoveVec}}}, want: types.ErrInvalidCommand},
		{name: "unknown command", req: &Request{Commands: []Command{{Kind: "publish"}}}, want: types.ErrInvalidCommand},
		{
			name: "duplicate command name",
			req: &Request{Inputs: []Input{pure}, Commands: []Command{
				{Name: "a", Kind: CommandMoveCall, Target: "0x2::coin::zero"},
				{Name: "a", Kind: CommandMoveCall, Target: "0x2::coin::zero"},
			}},
			want: types.ErrInvalidCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRequestValidateAccepts(t *testing.T) {
	req := &Request{
		Inputs: []Input{
			{Name: "amount", Kind: InputPure, Type: "u64", Value: "10"},
			{Name: "clock", Kind: InputClock},
		},
		Commands: []Command{
			{Name: "coins", Kind: CommandSplitCoins, Args: []string{RefGas}, Amounts: []uint64{1, 2}},
			{Kind: CommandMergeCoins, Args: []string{"result.coins.0", "result.coins.1"}},
			{Name: "vec", Kind: CommandMakeMoveVec, ElemType: "u64", Args: []string{"input.amount"}},
			{Kind: CommandMoveCall, Target: "0x2::clock::tick", TypeArgs: []string{"0x2::sui::SUI"}, Args: []string{"input.clock", "result.vec", RefSender}},
			{Kind: CommandTransferObjects, Args: []string{"result.coins.0"}, Recipient: "0x42"},
		},
	}
	assert.NoError(t, req.Validate())
}

func TestPureValue(t *testing.T) {
	tests := []struct {
		typ, value string
		want       interface{}
	}{
		{"u8", "255", uint8(255)},
		{"u16", "65535", uint16(65535)},
		{"u32", "7", uint32(7)},
		{"u64", "18446744073709551615", uint64(18446744073709551615)},
		{"bool", "true", true},
		{"string", "hello", "hello"},
		{"bytes", "0x0102", []byte{1, 2}},
		{"address", "0x2", types.MustAddress("0x2")},
		{"id", "0x6", types.MustObjectID("0x6")},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got, err := pureValue(tt.typ, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	digest, err := pureValue("sha256", "abc")
	require.NoError(t, err)
	assert.Len(t, digest, 32)

	_, err = pureValue("bytes", "zz")
	assert.Error(t, err)
}
