package ptb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ptx-sdk-go/types"
)

func TestParseTypeTag(t *testing.T) {
	tests := []struct {
		input string
		want  TypeTag
	}{
		{input: "u64", want: U64Tag},
		{input: "bool", want: BoolTag},
		{input: "address", want: AddressTag},
		{input: "vector<u8>", want: VectorTag{Elem: U8Tag}},
		{input: "vector<vector<u16>>", want: VectorTag{Elem: VectorTag{Elem: U16Tag}}},
		{
			input: "0x2::sui::SUI",
			want:  StructTag{Address: types.MustAddress("0x2"), Module: "sui", Name: "SUI"},
		},
		{
			input: "0x2::coin::Coin<0x2::sui::SUI>",
			want: StructTag{
				Address: types.MustAddress("0x2"), Module: "coin", Name: "Coin",
				TypeParams: []TypeTag{StructTag{Address: types.MustAddress("0x2"), Module: "sui", Name: "SUI"}},
			},
		},
		{
			input: "0x1::pair::Pair<u8, vector<address>>",
			want: StructTag{
				Address: types.MustAddress("0x1"), Module: "pair", Name: "Pair",
				TypeParams: []TypeTag{U8Tag, VectorTag{Elem: AddressTag}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTypeTag(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTypeTagErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"u7",
		"vector<u8",
		"vector<>",
		"0x2::coin",
		"0x2::1coin::Coin",
		"0x2::coin::Coin<u8",
		"u64 u64",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseTypeTag(input)
			assert.Error(t, err)
		})
	}
}

func TestTypeTagString(t *testing.T) {
	tag := MustTypeTag("0x2::coin::Coin<0x2::sui::SUI>")
	assert.Equal(t,
		"0x0000000000000000000000000000000000000000000000000000000000000002::coin::Coin<"+
			"0x0000000000000000000000000000000000000000000000000000000000000002::sui::SUI>",
		tag.String())
	assert.Equal(t, "vector<u8>", VectorTag{Elem: U8Tag}.String())
}

func TestIsValidIdentifier(t *testing.T) {
	assert.True(t, IsValidIdentifier("timestamp"))
	assert.True(t, IsValidIdentifier("new_station"))
	assert.True(t, IsValidIdentifier("_inner"))
	assert.False(t, IsValidIdentifier("_"))
	assert.False(t, IsValidIdentifier("9lives"))
	assert.False(t, IsValidIdentifier("a-b"))
	assert.False(t, IsValidIdentifier(""))
}
