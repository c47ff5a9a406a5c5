package tx

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/types"
)

func TestDecodeTransactionDataRoundTrip(t *testing.T) {
	sender := types.MustAddress("0x7")

	b := ptb.NewBuilder()
	coin, err := b.AddObject(types.ObjectRef{ObjectID: types.MustObjectID("0x55"), Version: 8, Digest: types.Digest{1}},
		types.AddressOwner{Address: sender}, true)
	require.NoError(t, err)
	parts, err := b.SplitCoins(coin, 10, 20)
	require.NoError(t, err)
	require.NoError(t, b.TransferObjects(types.MustAddress("0x9"), parts...))
	vec, err := b.Command(ptb.MakeMoveVec{Type: ptb.MustTypeTag("vector<u8>"), Elements: nil})
	require.NoError(t, err)
	_, err = b.MoveCall(testPackage, "bag", "put", []ptb.TypeTag{ptb.MustTypeTag("0x2::sui::SUI")}, vec, ptb.GasCoin{})
	require.NoError(t, err)
	pt, err := b.Finish()
	require.NoError(t, err)

	p, err := NewPayload(sender, []types.ObjectRef{gasRef}, pt, 1000, 5_000_000)
	require.NoError(t, err)

	decoded, err := DecodeTransactionData(p.Bytes())
	require.NoError(t, err)

	assert.Equal(t, sender, decoded.Sender)
	assert.Equal(t, sender, decoded.GasOwner)
	assert.Equal(t, []types.ObjectRef{gasRef}, decoded.GasPayment)
	assert.Equal(t, uint64(1000), decoded.GasPrice)
	assert.Equal(t, uint64(5_000_000), decoded.GasBudget)
	if diff := cmp.Diff(pt.Inputs(), decoded.Inputs, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(pt.Commands(), decoded.Commands, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, decoded.ObjectInputs(), 1)
}

func TestDecodeTransactionDataRejectsGarbage(t *testing.T) {
	p, err := NewPayload(types.MustAddress("0x7"), []types.ObjectRef{gasRef}, notarize(t, nil), 1000, 10)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", p.Bytes()[:len(p.Bytes())-3]},
		{"trailing bytes", append(p.Bytes(), 0x00)},
		{"unknown variant", []byte{0x05}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTransactionData(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrMalformedTransaction)
		})
	}
}
