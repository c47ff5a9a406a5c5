package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ptx-sdk-go/ptb"
	"github.com/weisyn/ptx-sdk-go/types"
	"github.com/weisyn/ptx-sdk-go/wallet"
)

var (
	testPackage = types.MustObjectID("0xabc")
	gasRef      = types.ObjectRef{ObjectID: types.MustObjectID("0x100"), Version: 3, Digest: types.Digest{9}}
)

func notarize(t *testing.T, data []byte) *ptb.ProgrammableTransaction {
	t.Helper()
	b := ptb.NewBuilder()
	hash, err := b.Pure(ptb.SHA256(data))
	require.NoError(t, err)
	clock, err := b.Object(ptb.SharedObject{ObjectID: types.MustObjectID("0x6"), InitialSharedVersion: 1})
	require.NoError(t, err)
	_, err = b.MoveCall(testPackage, "notary", "record", nil, hash, clock)
	require.NoError(t, err)
	pt, err := b.Finish()
	require.NoError(t, err)
	return pt
}

func TestPayloadSerializationIsDeterministic(t *testing.T) {
	sender := types.MustAddress("0x7")

	first, err := NewPayload(sender, []types.ObjectRef{gasRef}, notarize(t, []byte("doc")), 1000, 5_000_000)
	require.NoError(t, err)
	second, err := NewPayload(sender, []types.ObjectRef{gasRef}, notarize(t, []byte("doc")), 1000, 5_000_000)
	require.NoError(t, err)

	assert.Equal(t, first.Bytes(), second.Bytes())
	assert.Equal(t, first.Digest(), second.Digest())
	assert.False(t, first.Digest().IsZero())

	// 任何字段不同都会改变摘要
	other, err := NewPayload(sender, []types.ObjectRef{gasRef}, notarize(t, []byte("doc2")), 1000, 5_000_000)
	require.NoError(t, err)
	assert.NotEqual(t, first.Digest(), other.Digest())
	pricier, err := NewPayload(sender, []types.ObjectRef{gasRef}, notarize(t, []byte("doc")), 1001, 5_000_000)
	require.NoError(t, err)
	assert.NotEqual(t, first.Digest(), pricier.Digest())
}

func TestPayloadBytesAreCopies(t *testing.T) {
	p, err := NewPayload(types.MustAddress("0x7"), []types.ObjectRef{gasRef}, notarize(t, nil), 1000, 10)
	require.NoError(t, err)

	b := p.Bytes()
	b[0] ^= 0xff
	gas := p.GasPayment()
	gas[0].Version = 99

	assert.NotEqual(t, b, p.Bytes())
	assert.Equal(t, gasRef, p.GasPayment()[0])
	assert.Equal(t, TransactionDigest(p.Bytes()), p.Digest())
}

func TestNewPayloadValidation(t *testing.T) {
	pt := notarize(t, nil)
	sender := types.MustAddress("0x7")

	ownedInput := func() *ptb.ProgrammableTransaction {
		b := ptb.NewBuilder()
		coin, err := b.Object(ptb.OwnedObject{Ref: gasRef})
		require.NoError(t, err)
		require.NoError(t, b.TransferObjects(sender, coin))
		out, err := b.Finish()
		require.NoError(t, err)
		return out
	}()

	tests := []struct {
		name   string
		sender types.Address
		gas    []types.ObjectRef
		pt     *ptb.ProgrammableTransaction
		price  uint64
		budget uint64
	}{
		{name: "zero sender", gas: []types.ObjectRef{gasRef}, pt: pt, price: 1, budget: 1},
		{name: "no gas", sender: sender, pt: pt, price: 1, budget: 1},
		{name: "duplicate gas", sender: sender, gas: []types.ObjectRef{gasRef, gasRef}, pt: pt, price: 1, budget: 1},
		{name: "nil graph", sender: sender, gas: []types.ObjectRef{gasRef}, price: 1, budget: 1},
		{name: "zero price", sender: sender, gas: []types.ObjectRef{gasRef}, pt: pt, budget: 1},
		{name: "zero budget", sender: sender, gas: []types.ObjectRef{gasRef}, pt: pt, price: 1},
		{name: "gas coin used as input", sender: sender, gas: []types.ObjectRef{gasRef}, pt: ownedInput, price: 1, budget: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPayload(tt.sender, tt.gas, tt.pt, tt.price, tt.budget)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrInvalidPayload), "got %v", err)
			assert.Equal(t, types.KindBuild, types.KindOf(err))
		})
	}
}

func TestEncodeProgrammableTransactionLayout(t *testing.T) {
	b := ptb.NewBuilder()
	v, err := b.Pure(uint8(7))
	require.NoError(t, err)
	_, err = b.Command(ptb.MakeMoveVec{Type: ptb.U8Tag, Elements: []ptb.Argument{v}})
	require.NoError(t, err)
	pt, err := b.Finish()
	require.NoError(t, err)

	encoded, err := EncodeProgrammableTransaction(pt)
	require.NoError(t, err)

	want := []byte{
		0x00,             // TransactionKind::ProgrammableTransaction
		0x01,             // 1 input
		0x00, 0x01, 0x07, // CallArg::Pure, len 1, u8 7
		0x01,       // 1 command
		0x05,       // Command::MakeMoveVec
		0x01, 0x01, // Some(TypeTag::U8)
		0x01,             // 1 element
		0x01, 0x00, 0x00, // Argument::Input(0)
	}
	assert.Equal(t, want, encoded)
}

type stubPrices struct {
	prices []uint64
	calls  int
	err    error
}

func (s *stubPrices) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	p := s.prices[s.calls]
	s.calls++
	return p, nil
}

func TestAssemblerQueriesFreshPrice(t *testing.T) {
	prices := &stubPrices{prices: []uint64{750, 1000}}
	asm := NewAssembler(prices)
	sender := types.MustAddress("0x7")

	first, err := asm.Assemble(context.Background(), sender, []types.ObjectRef{gasRef}, notarize(t, nil), 5_000_000)
	require.NoError(t, err)
	second, err := asm.Assemble(context.Background(), sender, []types.ObjectRef{gasRef}, notarize(t, nil), 5_000_000)
	require.NoError(t, err)

	assert.Equal(t, 2, prices.calls)
	assert.Equal(t, uint64(750), first.GasPrice())
	assert.Equal(t, uint64(1000), second.GasPrice())
	assert.Equal(t, uint64(5_000_000), second.GasBudget())
	assert.Equal(t, sender, second.GasOwner())
}

func TestAssemblerPriceFailure(t *testing.T) {
	asm := NewAssembler(&stubPrices{err: errors.New("connection refused")})
	_, err := asm.Assemble(context.Background(), types.MustAddress("0x7"), []types.ObjectRef{gasRef}, notarize(t, nil), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNetworkUnavailable))
}

func TestSign(t *testing.T) {
	ks := wallet.NewMemoryKeyStore()
	sender, err := ks.Generate(wallet.Ed25519)
	require.NoError(t, err)

	p, err := NewPayload(sender, []types.ObjectRef{gasRef}, notarize(t, nil), 1000, 5_000_000)
	require.NoError(t, err)

	first, err := Sign(ks, p)
	require.NoError(t, err)
	second, err := Sign(ks, p)
	require.NoError(t, err)

	require.NoError(t, first.Verify())
	require.NoError(t, second.Verify())
	assert.Equal(t, p.Digest(), first.Digest())
	require.Len(t, first.Signatures(), 1)

	// 签名不能挪到另一笔交易上
	other, err := NewPayload(sender, []types.ObjectRef{gasRef}, notarize(t, []byte("x")), 1000, 5_000_000)
	require.NoError(t, err)
	_, err = NewSignedTransaction(other, first.Signatures()...)
	assert.True(t, errors.Is(err, wallet.ErrInvalidSignature))
}

func TestSignUnknownAddress(t *testing.T) {
	ks := wallet.NewMemoryKeyStore()
	p, err := NewPayload(types.MustAddress("0x7"), []types.ObjectRef{gasRef}, notarize(t, nil), 1000, 5_000_000)
	require.NoError(t, err)

	_, err = Sign(ks, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnknownAddress))
	assert.Equal(t, types.KindSigning, types.KindOf(err))
}

func TestSignNilPayload(t *testing.T) {
	ks := wallet.NewMemoryKeyStore()
	sender, err := ks.Generate(wallet.Ed25519)
	require.NoError(t, err)
	p, err := NewPayload(sender, []types.ObjectRef{gasRef}, notarize(t, nil), 1000, 5_000_000)
	require.NoError(t, err)
	valid, err := Sign(ks, p)
	require.NoError(t, err)

	_, err = Sign(ks, nil)
	assert.True(t, errors.Is(err, types.ErrInvalidPayload), "got %v", err)

	_, err = NewSignedTransaction(nil, valid.Signatures()...)
	assert.True(t, errors.Is(err, types.ErrInvalidPayload), "got %v", err)
}

type failingKeyStore struct{}

func (failingKeyStore) Addresses() []types.Address { return nil }

func (failingKeyStore) Sign(types.Address, []byte, wallet.Intent) (wallet.Signature, error) {
	return nil, errors.New("device unplugged")
}

func TestSignKeyStoreFailure(t *testing.T) {
	p, err := NewPayload(types.MustAddress("0x7"), []types.ObjectRef{gasRef}, notarize(t, nil), 1000, 5_000_000)
	require.NoError(t, err)

	_, err = Sign(failingKeyStore{}, p)
	assert.True(t, errors.Is(err, types.ErrKeyStoreFailure))
}

func TestSignatureFromOtherSignerRejected(t *testing.T) {
	ks := wallet.NewMemoryKeyStore()
	sender, err := ks.Generate(wallet.Ed25519)
	require.NoError(t, err)
	stranger, err := wallet.NewKeypair(wallet.Secp256k1)
	require.NoError(t, err)

	p, err := NewPayload(sender, []types.ObjectRef{gasRef}, notarize(t, nil), 1000, 5_000_000)
	require.NoError(t, err)
	sig, err := wallet.SignWith(stranger, p.Bytes(), wallet.TransactionIntent())
	require.NoError(t, err)

	_, err = NewSignedTransaction(p, sig)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signature from sender")
}
