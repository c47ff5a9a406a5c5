package ptb

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ptx-sdk-go/types"
)

var (
	testPackage = types.MustObjectID("0xabc")
	clockID     = types.MustObjectID("0x6")
	coinRef     = types.ObjectRef{ObjectID: types.MustObjectID("0x100"), Version: 7, Digest: types.Digest{1}}
)

func TestPureDeduplication(t *testing.T) {
	b := NewBuilder()

	first, err := b.Pure(uint64(42))
	require.NoError(t, err)
	second, err := b.Pure(uint64(42))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, b.InputCount())

	// 相同数值、不同类型的编码不同，不能合并
	third, err := b.Pure(uint32(42))
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.Equal(t, 2, b.InputCount())
}

func TestObjectDeduplication(t *testing.T) {
	b := NewBuilder()
	owner := types.AddressOwner{Address: types.MustAddress("0x1")}

	first, err := b.AddObject(coinRef, owner, false)
	require.NoError(t, err)
	second, err := b.AddObject(coinRef, owner, true)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, b.InputCount())
}

func TestSharedObjectMutabilityMerge(t *testing.T) {
	b := NewBuilder()

	ro, err := b.Object(SharedObject{ObjectID: clockID, InitialSharedVersion: 1, Mutable: false})
	require.NoError(t, err)
	rw, err := b.Object(SharedObject{ObjectID: clockID, InitialSharedVersion: 1, Mutable: true})
	require.NoError(t, err)
	again, err := b.Object(SharedObject{ObjectID: clockID, InitialSharedVersion: 1, Mutable: false})
	require.NoError(t, err)

	assert.Equal(t, ro, rw)
	assert.Equal(t, ro, again)
	require.Equal(t, 1, b.InputCount())

	_, err = b.MoveCall(testPackage, "clock", "tick", nil, ro)
	require.NoError(t, err)
	pt, err := b.Finish()
	require.NoError(t, err)

	shared := pt.SharedObjects()
	require.Len(t, shared, 1)
	assert.True(t, shared[0].Mutable, "mutable must be the OR of every declaration")
}

func TestConflictingObjectInput(t *testing.T) {
	tests := []struct {
		name   string
		first  ObjectArg
		second ObjectArg
	}{
		{
			name:   "owned at two versions",
			first:  OwnedObject{Ref: coinRef},
			second: OwnedObject{Ref: types.ObjectRef{ObjectID: coinRef.ObjectID, Version: 8, Digest: coinRef.Digest}},
		},
		{
			name:   "owned then shared",
			first:  OwnedObject{Ref: coinRef},
			second: SharedObject{ObjectID: coinRef.ObjectID, InitialSharedVersion: 1},
		},
		{
			name:   "shared with different initial versions",
			first:  SharedObject{ObjectID: clockID, InitialSharedVersion: 1},
			second: SharedObject{ObjectID: clockID, InitialSharedVersion: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			_, err := b.Object(tt.first)
			require.NoError(t, err)

			_, err = b.Object(tt.second)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrConflictingInput))
			assert.Equal(t, 1, b.InputCount())
		})
	}
}

func TestAddObjectOwnership(t *testing.T) {
	b := NewBuilder()

	_, err := b.AddObject(coinRef, types.ImmutableOwner{}, false)
	require.NoError(t, err)

	_, err = b.AddObject(types.ObjectRef{ObjectID: clockID, Version: 900}, types.SharedOwner{InitialSharedVersion: 1}, false)
	require.NoError(t, err)

	_, err = b.AddObject(types.ObjectRef{ObjectID: types.MustObjectID("0x9")}, nil, false)
	assert.True(t, errors.Is(err, types.ErrUnexpectedOwnership))

	_, err = b.MoveCall(testPackage, "m", "f", nil, Input{Index: 0}, Input{Index: 1})
	require.NoError(t, err)
	pt, err := b.Finish()
	require.NoError(t, err)

	inputs := pt.Inputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, ObjectInput{Object: OwnedObject{Ref: coinRef}}, inputs[0])
	// 共享对象只记录初始共享版本，当前版本被忽略
	assert.Equal(t, ObjectInput{Object: SharedObject{ObjectID: clockID, InitialSharedVersion: 1}}, inputs[1])
}

func TestDanglingReferences(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{
			name: "transfer of object not in pool",
			cmd:  TransferObjects{Objects: []Argument{Input{Index: 5}}, Address: Input{Index: 0}},
		},
		{
			name: "move call consuming a future command",
			cmd:  MoveCall{Package: testPackage, Module: "m", Function: "f", Arguments: []Argument{Result{Index: 1}}},
		},
		{
			name: "nested result beyond split count",
			cmd:  MoveCall{Package: testPackage, Module: "m", Function: "f", Arguments: []Argument{NestedResult{Index: 0, ResultIndex: 2}}},
		},
		{
			name: "nil argument",
			cmd:  MoveCall{Package: testPackage, Module: "m", Function: "f", Arguments: []Argument{nil}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			_, err := b.Pure(types.MustAddress("0x1"))
			require.NoError(t, err)
			_, err = b.SplitCoins(GasCoin{}, 10, 20)
			require.NoError(t, err)

			_, err = b.Command(tt.cmd)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrDanglingReference), "got %v", err)
			assert.Equal(t, 1, b.CommandCount(), "rejected command must not be appended")
		})
	}
}

func TestResultOnMultiResultCommand(t *testing.T) {
	b := NewBuilder()
	coins, err := b.SplitCoins(GasCoin{}, 1, 2)
	require.NoError(t, err)
	require.Len(t, coins, 2)

	_, err = b.MoveCall(testPackage, "m", "f", nil, Result{Index: 0})
	assert.True(t, errors.Is(err, types.ErrInvalidCommand))

	require.NoError(t, b.MergeCoins(GasCoin{}, coins...))
	_, err = b.MoveCall(testPackage, "m", "f", nil, Result{Index: 1})
	assert.True(t, errors.Is(err, types.ErrInvalidCommand), "merge coins has no result")
}

func TestCommandShapeValidation(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{name: "bad module", cmd: MoveCall{Package: testPackage, Module: "1bad", Function: "f"}},
		{name: "bad function", cmd: MoveCall{Package: testPackage, Module: "m", Function: ""}},
		{name: "transfer nothing", cmd: TransferObjects{Address: Input{Index: 0}}},
		{name: "transfer without recipient", cmd: TransferObjects{Objects: []Argument{GasCoin{}}}},
		{name: "transfer a pure value", cmd: TransferObjects{Objects: []Argument{Input{Index: 0}}, Address: Input{Index: 0}}},
		{name: "recipient is an object", cmd: TransferObjects{Objects: []Argument{GasCoin{}}, Address: Input{Index: 1}}},
		{name: "split without amounts", cmd: SplitCoins{Coin: GasCoin{}}},
		{name: "merge without sources", cmd: MergeCoins{Destination: GasCoin{}}},
		{name: "publish nothing", cmd: Publish{}},
		{name: "untyped empty vector", cmd: MakeMoveVec{}},
		{name: "nil command", cmd: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			_, err := b.Pure(types.MustAddress("0x1"))
			require.NoError(t, err)
			_, err = b.Object(OwnedObject{Ref: coinRef})
			require.NoError(t, err)

			_, err = b.Command(tt.cmd)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrInvalidCommand), "got %v", err)
		})
	}
}

func TestFinishFreezesBuilder(t *testing.T) {
	b := NewBuilder()
	hash, err := b.Pure(SHA256([]byte("hello")))
	require.NoError(t, err)
	_, err = b.MoveCall(testPackage, "notary", "record", nil, hash)
	require.NoError(t, err)

	_, err = b.Finish()
	require.NoError(t, err)
	assert.True(t, b.Finished())

	_, err = b.Pure(uint64(1))
	assert.True(t, errors.Is(err, types.ErrGraphFrozen))
	_, err = b.PureBytes([]byte{1})
	assert.True(t, errors.Is(err, types.ErrGraphFrozen))
	_, err = b.Object(OwnedObject{Ref: coinRef})
	assert.True(t, errors.Is(err, types.ErrGraphFrozen))
	_, err = b.Command(MoveCall{Package: testPackage, Module: "m", Function: "f"})
	assert.True(t, errors.Is(err, types.ErrGraphFrozen))
	_, err = b.Finish()
	assert.True(t, errors.Is(err, types.ErrGraphFrozen))
}

func TestFinishRejectsEmptyGraph(t *testing.T) {
	_, err := NewBuilder().Finish()
	assert.True(t, errors.Is(err, types.ErrInvalidCommand))
}

func TestFinishedTransactionIsImmutable(t *testing.T) {
	b := NewBuilder()
	args := []Argument{}
	arg, err := b.PureBytes([]byte{1, 2, 3})
	require.NoError(t, err)
	args = append(args, arg)
	_, err = b.MoveCall(testPackage, "m", "f", nil, args...)
	require.NoError(t, err)
	pt, err := b.Finish()
	require.NoError(t, err)

	inputs := pt.Inputs()
	inputs[0].(PureInput).Bytes[0] = 99
	cmds := pt.Commands()
	cmds[0].(MoveCall).Arguments[0] = GasCoin{}

	assert.Equal(t, PureInput{Bytes: []byte{1, 2, 3}}, pt.Inputs()[0])
	assert.Equal(t, Input{Index: 0}, pt.Commands()[0].(MoveCall).Arguments[0])
}

// buildTimestamp 构建：创建站点 -> 打时间戳 -> 转给发送者
func buildTimestamp(t *testing.T, sender types.Address, payload []byte) *ProgrammableTransaction {
	t.Helper()
	b := NewBuilder()

	station, err := b.MoveCall(testPackage, "timestamp", "new_station", nil)
	require.NoError(t, err)
	clock, err := b.Object(SharedObject{ObjectID: clockID, InitialSharedVersion: 1})
	require.NoError(t, err)
	hash, err := b.Pure(SHA256(payload))
	require.NoError(t, err)
	_, err = b.MoveCall(testPackage, "timestamp", "stamp", nil, station, hash, clock)
	require.NoError(t, err)
	require.NoError(t, b.TransferObjects(sender, station))

	pt, err := b.Finish()
	require.NoError(t, err)
	return pt
}

func TestBuildIsDeterministic(t *testing.T) {
	sender := types.MustAddress("0x7")
	first := buildTimestamp(t, sender, []byte("doc"))
	second := buildTimestamp(t, sender, []byte("doc"))

	if diff := cmp.Diff(first.Inputs(), second.Inputs()); diff != "" {
		t.Errorf("inputs differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Commands(), second.Commands()); diff != "" {
		t.Errorf("commands differ (-first +second):\n%s", diff)
	}
	assert.Len(t, first.Inputs(), 3)
	assert.Len(t, first.Commands(), 3)
	assert.Equal(t, []types.ObjectID{clockID}, first.ObjectIDs())
}

func TestEncodePure(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    []byte
		wantErr bool
	}{
		{name: "u64", value: uint64(5), want: []byte{5, 0, 0, 0, 0, 0, 0, 0}},
		{name: "u8", value: uint8(7), want: []byte{7}},
		{name: "bool", value: true, want: []byte{1}},
		{name: "string", value: "hi", want: []byte{2, 'h', 'i'}},
		{name: "bytes", value: []byte{1, 2}, want: []byte{2, 1, 2}},
		{name: "u64 vector", value: []uint64{1}, want: []byte{1, 1, 0, 0, 0, 0, 0, 0, 0}},
		{name: "nil", value: nil, wantErr: true},
		{name: "signed int", value: int64(-1), wantErr: true},
		{name: "platform uint", value: uint(1), wantErr: true},
		{name: "float", value: 1.5, wantErr: true},
		{name: "map", value: map[string]int{}, wantErr: true},
		{name: "struct", value: struct{ A uint8 }{}, wantErr: true},
		{name: "pointer", value: new(uint64), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodePure(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrMalformedPure))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodePureAddress(t *testing.T) {
	addr := types.MustAddress("0x1")
	got, err := EncodePure(addr)
	require.NoError(t, err)
	assert.Equal(t, addr[:], got, "addresses are fixed width, no length prefix")
}

func TestPureBytesRejectsEmpty(t *testing.T) {
	_, err := NewBuilder().PureBytes(nil)
	assert.True(t, errors.Is(err, types.ErrMalformedPure))
}
