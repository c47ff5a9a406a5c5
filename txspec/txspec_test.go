package txspec

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ptx-sdk-go/services/transaction"
	"github.com/weisyn/ptx-sdk-go/types"
)

const pkg = "0xf7d900c1cf38000c3c39e822d3bf3926df4db6b4a5539c08f053870118710dd8"

func TestLoadClockSpec(t *testing.T) {
	spec, err := Load(filepath.Join("testdata", "clock.hcl"), map[string]string{"package": pkg})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join("testdata", "item.txt"))
	require.NoError(t, err)
	sum := sha256.Sum256(content)

	want := &transaction.Request{
		GasBudget: 5_000_000,
		Inputs: []transaction.Input{
			{Name: "clock", Kind: transaction.InputClock},
			{Name: "item", Kind: transaction.InputPure, Type: "bytes", Value: "0x" + hex.EncodeToString(sum[:])},
		},
		Commands: []transaction.Command{
			{Name: "station", Kind: transaction.CommandMoveCall, Target: pkg + "::timestamp::create_timestamp_station"},
			{
				Name:   "commit",
				Kind:   transaction.CommandMoveCall,
				Target: pkg + "::timestamp::commit_hash",
				Args:   []string{"result.station", "input.item", "input.clock"},
			},
			{Name: "send", Kind: transaction.CommandTransferObjects, Args: []string{"result.station"}, Recipient: "sender"},
		},
	}
	if diff := cmp.Diff(want, spec.Request); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, types.WaitForLocalExecution, spec.Mode)
}

func TestParseObjectsAndCoins(t *testing.T) {
	src := `
gas_coin = "0x1001"

input "trophy" {
  kind    = "object"
  id      = "0xabc"
  mutable = true
}

input "amount" {
  kind  = "pure"
  type  = "u64"
  value = 250
}

command "coins" {
  kind    = "split_coins"
  args    = ["gas"]
  amounts = [100, 200]
}

command "merge" {
  kind = "merge_coins"
  args = ["result.coins.0", "result.coins.1"]
}

command "stamp" {
  kind      = "move_call"
  target    = "0x2::dev_trophy::stamp_trophy"
  type_args = ["0x2::sui::SUI"]
  args      = ["input.trophy", "input.amount"]
}
`
	spec, err := Parse([]byte(src), "inline.hcl", nil)
	require.NoError(t, err)

	req := spec.Request
	require.NotNil(t, req.GasCoin)
	assert.Equal(t, types.MustObjectID("0x1001"), *req.GasCoin)
	assert.Equal(t, types.MustObjectID("0xabc"), req.Inputs[0].ObjectID)
	assert.True(t, req.Inputs[0].Mutable)
	assert.Equal(t, "250", req.Inputs[1].Value)
	assert.Equal(t, []uint64{100, 200}, req.Commands[0].Amounts)
	assert.Equal(t, []string{"0x2::sui::SUI"}, req.Commands[2].TypeArgs)
	assert.Empty(t, spec.Mode)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		vars map[string]string
		want *types.Error
	}{
		{name: "syntax error", src: `input "x" {`},
		{name: "unknown attribute", src: `gas_limit = 1`},
		{name: "missing kind", src: "command \"a\" {\n  target = \"0x2::m::f\"\n}\n"},
		{name: "undefined variable", src: "command \"a\" {\n  kind = \"move_call\"\n  target = \"${var.package}::m::f\"\n}\n"},
		{name: "missing file", src: "input \"h\" {\n  kind = \"pure\"\n  type = \"bytes\"\n  value = filesha256(\"nope.bin\")\n}\n"},
		{name: "bad object id", src: "input \"o\" {\n  kind = \"object\"\n  id = \"0xzz\"\n}\ncommand \"a\" {\n  kind = \"move_call\"\n  target = \"0x2::m::f\"\n}\n"},
		{name: "bad mode", src: "mode = \"Eventually\"\ncommand \"a\" {\n  kind = \"move_call\"\n  target = \"0x2::m::f\"\n}\n", want: types.ErrInvalidConsistencyMode},
		{name: "dangling reference", src: "command \"a\" {\n  kind = \"transfer_objects\"\n  args = [\"input.nft\"]\n  recipient = \"sender\"\n}\n", want: types.ErrDanglingReference},
		{name: "no commands", src: "input \"c\" {\n  kind = \"clock\"\n}\n", want: types.ErrInvalidCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), filepath.Join(t.TempDir(), "spec.hcl"), tt.vars)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}
