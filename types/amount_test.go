package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.005", FormatAmount(5_000_000))
	assert.Equal(t, "1", FormatAmount(1_000_000_000))
	assert.Equal(t, "0", FormatAmount(0))
	assert.Equal(t, "12.000000001", FormatAmount(12_000_000_001))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    uint64
		wantErr bool
	}{
		{input: "0.005", want: 5_000_000},
		{input: "1", want: 1_000_000_000},
		{input: "12.000000001", want: 12_000_000_001},
		{input: "0.0000000001", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "100000000000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
