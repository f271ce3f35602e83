package calib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		in   string
		want Flags
		str  string
	}{
		{"", 0, ""},
		{"none", 0, ""},
		{"IM", Memory | Exposure, "MI"},
		{"0", Memory | NonLinearity, "MN"},
		{"0b", Memory | NonLinearity | BadPixel, "MNB"},
		{"D, P, E", Dark | PPG | Etalon, "DPE"},
		{"all", All, "MNDPESTBCI"},
		{"MNDPESTBCI", All, "MNDPESTBCI"},
	}
	for _, tt := range tests {
		f, err := ParseFlags(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, f, tt.in)
		assert.Equal(t, tt.str, f.String(), tt.in)
	}
}

func TestParseFlagsUnknown(t *testing.T) {
	_, err := ParseFlags("MX")
	assert.Error(t, err)
}

func TestFlagsSteps(t *testing.T) {
	f, err := ParseFlags("ICM")
	require.NoError(t, err)
	assert.Equal(t, []Flags{Memory, Coadd, Exposure}, f.Steps())
	assert.Equal(t, "coadd", Coadd.Name())
	assert.True(t, f.Has(Memory|Coadd))
	assert.False(t, f.Has(Dark))
}
