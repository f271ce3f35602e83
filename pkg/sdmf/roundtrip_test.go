package sdmf

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
)

func ramp(n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i%64) * scale
	}
	return out
}

func testTables() *calib.Tables {
	mask := make([]bool, calib.NumPixels)
	mask[3] = true
	mask[5000] = true

	stray := &calib.StrayTable{Orbits: []float64{1000, 2000}, Scale: []float64{1, 1.5}}
	stray.Matrix[0] = mat.NewDense(calib.ChannelSize, 2, ramp(2*calib.ChannelSize, 0.25))

	return &calib.Tables{
		Orbit:    10634,
		PPG:      ramp(calib.NumPixels, 0.5),
		BadPixel: mask,
		Dark: &calib.DarkTable{
			AnalogOffset: ramp(calib.NumPixels, 1),
			DarkCurrent:  ramp(calib.NumPixels, 0.125),
			Noise:        ramp(calib.NumPixels, 2),
		},
		Memory: &calib.SignalTable{
			Signal: []float64{0, 1000, 65535},
			Curves: [][]float64{{0, 4, 8}, {0, 2, 6}, {0, 1, 2}, {0, 0, 0}, {1, 1, 1}},
		},
		NonLin: &calib.NonLinTable{
			Signal:     []float64{0, 32768, 65535},
			Curves:     [][]float64{{0, -10, -20}, {0, 5, 10}},
			CurveIndex: make([]uint8, 3*calib.ChannelSize),
		},
		Stray: stray,
		Trans: &calib.TransTable{
			Orbits: []float64{1000, 20000},
			Values: [][]float64{ramp(calib.NumPixels, 0.5), ramp(calib.NumPixels, 0.25)},
		},
	}
}

func TestWriteTablesLoad(t *testing.T) {
	want := testTables()
	path := filepath.Join(t.TempDir(), "sdmf.h5")
	require.NoError(t, WriteTables(path, want))

	s, err := Open(path)
	require.NoError(t, err)
	s.PPGOverride = true
	got, err := s.Load(want.Orbit, calib.All)
	require.NoError(t, err)

	assert.Equal(t, want.Orbit, got.Orbit)
	assert.Equal(t, want.PPG, got.PPG)
	assert.Equal(t, want.BadPixel, got.BadPixel)
	assert.Equal(t, want.Dark, got.Dark)
	assert.Equal(t, want.Memory.Signal, got.Memory.Signal)
	assert.Equal(t, want.Memory.Curves, got.Memory.Curves)
	assert.Equal(t, want.NonLin.Signal, got.NonLin.Signal)
	assert.Equal(t, want.NonLin.Curves, got.NonLin.Curves)
	assert.Equal(t, want.NonLin.CurveIndex, got.NonLin.CurveIndex)
	assert.Equal(t, want.Trans, got.Trans)

	require.NotNil(t, got.Stray)
	assert.Equal(t, want.Stray.Orbits, got.Stray.Orbits)
	assert.Equal(t, want.Stray.Scale, got.Stray.Scale)
	assert.True(t, mat.Equal(want.Stray.Matrix[0], got.Stray.Matrix[0]))
	r, c := got.Stray.Matrix[1].Dims()
	assert.Equal(t, []int{calib.ChannelSize, 2}, []int{r, c})
	assert.Zero(t, mat.Sum(got.Stray.Matrix[1]))

	require.NoError(t, got.Prepare())
}

func TestLoadSkipsAbsentGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dark.h5")
	require.NoError(t, WriteTables(path, &calib.Tables{Orbit: 5, Dark: testTables().Dark}))

	s, err := Open(path)
	require.NoError(t, err)
	got, err := s.Load(5, calib.All)
	require.NoError(t, err)
	assert.NotNil(t, got.Dark)
	assert.Nil(t, got.Memory)
	assert.Nil(t, got.NonLin)
	assert.Nil(t, got.Stray)
	assert.Nil(t, got.Trans)
	assert.Nil(t, got.BadPixel)
	assert.Nil(t, got.PPG)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.h5"))
	assert.Error(t, err)
}
