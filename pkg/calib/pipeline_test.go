package calib

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
)

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func oneCluster(ch uint8, coadd int, pet float64, ids []uint16, values ...float64) []Record {
	c := Cluster{
		ClusID:   1,
		Channel:  ch,
		Coaddf:   coadd,
		PET:      pet,
		PixelIDs: ids,
		Values:   values,
		NumObs:   len(values) / len(ids),
	}
	return []Record{{StateID: 8, Clusters: []Cluster{c}}}
}

func run(t *testing.T, letters string, recs []Record, tabs *Tables) (Flags, *nadc.Stack) {
	t.Helper()
	f, err := ParseFlags(letters)
	require.NoError(t, err)
	if tabs != nil {
		require.NoError(t, tabs.Prepare())
	}
	var warn nadc.Stack
	done, err := Pipeline{Flags: f}.Run(recs, tabs, &warn)
	require.NoError(t, err)
	return done, &warn
}

func TestEmptyFlags(t *testing.T) {
	recs := oneCluster(1, 1, 1, []uint16{0}, 5)
	done, warn := run(t, "", recs, nil)
	assert.Equal(t, Flags(0), done)
	assert.Equal(t, 0, warn.Len())
	assert.Equal(t, []float64{5}, recs[0].Clusters[0].Values)
}

func TestMemoryCorrection(t *testing.T) {
	curves := make([][]float64, 5)
	for i := range curves {
		curves[i] = []float64{0, 10}
	}
	tabs := &Tables{Memory: &SignalTable{Signal: []float64{0, 100}, Curves: curves}}

	recs := oneCluster(1, 1, 1, []uint16{0}, 50, 80)
	done, _ := run(t, "M", recs, tabs)
	assert.Equal(t, Memory, done)
	// both observations are corrected with the signal of the first one
	assert.InDeltaSlice(t, []float64{45, 75}, recs[0].Clusters[0].Values, 1e-9)

	// channel 6 is not a memory channel
	recs = oneCluster(6, 1, 1, []uint16{5120}, 50)
	run(t, "M", recs, tabs)
	assert.Equal(t, []float64{50}, recs[0].Clusters[0].Values)
}

func TestNonLinearity(t *testing.T) {
	tabs := &Tables{NonLin: &NonLinTable{
		Signal:     []float64{0, 100},
		Curves:     [][]float64{{0, 20}},
		CurveIndex: make([]uint8, 3*ChannelSize),
	}}
	recs := oneCluster(6, 2, 1, []uint16{5120}, 100)
	run(t, "N", recs, tabs)
	assert.InDelta(t, 80, recs[0].Clusters[0].Values[0], 1e-9)

	// channels 1-5 have no non-linearity curves
	for ch := uint8(1); ch <= 5; ch++ {
		id := uint16(ch-1) * ChannelSize
		recs = oneCluster(ch, 1, 1, []uint16{id}, 100)
		run(t, "N", recs, tabs)
		assert.Equal(t, []float64{100}, recs[0].Clusters[0].Values, "channel %d", ch)
	}
}

func TestDark(t *testing.T) {
	tabs := &Tables{Dark: &DarkTable{
		AnalogOffset: constant(NumPixels, 1),
		DarkCurrent:  constant(NumPixels, 2),
		Noise:        constant(NumPixels, 2),
	}}
	recs := oneCluster(1, 2, 0.5, []uint16{0, 1}, 10, 20)
	recs[0].Clusters[0].Errors = []float64{3, 4}
	run(t, "D", recs, tabs)
	c := recs[0].Clusters[0]
	assert.InDeltaSlice(t, []float64{6, 16}, c.Values, 1e-9)
	assert.InDeltaSlice(t, []float64{math.Sqrt(17), math.Sqrt(24)}, c.Errors, 1e-9)
}

func TestPPGSkipsInvalidFactors(t *testing.T) {
	ppg := constant(NumPixels, 1)
	ppg[0] = 2
	ppg[1] = 0
	recs := oneCluster(1, 1, 1, []uint16{0, 1}, 10, 20)
	run(t, "P", recs, &Tables{PPG: ppg})
	assert.Equal(t, []float64{5, 20}, recs[0].Clusters[0].Values)
}

func TestStraylight(t *testing.T) {
	st := &StrayTable{Orbits: []float64{1000, 2000}, Scale: []float64{1, 3}}
	st.Matrix[0] = mat.NewDense(ChannelSize, 1, constant(ChannelSize, 0.01))
	assert.Equal(t, 1.0, st.ScaleAt(500))
	assert.Equal(t, 3.0, st.ScaleAt(2500))
	assert.InDelta(t, 2.0, st.ScaleAt(1500), 1e-12)

	recs := oneCluster(1, 1, 1, []uint16{0, 1}, 100, 300)
	run(t, "S", recs, &Tables{Orbit: 1500, Stray: st})
	assert.InDeltaSlice(t, []float64{96, 296}, recs[0].Clusters[0].Values, 1e-9)
}

func TestTransmission(t *testing.T) {
	lo, hi := constant(NumPixels, 1), constant(NumPixels, 3)
	lo[5], hi[5] = 0, 0
	hi[3] = 5
	tabs := &Tables{Orbit: 1500, Trans: &TransTable{
		Orbits: []float64{1000, 2000},
		Values: [][]float64{lo, hi},
	}}
	recs := oneCluster(1, 1, 1, []uint16{2, 3, 5}, 10, 9, 10)
	_, warn := run(t, "T", recs, tabs)
	assert.Equal(t, 0, warn.Len())
	assert.InDeltaSlice(t, []float64{5, 3, 5}, recs[0].Clusters[0].Values, 1e-9)
}

func TestTransmissionChannelWithoutValidValues(t *testing.T) {
	row := constant(NumPixels, 2)
	for i := 0; i < ChannelSize; i++ {
		row[i] = math.NaN()
	}
	tabs := &Tables{Orbit: 10, Trans: &TransTable{Orbits: []float64{10}, Values: [][]float64{row}}}
	recs := oneCluster(1, 1, 1, []uint16{0}, 8)
	_, warn := run(t, "T", recs, tabs)
	assert.Equal(t, 1, warn.Len())
	assert.Equal(t, []float64{8}, recs[0].Clusters[0].Values)
}

func TestBracket(t *testing.T) {
	tr := &TransTable{Orbits: []float64{100, 200, 400}}
	tests := []struct {
		orbit  float64
		lo, hi int
		w      float64
	}{
		{50, 0, 0, 0},
		{100, 0, 0, 0},
		{150, 0, 1, 0.5},
		{200, 1, 1, 0},
		{300, 1, 2, 0.5},
		{500, 2, 2, 0},
	}
	for _, tt := range tests {
		lo, hi, w := tr.Bracket(tt.orbit)
		assert.Equal(t, tt.lo, lo, "orbit %v", tt.orbit)
		assert.Equal(t, tt.hi, hi, "orbit %v", tt.orbit)
		assert.InDelta(t, tt.w, w, 1e-12, "orbit %v", tt.orbit)
	}
}

func TestBadPixelCoaddExposure(t *testing.T) {
	mask := make([]bool, NumPixels)
	mask[1025] = true
	recs := oneCluster(2, 2, 0.25, []uint16{1024, 1025}, 8, 8)
	recs[0].Clusters[0].Errors = []float64{2, 2}
	done, _ := run(t, "BCI", recs, &Tables{BadPixel: mask})
	assert.Equal(t, BadPixel|Coadd|Exposure, done)

	c := recs[0].Clusters[0]
	assert.Equal(t, 16.0, c.Values[0])
	assert.Equal(t, 4.0, c.Errors[0])
	assert.True(t, math.IsNaN(c.Values[1]))
	assert.True(t, math.IsNaN(c.Errors[1]))
}

func TestExposureInvalid(t *testing.T) {
	recs := oneCluster(1, 1, 0, []uint16{0}, 8)
	done, warn := run(t, "I", recs, &Tables{})
	assert.Equal(t, Exposure, done)
	assert.Equal(t, 1, warn.Len())
	assert.Equal(t, []float64{8}, recs[0].Clusters[0].Values)
}

func TestMissingTable(t *testing.T) {
	recs := oneCluster(1, 1, 1, []uint16{0}, 8)
	var warn nadc.Stack
	done, err := Pipeline{Flags: Dark | Coadd}.Run(recs, &Tables{}, &warn)
	require.NoError(t, err)
	assert.Equal(t, Coadd, done)
	require.Equal(t, 1, warn.Len())
	assert.Equal(t, nadc.ErrCalib, warn.Entries()[0].Code)

	done, err = Pipeline{Flags: Dark | Coadd, Strict: true}.Run(recs, &Tables{}, &warn)
	require.Error(t, err)
	assert.True(t, nadc.IsFatal(err))
	assert.True(t, errors.Is(err, ErrNoTable))
	assert.Contains(t, err.Error(), "dark")
	assert.Equal(t, Flags(0), done)
}

func TestRunPreparesTables(t *testing.T) {
	curves := make([][]float64, 5)
	for i := range curves {
		curves[i] = []float64{0, 10}
	}
	tabs := &Tables{Memory: &SignalTable{Signal: []float64{0, 100}, Curves: curves}}
	recs := oneCluster(1, 1, 1, []uint16{0}, 50)

	var warn nadc.Stack
	done, err := Pipeline{Flags: Memory}.Run(recs, tabs, &warn)
	require.NoError(t, err)
	assert.Equal(t, Memory, done)
	assert.InDeltaSlice(t, []float64{45}, recs[0].Clusters[0].Values, 1e-9)
}

func TestRunRejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name string
		tabs *Tables
	}{
		{"memory grid", &Tables{Memory: &SignalTable{Signal: []float64{10, 0}, Curves: make([][]float64, 5)}}},
		{"straylight orbits", &Tables{Stray: &StrayTable{Orbits: []float64{2000, 1000}, Scale: []float64{1, 3}}}},
		{"straylight scale", &Tables{Stray: &StrayTable{Orbits: []float64{1000}, Scale: []float64{1, 3}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := oneCluster(1, 1, 1, []uint16{0}, 50)
			_, err := Pipeline{Flags: Memory | Straylight}.Run(recs, tt.tabs, nil)
			require.Error(t, err)
			assert.True(t, nadc.IsFatal(err))
			assert.Equal(t, nadc.ErrCalib, nadc.CodeOf(err))
			assert.Equal(t, []float64{50}, recs[0].Clusters[0].Values)
		})
	}
}

func TestPixelOutOfRange(t *testing.T) {
	recs := oneCluster(8, 1, 1, []uint16{NumPixels}, 8)
	_, err := Pipeline{Flags: Coadd}.Run(recs, nil, nil)
	require.Error(t, err)
	assert.True(t, nadc.IsFatal(err))
}

func TestPixelChannelMismatch(t *testing.T) {
	recs := oneCluster(2, 1, 1, []uint16{1024, 5}, 8, 8)
	_, err := Pipeline{Flags: Exposure}.Run(recs, nil, nil)
	require.Error(t, err)
	assert.True(t, nadc.IsFatal(err))
	assert.Contains(t, err.Error(), "pixel 5 lies in channel 1, not 2")
	assert.Equal(t, []float64{8, 8}, recs[0].Clusters[0].Values)
}

func TestEmptyClusterSkipped(t *testing.T) {
	recs := []Record{{Clusters: []Cluster{{Channel: 1, Coaddf: 0}}}}
	done, warn := run(t, "CI", recs, nil)
	assert.Equal(t, Coadd|Exposure, done)
	assert.Equal(t, 0, warn.Len())
}
