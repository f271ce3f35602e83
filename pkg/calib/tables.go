package calib

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

// ErrNoTable is returned, wrapped with the table name, when a calibration
// step is requested but its table is not available.
var ErrNoTable = errors.New("calibration table not available")

// Tables is the set of calibration tables valid for one orbit. Nil fields
// are tables that were not loaded.
type Tables struct {
	Orbit int

	PPG      []float64
	Etalon   []float64
	BadPixel []bool

	Dark   *DarkTable
	Memory *SignalTable
	NonLin *NonLinTable
	Stray  *StrayTable
	Trans  *TransTable
}

// DarkTable holds the analog offset (BU), dark current (BU/s) and
// read-out noise (BU) of every pixel.
type DarkTable struct {
	AnalogOffset []float64
	DarkCurrent  []float64
	Noise        []float64
}

// SignalTable maps a signal level to a correction, one curve per channel
// (memory effect of channels 1-5).
type SignalTable struct {
	Signal []float64
	Curves [][]float64

	fits []interp.PiecewiseLinear
}

// NonLinTable holds the non-linearity curves of channels 6-8 and the curve
// used by each of their pixels.
type NonLinTable struct {
	Signal     []float64
	Curves     [][]float64
	CurveIndex []uint8

	fits []interp.PiecewiseLinear
}

// StrayTable holds one straylight matrix (ChannelSize x bins) per channel
// and the straylight scale factor as a function of orbit.
type StrayTable struct {
	Matrix [NumChannels]*mat.Dense
	Orbits []float64
	Scale  []float64
}

// TransTable holds the per-pixel transmission at a number of orbits.
type TransTable struct {
	Orbits []float64
	Values [][]float64
}

func strictlyIncreasing(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return false
		}
	}
	return true
}

func fitCurves(name string, signal []float64, curves [][]float64) ([]interp.PiecewiseLinear, error) {
	if len(signal) < 2 || !strictlyIncreasing(signal) {
		return nil, fmt.Errorf("%s: signal grid must hold at least two increasing values", name)
	}
	fits := make([]interp.PiecewiseLinear, len(curves))
	for i, c := range curves {
		if len(c) != len(signal) {
			return nil, fmt.Errorf("%s: curve %d has %d points, grid has %d", name, i, len(c), len(signal))
		}
		if err := fits[i].Fit(signal, c); err != nil {
			return nil, err
		}
	}
	return fits, nil
}

// Prepare validates the table and builds its interpolators. A prepared
// table is left untouched.
func (t *SignalTable) Prepare() error {
	if t.fits != nil {
		return nil
	}
	fits, err := fitCurves("memory", t.Signal, t.Curves)
	if err != nil {
		return err
	}
	t.fits = fits
	return nil
}

// At returns the correction of curve i at signal s.
func (t *SignalTable) At(i int, s float64) float64 {
	return t.fits[i].Predict(s)
}

// Prepare validates the table and builds its interpolators. A prepared
// table is left untouched.
func (t *NonLinTable) Prepare() error {
	if t.fits != nil {
		return nil
	}
	fits, err := fitCurves("non-linearity", t.Signal, t.Curves)
	if err != nil {
		return err
	}
	for i, idx := range t.CurveIndex {
		if int(idx) >= len(t.Curves) {
			return fmt.Errorf("non-linearity: pixel %d uses curve %d of %d", i, idx, len(t.Curves))
		}
	}
	t.fits = fits
	return nil
}

// At returns the correction of curve i at signal s.
func (t *NonLinTable) At(i int, s float64) float64 {
	return t.fits[i].Predict(s)
}

// ScaleAt returns the straylight scale factor at orbit, interpolated
// linearly and held constant beyond the table ends. Tables.Prepare
// rejects scale lists that cannot be interpolated.
func (t *StrayTable) ScaleAt(orbit float64) float64 {
	switch len(t.Scale) {
	case 0:
		return 1
	case 1:
		return t.Scale[0]
	}
	if len(t.Orbits) != len(t.Scale) || !strictlyIncreasing(t.Orbits) {
		return t.Scale[0]
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(t.Orbits, t.Scale); err != nil {
		return t.Scale[0]
	}
	return pl.Predict(orbit)
}

// Bracket returns the two table rows that enclose orbit and the weight of
// the second one.
func (t *TransTable) Bracket(orbit float64) (lo, hi int, w float64) {
	n := len(t.Orbits)
	if n == 0 {
		return 0, 0, 0
	}
	hi = sort.SearchFloat64s(t.Orbits, orbit)
	switch {
	case hi == 0:
		return 0, 0, 0
	case hi == n:
		return n - 1, n - 1, 0
	case t.Orbits[hi] == orbit:
		return hi, hi, 0
	}
	lo = hi - 1
	w = (orbit - t.Orbits[lo]) / (t.Orbits[hi] - t.Orbits[lo])
	return lo, hi, w
}

// Prepare validates every table that is present.
func (t *Tables) Prepare() error {
	for name, s := range map[string][]float64{"ppg": t.PPG, "etalon": t.Etalon} {
		if s != nil && len(s) != NumPixels {
			return fmt.Errorf("%s: %d values, want %d", name, len(s), NumPixels)
		}
	}
	if t.BadPixel != nil && len(t.BadPixel) != NumPixels {
		return fmt.Errorf("bad pixel mask: %d values, want %d", len(t.BadPixel), NumPixels)
	}
	if d := t.Dark; d != nil {
		if len(d.AnalogOffset) != NumPixels || len(d.DarkCurrent) != NumPixels {
			return fmt.Errorf("dark: tables must hold %d pixels", NumPixels)
		}
		if d.Noise != nil && len(d.Noise) != NumPixels {
			return fmt.Errorf("dark: noise must hold %d pixels", NumPixels)
		}
	}
	if t.Memory != nil {
		if len(t.Memory.Curves) != 5 {
			return fmt.Errorf("memory: %d curves, want 5", len(t.Memory.Curves))
		}
		if err := t.Memory.Prepare(); err != nil {
			return err
		}
	}
	if t.NonLin != nil {
		if len(t.NonLin.CurveIndex) != 3*ChannelSize {
			return fmt.Errorf("non-linearity: %d curve indices, want %d", len(t.NonLin.CurveIndex), 3*ChannelSize)
		}
		if err := t.NonLin.Prepare(); err != nil {
			return err
		}
	}
	if s := t.Stray; s != nil {
		for ch, m := range s.Matrix {
			if m == nil {
				continue
			}
			if r, c := m.Dims(); r != ChannelSize || c == 0 || ChannelSize%c != 0 {
				return fmt.Errorf("straylight: channel %d matrix is %dx%d", ch+1, r, c)
			}
		}
		if len(s.Scale) > 1 && (len(s.Orbits) != len(s.Scale) || !strictlyIncreasing(s.Orbits)) {
			return fmt.Errorf("straylight: %d scale factors for %d orbits, orbits must increase", len(s.Scale), len(s.Orbits))
		}
	}
	if tr := t.Trans; tr != nil {
		if len(tr.Orbits) == 0 || len(tr.Orbits) != len(tr.Values) || !strictlyIncreasing(tr.Orbits) {
			return fmt.Errorf("transmission: invalid orbit list")
		}
		for i, v := range tr.Values {
			if len(v) != NumPixels {
				return fmt.Errorf("transmission: row %d holds %d pixels", i, len(v))
			}
		}
	}
	return nil
}
