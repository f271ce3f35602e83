// Package sdmf reads and writes calibration tables stored in an HDF5
// file with one group per table.
package sdmf

import (
	"fmt"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/hdf5"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
)

// Groups of the store.
const (
	GroupPPG          = "PPG"
	GroupDark         = "Dark"
	GroupBadPixel     = "BadPixelMask"
	GroupMemory       = "Memory"
	GroupNonLinearity = "NonLinearity"
	GroupStraylight   = "Straylight"
	GroupTransmission = "Transmission"
)

// Store is an SDMF calibration table file.
type Store struct {
	path string
	// PPGOverride makes /PPG take precedence over the factors in the
	// product.
	PPGOverride bool
}

// Open checks that path is an HDF5 file and returns a Store for it.
// Files are opened per Load.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nadc.Wrap(nadc.ErrFile, nadc.Fatal, path, err)
	}
	nadc.HDF5.Lock()
	ok := hdf5.IsHDF5(path)
	nadc.HDF5.Unlock()
	if !ok {
		return nil, nadc.Fatalf(nadc.ErrHDF, path, "not an HDF5 file")
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

// SelectOrbit returns the index of the largest orbit not after orbit,
// or 0 when every entry is later. orbits must be sorted.
func SelectOrbit(orbits []int32, orbit int) int {
	i := sort.Search(len(orbits), func(i int) bool { return int(orbits[i]) > orbit })
	if i == 0 {
		return 0
	}
	return i - 1
}

func rowOf[T any](data []T, dims []uint, i int) []T {
	n := len(data) / int(dims[0])
	return data[i*n : (i+1)*n]
}

func widen[T float32 | int32](s []T) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}

func readDataset[T any](g *hdf5.Group, name string) ([]T, []uint, error) {
	ds, err := g.OpenDataset(name)
	if err != nil {
		return nil, nil, err
	}
	defer ds.Close()
	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, nil, err
	}
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	if n == 0 {
		return nil, dims, fmt.Errorf("%s is empty", name)
	}
	data := make([]T, n)
	if err := ds.Read(&data); err != nil {
		return nil, nil, err
	}
	return data, dims, nil
}

// orbitRow reads the orbitList of g and returns the row to use for orbit.
func orbitRow(g *hdf5.Group, orbit int) (int, int32, error) {
	orbits, _, err := readDataset[int32](g, "orbitList")
	if err != nil {
		return 0, 0, err
	}
	i := SelectOrbit(orbits, orbit)
	return i, orbits[i], nil
}

// Load reads the tables needed by flags for orbit. Tables whose group is
// absent are left nil; the pipeline reports them.
func (s *Store) Load(orbit int, flags calib.Flags) (*calib.Tables, error) {
	nadc.HDF5.Lock()
	defer nadc.HDF5.Unlock()

	f, err := hdf5.OpenFile(s.path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, nadc.Wrap(nadc.ErrHDF, nadc.Fatal, s.path, err)
	}
	defer f.Close()

	t := &calib.Tables{Orbit: orbit}
	logger := log.WithFields(log.Fields{"sdmf": s.path, "orbit": orbit})
	load := func(group string, fn func(g *hdf5.Group) error) error {
		g, err := f.OpenGroup(group)
		if err != nil {
			logger.Debugf("no group /%s", group)
			return nil
		}
		defer g.Close()
		if err := fn(g); err != nil {
			return nadc.Wrap(nadc.ErrHDF, nadc.Fatal, "/"+group, err)
		}
		return nil
	}

	type part struct {
		need  bool
		group string
		fn    func(g *hdf5.Group) error
	}
	parts := []part{
		{flags.Has(calib.PPG) && s.PPGOverride, GroupPPG, func(g *hdf5.Group) error {
			i, used, err := orbitRow(g, orbit)
			if err != nil {
				return err
			}
			data, dims, err := readDataset[float32](g, "ppg")
			if err != nil {
				return err
			}
			t.PPG = widen(rowOf(data, dims, i))
			logger.Debugf("PPG of orbit %d", used)
			return nil
		}},
		{flags.Has(calib.Dark), GroupDark, func(g *hdf5.Group) error {
			i, _, err := orbitRow(g, orbit)
			if err != nil {
				return err
			}
			d := &calib.DarkTable{}
			for name, dst := range map[string]*[]float64{
				"analogOffset": &d.AnalogOffset,
				"darkCurrent":  &d.DarkCurrent,
				"noise":        &d.Noise,
			} {
				data, dims, err := readDataset[float32](g, name)
				if err != nil {
					return err
				}
				*dst = widen(rowOf(data, dims, i))
			}
			t.Dark = d
			return nil
		}},
		{flags.Has(calib.BadPixel), GroupBadPixel, func(g *hdf5.Group) error {
			i, _, err := orbitRow(g, orbit)
			if err != nil {
				return err
			}
			data, dims, err := readDataset[uint8](g, "mask")
			if err != nil {
				return err
			}
			row := rowOf(data, dims, i)
			t.BadPixel = make([]bool, len(row))
			for k, v := range row {
				t.BadPixel[k] = v != 0
			}
			return nil
		}},
		{flags.Has(calib.Memory), GroupMemory, func(g *hdf5.Group) error {
			signal, _, err := readDataset[float32](g, "signal")
			if err != nil {
				return err
			}
			table, dims, err := readDataset[float32](g, "table")
			if err != nil {
				return err
			}
			m := &calib.SignalTable{Signal: widen(signal)}
			for i := 0; i < int(dims[0]); i++ {
				m.Curves = append(m.Curves, widen(rowOf(table, dims, i)))
			}
			t.Memory = m
			return nil
		}},
		{flags.Has(calib.NonLinearity), GroupNonLinearity, func(g *hdf5.Group) error {
			signal, _, err := readDataset[float32](g, "signal")
			if err != nil {
				return err
			}
			curves, dims, err := readDataset[float32](g, "curves")
			if err != nil {
				return err
			}
			idx, _, err := readDataset[uint8](g, "curveIndex")
			if err != nil {
				return err
			}
			nl := &calib.NonLinTable{Signal: widen(signal), CurveIndex: idx}
			for i := 0; i < int(dims[0]); i++ {
				nl.Curves = append(nl.Curves, widen(rowOf(curves, dims, i)))
			}
			t.NonLin = nl
			return nil
		}},
		{flags.Has(calib.Straylight), GroupStraylight, func(g *hdf5.Group) error {
			matrix, dims, err := readDataset[float32](g, "matrix")
			if err != nil {
				return err
			}
			if len(dims) != 3 || int(dims[0]) != calib.NumChannels || int(dims[1]) != calib.ChannelSize {
				return fmt.Errorf("matrix has shape %v", dims)
			}
			orbits, _, err := readDataset[int32](g, "orbitList")
			if err != nil {
				return err
			}
			scale, _, err := readDataset[float32](g, "scale")
			if err != nil {
				return err
			}
			st := &calib.StrayTable{Orbits: widen(orbits), Scale: widen(scale)}
			bins := int(dims[2])
			for ch := range st.Matrix {
				st.Matrix[ch] = mat.NewDense(calib.ChannelSize, bins, widen(rowOf(matrix, dims, ch)))
			}
			t.Stray = st
			return nil
		}},
		{flags.Has(calib.Transmission), GroupTransmission, func(g *hdf5.Group) error {
			orbits, _, err := readDataset[int32](g, "orbitList")
			if err != nil {
				return err
			}
			trans, dims, err := readDataset[float32](g, "transmission")
			if err != nil {
				return err
			}
			tr := &calib.TransTable{Orbits: widen(orbits)}
			for i := 0; i < int(dims[0]); i++ {
				tr.Values = append(tr.Values, widen(rowOf(trans, dims, i)))
			}
			t.Trans = tr
			return nil
		}},
	}
	for _, p := range parts {
		if !p.need {
			continue
		}
		if err := load(p.group, p.fn); err != nil {
			return nil, err
		}
	}
	logger.Debug("calibration tables loaded")
	return t, nil
}
