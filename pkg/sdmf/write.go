package sdmf

import (
	"fmt"

	"gonum.org/v1/hdf5"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
)

func narrow(s []float64) []float32 {
	out := make([]float32, len(s))
	for i, v := range s {
		out[i] = float32(v)
	}
	return out
}

func narrowRows(rows [][]float64) ([]float32, uint) {
	var out []float32
	for _, r := range rows {
		out = append(out, narrow(r)...)
	}
	return out, uint(len(rows))
}

func orbitList(orbits []float64) []int32 {
	out := make([]int32, len(orbits))
	for i, o := range orbits {
		out[i] = int32(o)
	}
	return out
}

func writeDataset[T any](g *hdf5.Group, name string, dtype *hdf5.Datatype, dims []uint, data []T) error {
	space, err := hdf5.CreateSimpleDataspace(dims, dims)
	if err != nil {
		return fmt.Errorf("error creating dataspace for %s: %v", name, err)
	}
	defer space.Close()
	ds, err := g.CreateDataset(name, dtype, space)
	if err != nil {
		return fmt.Errorf("error creating dataset %s: %v", name, err)
	}
	defer ds.Close()
	if err := ds.Write(&data); err != nil {
		return fmt.Errorf("error writing dataset %s: %v", name, err)
	}
	return nil
}

// WriteTables creates an SDMF file at path holding every table of t.
// Orbit-indexed tables get a single entry for t.Orbit.
func WriteTables(path string, t *calib.Tables) error {
	nadc.HDF5.Lock()
	defer nadc.HDF5.Unlock()

	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nadc.Wrap(nadc.ErrHDF, nadc.Fatal, path, err)
	}
	defer f.Close()

	group := func(name string, fn func(g *hdf5.Group) error) error {
		g, err := f.CreateGroup(name)
		if err != nil {
			return nadc.Wrap(nadc.ErrHDF, nadc.Fatal, name, err)
		}
		defer g.Close()
		return nadc.Wrap(nadc.ErrHDF, nadc.Fatal, name, fn(g))
	}
	orbit := []int32{int32(t.Orbit)}
	one := []uint{1}
	row := []uint{1, calib.NumPixels}

	if t.PPG != nil {
		if err := group(GroupPPG, func(g *hdf5.Group) error {
			if err := writeDataset(g, "orbitList", hdf5.T_NATIVE_INT32, one, orbit); err != nil {
				return err
			}
			return writeDataset(g, "ppg", hdf5.T_NATIVE_FLOAT, row, narrow(t.PPG))
		}); err != nil {
			return err
		}
	}
	if d := t.Dark; d != nil {
		if err := group(GroupDark, func(g *hdf5.Group) error {
			if err := writeDataset(g, "orbitList", hdf5.T_NATIVE_INT32, one, orbit); err != nil {
				return err
			}
			noise := d.Noise
			if noise == nil {
				noise = make([]float64, calib.NumPixels)
			}
			for _, ds := range []struct {
				name string
				data []float64
			}{{"analogOffset", d.AnalogOffset}, {"darkCurrent", d.DarkCurrent}, {"noise", noise}} {
				if err := writeDataset(g, ds.name, hdf5.T_NATIVE_FLOAT, row, narrow(ds.data)); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}
	if t.BadPixel != nil {
		if err := group(GroupBadPixel, func(g *hdf5.Group) error {
			if err := writeDataset(g, "orbitList", hdf5.T_NATIVE_INT32, one, orbit); err != nil {
				return err
			}
			mask := make([]uint8, len(t.BadPixel))
			for i, b := range t.BadPixel {
				if b {
					mask[i] = 1
				}
			}
			return writeDataset(g, "mask", hdf5.T_NATIVE_UINT8, row, mask)
		}); err != nil {
			return err
		}
	}
	if m := t.Memory; m != nil {
		if err := group(GroupMemory, func(g *hdf5.Group) error {
			if err := writeDataset(g, "signal", hdf5.T_NATIVE_FLOAT, []uint{uint(len(m.Signal))}, narrow(m.Signal)); err != nil {
				return err
			}
			table, n := narrowRows(m.Curves)
			return writeDataset(g, "table", hdf5.T_NATIVE_FLOAT, []uint{n, uint(len(m.Signal))}, table)
		}); err != nil {
			return err
		}
	}
	if nl := t.NonLin; nl != nil {
		if err := group(GroupNonLinearity, func(g *hdf5.Group) error {
			if err := writeDataset(g, "signal", hdf5.T_NATIVE_FLOAT, []uint{uint(len(nl.Signal))}, narrow(nl.Signal)); err != nil {
				return err
			}
			curves, n := narrowRows(nl.Curves)
			if err := writeDataset(g, "curves", hdf5.T_NATIVE_FLOAT, []uint{n, uint(len(nl.Signal))}, curves); err != nil {
				return err
			}
			return writeDataset(g, "curveIndex", hdf5.T_NATIVE_UINT8, []uint{uint(len(nl.CurveIndex))}, nl.CurveIndex)
		}); err != nil {
			return err
		}
	}
	if st := t.Stray; st != nil {
		if err := group(GroupStraylight, func(g *hdf5.Group) error {
			bins := 0
			for _, m := range st.Matrix {
				if m != nil {
					_, bins = m.Dims()
					break
				}
			}
			if bins == 0 {
				return fmt.Errorf("no straylight matrix")
			}
			matrix := make([]float32, 0, calib.NumChannels*calib.ChannelSize*bins)
			for _, m := range st.Matrix {
				if m == nil {
					matrix = append(matrix, make([]float32, calib.ChannelSize*bins)...)
					continue
				}
				matrix = append(matrix, narrow(m.RawMatrix().Data)...)
			}
			dims := []uint{calib.NumChannels, calib.ChannelSize, uint(bins)}
			if err := writeDataset(g, "matrix", hdf5.T_NATIVE_FLOAT, dims, matrix); err != nil {
				return err
			}
			n := []uint{uint(len(st.Orbits))}
			if err := writeDataset(g, "orbitList", hdf5.T_NATIVE_INT32, n, orbitList(st.Orbits)); err != nil {
				return err
			}
			return writeDataset(g, "scale", hdf5.T_NATIVE_FLOAT, n, narrow(st.Scale))
		}); err != nil {
			return err
		}
	}
	if tr := t.Trans; tr != nil {
		if err := group(GroupTransmission, func(g *hdf5.Group) error {
			n := uint(len(tr.Orbits))
			if err := writeDataset(g, "orbitList", hdf5.T_NATIVE_INT32, []uint{n}, orbitList(tr.Orbits)); err != nil {
				return err
			}
			values, _ := narrowRows(tr.Values)
			return writeDataset(g, "transmission", hdf5.T_NATIVE_FLOAT, []uint{n, calib.NumPixels}, values)
		}); err != nil {
			return err
		}
	}
	return nil
}
