package store

import (
	"context"
	"fmt"
	"math"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/hdf5"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/product"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

type h5Sink struct {
	path string
	file *hdf5.File
}

// OpenHDF5 creates the HDF5 file at path. Every product becomes a top
// level group.
func OpenHDF5(path string, _ Options) (Sink, error) {
	nadc.HDF5.Lock()
	defer nadc.HDF5.Unlock()
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, nadc.Wrap(nadc.ErrHDF, nadc.Fatal, path, err)
	}
	return &h5Sink{path: path, file: f}, nil
}

func (s *h5Sink) Close() error {
	nadc.HDF5.Lock()
	defer nadc.HDF5.Unlock()
	return s.file.Close()
}

func (s *h5Sink) WriteHeader(_ context.Context, hdr product.Header) (Writer, error) {
	return &h5Writer{sink: s, hdr: hdr}, nil
}

type h5Writer struct {
	sink   *h5Sink
	hdr    product.Header
	recs   []calib.Record
	tiles  []product.Tile
	family string
}

func (w *h5Writer) WriteRecords(_ context.Context, recs []calib.Record) (int, error) {
	w.recs = append(w.recs, recs...)
	return len(recs), nil
}

func (w *h5Writer) WriteTiles(_ context.Context, family string, tiles []product.Tile) (int, error) {
	w.family = family
	w.tiles = append(w.tiles, tiles...)
	return len(tiles), nil
}

func (w *h5Writer) Abort(context.Context) error {
	w.recs, w.tiles = nil, nil
	return nil
}

func saveAttr(name string, grp *hdf5.Group, val any) error {
	space, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	if err != nil {
		return err
	}
	defer space.Close()

	var dtype *hdf5.Datatype
	switch val.(type) {
	case float64:
		dtype = hdf5.T_NATIVE_DOUBLE
	case string:
		dtype = hdf5.T_GO_STRING
	case int32:
		dtype = hdf5.T_NATIVE_INT32
	default:
		return fmt.Errorf("attribute %s: unsupported type %T", name, val)
	}
	attr, err := grp.CreateAttribute(name, dtype, space)
	if err != nil {
		return err
	}
	defer attr.Close()
	switch v := val.(type) {
	case float64:
		return attr.Write(&v, dtype)
	case string:
		return attr.Write(&v, dtype)
	case int32:
		return attr.Write(&v, dtype)
	}
	return nil
}

func saveDataset[T any](grp *hdf5.Group, name string, dtype *hdf5.Datatype, dims []uint, data []T) error {
	space, err := hdf5.CreateSimpleDataspace(dims, dims)
	if err != nil {
		return err
	}
	defer space.Close()
	ds, err := grp.CreateDataset(name, dtype, space)
	if err != nil {
		return fmt.Errorf("error creating dataset %s: %v", name, err)
	}
	defer ds.Close()
	if len(data) == 0 {
		return nil
	}
	return ds.Write(&data)
}

func openOrCreate(parent *hdf5.Group, name string) (*hdf5.Group, error) {
	if parent.LinkExists(name) {
		return parent.OpenGroup(name)
	}
	return parent.CreateGroup(name)
}

func (w *h5Writer) Commit(context.Context) error {
	nadc.HDF5.Lock()
	defer nadc.HDF5.Unlock()

	root, err := w.sink.file.CreateGroup(w.hdr.Name)
	if err != nil {
		return nadc.Wrap(nadc.ErrHDF, nadc.Fatal, w.hdr.Name, err)
	}
	defer root.Close()
	for name, v := range map[string]any{
		"product":          w.hdr.Name,
		"family":           w.hdr.Family,
		"orbit":            int32(w.hdr.Orbit),
		"sensing_start":    w.hdr.Start.UTC().Format(timeLayout),
		"sensing_stop":     w.hdr.Stop.UTC().Format(timeLayout),
		"software_version": w.hdr.SoftVersion,
		"ingest_id":        w.hdr.IngestID,
	} {
		if err := saveAttr(name, root, v); err != nil {
			return nadc.Wrap(nadc.ErrHDF, nadc.Fatal, name, err)
		}
	}

	names, blocks := GroupClusters(w.recs)
	for i, b := range blocks {
		if err := writeBlock(root, names[i], b); err != nil {
			return nadc.Wrap(nadc.ErrHDF, nadc.Fatal, names[i], err)
		}
	}
	if len(w.tiles) > 0 {
		if err := writeTilesH5(root, w.family, w.tiles); err != nil {
			return nadc.Wrap(nadc.ErrHDF, nadc.Fatal, "tiles", err)
		}
	}
	log.WithField("file", w.sink.path).Debugf("%s: %d cluster groups, %d tiles", w.hdr.Name, len(blocks), len(w.tiles))
	return nil
}

func writeBlock(root *hdf5.Group, name string, b *ClusterBlock) error {
	stateName, clusName, _ := strings.Cut(name, "/")
	state, err := openOrCreate(root, stateName)
	if err != nil {
		return err
	}
	defer state.Close()
	grp, err := state.CreateGroup(clusName)
	if err != nil {
		return err
	}
	defer grp.Close()

	for attr, v := range map[string]any{
		"channel": int32(b.Channel),
		"coaddf":  int32(b.Coaddf),
		"pet":     b.PET,
		"num_obs": int32(b.NumObs),
	} {
		if err := saveAttr(attr, grp, v); err != nil {
			return err
		}
	}
	np := uint(len(b.PixelIDs))
	obs := uint(b.NumObs)
	if err := saveDataset(grp, "pixel_ids", hdf5.T_NATIVE_UINT16, []uint{np}, b.PixelIDs); err != nil {
		return err
	}
	if err := saveDataset(grp, "mjd", hdf5.T_NATIVE_DOUBLE, []uint{obs}, b.MJD); err != nil {
		return err
	}
	if err := saveDataset(grp, "pixel_val", hdf5.T_NATIVE_DOUBLE, []uint{obs, np}, b.Values); err != nil {
		return err
	}
	if len(b.Errors) == len(b.Values) {
		return saveDataset(grp, "pixel_err", hdf5.T_NATIVE_DOUBLE, []uint{obs, np}, b.Errors)
	}
	return nil
}

func writeTilesH5(root *hdf5.Group, family string, tiles []product.Tile) error {
	grp, err := root.CreateGroup("tiles")
	if err != nil {
		return err
	}
	defer grp.Close()
	if err := saveAttr("family", grp, family); err != nil {
		return err
	}

	n := uint(len(tiles))
	times := make([]int64, n)
	lat, lon := make([]float64, n), make([]float64, n)
	latB, lonB := make([]float64, 0, 4*n), make([]float64, 0, 4*n)
	for i, t := range tiles {
		times[i] = t.Time.UnixNano()
		lat[i], lon[i] = t.Lat, t.Lon
		for _, c := range t.Corners {
			latB = append(latB, c[0])
			lonB = append(lonB, c[1])
		}
	}
	if err := saveDataset(grp, "time", hdf5.T_NATIVE_INT64, []uint{n}, times); err != nil {
		return err
	}
	for _, col := range []struct {
		name string
		dims []uint
		data []float64
	}{
		{"lat", []uint{n}, lat},
		{"lon", []uint{n}, lon},
		{"lat_bounds", []uint{n, 4}, latB},
		{"lon_bounds", []uint{n, 4}, lonB},
	} {
		if err := saveDataset(grp, col.name, hdf5.T_NATIVE_DOUBLE, col.dims, col.data); err != nil {
			return err
		}
	}
	for _, name := range Columns(tiles) {
		vals := make([]float64, n)
		for i, t := range tiles {
			v, ok := t.Values[name]
			if !ok {
				v = math.NaN()
			}
			vals[i] = v
		}
		if err := saveDataset(grp, name, hdf5.T_NATIVE_DOUBLE, []uint{n}, vals); err != nil {
			return err
		}
	}
	return nil
}
