package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fhs/go-netcdf/netcdf"
	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/product"
)

type ncSink struct {
	path string
	dir  bool

	mu    sync.Mutex
	owner string
}

// OpenNetCDF returns a sink writing netCDF-4 files. When path is a
// directory every product gets its own file named after the product,
// otherwise the file holds a single product.
func OpenNetCDF(path string, _ Options) (Sink, error) {
	s := &ncSink{path: path, dir: isDir(path)}
	if s.dir {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, nadc.Wrap(nadc.ErrFileWr, nadc.Fatal, path, err)
		}
	}
	return s, nil
}

func (s *ncSink) Close() error { return nil }

// FileFor returns the output file of a product.
func (s *ncSink) FileFor(name string) string {
	if !s.dir {
		return s.path
	}
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return filepath.Join(s.path, base+".nc")
}

func (s *ncSink) WriteHeader(_ context.Context, hdr product.Header) (Writer, error) {
	if !s.dir {
		s.mu.Lock()
		owner := s.owner
		if owner == "" {
			s.owner = hdr.Name
		}
		s.mu.Unlock()
		if owner != "" && owner != hdr.Name {
			return nil, nadc.Fatalf(nadc.ErrParam, s.path,
				"netCDF file already holds %s, write %s to a directory instead", owner, hdr.Name)
		}
	}
	return &ncWriter{path: s.FileFor(hdr.Name), hdr: hdr}, nil
}

type ncWriter struct {
	path   string
	hdr    product.Header
	recs   []calib.Record
	tiles  []product.Tile
	family string
}

func (w *ncWriter) WriteRecords(_ context.Context, recs []calib.Record) (int, error) {
	w.recs = append(w.recs, recs...)
	return len(recs), nil
}

func (w *ncWriter) WriteTiles(_ context.Context, family string, tiles []product.Tile) (int, error) {
	w.family = family
	w.tiles = append(w.tiles, tiles...)
	return len(tiles), nil
}

func (w *ncWriter) Abort(context.Context) error {
	w.recs, w.tiles = nil, nil
	return nil
}

// ncVar is a variable waiting for EndDef.
type ncVar struct {
	v     netcdf.Var
	f64   []float64
	i32   []int32
	i64   []int64
	isInt bool
}

type ncBuilder struct {
	ds   netcdf.Dataset
	vars []ncVar
	err  error
}

func (b *ncBuilder) dim(name string, n int) netcdf.Dim {
	if b.err != nil {
		return netcdf.Dim{}
	}
	d, err := b.ds.AddDim(name, uint64(n))
	b.err = err
	return d
}

func (b *ncBuilder) add(name string, typ netcdf.Type, dims []netcdf.Dim, nv ncVar) {
	if b.err != nil {
		return
	}
	v, err := b.ds.AddVar(name, typ, dims)
	if err != nil {
		b.err = fmt.Errorf("error adding variable %s: %v", name, err)
		return
	}
	nv.v = v
	b.vars = append(b.vars, nv)
}

func (b *ncBuilder) f64(name string, dims []netcdf.Dim, data []float64) {
	b.add(name, netcdf.DOUBLE, dims, ncVar{f64: data})
}

func (b *ncBuilder) i32(name string, dims []netcdf.Dim, data []int32) {
	b.add(name, netcdf.INT, dims, ncVar{i32: data, isInt: true})
}

func (b *ncBuilder) i64(name string, dims []netcdf.Dim, data []int64) {
	b.add(name, netcdf.INT64, dims, ncVar{i64: data})
}

func (b *ncBuilder) text(name, value string) {
	if b.err != nil || value == "" {
		return
	}
	b.err = b.ds.Attr(name).WriteBytes([]byte(value))
}

func (b *ncBuilder) flush() error {
	if b.err != nil {
		return b.err
	}
	if err := b.ds.EndDef(); err != nil {
		return err
	}
	for _, nv := range b.vars {
		var err error
		switch {
		case nv.isInt:
			err = nv.v.WriteInt32s(nv.i32)
		case nv.i64 != nil:
			err = nv.v.WriteInt64s(nv.i64)
		default:
			err = nv.v.WriteFloat64s(nv.f64)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *ncWriter) Commit(context.Context) error {
	nadc.HDF5.Lock()
	defer nadc.HDF5.Unlock()

	ds, err := netcdf.CreateFile(w.path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return nadc.Wrap(nadc.ErrNetCDF, nadc.Fatal, w.path, err)
	}
	b := &ncBuilder{ds: ds}
	b.text("product", w.hdr.Name)
	b.text("family", w.hdr.Family)
	b.text("software_version", w.hdr.SoftVersion)
	b.text("ingest_id", w.hdr.IngestID)
	if !w.hdr.Start.IsZero() {
		b.text("time_coverage_start", w.hdr.Start.UTC().Format(timeLayout))
		b.text("time_coverage_end", w.hdr.Stop.UTC().Format(timeLayout))
	}
	if b.err == nil {
		b.err = ds.Attr("orbit").WriteInt32s([]int32{int32(w.hdr.Orbit)})
	}

	if len(w.recs) > 0 {
		f := Flatten(w.recs)
		rec := []netcdf.Dim{b.dim("record", len(f.MJD))}
		pix := []netcdf.Dim{b.dim("pixel", len(f.PixelIDs))}
		val := []netcdf.Dim{b.dim("pixel_val", len(f.Values))}
		b.f64("mjd", rec, f.MJD)
		b.i32("state_id", rec, f.StateID)
		b.i32("clus_id", rec, f.ClusID)
		b.i32("channel", rec, f.Channel)
		b.i32("coaddf", rec, f.Coaddf)
		b.f64("pet", rec, f.PET)
		b.i32("num_obs", rec, f.NumObs)
		b.i32("num_pixels", rec, f.NumPixels)
		b.i32("pixel_offset", rec, f.PixOffset)
		b.i32("offset", rec, f.ValOffset)
		b.i32("pixel_ids", pix, f.PixelIDs)
		b.f64("pixel_val", val, f.Values)
		b.f64("pixel_err", val, f.Errors)
	}
	if len(w.tiles) > 0 {
		n := len(w.tiles)
		tile := b.dim("tile", n)
		corner := b.dim("corner", 4)
		times := make([]int64, n)
		lat, lon := make([]float64, n), make([]float64, n)
		latB, lonB := make([]float64, 0, 4*n), make([]float64, 0, 4*n)
		for i, t := range w.tiles {
			times[i] = t.Time.UnixNano()
			lat[i], lon[i] = t.Lat, t.Lon
			for _, c := range t.Corners {
				latB = append(latB, c[0])
				lonB = append(lonB, c[1])
			}
		}
		b.i64("time", []netcdf.Dim{tile}, times)
		b.f64("lat", []netcdf.Dim{tile}, lat)
		b.f64("lon", []netcdf.Dim{tile}, lon)
		b.f64("lat_bounds", []netcdf.Dim{tile, corner}, latB)
		b.f64("lon_bounds", []netcdf.Dim{tile, corner}, lonB)
		for _, name := range Columns(w.tiles) {
			vals := make([]float64, n)
			for i, t := range w.tiles {
				v, ok := t.Values[name]
				if !ok {
					v = math.NaN()
				}
				vals[i] = v
			}
			b.f64(name, []netcdf.Dim{tile}, vals)
		}
		b.text("tile_family", w.family)
	}

	err = b.flush()
	if cerr := ds.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nadc.Wrap(nadc.ErrNetCDF, nadc.Fatal, w.path, err)
	}
	log.WithField("file", w.path).Debugf("%s: %d records, %d tiles", w.hdr.Name, len(w.recs), len(w.tiles))
	return nil
}
