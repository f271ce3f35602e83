package adaguc

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fhs/go-netcdf/netcdf"
	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/product"
)

var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

func attrText(a netcdf.Attr) (string, error) {
	n, err := a.Len()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return "", err
	}
	return strings.TrimRight(string(buf), "\x00 "), nil
}

func attrInt(a netcdf.Attr) (int, error) {
	typ, err := a.Type()
	if err != nil {
		return 0, err
	}
	if typ == netcdf.CHAR {
		s, err := attrText(a)
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(strings.TrimSpace(s))
	}
	v := make([]int32, 1)
	if err := a.ReadInt32s(v); err != nil {
		return 0, err
	}
	return int(v[0]), nil
}

// fillValue returns the _FillValue of v, if any.
func fillValue(v netcdf.Var, typ netcdf.Type) (float64, bool) {
	a := v.Attr("_FillValue")
	if n, err := a.Len(); err != nil || n == 0 {
		return 0, false
	}
	switch typ {
	case netcdf.FLOAT:
		f := make([]float32, 1)
		if a.ReadFloat32s(f) == nil {
			return float64(f[0]), true
		}
	case netcdf.DOUBLE:
		f := make([]float64, 1)
		if a.ReadFloat64s(f) == nil {
			return f[0], true
		}
	}
	return 0, false
}

// readVar reads a float or double variable as float64, fill values
// replaced by NaN.
func readVar(ds netcdf.Dataset, name string) ([]float64, error) {
	v, err := ds.Var(name)
	if err != nil {
		return nil, err
	}
	n, err := v.Len()
	if err != nil {
		return nil, err
	}
	typ, err := v.Type()
	if err != nil {
		return nil, err
	}
	var out []float64
	switch typ {
	case netcdf.FLOAT:
		buf := make([]float32, n)
		if err := v.ReadFloat32s(buf); err != nil {
			return nil, err
		}
		out = make([]float64, n)
		for i, x := range buf {
			out[i] = float64(x)
		}
	case netcdf.DOUBLE:
		out = make([]float64, n)
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("variable %s has type %v", name, typ)
	}
	fill, ok := fillValue(v, typ)
	ReplaceFill(out, fill, ok)
	return out, nil
}

// ReplaceFill sets every value equal to fill to NaN.
func ReplaceFill(vals []float64, fill float64, ok bool) {
	if !ok {
		return
	}
	for i, v := range vals {
		if v == fill || (math.IsNaN(fill) && math.IsNaN(v)) {
			vals[i] = math.NaN()
		}
	}
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Columns holds the variables of one file.
type Columns struct {
	Time, Lat, Lon       []float64
	LatBounds, LonBounds []float64
	Data                 map[string][]float64
}

// Tiles assembles the ground pixels. Bounds are pixel major with four
// corners each.
func (c *Columns) Tiles() ([]product.Tile, error) {
	n := len(c.Lat)
	if len(c.Lon) != n || len(c.Time) != n {
		return nil, fmt.Errorf("lat, lon and time differ in length: %d, %d, %d", n, len(c.Lon), len(c.Time))
	}
	if len(c.LatBounds) != 4*n || len(c.LonBounds) != 4*n {
		return nil, fmt.Errorf("bounds must hold 4 corners for %d pixels", n)
	}
	for name, col := range c.Data {
		if len(col) != n {
			return nil, fmt.Errorf("%s has %d values for %d pixels", name, len(col), n)
		}
	}
	tiles := make([]product.Tile, n)
	for i := range tiles {
		t := &tiles[i]
		t.Time = epoch.Add(time.Duration(c.Time[i] * float64(time.Second)))
		t.Lat, t.Lon = c.Lat[i], c.Lon[i]
		for k := 0; k < 4; k++ {
			t.Corners[k] = [2]float64{c.LatBounds[4*i+k], c.LonBounds[4*i+k]}
		}
		t.Values = make(map[string]float64, len(c.Data))
		for name, col := range c.Data {
			t.Values[name] = col[i]
		}
	}
	return tiles, nil
}

// Read returns the header and ground pixels of the ADAGUC file at path.
// family overrides the product attribute when not empty.
func Read(path, family string) (product.Header, []product.Tile, error) {
	var hdr product.Header
	nadc.HDF5.Lock()
	defer nadc.HDF5.Unlock()

	ds, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return hdr, nil, nadc.Wrap(nadc.ErrNetCDF, nadc.Fatal, path, err)
	}
	defer ds.Close()

	if family == "" {
		if family, err = attrText(ds.Attr("product")); err != nil {
			return hdr, nil, nadc.Wrap(nadc.ErrNetCDF, nadc.Fatal, path, fmt.Errorf("error reading product attribute: %v", err))
		}
	}
	fam, ok := Lookup(family)
	if !ok {
		return hdr, nil, nadc.Fatalf(nadc.ErrParam, path, "unknown product family %q", family)
	}

	hdr.Name = filepath.Base(path)
	hdr.Family = fam.Name
	if hdr.Orbit, err = attrInt(ds.Attr("orbit")); err != nil {
		log.WithField("file", path).Warnf("no orbit attribute: %v", err)
	}
	hdr.SoftVersion, _ = attrText(ds.Attr("software_version"))
	for _, tc := range []struct {
		name string
		dst  *time.Time
	}{{"time_coverage_start", &hdr.Start}, {"time_coverage_end", &hdr.Stop}} {
		s, err := attrText(ds.Attr(tc.name))
		if err != nil {
			continue
		}
		if *tc.dst, err = time.Parse(time.RFC3339, s); err != nil {
			log.WithField("file", path).Warnf("invalid %s %q", tc.name, s)
		}
	}

	cols := Columns{Data: make(map[string][]float64)}
	for _, rv := range []struct {
		name string
		dst  *[]float64
	}{
		{"time", &cols.Time}, {"lat", &cols.Lat}, {"lon", &cols.Lon},
		{"lat_bounds", &cols.LatBounds}, {"lon_bounds", &cols.LonBounds},
	} {
		if *rv.dst, err = readVar(ds, rv.name); err != nil {
			return hdr, nil, nadc.Wrap(nadc.ErrNetCDF, nadc.Fatal, path, fmt.Errorf("error reading %s: %v", rv.name, err))
		}
	}
	for i, name := range fam.Columns {
		col, err := readVar(ds, name)
		switch {
		case err == nil:
			cols.Data[name] = col
		case i == 0:
			return hdr, nil, nadc.Wrap(nadc.ErrNetCDF, nadc.Fatal, path, fmt.Errorf("error reading %s: %v", name, err))
		default:
			log.WithField("file", path).Debugf("%s absent, filled with NaN", name)
			cols.Data[name] = nans(len(cols.Lat))
		}
	}

	tiles, err := cols.Tiles()
	if err != nil {
		return hdr, nil, nadc.Wrap(nadc.ErrNetCDF, nadc.Fatal, path, err)
	}
	log.WithField("file", path).Debugf("%s orbit %d: %d tiles", hdr.Family, hdr.Orbit, len(tiles))
	return hdr, tiles, nil
}
