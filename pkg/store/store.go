// Package store writes calibrated records and derived-product tiles to
// PostgreSQL, HDF5, netCDF or TileDB.
package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/product"
)

var (
	// ErrExists is returned by WriteHeader when the product is already
	// stored and replacing is off.
	ErrExists = errors.New("product already stored")
	// ErrUnsupported is returned when a backend cannot hold a kind of data.
	ErrUnsupported = errors.New("not supported by this store")
)

// HeaderWriter starts the output of one input file.
type HeaderWriter interface {
	WriteHeader(ctx context.Context, hdr product.Header) (Writer, error)
}

type TileWriter interface {
	WriteTiles(ctx context.Context, family string, tiles []product.Tile) (int, error)
}

type RecordWriter interface {
	WriteRecords(ctx context.Context, recs []calib.Record) (int, error)
}

// Writer receives the content of one input file. Nothing is visible in
// the store before Commit.
type Writer interface {
	TileWriter
	RecordWriter
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// Sink is an output store shared by the workers of a run.
type Sink interface {
	HeaderWriter
	Close() error
}

// Options tune the backends.
type Options struct {
	// Replace deletes a stored product before writing it again.
	Replace bool
	// BatchSize is the number of rows per database round trip.
	BatchSize int
	// Region is the S3 region of remote TileDB arrays.
	Region string
}

// Open returns the sink for uri: postgres:// URLs, tiledb:// and s3://
// arrays (or local *.tdb directories), *.h5 files, and *.nc files or
// directories that receive one netCDF file per product.
func Open(ctx context.Context, uri string, opts Options) (Sink, error) {
	lower := strings.ToLower(uri)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return OpenPostgres(ctx, uri, opts)
	case strings.HasPrefix(lower, "tiledb://"), strings.HasPrefix(lower, "s3://"), strings.HasSuffix(lower, ".tdb"):
		return OpenTileDB(uri, opts)
	case strings.HasSuffix(lower, ".h5"), strings.HasSuffix(lower, ".hdf5"):
		return OpenHDF5(uri, opts)
	case strings.HasSuffix(lower, ".nc"), isDir(uri):
		return OpenNetCDF(uri, opts)
	}
	return nil, nadc.Fatalf(nadc.ErrParam, "store", "no backend for %q", uri)
}

func isDir(path string) bool {
	if strings.HasSuffix(path, string(filepath.Separator)) {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Columns returns the sorted value names of tiles.
func Columns(tiles []product.Tile) []string {
	seen := map[string]bool{}
	var names []string
	for _, t := range tiles {
		for k := range t.Values {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}
