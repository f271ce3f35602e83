package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/product"
)

type tdbSink struct {
	uri string
	ctx *tiledb.Context
	mu  sync.Mutex
}

// OpenTileDB opens the sparse pixel array at uri and creates it when it
// does not exist.
func OpenTileDB(uri string, opts Options) (Sink, error) {
	config, err := tiledb.NewConfig()
	if err != nil {
		return nil, nadc.Wrap(nadc.ErrTileDB, nadc.Fatal, uri, err)
	}
	defer config.Free()
	if opts.Region != "" {
		if err := config.Set("vfs.s3.region", opts.Region); err != nil {
			return nil, nadc.Wrap(nadc.ErrTileDB, nadc.Fatal, uri, err)
		}
	}
	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return nil, nadc.Wrap(nadc.ErrTileDB, nadc.Fatal, uri, fmt.Errorf("error creating TileDB context with config: %v", err))
	}
	if !ArrayExists(ctx, uri) {
		if err := createPixelArray(ctx, uri); err != nil {
			ctx.Free()
			return nil, nadc.Wrap(nadc.ErrTileDB, nadc.Fatal, uri, err)
		}
		log.Infof("created TileDB array %s", uri)
	}
	return &tdbSink{uri: uri, ctx: ctx}, nil
}

// ArrayExists reports whether a TileDB array schema can be loaded from uri.
func ArrayExists(ctx *tiledb.Context, uri string) bool {
	schema, err := tiledb.LoadArraySchema(ctx, uri)
	if err != nil {
		log.Debugf("no TileDB array schema at %s: %v", uri, err)
		return false
	}
	schema.Free()
	return true
}

func createPixelArray(ctx *tiledb.Context, uri string) error {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return err
	}
	defer domain.Free()
	timeDim, err := tiledb.NewDimension(ctx, "time", tiledb.TILEDB_INT64,
		[]int64{math.MinInt64 / 2, math.MaxInt64 / 2}, int64(3600e9))
	if err != nil {
		return fmt.Errorf("error creating time dimension: %v", err)
	}
	defer timeDim.Free()
	pixelDim, err := tiledb.NewDimension(ctx, "pixel", tiledb.TILEDB_INT32,
		[]int32{0, calib.NumPixels - 1}, int32(calib.ChannelSize))
	if err != nil {
		return fmt.Errorf("error creating pixel dimension: %v", err)
	}
	defer pixelDim.Free()
	if err := domain.AddDimensions(timeDim, pixelDim); err != nil {
		return err
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_SPARSE)
	if err != nil {
		return err
	}
	defer schema.Free()
	if err := schema.SetDomain(domain); err != nil {
		return err
	}
	if err := schema.SetAllowsDups(true); err != nil {
		return err
	}
	for _, a := range []struct {
		name string
		typ  tiledb.Datatype
	}{
		{"signal", tiledb.TILEDB_FLOAT64},
		{"error", tiledb.TILEDB_FLOAT64},
		{"state_id", tiledb.TILEDB_UINT8},
		{"clus_id", tiledb.TILEDB_UINT8},
		{"channel", tiledb.TILEDB_UINT8},
	} {
		attr, err := tiledb.NewAttribute(ctx, a.name, a.typ)
		if err != nil {
			return fmt.Errorf("error creating attribute %s: %v", a.name, err)
		}
		err = schema.AddAttributes(attr)
		attr.Free()
		if err != nil {
			return err
		}
	}
	if err := schema.Check(); err != nil {
		return fmt.Errorf("invalid TileDB schema: %v", err)
	}

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return fmt.Errorf("error creating TileDB array: %v", err)
	}
	defer array.Free()
	return array.Create(schema)
}

func (s *tdbSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		s.ctx.Free()
		s.ctx = nil
	}
	return nil
}

func (s *tdbSink) WriteHeader(_ context.Context, hdr product.Header) (Writer, error) {
	return &tdbWriter{sink: s, name: hdr.Name}, nil
}

// Cells holds the column buffers of one unordered TileDB write.
type Cells struct {
	Time    []int64
	Pixel   []int32
	Signal  []float64
	Error   []float64
	StateID []uint8
	ClusID  []uint8
	Channel []uint8
}

// Append adds every pixel value of recs. Observation j of a cluster is
// stamped j exposure times after the record time.
func (c *Cells) Append(recs []calib.Record) {
	for _, r := range recs {
		t0 := r.MJD.Time().UnixNano()
		for _, cl := range r.Clusters {
			if cl.Empty() {
				continue
			}
			np := cl.NumPixels()
			step := int64(cl.PET * 1e9)
			for j := 0; j < cl.NumObs; j++ {
				t := t0 + int64(j)*step
				for i, id := range cl.PixelIDs {
					c.Time = append(c.Time, t)
					c.Pixel = append(c.Pixel, int32(id))
					c.Signal = append(c.Signal, cl.Values[j*np+i])
					e := math.NaN()
					if cl.Errors != nil {
						e = cl.Errors[j*np+i]
					}
					c.Error = append(c.Error, e)
					c.StateID = append(c.StateID, r.StateID)
					c.ClusID = append(c.ClusID, cl.ClusID)
					c.Channel = append(c.Channel, cl.Channel)
				}
			}
		}
	}
}

type tdbWriter struct {
	sink  *tdbSink
	name  string
	cells Cells
}

func (w *tdbWriter) WriteRecords(_ context.Context, recs []calib.Record) (int, error) {
	w.cells.Append(recs)
	return len(recs), nil
}

func (w *tdbWriter) WriteTiles(context.Context, string, []product.Tile) (int, error) {
	return 0, nadc.Wrap(nadc.ErrTileDB, nadc.Fatal, "tiles", ErrUnsupported)
}

func (w *tdbWriter) Abort(context.Context) error {
	w.cells = Cells{}
	return nil
}

func (w *tdbWriter) Commit(context.Context) error {
	if len(w.cells.Time) == 0 {
		return nil
	}
	if err := w.sink.write(&w.cells); err != nil {
		return nadc.Wrap(nadc.ErrTileDB, nadc.Fatal, w.name, err)
	}
	log.WithField("array", w.sink.uri).Debugf("%s: %d cells", w.name, len(w.cells.Time))
	return nil
}

func (s *tdbSink) write(c *Cells) error {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return fmt.Errorf("array is closed")
	}

	array, err := tiledb.NewArray(ctx, s.uri)
	if err != nil {
		return fmt.Errorf("error creating TileDB array: %v", err)
	}
	defer array.Free()
	if err := array.Open(tiledb.TILEDB_WRITE); err != nil {
		return fmt.Errorf("error opening TileDB array for writing: %v", err)
	}
	defer array.Close()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return fmt.Errorf("error creating TileDB query: %v", err)
	}
	defer query.Free()
	if err := query.SetLayout(tiledb.TILEDB_UNORDERED); err != nil {
		return err
	}

	buffers := []struct {
		name string
		data any
	}{
		{"time", c.Time},
		{"pixel", c.Pixel},
		{"signal", c.Signal},
		{"error", c.Error},
		{"state_id", c.StateID},
		{"clus_id", c.ClusID},
		{"channel", c.Channel},
	}
	for _, b := range buffers {
		if _, err := query.SetDataBuffer(b.name, b.data); err != nil {
			return fmt.Errorf("error setting buffer %s: %v", b.name, err)
		}
	}
	if err := query.Submit(); err != nil {
		return err
	}
	return query.Finalize()
}
