package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/product"
)

const defaultBatch = 500

type pgSink struct {
	pool *pgxpool.Pool
	opts Options
}

// OpenPostgres connects to the database at dsn. Products are written in
// one transaction per input file.
func OpenPostgres(ctx context.Context, dsn string, opts Options) (Sink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nadc.Wrap(nadc.ErrSQL, nadc.Fatal, "dsn", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nadc.Wrap(nadc.ErrSQL, nadc.Fatal, "connect", err)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatch
	}
	return &pgSink{pool: pool, opts: opts}, nil
}

func (s *pgSink) Close() error {
	s.pool.Close()
	return nil
}

func (s *pgSink) WriteHeader(ctx context.Context, hdr product.Header) (Writer, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nadc.Wrap(nadc.ErrSQL, nadc.Fatal, "begin", err)
	}
	w, err := beginProduct(ctx, tx, hdr, s.opts)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// beginProduct stores hdr in tx and returns the writer of its content.
// The transaction is rolled back when the header cannot be stored.
func beginProduct(ctx context.Context, tx pgx.Tx, hdr product.Header, opts Options) (*pgWriter, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatch
	}
	w := &pgWriter{tx: tx, batch: batch, name: hdr.Name, family: hdr.Family}
	if err := w.insertMeta(ctx, hdr, opts.Replace); err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	return w, nil
}

type pgWriter struct {
	tx     pgx.Tx
	batch  int
	name   string
	family string
	pk     int64
}

func (w *pgWriter) insertMeta(ctx context.Context, hdr product.Header, replace bool) error {
	var pk int64
	err := w.tx.QueryRow(ctx, MetaSelectSQL(hdr.Family), hdr.Name).Scan(&pk)
	switch {
	case err == nil && !replace:
		return nadc.Wrap(nadc.ErrSQL, nadc.Warning, hdr.Name, ErrExists)
	case err == nil:
		if _, err := w.tx.Exec(ctx, DeleteSQL(hdr.Family), pk); err != nil {
			return nadc.Wrap(nadc.ErrSQL, nadc.Fatal, "delete", err)
		}
		log.WithField("product", hdr.Name).Infof("replacing stored product %d", pk)
	case !errors.Is(err, pgx.ErrNoRows):
		return nadc.Wrap(nadc.ErrSQL, nadc.Fatal, "select", err)
	}

	var ingest any
	if id, err := uuid.Parse(hdr.IngestID); err == nil {
		ingest = id
	}
	err = w.tx.QueryRow(ctx, MetaInsertSQL(hdr.Family),
		hdr.Name, hdr.Orbit, nullTime(hdr.Start), nullTime(hdr.Stop), nullTime(hdr.ProcTime),
		hdr.SoftVersion, ingest).Scan(&w.pk)
	if err != nil {
		return nadc.Wrap(nadc.ErrSQL, nadc.Fatal, "insert meta", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// TileArgs returns the arguments of TileInsertSQL for one tile.
func TileArgs(pk int64, t product.Tile, columns []string) []any {
	args := make([]any, 0, len(columns)+5)
	args = append(args, pk, t.Time, nullFloat(t.Lat), nullFloat(t.Lon))
	for _, c := range columns {
		v, ok := t.Values[c]
		if !ok {
			args = append(args, nil)
			continue
		}
		args = append(args, nullFloat(v))
	}
	return append(args, t.EWKT())
}

func (w *pgWriter) WriteTiles(ctx context.Context, family string, tiles []product.Tile) (int, error) {
	if len(tiles) == 0 {
		return 0, nil
	}
	columns := Columns(tiles)
	sql := TileInsertSQL(family, columns)
	rows := make([][]any, len(tiles))
	for i, t := range tiles {
		rows[i] = TileArgs(w.pk, t, columns)
	}
	return w.insert(ctx, "tile", sql, rows)
}

// ClusterArgs returns the arguments of ClusterInsertSQL for one cluster
// of rec.
func ClusterArgs(pk int64, rec calib.Record, c calib.Cluster) []any {
	ids := make([]int32, len(c.PixelIDs))
	for i, id := range c.PixelIDs {
		ids[i] = int32(id)
	}
	errs := c.Errors
	if len(errs) != len(c.Values) {
		errs = nil
	}
	return []any{
		pk, rec.MJD.Time(), int16(rec.StateID), int16(c.ClusID), int16(c.Channel),
		int16(c.Coaddf), float32(c.PET), int32(c.NumObs), ids, c.Values, errs,
	}
}

func (w *pgWriter) WriteRecords(ctx context.Context, recs []calib.Record) (int, error) {
	var rows [][]any
	for _, rec := range recs {
		for _, c := range rec.Clusters {
			if c.Empty() {
				continue
			}
			rows = append(rows, ClusterArgs(w.pk, rec, c))
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := w.insert(ctx, "cluster", ClusterInsertSQL(w.family), rows)
	if err != nil {
		return 0, err
	}
	log.WithField("product", w.name).Debugf("%d clusters of %d records inserted", n, len(recs))
	return len(recs), nil
}

// insert runs sql once per row, w.batch rows per round trip.
func (w *pgWriter) insert(ctx context.Context, what, sql string, rows [][]any) (int, error) {
	total := 0
	for i := 0; i < len(rows); i += w.batch {
		j := min(i+w.batch, len(rows))
		b := &pgx.Batch{}
		for _, args := range rows[i:j] {
			b.Queue(sql, args...)
		}
		br := w.tx.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return total, nadc.Wrap(nadc.ErrSQL, nadc.Fatal, fmt.Sprintf("%s %d", what, k), err)
			}
			total += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return total, nadc.Wrap(nadc.ErrSQL, nadc.Fatal, "batch", err)
		}
	}
	return total, nil
}

func (w *pgWriter) Commit(ctx context.Context) error {
	return nadc.Wrap(nadc.ErrSQL, nadc.Fatal, "commit", w.tx.Commit(ctx))
}

func (w *pgWriter) Abort(ctx context.Context) error {
	return w.tx.Rollback(ctx)
}

// CreateSchema creates the tables of a derived product family.
func CreateSchema(ctx context.Context, dsn, family string, columns []string) error {
	return execDDL(ctx, dsn, SchemaSQL(family, columns))
}

// CreateRecordSchema creates the tables of a Level-1c product family.
func CreateRecordSchema(ctx context.Context, dsn, family string) error {
	return execDDL(ctx, dsn, RecordSchemaSQL(family))
}

func execDDL(ctx context.Context, dsn string, ddl []string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nadc.Wrap(nadc.ErrSQL, nadc.Fatal, "connect", err)
	}
	defer conn.Close(ctx)
	for _, q := range ddl {
		if _, err := conn.Exec(ctx, q); err != nil {
			return nadc.Wrap(nadc.ErrSQL, nadc.Fatal, "schema", err)
		}
	}
	return nil
}
