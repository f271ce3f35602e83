package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/product"
)

type scanRow struct {
	pk  int64
	err error
}

func (r scanRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.pk
	return nil
}

type batchResults struct {
	pgx.BatchResults
	left int
}

func (b *batchResults) Exec() (pgconn.CommandTag, error) {
	b.left--
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (b *batchResults) Close() error { return nil }

// recordingTx answers the queries of a pgWriter and records what it sent.
type recordingTx struct {
	pgx.Tx
	stored     int64 // pk of the stored product, 0 when absent
	execs      []string
	inserted   int
	queued     []*pgx.QueuedQuery
	rolledBack bool
}

func (tx *recordingTx) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	if strings.HasPrefix(sql, "SELECT") {
		if tx.stored == 0 {
			return scanRow{err: pgx.ErrNoRows}
		}
		return scanRow{pk: tx.stored}
	}
	tx.inserted++
	return scanRow{pk: 42}
}

func (tx *recordingTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, sql)
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (tx *recordingTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	tx.queued = append(tx.queued, b.QueuedQueries...)
	return &batchResults{left: b.Len()}
}

func (tx *recordingTx) Rollback(context.Context) error {
	tx.rolledBack = true
	return nil
}

var l1cHeader = product.Header{
	Name:     "SCI_NLC_1PNPDK20040312_101112_000060002025_00123_10725_0000.N1",
	Family:   "SCI_NLC_1P",
	Orbit:    10725,
	Start:    time.Date(2004, 3, 12, 10, 11, 12, 0, time.UTC),
	IngestID: "not-a-uuid",
}

func TestBeginProductSkipsStored(t *testing.T) {
	tx := &recordingTx{stored: 7}
	_, err := beginProduct(context.Background(), tx, l1cHeader, Options{})
	require.ErrorIs(t, err, ErrExists)
	assert.False(t, nadc.IsFatal(err))
	assert.True(t, tx.rolledBack)
	assert.Empty(t, tx.execs)
	assert.Zero(t, tx.inserted)
}

func TestBeginProductReplaces(t *testing.T) {
	tx := &recordingTx{stored: 7}
	w, err := beginProduct(context.Background(), tx, l1cHeader, Options{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"DELETE FROM meta__sci_nlc_1p WHERE pk_meta=$1"}, tx.execs)
	assert.Equal(t, 1, tx.inserted)
	assert.Equal(t, int64(42), w.pk)
	assert.Equal(t, defaultBatch, w.batch)
}

func TestBeginProductNew(t *testing.T) {
	tx := &recordingTx{}
	w, err := beginProduct(context.Background(), tx, l1cHeader, Options{BatchSize: 2})
	require.NoError(t, err)
	assert.Empty(t, tx.execs)
	assert.Equal(t, 1, tx.inserted)
	assert.Equal(t, 2, w.batch)
}

func TestPostgresWriteRecords(t *testing.T) {
	tx := &recordingTx{}
	w, err := beginProduct(context.Background(), tx, l1cHeader, Options{BatchSize: 1})
	require.NoError(t, err)

	recs := testRecords()
	n, err := w.WriteRecords(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, len(recs), n)

	require.Len(t, tx.queued, 4, "one row per non-empty cluster")
	q := tx.queued[0]
	assert.Equal(t, ClusterInsertSQL("SCI_NLC_1P"), q.SQL)
	require.Len(t, q.Arguments, 11)
	assert.Equal(t, int64(42), q.Arguments[0])
	assert.Equal(t, int16(8), q.Arguments[2])
	assert.Equal(t, []int32{0, 1}, q.Arguments[8])
	assert.Equal(t, []float64{1, 2, 3, 4}, q.Arguments[9])
}
