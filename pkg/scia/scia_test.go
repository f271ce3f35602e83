package scia

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/pds"
	"github.com/sron-nadc/nadc_tools/pkg/pds/pdstest"
)

func testState(secs uint32, id uint16) State {
	s := State{
		MJD:        pds.MJD{Days: 1500, Secs: secs},
		FlagMDS:    0,
		OrbitPhase: 0.25,
		Category:   1,
		StateID:    id,
		NumClus:    2,
		NumDSR:     3,
		LengthDSR:  1234,
	}
	s.Clcon[0] = Clcon{ID: 1, Channel: 1, PixelNr: 0, Length: 2, PET: 0.5, Coaddf: 2}
	s.Clcon[1] = Clcon{ID: 2, Channel: 6, PixelNr: 5120, Length: 1, PET: 0.25, Coaddf: 1}
	s.IntgTimes[0] = 16
	return s
}

func encodeStates(t *testing.T, states ...State) []byte {
	var buf bytes.Buffer
	for i := range states {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, &states[i]))
	}
	return buf.Bytes()
}

func encodeMDS(t *testing.T, m MDSRecord, spare int) []byte {
	m.NumPixels = uint16(len(m.PixelIDs))
	m.NumObs = uint16(len(m.PixelVal) / len(m.PixelIDs))
	m.RecLength = uint32(MDSHeaderSize + m.bodySize() + spare)

	var buf bytes.Buffer
	for _, v := range []any{
		m.MJD, m.RecLength, m.Quality, m.OrbitPhase, m.Category, m.StateID, m.ClusID,
		m.NumObs, m.NumPixels, m.UnitFlag,
		m.PixelIDs, m.PixelWv, m.PixelWvErr, m.PixelVal, m.PixelErr,
	} {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, v))
	}
	buf.Write(make([]byte, spare))
	return buf.Bytes()
}

func testMDS(secs uint32, state, clus uint8, ids []uint16, vals ...float32) MDSRecord {
	errs := make([]float32, len(vals))
	for i := range errs {
		errs[i] = 1
	}
	return MDSRecord{
		MJD:        pds.MJD{Days: 1500, Secs: secs},
		Quality:    1,
		OrbitPhase: 0.3,
		Category:   1,
		StateID:    state,
		ClusID:     clus,
		PixelIDs:   ids,
		PixelWv:    make([]float32, len(ids)),
		PixelWvErr: make([]float32, len(ids)),
		PixelVal:   vals,
		PixelErr:   errs,
	}
}

func testPPGEtalon() *PPGEtalon {
	g := &PPGEtalon{
		PPG:         make([]float32, calib.NumPixels),
		Etalon:      make([]float32, calib.NumPixels),
		EtalonResid: make([]float32, calib.NumPixels),
		WLSDeg:      make([]float32, calib.NumPixels),
		BDPM:        make([]uint8, calib.NumPixels),
	}
	for i := range g.PPG {
		g.PPG[i] = 1
		g.Etalon[i] = 1.5
		g.EtalonResid[i] = float32(i)
	}
	g.BDPM[7] = 1
	return g
}

func TestDecodeStates(t *testing.T) {
	want := []State{testState(100, 8), testState(200, 27)}
	buf := encodeStates(t, want...)
	require.Len(t, buf, 2*StateSize)

	got, err := DecodeStates(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	c, ok := got[0].Cluster(2)
	assert.True(t, ok)
	assert.Equal(t, uint8(6), c.Channel)
	_, ok = got[0].Cluster(3)
	assert.False(t, ok)

	_, err = DecodeStates(buf[:StateSize], 2)
	assert.Equal(t, nadc.ErrPDSRd, nadc.CodeOf(err))
}

func TestDecodeMDS1C(t *testing.T) {
	a := testMDS(100, 8, 1, []uint16{0, 1}, 10, 20, 30, 40)
	b := testMDS(100, 8, 2, []uint16{5120}, 7)
	buf := append(encodeMDS(t, a, 3), encodeMDS(t, b, 0)...)

	recs, err := DecodeMDS1C("NADIR", buf, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint16(2), recs[0].NumObs)
	assert.Equal(t, []float32{10, 20, 30, 40}, recs[0].PixelVal)
	assert.Equal(t, []uint16{5120}, recs[1].PixelIDs)
	assert.Equal(t, uint8(2), recs[1].ClusID)

	_, err = DecodeMDS1C("NADIR", buf[:len(buf)-1], 2)
	require.Error(t, err)
	assert.True(t, nadc.IsFatal(err))
	assert.Equal(t, nadc.ErrPDSRd, nadc.CodeOf(err))
}

func TestDecodeInvalidRecordCounts(t *testing.T) {
	states := encodeStates(t, testState(100, 8))
	for _, n := range []int{-1, 1 << 40} {
		_, err := DecodeStates(states, n)
		require.Error(t, err, n)
		assert.Equal(t, nadc.ErrPDSRd, nadc.CodeOf(err), n)
	}

	mds := encodeMDS(t, testMDS(100, 8, 1, []uint16{0, 1}, 10, 20), 0)
	for _, n := range []int{-3, 1 << 40} {
		_, err := DecodeMDS1C("NADIR", mds, n)
		require.Error(t, err, n)
		assert.Equal(t, nadc.ErrPDSRd, nadc.CodeOf(err), n)
	}
}

func TestDecodeMDSBodyOverrun(t *testing.T) {
	rec := MDSRecord{NumObs: 2, NumPixels: 2}
	assert.Error(t, decodeMDSBody(make([]byte, 10), &rec))

	rec = MDSRecord{NumObs: 1, NumPixels: 1}
	assert.NoError(t, decodeMDSBody(make([]byte, rec.bodySize()), &rec))
}

func TestPPGEtalonRoundTrip(t *testing.T) {
	g := testPPGEtalon()
	buf, err := EncodePPGEtalon(g)
	require.NoError(t, err)
	require.Len(t, buf, 139264)

	got, err := DecodePPGEtalon(buf)
	require.NoError(t, err)
	assert.Equal(t, g, got)

	_, err = DecodePPGEtalon(buf[1:])
	assert.Equal(t, nadc.ErrPDSSize, nadc.CodeOf(err))

	var tabs calib.Tables
	got.Fill(&tabs)
	assert.Equal(t, 1.5, tabs.Etalon[0])
	assert.True(t, tabs.BadPixel[7])
	assert.False(t, tabs.BadPixel[8])
}

func TestMergeStatesAndRecords(t *testing.T) {
	states := []State{testState(200, 27), testState(100, 8)}
	mds := []MDSRecord{
		testMDS(101, 8, 2, []uint16{5120}, 7),
		testMDS(101, 8, 1, []uint16{0, 1}, 1, 2),
		testMDS(50, 8, 1, []uint16{0}, 1),    // before the first state
		testMDS(201, 8, 1, []uint16{0}, 1),   // state 27 is active
		testMDS(202, 27, 9, []uint16{0}, 1),  // no cluster 9
		testMDS(203, 27, 1, []uint16{0}, 42), // ok
	}
	recs, dropped := MergeStatesAndRecords(states, mds)
	assert.Equal(t, 3, dropped)
	require.Len(t, recs, 2)

	assert.Equal(t, uint8(8), recs[0].StateID)
	require.Len(t, recs[0].Clusters, 2)
	c := recs[0].Clusters[0]
	assert.Equal(t, uint8(6), c.Channel)
	assert.Equal(t, 0.25, c.PET)
	assert.Equal(t, []float64{7}, c.Values)
	assert.Equal(t, 2, recs[0].Clusters[1].Coaddf)

	assert.Equal(t, uint8(27), recs[1].StateID)
	assert.Equal(t, []float64{42}, recs[1].Clusters[0].Values)
}

func TestStateTiming(t *testing.T) {
	avg, min := StateTiming([]State{testState(100, 1), testState(101, 1), testState(104, 1)})
	assert.InDelta(t, 2.0, avg, 1e-9)
	assert.InDelta(t, 1.0, min, 1e-9)
}

func writeL1c(t *testing.T) string {
	states := encodeStates(t, testState(100, 8))
	nadir := append(encodeMDS(t, testMDS(100, 8, 1, []uint16{0, 1}, 10, 20), 0),
		encodeMDS(t, testMDS(100, 8, 2, []uint16{5120}, 7), 0)...)
	gads, err := EncodePPGEtalon(testPPGEtalon())
	require.NoError(t, err)

	start := time.Date(2004, 3, 12, 10, 0, 0, 0, time.UTC)
	return pdstest.WriteFile(t, pdstest.Options{
		Product: "SCI_NLC1P_TEST_20040312_100000_000060002025_00123_10634_0000.N1",
		Orbit:   10634,
		Start:   start,
		Stop:    start.Add(time.Hour),
	}, []pdstest.DataSet{
		{Name: "STATES", Type: "A", NumDSR: 1, DSRSize: StateSize, Data: states},
		{Name: PPGEtalonName, Type: "G", NumDSR: 1, DSRSize: PPGEtalonSize, Data: gads},
		{Name: "NADIR", Type: "M", NumDSR: 2, DSRSize: -1, Data: nadir},
		{Name: "LIMB", Type: "M"},
	})
}

func TestReadL1c(t *testing.T) {
	path := writeL1c(t)
	p, err := pds.Open(path, nil)
	require.NoError(t, err)
	defer p.Close()

	var warn nadc.Stack
	l1c, err := ReadL1c(p, nil, &warn)
	require.NoError(t, err)
	assert.Equal(t, 10634, l1c.Header.Orbit)
	require.Len(t, l1c.States, 1)
	require.NotNil(t, l1c.PPGEtalon)
	require.Len(t, l1c.Records, 1)
	assert.Len(t, l1c.Records[0].Clusters, 2)

	// LIMB is empty, OCCULTATION and MONITORING are absent
	assert.Equal(t, 3, warn.Len())
}

func TestPatchPPGEtalon(t *testing.T) {
	path := writeL1c(t)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ppg := make([]float32, calib.NumPixels)
	for i := range ppg {
		ppg[i] = 0.9
	}
	require.NoError(t, PatchPPGEtalon(path, ppg, nil))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))

	p, err := pds.Open(path, nil)
	require.NoError(t, err)
	defer p.Close()
	_, buf, err := p.ReadDS(PPGEtalonName)
	require.NoError(t, err)
	g, err := DecodePPGEtalon(buf)
	require.NoError(t, err)
	assert.Equal(t, float32(0.9), g.PPG[100])
	assert.Equal(t, float32(1.5), g.Etalon[100])
	assert.Equal(t, float32(100), g.EtalonResid[100])
	assert.Equal(t, uint8(1), g.BDPM[7])

	assert.Error(t, PatchPPGEtalon(path, ppg[:10], nil))
}
