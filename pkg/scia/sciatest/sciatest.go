// Package sciatest builds small Level-1c products for tests.
package sciatest

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/pds"
	"github.com/sron-nadc/nadc_tools/pkg/pds/pdstest"
	"github.com/sron-nadc/nadc_tools/pkg/scia"
)

// EncodeStates returns the STATES data set holding states.
func EncodeStates(states ...scia.State) []byte {
	var buf bytes.Buffer
	for i := range states {
		binary.Write(&buf, binary.BigEndian, &states[i])
	}
	return buf.Bytes()
}

// EncodeMDS returns one MDS_1C record. NumObs, NumPixels and RecLength
// are derived from the arrays.
func EncodeMDS(m scia.MDSRecord) []byte {
	np := len(m.PixelIDs)
	m.NumPixels = uint16(np)
	m.NumObs = uint16(len(m.PixelVal) / np)
	m.RecLength = uint32(scia.MDSHeaderSize + np*10 + 8*len(m.PixelVal))

	var buf bytes.Buffer
	for _, v := range []any{
		m.MJD, m.RecLength, m.Quality, m.OrbitPhase, m.Category, m.StateID, m.ClusID,
		m.NumObs, m.NumPixels, m.UnitFlag,
		m.PixelIDs, m.PixelWv, m.PixelWvErr, m.PixelVal, m.PixelErr,
	} {
		binary.Write(&buf, binary.BigEndian, v)
	}
	return buf.Bytes()
}

// Factors returns a PPG_ETALON GADS with every factor set to ppg and
// etalon and no bad pixels.
func Factors(ppg, etalon float32) *scia.PPGEtalon {
	g := &scia.PPGEtalon{
		PPG:         make([]float32, calib.NumPixels),
		Etalon:      make([]float32, calib.NumPixels),
		EtalonResid: make([]float32, calib.NumPixels),
		WLSDeg:      make([]float32, calib.NumPixels),
		BDPM:        make([]uint8, calib.NumPixels),
	}
	for i := range g.PPG {
		g.PPG[i] = ppg
		g.Etalon[i] = etalon
	}
	return g
}

// WriteProduct writes a product for orbit with one nadir state (ID 8)
// holding a channel 1 cluster of two pixels with the given values (one
// observation), and the PPG_ETALON GADS g.
func WriteProduct(t testing.TB, name string, orbit int, g *scia.PPGEtalon, values ...float32) string {
	t.Helper()
	start := time.Date(2004, 3, 12, 10, 0, 0, 0, time.UTC)
	mjd := pds.MJDFromTime(start.Add(100 * time.Second))
	st := scia.State{MJD: mjd, StateID: 8, NumClus: 1}
	st.Clcon[0] = scia.Clcon{ID: 1, Channel: 1, PixelNr: 10, Length: 2, PET: 0.5, Coaddf: 1}

	ids := []uint16{10, 11}
	m := scia.MDSRecord{
		MJD:        mjd,
		StateID:    8,
		ClusID:     1,
		PixelIDs:   ids,
		PixelWv:    make([]float32, len(ids)),
		PixelWvErr: make([]float32, len(ids)),
		PixelVal:   values,
		PixelErr:   make([]float32, len(values)),
	}
	gads, err := scia.EncodePPGEtalon(g)
	if err != nil {
		t.Fatalf("encoding PPG_ETALON: %v", err)
	}
	return pdstest.WriteFile(t, pdstest.Options{
		Product: name,
		Orbit:   orbit,
		Start:   start,
		Stop:    start.Add(100 * time.Minute),
	}, []pdstest.DataSet{
		{Name: "STATES", Type: "A", NumDSR: 1, DSRSize: scia.StateSize, Data: EncodeStates(st)},
		{Name: scia.PPGEtalonName, Type: "G", NumDSR: 1, DSRSize: scia.PPGEtalonSize, Data: gads},
		{Name: "NADIR", Type: "M", NumDSR: 1, DSRSize: -1, Data: EncodeMDS(m)},
	})
}
