package scia

import (
	"math"

	"github.com/bamiaux/iobit"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/pds"
)

// MDSHeaderSize is the fixed part of an MDS_1C record.
const MDSHeaderSize = 29

// MDS data sets holding Level-1c science data.
var MDSNames = []string{"NADIR", "LIMB", "OCCULTATION", "MONITORING"}

// MDSRecord is one cluster record of a Level-1c measurement data set.
type MDSRecord struct {
	MJD        pds.MJD
	RecLength  uint32
	Quality    int8
	OrbitPhase float32
	Category   uint8
	StateID    uint8
	ClusID     uint8
	NumObs     uint16
	NumPixels  uint16
	UnitFlag   int8
	PixelIDs   []uint16
	PixelWv    []float32
	PixelWvErr []float32
	PixelVal   []float32
	PixelErr   []float32
}

func (m *MDSRecord) bodySize() int {
	np, nobs := int(m.NumPixels), int(m.NumObs)
	return np*(2+4+4) + 2*nobs*np*4
}

// DecodeMDS1C walks the records of one Level-1c measurement data set.
// A record that runs past the end of buf is a PDS_RD error.
func DecodeMDS1C(name string, buf []byte, numDSR int) ([]MDSRecord, error) {
	if numDSR < 0 {
		return nil, nadc.Fatalf(nadc.ErrPDSRd, name, "invalid number of records %d", numDSR)
	}
	recs := make([]MDSRecord, 0, min(numDSR, len(buf)/MDSHeaderSize))
	off := 0
	for i := 0; i < numDSR; i++ {
		if len(buf)-off < MDSHeaderSize {
			return recs, nadc.Fatalf(nadc.ErrPDSRd, name, "record %d: truncated header at byte %d", i, off)
		}
		var rec MDSRecord
		if err := decodeMDSHeader(buf[off:off+MDSHeaderSize], &rec); err != nil {
			return recs, nadc.Wrap(nadc.ErrPDSRd, nadc.Fatal, name, err)
		}
		size := int(rec.RecLength)
		if size < MDSHeaderSize+rec.bodySize() {
			return recs, nadc.Fatalf(nadc.ErrPDSRd, name, "record %d: length %d too small for %d observations of %d pixels",
				i, size, rec.NumObs, rec.NumPixels)
		}
		if len(buf)-off < size {
			return recs, nadc.Fatalf(nadc.ErrPDSRd, name, "record %d: truncated, %d of %d bytes", i, len(buf)-off, size)
		}
		if err := decodeMDSBody(buf[off+MDSHeaderSize:off+size], &rec); err != nil {
			return recs, nadc.Wrap(nadc.ErrPDSRd, nadc.Fatal, name, err)
		}
		recs = append(recs, rec)
		off += size
	}
	return recs, nil
}

func decodeMDSHeader(buf []byte, m *MDSRecord) error {
	mjd, err := pds.DecodeMJD(buf)
	if err != nil {
		return err
	}
	m.MJD = mjd
	r := iobit.NewReader(buf[pds.MJDSize:])
	m.RecLength = r.Uint32(32)
	m.Quality = r.Int8(8)
	m.OrbitPhase = math.Float32frombits(r.Uint32(32))
	m.Category = r.Uint8(8)
	m.StateID = r.Uint8(8)
	m.ClusID = r.Uint8(8)
	m.NumObs = r.Uint16(16)
	m.NumPixels = r.Uint16(16)
	m.UnitFlag = r.Int8(8)
	return r.Error()
}

func decodeMDSBody(buf []byte, m *MDSRecord) error {
	np := int(m.NumPixels)
	nv := int(m.NumObs) * np
	r := iobit.NewReader(buf)
	m.PixelIDs = make([]uint16, np)
	for i := range m.PixelIDs {
		m.PixelIDs[i] = r.Uint16(16)
	}
	m.PixelWv = make([]float32, np)
	m.PixelWvErr = make([]float32, np)
	m.PixelVal = make([]float32, nv)
	m.PixelErr = make([]float32, nv)
	for _, dst := range [][]float32{m.PixelWv, m.PixelWvErr, m.PixelVal, m.PixelErr} {
		for i := range dst {
			dst[i] = math.Float32frombits(r.Uint32(32))
		}
	}
	return r.Error()
}
