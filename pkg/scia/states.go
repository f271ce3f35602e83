// Package scia decodes the SCIAMACHY Level-1c data sets of an Envisat PDS
// product and turns them into calibration records.
package scia

import (
	"math"

	"github.com/bamiaux/iobit"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/pds"
)

const (
	// MaxClusters is the number of cluster definitions in a state.
	MaxClusters = 64
	// StateSize is the size of one STATES DSR.
	StateSize = 1386
	clconSize = 17
)

// Clcon is the definition of one cluster in a state.
type Clcon struct {
	ID       uint8
	Channel  uint8
	PixelNr  uint16
	Length   uint16
	PET      float32
	IntgTime uint16
	Coaddf   uint16
	NRead    uint16
	Type     uint8
}

// State is one DSR of the STATES annotation data set.
type State struct {
	MJD             pds.MJD
	FlagMDS         uint8
	FlagReason      uint8
	OrbitPhase      float32
	Category        uint16
	StateID         uint16
	DurScan         uint16
	LongestIntgTime uint16
	NumClus         uint16
	Clcon           [MaxClusters]Clcon
	NumAux          uint16
	NumPMD          uint16
	NumIntg         uint16
	IntgTimes       [MaxClusters]uint16
	NumPolar        [MaxClusters]uint16
	TotalPolar      uint16
	NumDSR          uint16
	LengthDSR       uint32
}

// Cluster returns the definition of cluster id.
func (s *State) Cluster(id uint8) (Clcon, bool) {
	n := int(s.NumClus)
	if n > MaxClusters {
		n = MaxClusters
	}
	for _, c := range s.Clcon[:n] {
		if c.ID == id {
			return c, true
		}
	}
	return Clcon{}, false
}

// DecodeStates decodes a STATES data set of numDSR records.
func DecodeStates(buf []byte, numDSR int) ([]State, error) {
	if numDSR < 0 || numDSR > len(buf)/StateSize {
		return nil, nadc.Fatalf(nadc.ErrPDSRd, "STATES", "%d bytes for %d records of %d bytes", len(buf), numDSR, StateSize)
	}
	states := make([]State, numDSR)
	for i := range states {
		if err := decodeState(buf[i*StateSize:(i+1)*StateSize], &states[i]); err != nil {
			return nil, nadc.Wrap(nadc.ErrPDSRd, nadc.Fatal, "STATES", err)
		}
	}
	return states, nil
}

func decodeState(buf []byte, s *State) error {
	mjd, err := pds.DecodeMJD(buf)
	if err != nil {
		return err
	}
	s.MJD = mjd

	r := iobit.NewReader(buf[pds.MJDSize:])
	s.FlagMDS = r.Uint8(8)
	s.FlagReason = r.Uint8(8)
	s.OrbitPhase = math.Float32frombits(r.Uint32(32))
	s.Category = r.Uint16(16)
	s.StateID = r.Uint16(16)
	s.DurScan = r.Uint16(16)
	s.LongestIntgTime = r.Uint16(16)
	s.NumClus = r.Uint16(16)
	for i := range s.Clcon {
		c := &s.Clcon[i]
		c.ID = r.Uint8(8)
		c.Channel = r.Uint8(8)
		c.PixelNr = r.Uint16(16)
		c.Length = r.Uint16(16)
		c.PET = math.Float32frombits(r.Uint32(32))
		c.IntgTime = r.Uint16(16)
		c.Coaddf = r.Uint16(16)
		c.NRead = r.Uint16(16)
		c.Type = r.Uint8(8)
	}
	s.NumAux = r.Uint16(16)
	s.NumPMD = r.Uint16(16)
	s.NumIntg = r.Uint16(16)
	for i := range s.IntgTimes {
		s.IntgTimes[i] = r.Uint16(16)
	}
	for i := range s.NumPolar {
		s.NumPolar[i] = r.Uint16(16)
	}
	s.TotalPolar = r.Uint16(16)
	s.NumDSR = r.Uint16(16)
	s.LengthDSR = r.Uint32(32)
	return r.Error()
}
