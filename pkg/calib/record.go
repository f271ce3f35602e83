// Package calib applies the SCIAMACHY Level-1c calibration corrections to
// cluster records.
package calib

import (
	"github.com/sron-nadc/nadc_tools/pkg/pds"
)

// Detector geometry.
const (
	NumChannels = 8
	ChannelSize = 1024
	NumPixels   = NumChannels * ChannelSize
)

// Cluster is one read-out cluster of a state: NumObs observations of the
// pixels in PixelIDs. Values and Errors are observation major, so the value
// of pixel i in observation j is Values[j*len(PixelIDs)+i].
type Cluster struct {
	ClusID   uint8
	Channel  uint8
	Coaddf   int
	PET      float64
	NumObs   int
	PixelIDs []uint16
	Values   []float64
	Errors   []float64
}

// NumPixels returns the number of pixels per observation.
func (c *Cluster) NumPixels() int { return len(c.PixelIDs) }

// Empty reports whether the cluster holds no data.
func (c *Cluster) Empty() bool {
	return c.NumObs == 0 || len(c.PixelIDs) == 0
}

// ChannelOf returns the channel (1-8) of an absolute pixel index.
func ChannelOf(pixel uint16) uint8 {
	return uint8(int(pixel)/ChannelSize) + 1
}

// Record is the science data of one state execution.
type Record struct {
	MJD        pds.MJD
	StateID    uint8
	Category   uint8
	Quality    int8
	OrbitPhase float64
	Clusters   []Cluster
}
