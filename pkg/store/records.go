package store

import (
	"fmt"
	"math"
	"sort"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
)

// ClusterBlock holds every observation of one cluster of one state in a
// product, in time order.
type ClusterBlock struct {
	StateID  uint8
	ClusID   uint8
	Channel  uint8
	Coaddf   int
	PET      float64
	PixelIDs []uint16
	MJD      []float64 // per observation
	NumObs   int
	Values   []float64
	Errors   []float64
}

// name returns the group name of the block, e.g. "state_08/cluster_03".
// Blocks of a state/cluster pair whose read-out changed get a suffix.
func (b *ClusterBlock) name(seq int) string {
	s := fmt.Sprintf("state_%02d/cluster_%02d", b.StateID, b.ClusID)
	if seq > 0 {
		s += fmt.Sprintf("_%d", seq)
	}
	return s
}

func samePixels(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// GroupClusters collects the clusters of recs per state and cluster id.
// Blocks are returned with their group names, sorted by name.
func GroupClusters(recs []calib.Record) ([]string, []*ClusterBlock) {
	type key struct{ state, clus uint8 }
	blocks := map[key][]*ClusterBlock{}
	for _, r := range recs {
		for _, c := range r.Clusters {
			if c.Empty() {
				continue
			}
			k := key{r.StateID, c.ClusID}
			list := blocks[k]
			var b *ClusterBlock
			for _, cand := range list {
				if samePixels(cand.PixelIDs, c.PixelIDs) && cand.Coaddf == c.Coaddf && cand.PET == c.PET {
					b = cand
					break
				}
			}
			if b == nil {
				b = &ClusterBlock{
					StateID:  r.StateID,
					ClusID:   c.ClusID,
					Channel:  c.Channel,
					Coaddf:   c.Coaddf,
					PET:      c.PET,
					PixelIDs: c.PixelIDs,
				}
				blocks[k] = append(list, b)
			}
			np := c.NumPixels()
			t := r.MJD.Float()
			for j := 0; j < c.NumObs; j++ {
				b.MJD = append(b.MJD, t+float64(j)*c.PET/86400)
			}
			b.NumObs += c.NumObs
			b.Values = append(b.Values, c.Values[:c.NumObs*np]...)
			if c.Errors != nil {
				b.Errors = append(b.Errors, c.Errors[:c.NumObs*np]...)
			}
		}
	}

	var names []string
	byName := map[string]*ClusterBlock{}
	for _, list := range blocks {
		for seq, b := range list {
			n := b.name(seq)
			names = append(names, n)
			byName[n] = b
		}
	}
	sort.Strings(names)
	out := make([]*ClusterBlock, len(names))
	for i, n := range names {
		out[i] = byName[n]
	}
	return names, out
}

// FlatRecords is the record table of the netCDF layout: one row per
// cluster read-out and the pixel data concatenated.
type FlatRecords struct {
	MJD       []float64
	StateID   []int32
	ClusID    []int32
	Channel   []int32
	Coaddf    []int32
	PET       []float64
	NumObs    []int32
	NumPixels []int32
	PixOffset []int32
	ValOffset []int32
	PixelIDs  []int32
	Values    []float64
	Errors    []float64
}

// Flatten builds the record table. Missing errors are written as NaN.
func Flatten(recs []calib.Record) *FlatRecords {
	f := &FlatRecords{}
	for _, r := range recs {
		for _, c := range r.Clusters {
			if c.Empty() {
				continue
			}
			np := c.NumPixels()
			nv := c.NumObs * np
			f.MJD = append(f.MJD, r.MJD.Float())
			f.StateID = append(f.StateID, int32(r.StateID))
			f.ClusID = append(f.ClusID, int32(c.ClusID))
			f.Channel = append(f.Channel, int32(c.Channel))
			f.Coaddf = append(f.Coaddf, int32(c.Coaddf))
			f.PET = append(f.PET, c.PET)
			f.NumObs = append(f.NumObs, int32(c.NumObs))
			f.NumPixels = append(f.NumPixels, int32(np))
			f.PixOffset = append(f.PixOffset, int32(len(f.PixelIDs)))
			f.ValOffset = append(f.ValOffset, int32(len(f.Values)))
			for _, id := range c.PixelIDs {
				f.PixelIDs = append(f.PixelIDs, int32(id))
			}
			f.Values = append(f.Values, c.Values[:nv]...)
			if c.Errors != nil {
				f.Errors = append(f.Errors, c.Errors[:nv]...)
			} else {
				f.Errors = append(f.Errors, nans(nv)...)
			}
		}
	}
	return f
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
