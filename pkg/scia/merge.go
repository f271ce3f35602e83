package scia

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/pds"
)

func newCluster(def Clcon, m *MDSRecord) calib.Cluster {
	c := calib.Cluster{
		ClusID:   m.ClusID,
		Channel:  def.Channel,
		Coaddf:   int(def.Coaddf),
		PET:      float64(def.PET),
		NumObs:   int(m.NumObs),
		PixelIDs: m.PixelIDs,
		Values:   make([]float64, len(m.PixelVal)),
		Errors:   make([]float64, len(m.PixelErr)),
	}
	for i, v := range m.PixelVal {
		c.Values[i] = float64(v)
	}
	for i, v := range m.PixelErr {
		c.Errors[i] = float64(v)
	}
	return c
}

// MergeStatesAndRecords attaches every MDS record to the state it was
// measured in, the last state with the same state ID that started at or
// before the record, and groups the clusters of one read-out into a
// calib.Record. Records without a matching state or cluster definition
// are dropped; their number is returned. Both slices are sorted in place.
func MergeStatesAndRecords(states []State, mds []MDSRecord) ([]calib.Record, int) {
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].MJD.Before(states[j].MJD)
	})
	sort.SliceStable(mds, func(i, j int) bool {
		return mds[i].MJD.Before(mds[j].MJD)
	})

	var out []calib.Record
	dropped := 0
	i := -1
	for j := range mds {
		m := &mds[j]
		for i+1 < len(states) && !m.MJD.Before(states[i+1].MJD) {
			i++
		}
		if i < 0 || states[i].StateID != uint16(m.StateID) {
			dropped++
			continue
		}
		def, ok := states[i].Cluster(m.ClusID)
		if !ok {
			dropped++
			continue
		}
		n := len(out)
		if n == 0 || out[n-1].MJD != m.MJD || out[n-1].StateID != m.StateID {
			out = append(out, calib.Record{
				MJD:        m.MJD,
				StateID:    m.StateID,
				Category:   m.Category,
				Quality:    m.Quality,
				OrbitPhase: float64(m.OrbitPhase),
			})
			n++
		}
		out[n-1].Clusters = append(out[n-1].Clusters, newCluster(def, m))
	}
	log.Debugf("merged %d MDS records into %d read-outs, %d without state", len(mds), len(out), dropped)
	return out, dropped
}

// StateTiming reports the average and minimum time in seconds between
// consecutive states.
func StateTiming(states []State) (avg, min float64) {
	if len(states) < 2 {
		return 0, 0
	}
	min = -1
	var sum float64
	for i := 1; i < len(states); i++ {
		d := seconds(states[i-1].MJD, states[i].MJD)
		if min < 0 || d < min {
			min = d
		}
		sum += d
	}
	avg = sum / float64(len(states)-1)
	log.Infof("states: average spacing %.3f s, minimum spacing %.3f s", avg, min)
	return avg, min
}

func seconds(a, b pds.MJD) float64 {
	return b.Time().Sub(a.Time()).Seconds()
}
