package calib

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
)

// Pipeline applies the selected calibration steps to a batch of records.
type Pipeline struct {
	Flags Flags
	// Strict turns a missing calibration table into a fatal error.
	Strict bool
}

// Run calibrates recs in place using tabs and returns the steps that were
// applied. Skipped steps and cluster problems are pushed on warn. Run stops
// at the first fatal error.
func (p Pipeline) Run(recs []Record, tabs *Tables, warn *nadc.Stack) (Flags, error) {
	if p.Flags == 0 {
		return 0, nil
	}
	if err := checkPixels(recs); err != nil {
		return 0, err
	}
	if tabs == nil {
		tabs = &Tables{}
	}
	if err := tabs.Prepare(); err != nil {
		return 0, nadc.Wrap(nadc.ErrCalib, nadc.Fatal, "tables", err)
	}

	var done Flags
	for _, bit := range p.Flags.Steps() {
		err := steps[bit](recs, tabs, warn)
		switch {
		case err == nil:
			done |= bit
			log.Debugf("calibration step %s applied to %d records", bit.Name(), len(recs))
		case errors.Is(err, ErrNoTable) && !p.Strict:
			warn.Push(err)
		case errors.Is(err, ErrNoTable):
			return done, nadc.Wrap(nadc.ErrCalib, nadc.Fatal, bit.Name(), err)
		default:
			if nadc.IsFatal(err) {
				return done, err
			}
			warn.Push(err)
		}
	}
	return done, nil
}

func checkPixels(recs []Record) error {
	for i := range recs {
		for j := range recs[i].Clusters {
			c := &recs[i].Clusters[j]
			if c.Empty() {
				continue
			}
			for _, id := range c.PixelIDs {
				if int(id) >= NumPixels {
					return nadc.Fatalf(nadc.ErrCalib, "calibrate", "record %d cluster %d: pixel index %d out of range", i, c.ClusID, id)
				}
				if ch := ChannelOf(id); ch != c.Channel {
					return nadc.Fatalf(nadc.ErrCalib, "calibrate", "record %d cluster %d: pixel %d lies in channel %d, not %d", i, c.ClusID, id, ch, c.Channel)
				}
			}
			np := c.NumPixels()
			if len(c.Values) < c.NumObs*np {
				return nadc.Fatalf(nadc.ErrCalib, "calibrate", "record %d cluster %d: %d values for %d observations of %d pixels", i, c.ClusID, len(c.Values), c.NumObs, np)
			}
			if c.Errors != nil && len(c.Errors) < c.NumObs*np {
				return nadc.Fatalf(nadc.ErrCalib, "calibrate", "record %d cluster %d: %d errors for %d observations of %d pixels", i, c.ClusID, len(c.Errors), c.NumObs, np)
			}
		}
	}
	return nil
}
