package scia

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/pds"
	"github.com/sron-nadc/nadc_tools/pkg/product"
)

// L1c is the content of a Level-1c product needed for calibration.
type L1c struct {
	Header    product.Header
	States    []State
	PPGEtalon *PPGEtalon
	Records   []calib.Record
}

// ReadL1c reads the states, the PPG_ETALON GADS and the measurement data
// sets dsNames (all of MDSNames when empty) of p. Absent or empty
// measurement data sets are reported on warn.
func ReadL1c(p *pds.Product, dsNames []string, warn *nadc.Stack) (*L1c, error) {
	if len(dsNames) == 0 {
		dsNames = MDSNames
	}
	l1c := &L1c{Header: p.Header()}
	logger := log.WithField("product", l1c.Header.Name)

	dsd, buf, err := p.ReadDS("STATES")
	if err != nil {
		return nil, err
	}
	if l1c.States, err = DecodeStates(buf, dsd.NumDSR); err != nil {
		return nil, err
	}
	StateTiming(l1c.States)

	if _, buf, err := p.ReadDS(PPGEtalonName); err != nil {
		warn.Push(nadc.Wrap(nadc.ErrPDSDSD, nadc.Warning, PPGEtalonName, err))
	} else if buf != nil {
		if l1c.PPGEtalon, err = DecodePPGEtalon(buf); err != nil {
			return nil, err
		}
	}

	var mds []MDSRecord
	for _, name := range dsNames {
		name = strings.ToUpper(strings.TrimSpace(name))
		dsd, buf, err := p.ReadDS(name)
		if err != nil {
			if nadc.CodeOf(err) == nadc.ErrPDSDSD {
				warn.Push(nadc.Warnf(nadc.ErrPDSDSD, name, "data set not in product"))
				continue
			}
			return nil, err
		}
		if buf == nil {
			warn.Push(nadc.Warnf(nadc.ErrPDSDSD, name, "empty data set"))
			continue
		}
		recs, err := DecodeMDS1C(name, buf, dsd.NumDSR)
		if err != nil {
			return nil, err
		}
		logger.Debugf("%s: %d records", name, len(recs))
		mds = append(mds, recs...)
	}

	var dropped int
	l1c.Records, dropped = MergeStatesAndRecords(l1c.States, mds)
	if dropped > 0 {
		warn.Push(nadc.Warnf(nadc.ErrPDSRd, "merge", "%d MDS records without state definition", dropped))
	}
	return l1c, nil
}

// PatchPPGEtalon replaces the PPG factors and the bad and dead pixel mask
// in the PPG_ETALON GADS of the product at path. Nil arguments keep the
// current values; etalon and residual factors are never touched.
func PatchPPGEtalon(path string, ppg []float32, bdpm []uint8) error {
	p, err := pds.Open(path, nil)
	if err != nil {
		return err
	}
	dsd, buf, err := p.ReadDS(PPGEtalonName)
	p.Close()
	if err != nil {
		return err
	}
	if dsd.Size != PPGEtalonSize {
		return nadc.Fatalf(nadc.ErrPDSSize, PPGEtalonName, "data set size %d, want %d", dsd.Size, PPGEtalonSize)
	}
	g, err := DecodePPGEtalon(buf)
	if err != nil {
		return err
	}
	if ppg != nil {
		if len(ppg) != calib.NumPixels {
			return nadc.Fatalf(nadc.ErrPDSSize, PPGEtalonName, "%d PPG factors, want %d", len(ppg), calib.NumPixels)
		}
		g.PPG = ppg
	}
	if bdpm != nil {
		if len(bdpm) != calib.NumPixels {
			return nadc.Fatalf(nadc.ErrPDSSize, PPGEtalonName, "%d mask entries, want %d", len(bdpm), calib.NumPixels)
		}
		g.BDPM = bdpm
	}
	out, err := EncodePPGEtalon(g)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nadc.Wrap(nadc.ErrFileWr, nadc.Fatal, path, err)
	}
	if _, err := f.WriteAt(out, dsd.Offset); err != nil {
		f.Close()
		return nadc.Wrap(nadc.ErrFileWr, nadc.Fatal, path, err)
	}
	if err := f.Close(); err != nil {
		return nadc.Wrap(nadc.ErrFileWr, nadc.Fatal, path, err)
	}
	log.WithField("file", path).Infof("patched %s at offset %d", PPGEtalonName, dsd.Offset)
	return nil
}
