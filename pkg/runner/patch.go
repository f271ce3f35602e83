package runner

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/pds"
	"github.com/sron-nadc/nadc_tools/pkg/scia"
)

// Patch writes the PPG factors and bad pixel mask that src holds for the
// orbit of the product at path into its PPG_ETALON GADS.
func Patch(ctx context.Context, path string, src calib.TableSource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := pds.Open(path, nil)
	if err != nil {
		return err
	}
	orbit := p.MPH.AbsOrbit
	p.Close()

	tabs, err := src.Load(orbit, calib.PPG|calib.BadPixel)
	if err != nil {
		return err
	}
	var ppg []float32
	if tabs.PPG != nil {
		ppg = make([]float32, len(tabs.PPG))
		for i, v := range tabs.PPG {
			ppg[i] = float32(v)
		}
	}
	var bdpm []uint8
	if tabs.BadPixel != nil {
		bdpm = make([]uint8, len(tabs.BadPixel))
		for i, b := range tabs.BadPixel {
			if b {
				bdpm[i] = 1
			}
		}
	}
	if ppg == nil && bdpm == nil {
		return nadc.Fatalf(nadc.ErrCalib, path, "no PPG or bad pixel table for orbit %d in %s", orbit, src.Path())
	}
	if err := scia.PatchPPGEtalon(path, ppg, bdpm); err != nil {
		return err
	}
	log.WithField("file", path).Infof("PPG_ETALON patched from %s (orbit %d)", src.Path(), orbit)
	return nil
}

// PatchFiles patches every file with the tables of the SDMF store.
func (r *Runner) PatchFiles(ctx context.Context, files []string) Summary {
	return r.each(ctx, "patch", files, func(ctx context.Context, path string, _ *log.Entry) error {
		if r.Tables == nil {
			return nadc.Fatalf(nadc.ErrParam, "patch", "no calibration store")
		}
		return Patch(ctx, path, r.Tables)
	})
}
