package runner

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/pds"
	"github.com/sron-nadc/nadc_tools/pkg/scia"
)

// Calibrate opens the stores of opts and calibrates files.
func Calibrate(ctx context.Context, opts Options, files []string) (Summary, error) {
	r, err := New(ctx, opts)
	if err != nil {
		return Summary{}, err
	}
	defer r.Close()
	return r.Calibrate(ctx, files), nil
}

// Calibrate reads, calibrates and stores every Level-1c file.
func (r *Runner) Calibrate(ctx context.Context, files []string) Summary {
	return r.each(ctx, "calibrate", files, r.calibrateFile)
}

// tables returns the calibration tables of orbit. The product factors
// fill whatever the store does not provide.
func (r *Runner) tables(orbit int, gads *scia.PPGEtalon, warn *nadc.Stack) (*calib.Tables, error) {
	tabs := &calib.Tables{Orbit: orbit}
	if r.Tables != nil {
		cached, err := r.Cache.Get(r.Tables, orbit, r.Opts.Flags)
		switch {
		case err == nil:
			local := *cached
			tabs = &local
		case r.Opts.Strict:
			return nil, nadc.Wrap(nadc.ErrCalib, nadc.Fatal, "tables", err)
		default:
			warn.Push(nadc.Wrap(nadc.ErrCalib, nadc.Warning, "tables", err))
		}
	}
	if gads != nil {
		gads.Fill(tabs)
	}
	return tabs, nil
}

func (r *Runner) calibrateFile(ctx context.Context, path string, logger *log.Entry) error {
	var warn nadc.Stack
	defer warn.Flush(logger)

	p, err := pds.Open(path, &warn)
	if err != nil {
		return err
	}
	defer p.Close()

	l1c, err := scia.ReadL1c(p, r.Opts.DSNames, &warn)
	if err != nil {
		return err
	}
	hdr := l1c.Header
	hdr.IngestID = r.RunID

	tabs, err := r.tables(hdr.Orbit, l1c.PPGEtalon, &warn)
	if err != nil {
		return err
	}
	done, err := calib.Pipeline{Flags: r.Opts.Flags, Strict: r.Opts.Strict}.Run(l1c.Records, tabs, &warn)
	if err != nil {
		return err
	}
	logger.Infof("orbit %d: %d records calibrated with %q", hdr.Orbit, len(l1c.Records), done.String())

	if r.Sink == nil {
		r.addCounts(len(l1c.Records), 0)
		return nil
	}
	w, err := r.Sink.WriteHeader(ctx, hdr)
	if err != nil {
		return err
	}
	n, err := w.WriteRecords(ctx, l1c.Records)
	if err != nil {
		w.Abort(ctx)
		return err
	}
	if err := w.Commit(ctx); err != nil {
		return err
	}
	r.Metrics.Records("calibrate", n)
	r.addCounts(n, 0)
	return nil
}
