package runner

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/adaguc"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
)

// Ingest opens the sink of opts and stores the tiles of every ADAGUC file.
func Ingest(ctx context.Context, opts Options, files []string) (Summary, error) {
	r, err := New(ctx, opts)
	if err != nil {
		return Summary{}, err
	}
	defer r.Close()
	return r.Ingest(ctx, files), nil
}

func (r *Runner) Ingest(ctx context.Context, files []string) Summary {
	return r.each(ctx, "ingest", files, r.ingestFile)
}

func (r *Runner) ingestFile(ctx context.Context, path string, logger *log.Entry) error {
	if r.Sink == nil {
		return nadc.Fatalf(nadc.ErrParam, "ingest", "no output store")
	}
	hdr, tiles, err := adaguc.Read(path, r.Opts.Family)
	if err != nil {
		return err
	}
	hdr.IngestID = r.RunID

	w, err := r.Sink.WriteHeader(ctx, hdr)
	if err != nil {
		return err
	}
	n, err := w.WriteTiles(ctx, hdr.Family, tiles)
	if err != nil {
		w.Abort(ctx)
		return err
	}
	if err := w.Commit(ctx); err != nil {
		return err
	}
	logger.Infof("%s orbit %d: %d tiles", hdr.Family, hdr.Orbit, n)
	r.Metrics.Tiles(hdr.Family, n)
	r.addCounts(0, n)
	return nil
}
