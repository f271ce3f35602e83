// Package runner drives the batch tools: it fans input files out over a
// bounded set of workers and feeds the results to a sink.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/metrics"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/sdmf"
	"github.com/sron-nadc/nadc_tools/pkg/store"
)

// DefaultProcs is the number of files processed at the same time.
const DefaultProcs = 4

// Options configure a run.
type Options struct {
	Flags  calib.Flags
	Strict bool
	Procs  int
	// SDMF is the calibration table store; empty uses the product's own
	// PPG_ETALON factors only.
	SDMF string
	// SDMFPPG takes PPG factors from the store instead of the product.
	SDMFPPG     bool
	Out         string
	Store       store.Options
	Family      string
	DSNames     []string
	Pushgateway string
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID     string
	Processed int
	Failed    int
	Skipped   int
	Records   int
	Tiles     int
	// Err is the first fatal error of a failed file.
	Err error
}

// Runner holds what the files of one run share.
type Runner struct {
	Opts    Options
	Sink    store.Sink
	Tables  calib.TableSource
	Cache   *calib.Cache
	Metrics *metrics.Metrics
	RunID   string

	mu      sync.Mutex
	summary Summary
}

// New opens the sink and the table store named in opts.
func New(ctx context.Context, opts Options) (*Runner, error) {
	r := &Runner{
		Opts:    opts,
		Cache:   calib.NewCache(),
		Metrics: metrics.New(),
		RunID:   uuid.NewString(),
	}
	if opts.SDMF != "" {
		st, err := sdmf.Open(opts.SDMF)
		if err != nil {
			return nil, err
		}
		st.PPGOverride = opts.SDMFPPG
		r.Tables = st
	}
	if opts.Out != "" {
		sink, err := store.Open(ctx, opts.Out, opts.Store)
		if err != nil {
			return nil, err
		}
		r.Sink = sink
	}
	return r, nil
}

func (r *Runner) Close() error {
	if r.Sink == nil {
		return nil
	}
	return r.Sink.Close()
}

type fileFunc func(ctx context.Context, path string, logger *log.Entry) error

// each runs fn for every file with at most Opts.Procs files in flight.
func (r *Runner) each(ctx context.Context, tool string, files []string, fn fileFunc) Summary {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	if r.Cache == nil {
		r.Cache = calib.NewCache()
	}
	if r.Metrics == nil {
		r.Metrics = metrics.New()
	}
	procs := r.Opts.Procs
	if procs <= 0 {
		procs = DefaultProcs
	}
	r.summary = Summary{RunID: r.RunID}
	start := time.Now()
	sem := semaphore.NewWeighted(int64(procs))
	var wg sync.WaitGroup

fileLoop:
	for _, path := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warnf("run %s interrupted: %v", r.RunID, err)
			break fileLoop
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer sem.Release(1)
			logger := log.WithFields(log.Fields{"run": r.RunID, "file": path})
			r.finish(tool, path, protect(ctx, path, logger, fn), logger)
		}(path)
	}
	wg.Wait()

	elapsed := time.Since(start)
	r.Metrics.RunTime(tool, elapsed)
	if err := r.Metrics.Push(ctx, r.Opts.Pushgateway, "nadc_"+tool); err != nil {
		log.Debugf("push failed: %v", err)
	}
	s := r.summary
	log.WithField("run", r.RunID).Infof("%s: %d processed, %d skipped, %d failed in %s",
		tool, s.Processed, s.Skipped, s.Failed, elapsed.Round(time.Millisecond))
	return s
}

// protect runs fn and turns a panic into a fatal error of that file.
func protect(ctx context.Context, path string, logger *log.Entry, fn fileFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = nadc.Fatalf(nadc.ErrFileRd, path, "panic: %v", p)
		}
	}()
	return fn(ctx, path, logger)
}

func (r *Runner) finish(tool, path string, err error, logger *log.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err == nil:
		r.summary.Processed++
		r.Metrics.File(tool, true)
	case errors.Is(err, store.ErrExists):
		r.summary.Skipped++
		logger.Info("already stored, skipped")
	default:
		r.summary.Failed++
		r.Metrics.File(tool, false)
		if r.summary.Err == nil {
			r.summary.Err = err
		}
		logger.WithField("code", nadc.CodeOf(err).String()).Errorf("failed: %v", err)
	}
}

func (r *Runner) addCounts(records, tiles int) {
	r.mu.Lock()
	r.summary.Records += records
	r.summary.Tiles += tiles
	r.mu.Unlock()
}
