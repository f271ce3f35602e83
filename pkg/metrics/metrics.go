// Package metrics counts what a batch run processed and pushes the totals
// to a Prometheus push gateway.
package metrics

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	log "github.com/sirupsen/logrus"
)

// Metrics are the counters of one run, kept in a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	files   *prometheus.CounterVec
	records *prometheus.CounterVec
	tiles   *prometheus.CounterVec
	lastRun *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nadc_files_total",
			Help: "Input files processed, by tool and status.",
		}, []string{"tool", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nadc_records_total",
			Help: "Calibrated records written.",
		}, []string{"tool"}),
		tiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nadc_tiles_total",
			Help: "Derived-product tiles written.",
		}, []string{"family"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nadc_last_run_seconds",
			Help: "Duration of the last run.",
		}, []string{"tool"}),
	}
	m.Registry.MustRegister(m.files, m.records, m.tiles, m.lastRun)
	return m
}

func (m *Metrics) File(tool string, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.files.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) Records(tool string, n int) {
	m.records.WithLabelValues(tool).Add(float64(n))
}

func (m *Metrics) Tiles(family string, n int) {
	m.tiles.WithLabelValues(family).Add(float64(n))
}

func (m *Metrics) RunTime(tool string, d time.Duration) {
	m.lastRun.WithLabelValues(tool).Set(d.Seconds())
}

// Push sends the registry to gateway under job. An empty gateway falls
// back to NADC_PUSHGATEWAY; without either Push does nothing.
func (m *Metrics) Push(ctx context.Context, gateway, job string) error {
	if gateway == "" {
		gateway = os.Getenv("NADC_PUSHGATEWAY")
	}
	if gateway == "" {
		return nil
	}
	if err := push.New(gateway, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		log.Warnf("could not push metrics to %s: %v", gateway, err)
		return err
	}
	log.Debugf("metrics pushed to %s", gateway)
	return nil
}
