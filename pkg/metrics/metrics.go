// Package metrics exposes Prometheus metrics for the positioning daemon.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rfidlab/tagpos/pkg/logx"
	"github.com/rfidlab/tagpos/pkg/positioning"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry
	logger   *logx.Logger

	ReadingsIngested prometheus.Counter
	PipelineRuns     *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	RunRows          prometheus.Gauge
	TagMAE           *prometheus.GaugeVec
}

// New creates and registers the collectors on a private registry.
func New(logger *logx.Logger) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		logger:   logger,
		ReadingsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagpos_readings_ingested_total",
			Help: "Raw readings written to the store.",
		}),
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tagpos_pipeline_runs_total",
			Help: "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tagpos_pipeline_run_duration_seconds",
			Help:    "Wall-clock duration of pipeline runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		RunRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tagpos_pipeline_last_run_rows",
			Help: "Feature rows produced by the last pipeline run.",
		}),
		TagMAE: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tagpos_tag_mae",
			Help: "Per-tag mean absolute error from the last run.",
		}, []string{"tag_id", "axis"}),
	}
}

// ObserveRun records the outcome of one pipeline run.
func (m *Metrics) ObserveRun(result *positioning.RunResult, err error) {
	if err != nil {
		m.PipelineRuns.WithLabelValues("error").Inc()
		return
	}
	m.PipelineRuns.WithLabelValues("ok").Inc()
	m.RunDuration.Observe(float64(result.DurationMS) / 1000.0)
	m.RunRows.Set(float64(result.RowCount))
	for _, report := range result.Reports {
		if report.MAEX == nil {
			continue
		}
		m.TagMAE.WithLabelValues(report.TagID, "x").Set(*report.MAEX)
		m.TagMAE.WithLabelValues(report.TagID, "y").Set(*report.MAEY)
		m.TagMAE.WithLabelValues(report.TagID, "avg").Set(*report.MAEAvg)
	}
}

// Serve starts the /metrics listener on its own port.
func (m *Metrics) Serve(host string, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", host, port)
	m.logger.Info("starting metrics listener", "address", addr)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics listener failed", "error", err)
		}
	}()
}
