// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// A catalog run is a batch job with no long-lived HTTP endpoint to scrape, so
// collected metrics are pushed to a Pushgateway when the run finishes. The
// job label is the Pushgateway grouping key; the remaining labels become
// Prometheus labels.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"catalog/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter   *prometheus.CounterVec // catalog_step_total
	stepDuration  *prometheus.SummaryVec // catalog_step_duration_seconds
	recordCounter *prometheus.CounterVec // catalog_records_total
	rejectCounter *prometheus.CounterVec // catalog_rejects_total
	batchCounter  prometheus.Counter     // catalog_batches_total
	groups        prometheus.Gauge       // catalog_groups
	groupBytes    prometheus.Gauge       // catalog_group_bytes
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (usually the pipeline job).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "catalog"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline step executions, partitioned by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Duration of pipeline steps in seconds, partitioned by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		recordCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Record counts per kind (read, normalized, rejected).",
		}, []string{"kind"}),
		rejectCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RejectsTotal,
			Help: "Rejected rows per reason.",
		}, []string{"reason"}),
		batchCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Batches handed from the reader to the workers.",
		}),
		groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metrics.GroupsGauge,
			Help: "Product groups in the finalized table.",
		}),
		groupBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metrics.GroupBytesGauge,
			Help: "Estimated bytes held by the group table.",
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":   b.stepCounter,
		"step summary":   b.stepDuration,
		"record counter": b.recordCounter,
		"reject counter": b.rejectCounter,
		"batch counter":  b.batchCounter,
		"groups gauge":   b.groups,
		"bytes gauge":    b.groupBytes,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter == nil {
			return
		}
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)

	case metrics.RecordsTotal:
		if b.recordCounter == nil {
			return
		}
		b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)

	case metrics.RejectsTotal:
		if b.rejectCounter == nil {
			return
		}
		b.rejectCounter.WithLabelValues(labels["reason"]).Add(delta)

	case metrics.BatchesTotal:
		if b.batchCounter == nil {
			return
		}
		b.batchCounter.Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

func (b *Backend) SetGauge(name string, value float64, _ metrics.Labels) {
	switch name {
	case metrics.GroupsGauge:
		if b.groups != nil {
			b.groups.Set(value)
		}
	case metrics.GroupBytesGauge:
		if b.groupBytes != nil {
			b.groupBytes.Set(value)
		}
	}
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}

var _ metrics.Backend = (*Backend)(nil)
