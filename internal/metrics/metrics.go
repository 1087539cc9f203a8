// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the catalog pipeline.
//
// Components never talk to Prometheus or Datadog directly. A run builds one
// Recorder around a Backend and passes it down explicitly; a nil Recorder or
// a Recorder without a backend is a no-op, so metrics are always safe to call
// even when no backend is configured. Concrete backends live in subpackages
// (prompush, datadog).
package metrics

import (
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal       = "catalog_step_total"
	StepDuration    = "catalog_step_duration_seconds"
	RecordsTotal    = "catalog_records_total"
	RejectsTotal    = "catalog_rejects_total"
	BatchesTotal    = "catalog_batches_total"
	GroupsGauge     = "catalog_groups"
	GroupBytesGauge = "catalog_group_bytes"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// SetGauge sets a point-in-time value.
	SetGauge(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) SetGauge(string, float64, Labels)         {}
func (nopBackend) Flush() error                             { return nil }

// Recorder binds a backend to one job name.
type Recorder struct {
	job     string
	backend Backend
}

// New returns a Recorder for job. A nil backend records nothing.
func New(job string, b Backend) *Recorder {
	if b == nil {
		b = nopBackend{}
	}
	return &Recorder{job: job, backend: b}
}

// Nop returns a Recorder that discards everything.
func Nop() *Recorder { return New("", nil) }

func (r *Recorder) b() Backend {
	if r == nil || r.backend == nil {
		return nopBackend{}
	}
	return r.backend
}

func (r *Recorder) jobName() string {
	if r == nil {
		return ""
	}
	return r.job
}

// Step records latency and success/failure of one pipeline step.
func (r *Recorder) Step(step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    r.jobName(),
		"step":   step,
		"status": status,
	}
	r.b().IncCounter(StepTotal, 1, lbls)
	r.b().ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// Records increments a record-level counter. Kinds mirror the run summary:
// "read", "normalized", "rejected".
func (r *Recorder) Records(kind string, delta int64) {
	if delta <= 0 {
		return
	}
	r.b().IncCounter(RecordsTotal, float64(delta), Labels{"job": r.jobName(), "kind": kind})
}

// Rejects increments the per-reason reject counter.
func (r *Recorder) Rejects(reason string, delta int64) {
	if delta <= 0 {
		return
	}
	r.b().IncCounter(RejectsTotal, float64(delta), Labels{"job": r.jobName(), "reason": reason})
}

// Batches increments the batch counter.
func (r *Recorder) Batches(delta int64) {
	if delta <= 0 {
		return
	}
	r.b().IncCounter(BatchesTotal, float64(delta), Labels{"job": r.jobName()})
}

// Groups reports the size of the finalized group table.
func (r *Recorder) Groups(n, bytes int64) {
	l := Labels{"job": r.jobName()}
	r.b().SetGauge(GroupsGauge, float64(n), l)
	r.b().SetGauge(GroupBytesGauge, float64(bytes), l)
}

// Flush delegates to the backend.
func (r *Recorder) Flush() error {
	return r.b().Flush()
}
