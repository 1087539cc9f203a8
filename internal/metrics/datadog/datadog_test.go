package datadog

import (
	"reflect"
	"testing"

	"github.com/DataDog/datadog-go/v5/statsd"

	"catalog/internal/metrics"
)

type sent struct {
	kind  string
	name  string
	value float64
	tags  []string
}

// fakeClient captures what the backend sends. Methods it does not override
// are left to the embedded nil interface.
type fakeClient struct {
	statsd.ClientInterface
	sent   []sent
	closed bool
}

func (f *fakeClient) Count(name string, value int64, tags []string, _ float64) error {
	f.sent = append(f.sent, sent{"count", name, float64(value), tags})
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, _ float64) error {
	f.sent = append(f.sent, sent{"histogram", name, value, tags})
	return nil
}

func (f *fakeClient) Gauge(name string, value float64, tags []string, _ float64) error {
	f.sent = append(f.sent, sent{"gauge", name, value, tags})
	return nil
}

func (f *fakeClient) Close() error { f.closed = true; return nil }

func TestBackend_SendsWithSortedTags(t *testing.T) {
	fc := &fakeClient{}
	b := &Backend{client: fc}
	r := metrics.New("nightly", b)

	r.Rejects("currency_unknown", 3)
	r.Groups(7, 900)
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := []sent{
		{"count", metrics.RejectsTotal, 3, []string{"job:nightly", "reason:currency_unknown"}},
		{"gauge", metrics.GroupsGauge, 7, []string{"job:nightly"}},
		{"gauge", metrics.GroupBytesGauge, 900, []string{"job:nightly"}},
	}
	if !reflect.DeepEqual(fc.sent, want) {
		t.Fatalf("sent=%+v\nwant=%+v", fc.sent, want)
	}
	if !fc.closed {
		t.Fatalf("Flush did not close the client")
	}
}

func TestBackend_Histogram(t *testing.T) {
	fc := &fakeClient{}
	b := &Backend{client: fc}
	b.ObserveHistogram(metrics.StepDuration, 0.25, metrics.Labels{"step": "read"})
	if len(fc.sent) != 1 || fc.sent[0].kind != "histogram" || fc.sent[0].value != 0.25 {
		t.Fatalf("sent=%+v", fc.sent)
	}
}

func TestNewBackend(t *testing.T) {
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatalf("expected error for empty Addr")
	}
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "catalog.", GlobalTags: []string{"env:test"}})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	b := &Backend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	b.SetGauge("x", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
