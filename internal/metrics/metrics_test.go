package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	gauges          map[string]float64
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) SetGauge(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gauges == nil {
		f.gauges = map[string]float64{}
	}
	f.gauges[name] = value
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func TestStep_SuccessAndFailure(t *testing.T) {
	fb := &fakeBackend{}
	a := New("jobA", fb)
	b := New("jobB", fb)

	a.Step("read", nil, 2*time.Second)
	b.Step("write", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 || len(fb.callsHistograms) != 2 {
		t.Fatalf("counters=%d histograms=%d; want 2/2", len(fb.callsCounters), len(fb.callsHistograms))
	}

	cc0 := fb.callsCounters[0]
	if cc0.name != StepTotal || cc0.delta != 1 {
		t.Fatalf("counter[0] = %#v; want name=%s, delta=1", cc0, StepTotal)
	}
	if cc0.labels["job"] != "jobA" || cc0.labels["step"] != "read" || cc0.labels["status"] != "success" {
		t.Fatalf("counter[0].labels=%v", cc0.labels)
	}
	if h0 := fb.callsHistograms[0]; h0.name != StepDuration || h0.value < 1.999 || h0.value > 2.001 {
		t.Fatalf("hist[0]=%#v; want ~2s %s", h0, StepDuration)
	}

	cc1 := fb.callsCounters[1]
	if cc1.labels["job"] != "jobB" || cc1.labels["status"] != "failure" {
		t.Fatalf("counter[1].labels=%v; want jobB/failure", cc1.labels)
	}
	if h1 := fb.callsHistograms[1]; h1.value < 1.499 || h1.value > 1.501 {
		t.Fatalf("hist[1].value=%v; want ~1.5", h1.value)
	}
}

func TestRecordsRejectsBatchesGroups(t *testing.T) {
	fb := &fakeBackend{}
	r := New("jobX", fb)

	r.Records("read", 3)
	r.Records("read", 0) // ignored
	r.Rejects("price_unparsable", 2)
	r.Rejects("name_empty", -1) // ignored
	r.Batches(4)
	r.Groups(10, 2048)

	if len(fb.callsCounters) != 3 {
		t.Fatalf("expected 3 counter calls, got %d: %+v", len(fb.callsCounters), fb.callsCounters)
	}
	if c := fb.callsCounters[0]; c.name != RecordsTotal || c.delta != 3 || c.labels["kind"] != "read" || c.labels["job"] != "jobX" {
		t.Fatalf("records counter = %#v", c)
	}
	if c := fb.callsCounters[1]; c.name != RejectsTotal || c.delta != 2 || c.labels["reason"] != "price_unparsable" {
		t.Fatalf("rejects counter = %#v", c)
	}
	if c := fb.callsCounters[2]; c.name != BatchesTotal || c.delta != 4 {
		t.Fatalf("batches counter = %#v", c)
	}
	if fb.gauges[GroupsGauge] != 10 || fb.gauges[GroupBytesGauge] != 2048 {
		t.Fatalf("gauges=%v", fb.gauges)
	}

	if err := r.Flush(); err != nil || fb.flushCount != 1 {
		t.Fatalf("Flush err=%v count=%d", err, fb.flushCount)
	}
}

// TestNilRecorderIsSafe verifies that a nil or backend-less recorder can be
// used without checks at call sites.
func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Step("read", nil, time.Millisecond)
	r.Records("read", 1)
	r.Rejects("x", 1)
	r.Groups(1, 1)
	if err := r.Flush(); err != nil {
		t.Fatalf("nil Flush: %v", err)
	}
	Nop().Batches(1)
	if err := Nop().Flush(); err != nil {
		t.Fatalf("Nop Flush: %v", err)
	}
}
