package status

import (
	"testing"
	"time"

	"github.com/satomon/sato/internal/probe"
)

func result(id string, ok bool, latency time.Duration) probe.Result {
	return probe.Result{
		ServiceID: id,
		Timestamp: time.Now(),
		Success:   ok,
		Latency:   latency,
	}
}

func TestClassifier_CheckingToOperational(t *testing.T) {
	c := NewClassifier(2, 1, 0)

	tr, changed := c.Observe(result("svc", true, 10*time.Millisecond))
	if !changed {
		t.Fatal("first success should transition out of Checking")
	}
	if tr.From != StateChecking || tr.To != StateOperational {
		t.Errorf("expected Checking -> Operational, got %s -> %s", tr.From, tr.To)
	}
}

func TestClassifier_DownAfterConsecutiveFailures(t *testing.T) {
	c := NewClassifier(2, 1, 0)
	c.Observe(result("svc", true, 0))

	tr, changed := c.Observe(result("svc", false, 0))
	if !changed || tr.To != StateDegraded {
		t.Fatalf("single failure after Operational should be Degraded, got %+v changed=%v", tr, changed)
	}

	tr, changed = c.Observe(result("svc", false, 0))
	if !changed || tr.To != StateDown {
		t.Fatalf("second consecutive failure should be Down, got %+v changed=%v", tr, changed)
	}

	// Further failures do not re-transition.
	_, changed = c.Observe(result("svc", false, 0))
	if changed {
		t.Error("repeated failures while Down must not emit transitions")
	}
}

func TestClassifier_LatencyDegradesWhileSucceeding(t *testing.T) {
	c := NewClassifier(2, 1, 100*time.Millisecond)
	c.Observe(result("svc", true, 10*time.Millisecond))

	tr, changed := c.Observe(result("svc", true, 300*time.Millisecond))
	if !changed || tr.To != StateDegraded {
		t.Fatalf("slow success should degrade, got %+v changed=%v", tr, changed)
	}

	r := c.Record("svc")
	if r.ConsecutiveFailures != 0 {
		t.Error("slow success must not count as a failure")
	}

	tr, changed = c.Observe(result("svc", true, 10*time.Millisecond))
	if !changed || tr.To != StateOperational {
		t.Fatalf("fast success should recover from Degraded, got %+v changed=%v", tr, changed)
	}
}

func TestClassifier_DownRecoveryHysteresis(t *testing.T) {
	c := NewClassifier(2, 2, 0)
	c.Observe(result("svc", false, 0))
	c.Observe(result("svc", false, 0))
	if c.Record("svc").State != StateDown {
		t.Fatal("expected Down after two failures")
	}

	_, changed := c.Observe(result("svc", true, 0))
	if changed {
		t.Error("first success must not recover with hysteresis of 2")
	}

	tr, changed := c.Observe(result("svc", true, 0))
	if !changed || tr.To != StateOperational {
		t.Fatalf("second success should recover, got %+v changed=%v", tr, changed)
	}
}

func TestClassifier_DegradedRecoversAfterOneSuccess(t *testing.T) {
	c := NewClassifier(2, 3, 0)
	c.Observe(result("svc", true, 0))
	c.Observe(result("svc", false, 0)) // Degraded

	tr, changed := c.Observe(result("svc", true, 0))
	if !changed || tr.To != StateOperational {
		t.Fatalf("Degraded should recover on a single success, got %+v changed=%v", tr, changed)
	}
}

func TestClassifier_FailureFromCheckingDegradesFirst(t *testing.T) {
	c := NewClassifier(2, 1, 0)
	tr, changed := c.Observe(result("svc", false, 0))
	if !changed || tr.To != StateDegraded {
		t.Fatalf("first failure below threshold should be Degraded, got %+v changed=%v", tr, changed)
	}
}

func TestRecord_LatencyRing(t *testing.T) {
	r := &Record{ServiceID: "svc", State: StateOperational}

	for i := 1; i <= LatencyRingSize+5; i++ {
		r.PushLatency(time.Duration(i) * time.Millisecond)
	}

	got := r.Latencies()
	if len(got) != LatencyRingSize {
		t.Fatalf("expected %d samples, got %d", LatencyRingSize, len(got))
	}
	if got[0] != 6*time.Millisecond {
		t.Errorf("expected oldest sample 6ms, got %v", got[0])
	}
	if got[len(got)-1] != time.Duration(LatencyRingSize+5)*time.Millisecond {
		t.Errorf("expected newest sample %dms, got %v", LatencyRingSize+5, got[len(got)-1])
	}
}

func TestClassifier_RestoreSurvivesObservation(t *testing.T) {
	c := NewClassifier(2, 1, 0)
	c.Restore(&Record{ServiceID: "svc", State: StateDown, ConsecutiveFailures: 4})

	_, changed := c.Observe(result("svc", false, 0))
	if changed {
		t.Error("restored Down record must stay Down on further failure")
	}
	if c.Record("svc").ConsecutiveFailures != 5 {
		t.Errorf("expected failure streak 5, got %d", c.Record("svc").ConsecutiveFailures)
	}
}
